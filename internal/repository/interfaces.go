package repository

import (
	"context"
	"time"

	"scope-chat/internal/domain/chat"
)

type ChatRepository interface {
	Create(ctx context.Context, c *chat.Chat) error
	GetByID(ctx context.Context, id int64) (chat.Chat, error)
	Update(ctx context.Context, c chat.Chat) error
	Delete(ctx context.Context, id int64) error

	GetUserChats(ctx context.Context, userID int64) ([]chat.Chat, error)
	// GetProjectChats and GetTeamChats only return chats userID belongs to.
	GetProjectChats(ctx context.Context, projectID, userID int64) ([]chat.Chat, error)
	GetTeamChats(ctx context.Context, teamID, userID int64) ([]chat.Chat, error)
	// Touch records chat activity; it never moves updated_at backwards.
	Touch(ctx context.Context, id int64, at time.Time) error
	// FindDirect returns the lowest-id direct chat both users belong to.
	FindDirect(ctx context.Context, userID1, userID2 int64) (chat.Chat, error)
	// LockDirectPair serializes direct chat creation for an unordered user
	// pair until the surrounding transaction ends.
	LockDirectPair(ctx context.Context, userID1, userID2 int64) error

	AddMember(ctx context.Context, m *chat.Member) error
	RemoveMember(ctx context.Context, chatID, userID int64) error
	GetMember(ctx context.Context, chatID, userID int64) (chat.Member, error)
	GetMembers(ctx context.Context, chatID int64) ([]chat.Member, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	UpdateLastReadAt(ctx context.Context, chatID, userID int64, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *chat.Message) error
	// GetByID returns soft-deleted rows too; callers decide visibility.
	GetByID(ctx context.Context, id int64) (chat.Message, error)
	// GetChatMessages returns up to limit non-deleted messages with id below
	// before (0 means no cursor), newest page first, sorted by ascending id.
	GetChatMessages(ctx context.Context, chatID, before int64, limit int) ([]chat.Message, error)
	UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	// LinkTask stamps task_id only when it is unset.
	LinkTask(ctx context.Context, id, taskID int64) error
	AddReader(ctx context.Context, id, userID int64) error

	GetUserMentions(ctx context.Context, userID int64, limit int) ([]chat.Message, error)
	CountUnread(ctx context.Context, chatID, userID int64, since time.Time) (int64, error)

	// AddReaction reports whether a new row was created.
	AddReaction(ctx context.Context, r *chat.Reaction) (bool, error)
	// RemoveReaction reports whether a row was deleted.
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error)
	GetMessageReactions(ctx context.Context, messageID int64) ([]chat.Reaction, error)
}

// Store groups the repositories that must share a transaction.
type Store interface {
	Chats() ChatRepository
	Messages() MessageRepository
	WithTx(ctx context.Context, fn func(Store) error) error
}
