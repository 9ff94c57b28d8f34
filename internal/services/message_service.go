package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"scope-chat/internal/domain/chat"
	"scope-chat/internal/proxy"
	"scope-chat/internal/repository"
	"scope-chat/internal/taskapi"
	scope_errors "scope-chat/pkg/errors"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

const (
	DefaultPageSize  = 50
	MaxPageSize      = 100
	maxContentLen    = 10000
	maxEmojiLen      = 64
	defaultMentions  = 50
	maxMentionsLimit = 200
)

type MessageService struct {
	store    repository.Store
	access   *proxy.AccessControl
	notifier Notifier
	tasks    TaskCreator
	log      *logger.Logger
}

func NewMessageService(store repository.Store, notifier Notifier, tasks TaskCreator, log *logger.Logger) *MessageService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageService{
		store:    store,
		access:   proxy.NewAccessControl(store.Chats()),
		notifier: notifier,
		tasks:    tasks,
		log:      log.Named("message"),
	}
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", scope_errors.ErrInvalidInput)
	}
	if len(content) > maxContentLen {
		return "", fmt.Errorf("%w: content exceeds %d bytes", scope_errors.ErrInvalidInput, maxContentLen)
	}
	return content, nil
}

// visibleMessage loads a non-deleted message and checks the caller belongs
// to its chat.
func (s *MessageService) visibleMessage(ctx context.Context, messageID, userID int64) (chat.Message, chat.Member, error) {
	msg, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return chat.Message{}, chat.Member{}, err
	}
	if msg.IsDeleted() {
		return chat.Message{}, chat.Member{}, scope_errors.ErrNotFound
	}
	m, err := s.access.RequireMember(ctx, msg.ChatID, userID)
	if err != nil {
		return chat.Message{}, chat.Member{}, err
	}
	return msg, m, nil
}

// SendMessage persists a message from a member. Mentions are derived from
// @user:<id> tokens and the sender is the first reader.
func (s *MessageService) SendMessage(ctx context.Context, in chat.NewMessage, senderID int64) (chat.Message, error) {
	if _, err := s.access.RequireMember(ctx, in.ChatID, senderID); err != nil {
		return chat.Message{}, err
	}
	content, err := normalizeContent(in.Content)
	if err != nil {
		return chat.Message{}, err
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = chat.MessageTypeText
	}
	if !chat.ValidMessageType(msgType) {
		return chat.Message{}, fmt.Errorf("%w: unknown message type %q", scope_errors.ErrInvalidInput, msgType)
	}
	if in.ReplyToID != nil {
		parent, err := s.store.Messages().GetByID(ctx, *in.ReplyToID)
		if err != nil || parent.ChatID != in.ChatID {
			return chat.Message{}, fmt.Errorf("%w: reply target is not in this chat", scope_errors.ErrInvalidInput)
		}
	}

	msg := chat.Message{
		ChatID:      in.ChatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: msgType,
		ReplyToID:   in.ReplyToID,
		Metadata:    in.Metadata,
		Mentions:    chat.ExtractMentions(content),
		ReadBy:      []int64{senderID},
	}
	if err := s.store.Messages().Create(ctx, &msg); err != nil {
		return chat.Message{}, fmt.Errorf("create message: %w", err)
	}
	if err := s.store.Chats().Touch(ctx, msg.ChatID, msg.CreatedAt); err != nil {
		s.log.With(ctx).Warn("failed to record chat activity", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
	}

	s.notifier.Publish(msg.ChatID, chatevents.KindNewMessage, msg)
	return msg, nil
}

// GetChatMessages returns the newest page of non-deleted messages with id
// below before (0 for the latest page), sorted by ascending id.
func (s *MessageService) GetChatMessages(ctx context.Context, chatID, userID int64, limit int, before int64) ([]chat.Message, error) {
	if _, err := s.access.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if before < 0 {
		before = 0
	}
	return s.store.Messages().GetChatMessages(ctx, chatID, before, limit)
}

func (s *MessageService) GetMessage(ctx context.Context, messageID, userID int64) (chat.Message, error) {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	return msg, err
}

// EditMessage is open to the original sender only.
func (s *MessageService) EditMessage(ctx context.Context, messageID, userID int64, content string) (chat.Message, error) {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.access.CanEditMessage(ctx, msg, userID); err != nil {
		return chat.Message{}, err
	}
	content, err = normalizeContent(content)
	if err != nil {
		return chat.Message{}, err
	}

	now := time.Now().UTC()
	if err := s.store.Messages().UpdateContent(ctx, messageID, content, now); err != nil {
		return chat.Message{}, err
	}
	msg.Content = content
	msg.EditedAt = &now
	msg.UpdatedAt = now

	s.notifier.Publish(msg.ChatID, chatevents.KindMessageUpdated, msg)
	return msg, nil
}

// DeleteMessage soft-deletes; the sender or a chat admin may do it.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, userID int64) error {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if err := s.access.CanModerateMessage(ctx, msg, userID); err != nil {
		return err
	}
	if err := s.store.Messages().SoftDelete(ctx, messageID, time.Now().UTC()); err != nil {
		return err
	}
	s.notifier.Publish(msg.ChatID, chatevents.KindMessageDeleted, chatevents.MessageDeletedPayload{MessageID: messageID})
	return nil
}

func validEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLen {
		return "", fmt.Errorf("%w: emoji is required", scope_errors.ErrInvalidInput)
	}
	return emoji, nil
}

// AddReaction is idempotent; only a newly created reaction is fanned out.
func (s *MessageService) AddReaction(ctx context.Context, messageID, userID int64, emoji string) (chat.Reaction, error) {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return chat.Reaction{}, err
	}
	emoji, err = validEmoji(emoji)
	if err != nil {
		return chat.Reaction{}, err
	}

	r := chat.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	created, err := s.store.Messages().AddReaction(ctx, &r)
	if err != nil {
		return chat.Reaction{}, err
	}
	if created {
		s.notifier.Publish(msg.ChatID, chatevents.KindReactionAdded, chatevents.ReactionPayload{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			Action:    chat.ReactionAdded,
		})
	}
	return r, nil
}

// RemoveReaction treats a missing reaction as already removed.
func (s *MessageService) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	emoji, err = validEmoji(emoji)
	if err != nil {
		return err
	}

	removed, err := s.store.Messages().RemoveReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return err
	}
	if removed {
		s.notifier.Publish(msg.ChatID, chatevents.KindReactionRemoved, chatevents.ReactionPayload{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			Action:    chat.ReactionRemoved,
		})
	}
	return nil
}

func (s *MessageService) GetMessageReactions(ctx context.Context, messageID, userID int64) ([]chat.Reaction, error) {
	if _, _, err := s.visibleMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}
	return s.store.Messages().GetMessageReactions(ctx, messageID)
}

// MarkAsRead adds the caller to read_by. Repeated calls are no-ops.
func (s *MessageService) MarkAsRead(ctx context.Context, messageID, userID int64) error {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if msg.IsReadBy(userID) {
		return nil
	}
	if err := s.store.Messages().AddReader(ctx, messageID, userID); err != nil {
		return err
	}
	s.notifier.Publish(msg.ChatID, chatevents.KindMessageRead, chatevents.MessageReadPayload{MessageID: messageID, UserID: userID})
	return nil
}

// GetUnreadCount counts messages from others since the caller's read
// marker. Outsiders get zero.
func (s *MessageService) GetUnreadCount(ctx context.Context, chatID, userID int64) (int64, error) {
	m, err := s.store.Chats().GetMember(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, scope_errors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	since := m.JoinedAt
	if m.LastReadAt != nil {
		since = *m.LastReadAt
	}
	return s.store.Messages().CountUnread(ctx, chatID, userID, since)
}

// GetMentionsForUser lists messages mentioning userID, newest first.
func (s *MessageService) GetMentionsForUser(ctx context.Context, userID int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = defaultMentions
	}
	if limit > maxMentionsLimit {
		limit = maxMentionsLimit
	}
	return s.store.Messages().GetUserMentions(ctx, userID, limit)
}

// CreateTaskFromMessage creates a task in the external task service and
// links it to the message. Task service failures are returned as is.
func (s *MessageService) CreateTaskFromMessage(ctx context.Context, messageID, userID int64, data taskapi.TaskData) (chat.Message, error) {
	msg, _, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return chat.Message{}, err
	}
	if msg.TaskID != nil {
		return chat.Message{}, scope_errors.ErrAlreadyLinked
	}
	if s.tasks == nil {
		return chat.Message{}, fmt.Errorf("%w: task service is not configured", scope_errors.ErrServiceUnavailable)
	}
	if strings.TrimSpace(data.Title) == "" {
		data.Title = taskTitle(msg.Content)
	}

	taskID, err := s.tasks.CreateTask(ctx, userID, msg.ChatID, messageID, data)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.store.Messages().LinkTask(ctx, messageID, taskID); err != nil {
		if errors.Is(err, scope_errors.ErrAlreadyLinked) {
			s.log.With(ctx).Warn("task created for a message linked concurrently",
				zap.Int64("message_id", messageID), zap.Int64("task_id", taskID))
		}
		return chat.Message{}, err
	}

	linked, err := s.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	s.notifier.Publish(linked.ChatID, chatevents.KindMessageUpdated, linked)
	return linked, nil
}

func taskTitle(content string) string {
	const max = 120
	title := strings.TrimSpace(content)
	if r := []rune(title); len(r) > max {
		title = string(r[:max])
	}
	return title
}
