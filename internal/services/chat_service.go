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
	scope_errors "scope-chat/pkg/errors"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

const maxChatNameLen = 255

type ChatService struct {
	store    repository.Store
	access   *proxy.AccessControl
	notifier Notifier
	members  MembershipCache
	log      *logger.Logger
}

func NewChatService(store repository.Store, notifier Notifier, members MembershipCache, log *logger.Logger) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatService{
		store:    store,
		access:   proxy.NewAccessControl(store.Chats()),
		notifier: notifier,
		members:  members,
		log:      log.Named("chat"),
	}
}

func validateChatName(name *string) error {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" || len(trimmed) > maxChatNameLen {
		return fmt.Errorf("%w: chat name must be 1-%d characters", scope_errors.ErrInvalidInput, maxChatNameLen)
	}
	*name = trimmed
	return nil
}

// CreateChat persists the chat and enrolls the creator as admin. When
// enrollment fails the chat is still returned; callers retry enrollment
// rather than creating again.
func (s *ChatService) CreateChat(ctx context.Context, in chat.NewChat, creatorID int64) (chat.Chat, error) {
	if !chat.ValidChatType(in.Type) {
		return chat.Chat{}, fmt.Errorf("%w: unknown chat type %q", scope_errors.ErrInvalidInput, in.Type)
	}
	if in.Type == chat.TypeDirect {
		return chat.Chat{}, fmt.Errorf("%w: direct chats are created by pair lookup", scope_errors.ErrInvalidInput)
	}
	if err := validateChatName(in.Name); err != nil {
		return chat.Chat{}, err
	}

	c := chat.Chat{
		Type:      in.Type,
		Name:      in.Name,
		ProjectID: in.ProjectID,
		TeamID:    in.TeamID,
		CreatedBy: creatorID,
	}
	if err := s.store.Chats().Create(ctx, &c); err != nil {
		return chat.Chat{}, fmt.Errorf("create chat: %w", err)
	}

	admin := chat.Member{ChatID: c.ID, UserID: creatorID, Role: chat.RoleAdmin}
	if err := s.store.Chats().AddMember(ctx, &admin); err != nil {
		s.log.With(ctx).Error("creator enrollment failed; chat has no admin",
			zap.Int64("chat_id", c.ID), zap.Int64("creator_id", creatorID), zap.Error(err))
	}
	return c, nil
}

// FindOrCreateDirectChat returns the canonical direct chat for the pair.
// Creation runs under a pair lock so concurrent first calls converge.
func (s *ChatService) FindOrCreateDirectChat(ctx context.Context, userID1, userID2 int64) (chat.Chat, bool, error) {
	if userID1 <= 0 || userID2 <= 0 || userID1 == userID2 {
		return chat.Chat{}, false, fmt.Errorf("%w: a direct chat needs two distinct users", scope_errors.ErrInvalidInput)
	}

	var (
		result  chat.Chat
		created bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Chats().LockDirectPair(ctx, userID1, userID2); err != nil {
			return err
		}
		existing, err := tx.Chats().FindDirect(ctx, userID1, userID2)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, scope_errors.ErrNotFound) {
			return err
		}

		c := chat.Chat{Type: chat.TypeDirect, CreatedBy: userID1}
		if err := tx.Chats().Create(ctx, &c); err != nil {
			return err
		}
		for _, uid := range []int64{userID1, userID2} {
			if err := tx.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: uid, Role: chat.RoleMember}); err != nil {
				return err
			}
		}
		result, created = c, true
		return nil
	})
	if err != nil {
		return chat.Chat{}, false, fmt.Errorf("find or create direct chat: %w", err)
	}
	return result, created, nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID, userID int64) (chat.Chat, error) {
	c, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return chat.Chat{}, err
	}
	if _, err := s.access.RequireMember(ctx, chatID, userID); err != nil {
		return chat.Chat{}, err
	}
	return c, nil
}

func (s *ChatService) GetUserChats(ctx context.Context, userID int64) ([]chat.Chat, error) {
	return s.store.Chats().GetUserChats(ctx, userID)
}

// GetProjectChats lists the project's chats the caller belongs to.
func (s *ChatService) GetProjectChats(ctx context.Context, projectID, userID int64) ([]chat.Chat, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("%w: project id is required", scope_errors.ErrInvalidInput)
	}
	return s.store.Chats().GetProjectChats(ctx, projectID, userID)
}

// GetTeamChats lists the team's chats the caller belongs to.
func (s *ChatService) GetTeamChats(ctx context.Context, teamID, userID int64) ([]chat.Chat, error) {
	if teamID <= 0 {
		return nil, fmt.Errorf("%w: team id is required", scope_errors.ErrInvalidInput)
	}
	return s.store.Chats().GetTeamChats(ctx, teamID, userID)
}

func (s *ChatService) GetChatMembers(ctx context.Context, chatID, userID int64) ([]chat.Member, error) {
	if _, err := s.access.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.store.Chats().GetMembers(ctx, chatID)
}

// IsMember is the plain membership predicate used by the live transports.
func (s *ChatService) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.store.Chats().IsMember(ctx, chatID, userID)
}

// AddMember enrolls userID. Any current member may add; direct chats are
// closed to additions.
func (s *ChatService) AddMember(ctx context.Context, chatID, userID, requesterID int64, role string) (chat.Member, error) {
	if role == "" {
		role = chat.RoleMember
	}
	if !chat.ValidRole(role) || userID <= 0 {
		return chat.Member{}, fmt.Errorf("%w: invalid member", scope_errors.ErrInvalidInput)
	}
	c, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return chat.Member{}, err
	}
	if _, err := s.access.RequireMember(ctx, chatID, requesterID); err != nil {
		return chat.Member{}, err
	}
	if c.Type == chat.TypeDirect {
		return chat.Member{}, fmt.Errorf("%w: direct chats have exactly two members", scope_errors.ErrInvalidInput)
	}

	m := chat.Member{ChatID: chatID, UserID: userID, Role: role}
	if err := s.store.Chats().AddMember(ctx, &m); err != nil {
		return chat.Member{}, err
	}
	s.invalidate(ctx, chatID, userID)
	s.notifier.Publish(chatID, chatevents.KindUserJoined, chatevents.MemberPayload{UserID: userID, Role: role})
	return m, nil
}

// RemoveMember requires the requester to be an admin or to be removing
// themself. The last admin cannot leave while others remain.
func (s *ChatService) RemoveMember(ctx context.Context, chatID, userID, requesterID int64) error {
	c, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	requester, err := s.access.RequireMember(ctx, chatID, requesterID)
	if err != nil {
		return err
	}
	if requesterID != userID && !requester.IsAdmin() {
		return scope_errors.ErrForbidden
	}
	if c.Type == chat.TypeDirect {
		return fmt.Errorf("%w: direct chats have exactly two members", scope_errors.ErrInvalidInput)
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		target, err := tx.Chats().GetMember(ctx, chatID, userID)
		if err != nil {
			return err
		}
		if target.IsAdmin() {
			members, err := tx.Chats().GetMembers(ctx, chatID)
			if err != nil {
				return err
			}
			admins := 0
			for _, m := range members {
				if m.IsAdmin() {
					admins++
				}
			}
			if admins == 1 && len(members) > 1 {
				return fmt.Errorf("%w: the last admin cannot leave a chat with members", scope_errors.ErrConflict)
			}
		}
		return tx.Chats().RemoveMember(ctx, chatID, userID)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, chatID, userID)
	s.notifier.Publish(chatID, chatevents.KindUserLeft, chatevents.MemberPayload{UserID: userID})
	return nil
}

func (s *ChatService) UpdateChat(ctx context.Context, chatID, userID int64, upd chat.ChatUpdate) (chat.Chat, error) {
	c, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return chat.Chat{}, err
	}
	if _, err := s.access.RequireAdmin(ctx, chatID, userID); err != nil {
		return chat.Chat{}, err
	}
	if err := validateChatName(upd.Name); err != nil {
		return chat.Chat{}, err
	}

	if upd.Name != nil {
		c.Name = upd.Name
	}
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.Chats().Update(ctx, c); err != nil {
		return chat.Chat{}, err
	}
	s.notifier.Publish(chatID, chatevents.KindChatUpdated, chatevents.ChatUpdatedPayload{ChatID: chatID, Name: c.Name})
	return c, nil
}

// DeleteChat is reserved to the creator.
func (s *ChatService) DeleteChat(ctx context.Context, chatID, userID int64) error {
	c, err := s.store.Chats().GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if c.CreatedBy != userID {
		return scope_errors.ErrForbidden
	}
	if err := s.store.Chats().Delete(ctx, chatID); err != nil {
		return err
	}
	if s.members != nil {
		if err := s.members.InvalidateChat(ctx, chatID); err != nil {
			s.log.With(ctx).Warn("member cache invalidation failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	s.notifier.Publish(chatID, chatevents.KindChatDeleted, chatevents.ChatDeletedPayload{ChatID: chatID})
	return nil
}

// MarkChatAsRead moves the caller's read marker to now.
func (s *ChatService) MarkChatAsRead(ctx context.Context, chatID, userID int64) error {
	if _, err := s.access.RequireMember(ctx, chatID, userID); err != nil {
		return err
	}
	return s.store.Chats().UpdateLastReadAt(ctx, chatID, userID, time.Now().UTC())
}

func (s *ChatService) invalidate(ctx context.Context, chatID, userID int64) {
	if s.members == nil {
		return
	}
	if err := s.members.Invalidate(ctx, chatID, userID); err != nil {
		s.log.With(ctx).Warn("member cache invalidation failed",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
	}
}
