package proxy

import (
	"context"
	"errors"

	"scope-chat/internal/domain/chat"
	"scope-chat/internal/repository"
	scope_errors "scope-chat/pkg/errors"
)

// AccessControl answers the membership and role questions every chat
// operation re-asks before acting.
type AccessControl struct {
	chats repository.ChatRepository
}

func NewAccessControl(chats repository.ChatRepository) *AccessControl {
	return &AccessControl{chats: chats}
}

// RequireMember returns the caller's membership or ErrNotMember.
func (a *AccessControl) RequireMember(ctx context.Context, chatID, userID int64) (chat.Member, error) {
	if a.chats == nil {
		return chat.Member{}, scope_errors.ErrNotMember
	}
	m, err := a.chats.GetMember(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, scope_errors.ErrNotFound) {
			return chat.Member{}, scope_errors.ErrNotMember
		}
		return chat.Member{}, err
	}
	return m, nil
}

// RequireAdmin returns ErrNotMember for outsiders and ErrForbidden for
// non-admin members.
func (a *AccessControl) RequireAdmin(ctx context.Context, chatID, userID int64) (chat.Member, error) {
	m, err := a.RequireMember(ctx, chatID, userID)
	if err != nil {
		return chat.Member{}, err
	}
	if !m.IsAdmin() {
		return chat.Member{}, scope_errors.ErrForbidden
	}
	return m, nil
}

// CanModerateMessage reports whether userID may soft-delete msg: its sender
// or an admin of its chat.
func (a *AccessControl) CanModerateMessage(ctx context.Context, msg chat.Message, userID int64) error {
	m, err := a.RequireMember(ctx, msg.ChatID, userID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && !m.IsAdmin() {
		return scope_errors.ErrForbidden
	}
	return nil
}

// CanEditMessage allows only the original sender, admins included.
func (a *AccessControl) CanEditMessage(ctx context.Context, msg chat.Message, userID int64) error {
	if _, err := a.RequireMember(ctx, msg.ChatID, userID); err != nil {
		return err
	}
	if msg.SenderID != userID {
		return scope_errors.ErrForbidden
	}
	return nil
}
