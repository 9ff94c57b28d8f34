package proxy

import (
	"context"
	"errors"
	"testing"

	"scope-chat/internal/domain/chat"
	"scope-chat/internal/repository"
	scope_errors "scope-chat/pkg/errors"
)

func setup(t *testing.T) (*AccessControl, chat.Chat) {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	c := chat.Chat{Type: chat.TypeGroup, CreatedBy: 1}
	if err := store.Chats().Create(ctx, &c); err != nil {
		t.Fatal(err)
	}
	_ = store.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: 1, Role: chat.RoleAdmin})
	_ = store.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: 2, Role: chat.RoleMember})
	return NewAccessControl(store.Chats()), c
}

func TestAccessControlRoles(t *testing.T) {
	a, c := setup(t)
	ctx := context.Background()

	if _, err := a.RequireMember(ctx, c.ID, 3); !errors.Is(err, scope_errors.ErrNotMember) {
		t.Fatalf("outsider: %v", err)
	}
	if _, err := a.RequireAdmin(ctx, c.ID, 2); !errors.Is(err, scope_errors.ErrForbidden) {
		t.Fatalf("member as admin: %v", err)
	}
	if _, err := a.RequireAdmin(ctx, c.ID, 1); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

func TestAccessControlMessageRules(t *testing.T) {
	a, c := setup(t)
	ctx := context.Background()
	msg := chat.Message{ID: 1, ChatID: c.ID, SenderID: 2}

	if err := a.CanEditMessage(ctx, msg, 1); !errors.Is(err, scope_errors.ErrForbidden) {
		t.Fatalf("admin edit: %v", err)
	}
	if err := a.CanEditMessage(ctx, msg, 2); err != nil {
		t.Fatalf("sender edit: %v", err)
	}
	if err := a.CanModerateMessage(ctx, msg, 1); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := a.CanModerateMessage(ctx, chat.Message{ChatID: c.ID, SenderID: 1}, 2); !errors.Is(err, scope_errors.ErrForbidden) {
		t.Fatalf("member deleting other's message: %v", err)
	}
	if err := a.CanModerateMessage(ctx, msg, 9); !errors.Is(err, scope_errors.ErrNotMember) {
		t.Fatalf("outsider delete: %v", err)
	}
}
