package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"scope-chat/internal/domain/chat"
	scope_errors "scope-chat/pkg/errors"
)

func seedChat(t *testing.T, s Store, typ string, users ...int64) chat.Chat {
	t.Helper()
	ctx := context.Background()
	c := chat.Chat{Type: typ, CreatedBy: users[0]}
	if err := s.Chats().Create(ctx, &c); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for i, u := range users {
		role := chat.RoleMember
		if i == 0 {
			role = chat.RoleAdmin
		}
		if err := s.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: u, Role: role}); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return c
}

func TestMemoryStoreMembers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := seedChat(t, s, chat.TypeGroup, 1, 2)

	err := s.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: 2, Role: chat.RoleMember})
	if !errors.Is(err, scope_errors.ErrAlreadyExists) {
		t.Fatalf("duplicate member: got %v", err)
	}
	if err := s.Chats().RemoveMember(ctx, c.ID, 2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Chats().RemoveMember(ctx, c.ID, 2); !errors.Is(err, scope_errors.ErrNotFound) {
		t.Fatalf("second remove: got %v", err)
	}
	ok, _ := s.Chats().IsMember(ctx, c.ID, 2)
	if ok {
		t.Fatal("user 2 should no longer be a member")
	}
}

func TestMemoryStoreFindDirect(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedChat(t, s, chat.TypeGroup, 3, 5)
	d := seedChat(t, s, chat.TypeDirect, 3, 5)

	got, err := s.Chats().FindDirect(ctx, 5, 3)
	if err != nil {
		t.Fatalf("FindDirect: %v", err)
	}
	if got.ID != d.ID {
		t.Fatalf("found chat %d, want %d", got.ID, d.ID)
	}
	if _, err := s.Chats().FindDirect(ctx, 3, 9); !errors.Is(err, scope_errors.ErrNotFound) {
		t.Fatalf("unexpected result for unknown pair: %v", err)
	}
}

func TestMemoryStoreChatMessagesPaging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := seedChat(t, s, chat.TypeGroup, 1)

	var ids []int64
	for i := 0; i < 5; i++ {
		m := chat.Message{ChatID: c.ID, SenderID: 1, Content: "m", MessageType: chat.MessageTypeText}
		if err := s.Messages().Create(ctx, &m); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if err := s.Messages().SoftDelete(ctx, ids[3], time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	page, err := s.Messages().GetChatMessages(ctx, c.ID, 0, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[4] {
		t.Fatalf("newest page = %v", messageIDs(page))
	}

	older, err := s.Messages().GetChatMessages(ctx, c.ID, page[0].ID, 10)
	if err != nil {
		t.Fatalf("older: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[0] || older[1].ID != ids[1] {
		t.Fatalf("older page = %v", messageIDs(older))
	}
}

func TestMemoryStoreLinkTaskOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := seedChat(t, s, chat.TypeGroup, 1)
	m := chat.Message{ChatID: c.ID, SenderID: 1, Content: "todo"}
	if err := s.Messages().Create(ctx, &m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Messages().LinkTask(ctx, m.ID, 77); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := s.Messages().LinkTask(ctx, m.ID, 78); !errors.Is(err, scope_errors.ErrAlreadyLinked) {
		t.Fatalf("second link: got %v", err)
	}
	got, _ := s.Messages().GetByID(ctx, m.ID)
	if got.TaskID == nil || *got.TaskID != 77 {
		t.Fatalf("task id = %v", got.TaskID)
	}
}

func TestMemoryStoreReactionsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := seedChat(t, s, chat.TypeGroup, 1)
	m := chat.Message{ChatID: c.ID, SenderID: 1, Content: "hi"}
	_ = s.Messages().Create(ctx, &m)

	created, err := s.Messages().AddReaction(ctx, &chat.Reaction{MessageID: m.ID, UserID: 1, Emoji: "+1"})
	if err != nil || !created {
		t.Fatalf("first add: %v %v", created, err)
	}
	created, err = s.Messages().AddReaction(ctx, &chat.Reaction{MessageID: m.ID, UserID: 1, Emoji: "+1"})
	if err != nil || created {
		t.Fatalf("second add: %v %v", created, err)
	}
	rs, _ := s.Messages().GetMessageReactions(ctx, m.ID)
	if len(rs) != 1 {
		t.Fatalf("reactions = %d", len(rs))
	}
	removed, err := s.Messages().RemoveReaction(ctx, m.ID, 1, "heart")
	if err != nil || removed {
		t.Fatalf("remove missing: %v %v", removed, err)
	}
}

func TestMemoryStoreDeleteChatCascades(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	c := seedChat(t, s, chat.TypeGroup, 1, 2)
	m := chat.Message{ChatID: c.ID, SenderID: 1, Content: "x"}
	_ = s.Messages().Create(ctx, &m)

	if err := s.Chats().Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Messages().GetByID(ctx, m.ID); !errors.Is(err, scope_errors.ErrNotFound) {
		t.Fatalf("message survived chat delete: %v", err)
	}
	chats, _ := s.Chats().GetUserChats(ctx, 2)
	if len(chats) != 0 {
		t.Fatalf("user still lists %d chats", len(chats))
	}
}

func TestPairLockKeyIsUnordered(t *testing.T) {
	if pairLockKey(3, 5) != pairLockKey(5, 3) {
		t.Fatal("lock key depends on argument order")
	}
	if pairLockKey(3, 5) == pairLockKey(3, 6) {
		t.Fatal("distinct pairs share a lock key")
	}
}

func messageIDs(ms []chat.Message) []int64 {
	out := make([]int64, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestMemoryStoreFailedTransactionRollsBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	kept := seedChat(t, s, chat.TypeGroup, 1)

	boom := errors.New("enrollment failed")
	err := s.WithTx(ctx, func(tx Store) error {
		c := chat.Chat{Type: chat.TypeDirect, CreatedBy: 1}
		if err := tx.Chats().Create(ctx, &c); err != nil {
			return err
		}
		if err := tx.Chats().AddMember(ctx, &chat.Member{ChatID: c.ID, UserID: 1, Role: chat.RoleMember}); err != nil {
			return err
		}
		if err := tx.Chats().UpdateLastReadAt(ctx, kept.ID, 1, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx returned %v", err)
	}

	chats, _ := s.Chats().GetUserChats(ctx, 1)
	if len(chats) != 1 || chats[0].ID != kept.ID {
		t.Fatalf("half-built chat survived the rollback: %+v", chats)
	}
	if m, _ := s.Chats().GetMember(ctx, kept.ID, 1); m.LastReadAt != nil {
		t.Fatal("update inside the failed transaction was kept")
	}

	// writes outside a transaction still work afterwards
	if _, err := s.Chats().GetByID(ctx, kept.ID); err != nil {
		t.Fatal(err)
	}
	seedChat(t, s, chat.TypeGroup, 2)
}
