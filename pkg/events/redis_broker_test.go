package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	scope_errors "scope-chat/pkg/errors"
)

func newTestBroker(t *testing.T, maxLen int64) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client, maxLen)
}

func publishText(t *testing.T, b Publisher, chatID int64, kind Kind) {
	t.Helper()
	ev, err := New(chatID, kind, TypingPayload{UserID: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Publish(context.Background(), ChatChannel(chatID), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestRedisBrokerSinceEmptyCursorReturnsTail(t *testing.T) {
	b := newTestBroker(t, 100)
	ctx := context.Background()

	evs, cursor, err := b.Since(ctx, 5, "", 10)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(evs) != 0 || cursor != "0-0" {
		t.Fatalf("empty stream: got %d events cursor %q", len(evs), cursor)
	}

	publishText(t, b, 5, KindNewMessage)
	publishText(t, b, 5, KindMessageUpdated)

	evs, cursor, err = b.Since(ctx, 5, "", 10)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(evs) != 0 || cursor == "" || cursor == "0-0" {
		t.Fatalf("expected only a tail cursor, got %d events cursor %q", len(evs), cursor)
	}
}

func TestRedisBrokerSinceReturnsEventsAfterCursor(t *testing.T) {
	b := newTestBroker(t, 100)
	ctx := context.Background()

	_, start, err := b.Since(ctx, 9, "", 10)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}

	publishText(t, b, 9, KindNewMessage)
	publishText(t, b, 9, KindMessageUpdated)
	publishText(t, b, 9, KindMessageDeleted)
	publishText(t, b, 10, KindNewMessage)

	evs, next, err := b.Since(ctx, 9, start, 2)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Kind != KindNewMessage || evs[1].Kind != KindMessageUpdated {
		t.Fatalf("unexpected kinds %s %s", evs[0].Kind, evs[1].Kind)
	}
	if next != evs[1].Cursor {
		t.Fatalf("next cursor %q, want %q", next, evs[1].Cursor)
	}

	evs, _, err = b.Since(ctx, 9, next, 10)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(evs) != 1 || evs[0].Kind != KindMessageDeleted {
		t.Fatalf("expected the remaining delete event, got %+v", evs)
	}
}

func TestRedisBrokerSinceMalformedCursorIsInvalidInput(t *testing.T) {
	b := newTestBroker(t, 100)
	for _, bad := range []string{"abc", "12-x", "-1"} {
		_, _, err := b.Since(context.Background(), 9, bad, 10)
		if !errors.Is(err, ErrInvalidCursor) || !errors.Is(err, scope_errors.ErrInvalidInput) {
			t.Fatalf("cursor %q: got %v", bad, err)
		}
	}
	if _, _, err := b.Since(context.Background(), 9, "0-0", 10); err != nil {
		t.Fatalf("zero cursor rejected: %v", err)
	}
}

func TestRedisBrokerSinceBackendFailureIsNotInvalidInput(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	b := NewRedisBroker(client, 100)
	mr.Close()

	_, _, err := b.Since(context.Background(), 9, "1-0", 10)
	if err == nil {
		t.Fatal("expected an error with redis down")
	}
	if errors.Is(err, scope_errors.ErrInvalidInput) {
		t.Fatalf("backend failure reported as bad input: %v", err)
	}
}

func TestRedisBrokerStreamIsCapped(t *testing.T) {
	b := newTestBroker(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		publishText(t, b, 3, KindTyping)
	}
	n, err := b.client.XLen(ctx, ChatStream(3)).Result()
	if err != nil {
		t.Fatalf("XLen: %v", err)
	}
	if n != 2 {
		t.Fatalf("stream length %d, want 2", n)
	}
}

func TestRedisBrokerSubscribeDeliversWithCursor(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := NewRedisBroker(client, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 1)
	go func() {
		_ = b.Subscribe(ctx, []string{ChannelPatternAll}, func(_ context.Context, channel string, ev Event) {
			if channel == ChatChannel(4) {
				got <- ev
			}
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumPat() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	publishText(t, b, 4, KindTyping)

	select {
	case ev := <-got:
		if ev.Kind != KindTyping || ev.ChatID != 4 || ev.Cursor == "" {
			t.Fatalf("unexpected event %+v", ev)
		}
		var p TypingPayload
		if err := ev.Decode(&p); err != nil || p.UserID != 1 {
			t.Fatalf("payload decode: %v %+v", err, p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestChatIDFromChannel(t *testing.T) {
	if id, ok := ChatIDFromChannel("channel:chat:17"); !ok || id != 17 {
		t.Fatalf("got %d %v", id, ok)
	}
	for _, bad := range []string{"channel:user:1", "channel:chat:", "channel:chat:x", "channel:chat:-3"} {
		if _, ok := ChatIDFromChannel(bad); ok {
			t.Fatalf("%q should not parse", bad)
		}
	}
}
