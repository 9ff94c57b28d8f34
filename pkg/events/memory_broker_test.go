package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBrokerSince(t *testing.T) {
	b := NewMemoryBroker(10)
	ctx := context.Background()

	_, start, err := b.Since(ctx, 1, "", 0)
	if err != nil || start != "0-0" {
		t.Fatalf("start cursor %q err %v", start, err)
	}

	publishText(t, b, 1, KindNewMessage)
	publishText(t, b, 2, KindNewMessage)
	publishText(t, b, 1, KindMessageDeleted)

	evs, next, err := b.Since(ctx, 1, start, 10)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(evs) != 2 || evs[0].Kind != KindNewMessage || evs[1].Kind != KindMessageDeleted {
		t.Fatalf("unexpected events %+v", evs)
	}
	if next != evs[1].Cursor {
		t.Fatalf("next %q want %q", next, evs[1].Cursor)
	}

	if _, _, err := b.Since(ctx, 1, "garbage", 10); err == nil {
		t.Fatal("expected invalid cursor error")
	}
}

func TestMemoryBrokerSubscribePatternMatch(t *testing.T) {
	b := NewMemoryBroker(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = b.Subscribe(ctx, []string{ChannelPatternAll}, func(_ context.Context, channel string, _ Event) {
			got <- channel
		})
	}()
	<-ready

	deadline := time.Now().Add(time.Second)
	for {
		b.mu.RLock()
		n := len(b.subs)
		b.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = b.Publish(ctx, "channel:user:1", Event{Kind: KindTyping})
	publishText(t, b, 8, KindTyping)

	select {
	case ch := <-got:
		if ch != ChatChannel(8) {
			t.Fatalf("delivered on %q", ch)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestMemoryBrokerSinceMalformedCursor(t *testing.T) {
	b := NewMemoryBroker(10)
	if _, _, err := b.Since(context.Background(), 1, "nope", 10); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("got %v", err)
	}
}
