package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	chatevents "scope-chat/pkg/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []chatevents.Event
	chans  []string
	err    error
	block  chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, ev chatevents.Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chans = append(p.chans, channel)
	p.events = append(p.events, ev)
	return p.err
}

func TestGatewayDeliversOnChatChannel(t *testing.T) {
	pub := &recordingPublisher{}
	g := NewGateway(pub, nil, Options{Workers: 1, QueueSize: 8})

	g.Publish(42, chatevents.KindUserLeft, chatevents.MemberPayload{UserID: 7})
	g.Close()

	if len(pub.events) != 1 {
		t.Fatalf("published %d events", len(pub.events))
	}
	if pub.chans[0] != "channel:chat:42" {
		t.Fatalf("channel = %q", pub.chans[0])
	}
	ev := pub.events[0]
	if ev.Kind != chatevents.KindUserLeft || ev.ChatID != 42 || ev.Timestamp.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
	var p chatevents.MemberPayload
	if err := ev.Decode(&p); err != nil || p.UserID != 7 {
		t.Fatalf("payload %+v err %v", p, err)
	}
}

func TestGatewaySwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	g := NewGateway(pub, nil, Options{Workers: 2, QueueSize: 8})

	g.Publish(1, chatevents.KindNewMessage, map[string]int{"id": 1})
	g.Publish(1, chatevents.KindNewMessage, map[string]int{"id": 2})
	g.Close()

	if len(pub.events) != 2 {
		t.Fatalf("attempted %d publishes, want 2", len(pub.events))
	}
}

func TestGatewayPublishDoesNotBlockWhenQueueFull(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	g := NewGateway(pub, nil, Options{Workers: 1, QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			g.Publish(1, chatevents.KindTyping, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled provider")
	}
	close(pub.block)
	g.Close()

	if n := len(pub.events); n == 0 || n > 2 {
		t.Fatalf("delivered %d events, want between 1 and 2", n)
	}
}

func TestGatewayPublishAfterCloseIsDropped(t *testing.T) {
	pub := &recordingPublisher{}
	g := NewGateway(pub, nil, Options{})
	g.Close()
	g.Publish(1, chatevents.KindTyping, nil)
	g.Close()
	if len(pub.events) != 0 {
		t.Fatalf("published after close: %d", len(pub.events))
	}
}
