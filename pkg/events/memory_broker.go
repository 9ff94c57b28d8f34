package events

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
)

// MemoryBroker is a single-process Broker used when Redis is disabled and in
// tests. Cursors have the same "<seq>-0" shape as Redis stream ids.
type MemoryBroker struct {
	mu     sync.RWMutex
	maxLen int
	seq    uint64
	logs   map[int64][]Event
	subs   map[int]*memorySub
	nextID int
}

type memorySub struct {
	patterns []string
	ch       chan memoryDelivery
}

type memoryDelivery struct {
	channel string
	event   Event
}

func NewMemoryBroker(maxLen int) *MemoryBroker {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &MemoryBroker{
		maxLen: maxLen,
		logs:   make(map[int64][]Event),
		subs:   make(map[int]*memorySub),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, event Event) error {
	b.mu.Lock()
	if event.ChatID > 0 {
		b.seq++
		event.Cursor = fmt.Sprintf("%d-0", b.seq)
		log := append(b.logs[event.ChatID], event)
		if len(log) > b.maxLen {
			log = log[len(log)-b.maxLen:]
		}
		b.logs[event.ChatID] = log
	}
	targets := make([]*memorySub, 0, len(b.subs))
	for _, s := range b.subs {
		if matchAny(s.patterns, channel) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- memoryDelivery{channel: channel, event: event}:
		default:
			// subscriber too slow, drop like pub/sub would
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, patterns []string, handler Handler) error {
	s := &memorySub{patterns: patterns, ch: make(chan memoryDelivery, 256)}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-s.ch:
			handler(ctx, d.channel, d.event)
		}
	}
}

func (b *MemoryBroker) Since(ctx context.Context, chatID int64, cursor string, limit int64) ([]Event, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.logs[chatID]
	if cursor == "" {
		if len(log) == 0 {
			return []Event{}, "0-0", nil
		}
		return []Event{}, log[len(log)-1].Cursor, nil
	}

	after, err := cursorSeq(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}
	out := make([]Event, 0)
	next := cursor
	for _, e := range log {
		seq, _ := cursorSeq(e.Cursor)
		if seq <= after {
			continue
		}
		if int64(len(out)) == limit {
			break
		}
		out = append(out, e)
		next = e.Cursor
	}
	return out, next, nil
}

// SubscriberCount reports active Subscribe calls.
func (b *MemoryBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func cursorSeq(cursor string) (uint64, error) {
	head := cursor
	if i := strings.IndexByte(cursor, '-'); i >= 0 {
		head = cursor[:i]
	}
	seq, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

func matchAny(patterns []string, channel string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, channel); ok {
			return true
		}
	}
	return false
}
