package chatclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 2 * time.Second
	pollBatch           = 100
)

// PollFeed fetches new events for every watched chat on a fixed interval.
// Cursors survive reconnects, so a reconnect replays the missed window.
type PollFeed struct {
	api      *API
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	cursors map[int64]string
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPollFeed(api *API, interval time.Duration, log *zap.Logger) *PollFeed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PollFeed{
		api:      api,
		interval: interval,
		log:      log,
		cursors:  make(map[int64]string),
	}
}

func (f *PollFeed) Transport() Transport {
	return TransportPolling
}

func (f *PollFeed) Connect(ctx context.Context, deliver func(Event)) error {
	if err := f.api.Ping(ctx); err != nil {
		return &ConnectError{Transport: TransportPolling, Err: err}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.mu.Lock()
	f.cancel = cancel
	f.done = done
	f.mu.Unlock()

	go f.loop(loopCtx, done, deliver)
	return nil
}

func (f *PollFeed) loop(ctx context.Context, done chan struct{}, deliver func(Event)) {
	defer close(done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.poll(ctx, deliver); err != nil {
				if ctx.Err() == nil {
					f.log.Warn("poll failed, ending session", zap.Error(err))
				}
				return
			}
		}
	}
}

// poll runs one fetch cycle. A chat the caller may no longer read (403, 404)
// is dropped from the watch set and a rejected cursor restarts from the tail.
// Any other failure ends the session so the connection reconnects.
func (f *PollFeed) poll(ctx context.Context, deliver func(Event)) error {
	f.mu.Lock()
	watched := make(map[int64]string, len(f.cursors))
	for id, cursor := range f.cursors {
		watched[id] = cursor
	}
	f.mu.Unlock()

	for chatID, cursor := range watched {
		events, next, err := f.api.Events(ctx, chatID, cursor, pollBatch)
		if err != nil {
			var fe *FetchError
			if !errors.As(err, &fe) {
				return err
			}
			switch fe.StatusCode {
			case http.StatusForbidden, http.StatusNotFound:
				f.log.Warn("dropping chat from poll set", zap.Int64("chat_id", chatID), zap.Error(err))
				f.mu.Lock()
				delete(f.cursors, chatID)
				f.mu.Unlock()
				continue
			case http.StatusBadRequest:
				f.log.Warn("cursor rejected, restarting from tail", zap.Int64("chat_id", chatID), zap.Error(err))
				_, tail, terr := f.api.Events(ctx, chatID, "", 0)
				if terr != nil {
					return terr
				}
				f.mu.Lock()
				if _, ok := f.cursors[chatID]; ok {
					f.cursors[chatID] = tail
				}
				f.mu.Unlock()
				continue
			}
			return err
		}
		for _, e := range events {
			deliver(e)
		}
		f.mu.Lock()
		if _, ok := f.cursors[chatID]; ok && next != "" {
			f.cursors[chatID] = next
		}
		f.mu.Unlock()
	}
	return nil
}

func (f *PollFeed) Disconnect() error {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (f *PollFeed) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		return closedChan()
	}
	return f.done
}

// Join starts watching from the chat's current tail. Joining a chat that is
// already watched keeps its cursor.
func (f *PollFeed) Join(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	_, ok := f.cursors[chatID]
	f.mu.Unlock()
	if ok {
		return nil
	}

	_, tail, err := f.api.Events(ctx, chatID, "", 0)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if _, ok := f.cursors[chatID]; !ok {
		f.cursors[chatID] = tail
	}
	f.mu.Unlock()
	return nil
}

func (f *PollFeed) Leave(ctx context.Context, chatID int64) error {
	f.mu.Lock()
	delete(f.cursors, chatID)
	f.mu.Unlock()
	return nil
}

// retain forgets cursors for chats outside ids.
func (f *PollFeed) retain(ids []int64) {
	keep := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	f.mu.Lock()
	for id := range f.cursors {
		if _, ok := keep[id]; !ok {
			delete(f.cursors, id)
		}
	}
	f.mu.Unlock()
}

func (f *PollFeed) Typing(ctx context.Context, chatID int64) error {
	return f.api.SendTyping(ctx, chatID)
}
