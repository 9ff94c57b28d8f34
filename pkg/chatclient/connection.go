package chatclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultReconnectInterval = 3 * time.Second

type ConnectionOptions struct {
	// ReconnectInterval is the fixed delay before a new attempt.
	ReconnectInterval time.Duration
	DisableReconnect  bool
	Logger            *zap.Logger
}

// StateFunc observes connection state changes.
type StateFunc func(state State, transport Transport)

// Connection keeps one live feed for a client session. It starts on the
// socket feed and switches to the poll feed for the rest of the session the
// first time a socket connect fails outright.
type Connection struct {
	socket Feed
	poll   Feed
	opts   ConnectionOptions
	log    *zap.Logger

	mu        sync.Mutex
	state     State
	active    Feed
	fellBack  bool
	watched   map[int64]int
	handlers  map[Kind][]func(Event)
	any       map[int]func(Event)
	nextSub   int
	observers []StateFunc
	cancel    context.CancelFunc
	stopped   chan struct{}
}

// NewConnection accepts a nil socket feed for polling-only sessions.
func NewConnection(socket, poll Feed, opts ConnectionOptions) *Connection {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Connection{
		socket:   socket,
		poll:     poll,
		opts:     opts,
		log:      log,
		state:    StateDisconnected,
		fellBack: socket == nil,
		watched:  make(map[int64]int),
		handlers: make(map[Kind][]func(Event)),
		any:      make(map[int]func(Event)),
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transport reports the strategy in use for the rest of the session.
func (c *Connection) Transport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transportLocked()
}

func (c *Connection) transportLocked() Transport {
	if c.fellBack {
		return TransportPolling
	}
	return TransportSocket
}

// OnState registers an observer and immediately reports the current state.
func (c *Connection) OnState(fn StateFunc) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	state, transport := c.state, c.transportLocked()
	c.mu.Unlock()
	fn(state, transport)
}

// On registers a handler for one event kind.
func (c *Connection) On(kind Kind, fn func(Event)) {
	c.mu.Lock()
	c.handlers[kind] = append(c.handlers[kind], fn)
	c.mu.Unlock()
}

// OnAny registers a handler for every event and returns its removal func.
func (c *Connection) OnAny(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.any[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.any, id)
		c.mu.Unlock()
	}
}

// Connect starts the session loop. It is a no-op while the loop runs; after
// Close, or after a failure with reconnect disabled, it starts a new loop.
func (c *Connection) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	c.cancel = cancel
	c.stopped = stopped
	c.mu.Unlock()

	go c.run(runCtx, stopped)
}

// Close stops the loop and disconnects the active feed.
func (c *Connection) Close() {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (c *Connection) run(ctx context.Context, stopped chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		close(stopped)
	}()

	for {
		feed := c.currentFeed()
		c.setState(StateConnecting)
		err := feed.Connect(ctx, c.dispatch)
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("connect failed", zap.String("transport", string(feed.Transport())), zap.Error(err))
			if c.shouldFallBack(feed, err) {
				continue
			}
			if !c.wait(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.active = feed
		c.mu.Unlock()
		c.rejoin(ctx, feed)
		c.setState(StateConnected)

		select {
		case <-feed.Done():
		case <-ctx.Done():
			_ = feed.Disconnect()
		}

		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)
		if ctx.Err() != nil || !c.wait(ctx) {
			return
		}
	}
}

func (c *Connection) currentFeed() Feed {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fellBack {
		return c.poll
	}
	return c.socket
}

// shouldFallBack flips the session to polling after an outright socket
// failure. The switch is permanent and the polling attempt starts at once.
func (c *Connection) shouldFallBack(feed Feed, err error) bool {
	if feed.Transport() != TransportSocket {
		return false
	}
	var ce *ConnectError
	if errors.As(err, &ce) && ce.Timeout() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fellBack {
		return false
	}
	c.fellBack = true
	c.log.Info("falling back to polling for this session")
	return true
}

// wait sleeps for the reconnect interval. It reports false when the loop
// should stop instead.
func (c *Connection) wait(ctx context.Context) bool {
	if c.opts.DisableReconnect {
		return false
	}
	timer := time.NewTimer(c.opts.ReconnectInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// retainer is implemented by feeds that keep per-chat state across sessions.
type retainer interface {
	retain(ids []int64)
}

// rejoin joins every watched chat on a fresh session. Feed state for chats
// left while no session was active is dropped first.
func (c *Connection) rejoin(ctx context.Context, feed Feed) {
	ids := c.Watched()
	if r, ok := feed.(retainer); ok {
		r.retain(ids)
	}
	for _, id := range ids {
		if err := feed.Join(ctx, id); err != nil {
			c.log.Warn("rejoin failed", zap.Int64("chat_id", id), zap.Error(err))
		}
	}
}

func (c *Connection) setState(state State) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	transport := c.transportLocked()
	observers := append([]StateFunc(nil), c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(state, transport)
	}
}

func (c *Connection) dispatch(e Event) {
	c.mu.Lock()
	handlers := make([]func(Event), 0, len(c.handlers[e.Kind])+len(c.any))
	handlers = append(handlers, c.handlers[e.Kind]...)
	for _, fn := range c.any {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(e)
	}
}

// Join watches a chat. Joins are counted: the chat stays watched across
// reconnects until every Join has a matching Leave. Errors are logged; the
// next reconnect retries the join.
func (c *Connection) Join(ctx context.Context, chatID int64) {
	c.mu.Lock()
	c.watched[chatID]++
	first := c.watched[chatID] == 1
	feed := c.active
	c.mu.Unlock()
	if feed == nil || !first {
		return
	}
	if err := feed.Join(ctx, chatID); err != nil {
		c.log.Warn("join failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Leave drops one Join. The last Leave stops watching the chat without
// closing the connection.
func (c *Connection) Leave(ctx context.Context, chatID int64) {
	c.mu.Lock()
	n, ok := c.watched[chatID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if n > 1 {
		c.watched[chatID] = n - 1
		c.mu.Unlock()
		return
	}
	delete(c.watched, chatID)
	feed := c.active
	c.mu.Unlock()
	if feed == nil {
		return
	}
	if err := feed.Leave(ctx, chatID); err != nil {
		c.log.Warn("leave failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// Watched returns the chats currently joined.
func (c *Connection) Watched() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.watched))
	for id := range c.watched {
		ids = append(ids, id)
	}
	return ids
}

// Typing signals the user is typing in chatID.
func (c *Connection) Typing(ctx context.Context, chatID int64) {
	c.mu.Lock()
	feed := c.active
	c.mu.Unlock()
	if feed == nil {
		return
	}
	if err := feed.Typing(ctx, chatID); err != nil {
		c.log.Debug("typing signal failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
