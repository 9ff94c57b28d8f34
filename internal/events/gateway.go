package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"scope-chat/internal/metrics"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Metrics   *metrics.Metrics
}

type job struct {
	channel string
	event   chatevents.Event
}

// Gateway hands chat events to the fan-out provider off the request path.
// Publish never blocks and never fails the caller: a full queue drops the
// event and a provider error is logged. There is no retry.
type Gateway struct {
	publisher chatevents.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration

	queue  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewGateway(publisher chatevents.Publisher, log *logger.Logger, opts Options) *Gateway {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	g := &Gateway{
		publisher: publisher,
		log:       log.Named("fanout"),
		metrics:   opts.Metrics,
		timeout:   opts.Timeout,
		queue:     make(chan job, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		g.wg.Add(1)
		go g.worker()
	}
	return g
}

// Publish enqueues an event for the chat's channel.
func (g *Gateway) Publish(chatID int64, kind chatevents.Kind, payload interface{}) {
	event, err := chatevents.New(chatID, kind, payload)
	if err != nil {
		g.log.Logger.Error("failed to build chat event",
			zap.Int64("chat_id", chatID), zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		g.metrics.FanoutDropped()
		return
	}
	select {
	case g.queue <- job{channel: chatevents.ChatChannel(chatID), event: event}:
	default:
		g.metrics.FanoutDropped()
		g.log.Logger.Warn("fan-out queue full, event dropped",
			zap.Int64("chat_id", chatID), zap.String("kind", string(kind)))
	}
}

func (g *Gateway) worker() {
	defer g.wg.Done()
	for j := range g.queue {
		g.deliver(j)
	}
}

func (g *Gateway) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	kind := string(j.event.Kind)
	if err := g.publisher.Publish(ctx, j.channel, j.event); err != nil {
		g.metrics.FanoutFailed(kind)
		g.log.Logger.Error("fan-out publish failed",
			zap.Int64("chat_id", j.event.ChatID),
			zap.String("kind", kind),
			zap.String("channel", j.channel),
			zap.Error(err))
		return
	}
	g.metrics.FanoutPublished(kind)
}

// Close stops accepting events and waits for queued ones to be delivered.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.queue)
	g.mu.Unlock()
	g.wg.Wait()
}
