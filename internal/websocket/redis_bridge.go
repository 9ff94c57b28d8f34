package websocket

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

const defaultResubscribeInterval = 2 * time.Second

// Bridge relays events from the broker to the sockets joined to each chat.
type Bridge struct {
	subscriber chatevents.Subscriber
	hub        *Hub
	log        *logger.Logger
	retry      time.Duration
}

func NewBridge(subscriber chatevents.Subscriber, hub *Hub, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bridge{subscriber: subscriber, hub: hub, log: log.Named("bridge"), retry: defaultResubscribeInterval}
}

// Run blocks until ctx is done. A failed subscription is logged and
// re-established after a fixed delay; events published meanwhile are lost.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.subscriber.Subscribe(ctx, []string{chatevents.ChannelPatternAll}, b.deliver)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.log.Logger.Error("event subscription failed, resubscribing", zap.Duration("retry_in", b.retry), zap.Error(err))
		}
		timer := time.NewTimer(b.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, channel string, event chatevents.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Logger.Error("failed to encode event", zap.String("channel", channel), zap.Error(err))
		return
	}
	b.hub.Broadcast(channel, payload)

	switch event.Kind {
	case chatevents.KindUserLeft:
		var left chatevents.MemberPayload
		if err := event.Decode(&left); err == nil {
			b.hub.UnsubscribeUser(channel, left.UserID)
		}
	case chatevents.KindChatDeleted:
		b.hub.CloseChannel(channel)
	}
}
