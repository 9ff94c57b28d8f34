package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const streamField = "event"

// RedisBroker publishes on Redis pub/sub and appends every event to a capped
// per-chat stream so polling clients can read what they missed.
type RedisBroker struct {
	client *redis.Client
	maxLen int64
}

func NewRedisBroker(client *redis.Client, maxLen int64) *RedisBroker {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisBroker{client: client, maxLen: maxLen}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if event.ChatID > 0 {
		id, err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: ChatStream(event.ChatID),
			MaxLen: b.maxLen,
			Approx: true,
			Values: map[string]interface{}{streamField: data},
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to append event to stream: %w", err)
		}
		event.Cursor = id
		if data, err = json.Marshal(event); err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
	}

	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, patterns []string, handler Handler) error {
	sub := b.client.PSubscribe(ctx, patterns...)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			continue
		}
		handler(ctx, msg.Channel, event)
	}
}

func (b *RedisBroker) Since(ctx context.Context, chatID int64, cursor string, limit int64) ([]Event, string, error) {
	stream := ChatStream(chatID)
	if cursor == "" {
		tail, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stream tail: %w", err)
		}
		if len(tail) == 0 {
			return []Event{}, "0-0", nil
		}
		return []Event{}, tail[0].ID, nil
	}

	if err := validStreamID(cursor); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}
	// XRANGE start is inclusive; fetch one extra and drop the cursor entry.
	entries, err := b.client.XRangeN(ctx, stream, cursor, "+", limit+1).Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read stream: %w", err)
	}

	out := make([]Event, 0, len(entries))
	next := cursor
	for _, entry := range entries {
		if entry.ID == cursor {
			continue
		}
		if int64(len(out)) == limit {
			break
		}
		next = entry.ID
		raw, ok := entry.Values[streamField].(string)
		if !ok {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		event.Cursor = entry.ID
		out = append(out, event)
	}
	return out, next, nil
}

// validStreamID accepts "<ms>" and "<ms>-<seq>" as Redis does.
func validStreamID(id string) error {
	ms, seq, found := strings.Cut(id, "-")
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidCursor, id)
	}
	if found {
		if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
			return fmt.Errorf("%w %q", ErrInvalidCursor, id)
		}
	}
	return nil
}
