package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	scope_errors "scope-chat/pkg/errors"
)

// ErrInvalidCursor marks a malformed ?after= cursor. It wraps ErrInvalidInput
// so the REST layer answers 400; any other log failure is a server error.
var ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", scope_errors.ErrInvalidInput)

type Kind string

// Chat event kinds as seen by live clients.
const (
	KindNewMessage      Kind = "new_message"
	KindMessageUpdated  Kind = "message_updated"
	KindMessageDeleted  Kind = "message_deleted"
	KindMessageRead     Kind = "message_read"
	KindReactionAdded   Kind = "reaction_added"
	KindReactionRemoved Kind = "reaction_removed"
	KindUserJoined      Kind = "user_joined"
	KindUserLeft        Kind = "user_left"
	KindChatUpdated     Kind = "chat_updated"
	KindChatDeleted     Kind = "chat_deleted"
	KindTyping          Kind = "typing"
	KindError           Kind = "error"
)

// Redis key prefixes
const (
	ChannelPrefixChat = "channel:chat:"
	StreamPrefixChat  = "stream:chat:"
	ChannelPatternAll = ChannelPrefixChat + "*"
)

// Event is the envelope fanned out on a chat channel.
type Event struct {
	Kind      Kind            `json:"kind"`
	ChatID    int64           `json:"chat_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Cursor    string          `json:"cursor,omitempty"`
}

// New builds an event stamped with the current server time.
func New(chatID int64, kind Kind, payload interface{}) (Event, error) {
	raw := json.RawMessage("{}")
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
		}
		raw = data
	}
	return Event{
		Kind:      kind,
		ChatID:    chatID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Kind)
	}
	return json.Unmarshal(e.Payload, v)
}

type Handler func(ctx context.Context, channel string, event Event)

// Publisher is the single capability the domain needs from a fan-out provider.
type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

// Subscriber blocks delivering events on channels matching the patterns
// until ctx is done or the subscription fails.
type Subscriber interface {
	Subscribe(ctx context.Context, patterns []string, handler Handler) error
}

// EventLog serves the polling read path. An empty cursor returns no events
// and the current tail cursor.
type EventLog interface {
	Since(ctx context.Context, chatID int64, cursor string, limit int64) ([]Event, string, error)
}

type Broker interface {
	Publisher
	Subscriber
	EventLog
}

func ChatChannel(chatID int64) string {
	return ChannelPrefixChat + strconv.FormatInt(chatID, 10)
}

func ChatStream(chatID int64) string {
	return StreamPrefixChat + strconv.FormatInt(chatID, 10)
}

// ChatIDFromChannel parses channel:chat:<id>.
func ChatIDFromChannel(channel string) (int64, bool) {
	if !strings.HasPrefix(channel, ChannelPrefixChat) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(channel, ChannelPrefixChat), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
