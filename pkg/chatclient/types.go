// Package chatclient is the client side of the chat service: a live feed
// over a socket or HTTP polling, a connection state machine with a one-way
// fallback to polling, a reconciliation store and a small REST client.
package chatclient

import (
	"time"

	chatevents "scope-chat/pkg/events"
)

// Event and Kind are the server's wire envelope.
type (
	Event = chatevents.Event
	Kind  = chatevents.Kind
)

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

type Transport string

const (
	TransportSocket  Transport = "socket"
	TransportPolling Transport = "polling"
)

type Chat struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Name      *string   `json:"name,omitempty"`
	ProjectID *int64    `json:"project_id,omitempty"`
	TeamID    *int64    `json:"team_id,omitempty"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Member struct {
	ChatID     int64      `json:"chat_id"`
	UserID     int64      `json:"user_id"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

type Message struct {
	ID          int64      `json:"id"`
	ChatID      int64      `json:"chat_id"`
	SenderID    int64      `json:"sender_id"`
	Content     string     `json:"content"`
	MessageType string     `json:"message_type"`
	ReplyToID   *int64     `json:"reply_to_id,omitempty"`
	TaskID      *int64     `json:"task_id,omitempty"`
	Metadata    *string    `json:"metadata,omitempty"`
	Mentions    []int64    `json:"mentions"`
	ReadBy      []int64    `json:"read_by"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Reaction struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePage is one page of history, oldest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextBefore int64     `json:"next_before,omitempty"`
}

type eventsPage struct {
	Events []Event `json:"events"`
	Cursor string  `json:"cursor"`
}

// socketAction is the frame a client sends over the socket.
type socketAction struct {
	Action string `json:"action"`
	ChatID int64  `json:"chat_id"`
}
