package chat

import (
	"time"
)

// Chat types
const (
	TypeDirect  = "direct"
	TypeGroup   = "group"
	TypeProject = "project"
	TypeTeam    = "team"
)

// Member roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Message types
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Chat represents the chats table
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

// Member represents the chat_members table
type Member struct {
	ChatID     int64      `json:"chat_id"`
	UserID     int64      `json:"user_id"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

func (m Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// Message represents the chat_messages table
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

func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MentionsUser reports whether userID is among the derived mentions.
func (m Message) MentionsUser(userID int64) bool {
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

func (m Message) IsReadBy(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Reaction represents the message_reactions table
type Reaction struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChat is the caller supplied part of a chat on creation.
type NewChat struct {
	Type      string  `json:"type"`
	Name      *string `json:"name,omitempty"`
	ProjectID *int64  `json:"project_id,omitempty"`
	TeamID    *int64  `json:"team_id,omitempty"`
}

// ChatUpdate holds the mutable chat fields.
type ChatUpdate struct {
	Name *string `json:"name,omitempty"`
}

// NewMessage is the caller supplied part of a message on send.
type NewMessage struct {
	ChatID      int64   `json:"chat_id"`
	Content     string  `json:"content"`
	MessageType string  `json:"message_type"`
	ReplyToID   *int64  `json:"reply_to_id,omitempty"`
	Metadata    *string `json:"metadata,omitempty"`
}

func ValidChatType(t string) bool {
	switch t {
	case TypeDirect, TypeGroup, TypeProject, TypeTeam:
		return true
	}
	return false
}

func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleMember
}

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}
