package httpdto

import (
	"time"

	"scope-chat/internal/domain/chat"
	chatevents "scope-chat/pkg/events"
)

type SendMessageRequest struct {
	Content     string  `json:"content" binding:"required"`
	MessageType string  `json:"message_type"`
	ReplyToID   *int64  `json:"reply_to_id"`
	Metadata    *string `json:"metadata"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	ProjectID   *int64     `json:"project_id"`
	Assignee    *string    `json:"assignee"`
	DueDate     *time.Time `json:"due_date"`
	Priority    *string    `json:"priority"`
}

// MessagePage is one page of history sorted by ascending id. NextBefore is
// the cursor for the next older page, 0 when the page was short.
type MessagePage struct {
	Messages   []chat.Message `json:"messages"`
	NextBefore int64          `json:"next_before,omitempty"`
}

func NewMessagePage(messages []chat.Message, limit int) MessagePage {
	if messages == nil {
		messages = []chat.Message{}
	}
	page := MessagePage{Messages: messages}
	if len(messages) > 0 && len(messages) >= limit {
		page.NextBefore = messages[0].ID
	}
	return page
}

type UnreadCountResponse struct {
	ChatID int64 `json:"chat_id"`
	Count  int64 `json:"count"`
}

// EventsResponse answers a poll. Cursor is passed back as ?after= next time.
type EventsResponse struct {
	Events []chatevents.Event `json:"events"`
	Cursor string             `json:"cursor"`
}
