package events

// Payloads for the non-message event kinds. new_message and message_updated
// carry the message itself.

type MessageDeletedPayload struct {
	MessageID int64 `json:"message_id"`
}

type MessageReadPayload struct {
	MessageID int64 `json:"message_id"`
	UserID    int64 `json:"user_id"`
}

type ReactionPayload struct {
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"`
}

type MemberPayload struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type ChatUpdatedPayload struct {
	ChatID int64   `json:"chat_id"`
	Name   *string `json:"name,omitempty"`
}

type ChatDeletedPayload struct {
	ChatID int64 `json:"chat_id"`
}

type TypingPayload struct {
	UserID int64 `json:"user_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
