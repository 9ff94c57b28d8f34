package httpdto

import "scope-chat/internal/domain/chat"

type CreateChatRequest struct {
	Type      string  `json:"type" binding:"required"`
	Name      *string `json:"name"`
	ProjectID *int64  `json:"project_id"`
	TeamID    *int64  `json:"team_id"`
}

type DirectChatRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type DirectChatResponse struct {
	Chat    chat.Chat `json:"chat"`
	Created bool      `json:"created"`
}

type UpdateChatRequest struct {
	Name *string `json:"name"`
}

type AddMemberRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}
