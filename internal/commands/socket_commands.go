package commands

import (
	scope_errors "scope-chat/pkg/errors"
)

// Socket actions sent by live clients.
const (
	TypeJoinChat  = "join_chat"
	TypeLeaveChat = "leave_chat"
	TypeTyping    = "typing"
)

// ChatCommand is a socket action bound to the connection it came from.
type ChatCommand struct {
	Type     string
	ClientID string
	ChatID   int64
	UserID   int64
}

func (c ChatCommand) CommandType() string {
	return c.Type
}

func (c ChatCommand) Validate() error {
	switch c.Type {
	case TypeJoinChat, TypeLeaveChat, TypeTyping:
	default:
		return scope_errors.ErrInvalidInput
	}
	if c.ChatID <= 0 || c.UserID <= 0 || c.ClientID == "" {
		return scope_errors.ErrInvalidInput
	}
	return nil
}

func (c ChatCommand) Scope() (int64, int64) {
	return c.ChatID, c.UserID
}
