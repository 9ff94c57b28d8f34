package commands

import (
	"context"
	"errors"
)

var ErrHandlerNotFound = errors.New("no handler registered for command")

type Command interface {
	CommandType() string
	Validate() error
}

// ChatScoped commands act on one chat on behalf of one user.
type ChatScoped interface {
	Command
	Scope() (chatID, userID int64)
}

type Result struct {
	ChatID  int64
	Payload interface{}
}

type Handler interface {
	Handle(ctx context.Context, cmd Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}
