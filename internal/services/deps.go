package services

import (
	"context"

	"scope-chat/internal/taskapi"
	chatevents "scope-chat/pkg/events"
)

// Notifier fans a chat event out without blocking or failing the caller.
type Notifier interface {
	Publish(chatID int64, kind chatevents.Kind, payload interface{})
}

// TaskCreator is the external task service.
type TaskCreator interface {
	CreateTask(ctx context.Context, userID, chatID, messageID int64, data taskapi.TaskData) (int64, error)
}

// MembershipCache is told about membership changes so cached answers do not
// outlive them.
type MembershipCache interface {
	Invalidate(ctx context.Context, chatID, userID int64) error
	InvalidateChat(ctx context.Context, chatID int64) error
}

// TypingTracker remembers who is typing for a short TTL.
type TypingTracker interface {
	Track(ctx context.Context, chatID, userID int64) (bool, error)
	Typing(ctx context.Context, chatID int64) ([]int64, error)
}

type nopNotifier struct{}

func (nopNotifier) Publish(int64, chatevents.Kind, interface{}) {}
