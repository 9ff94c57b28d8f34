package services

import (
	"context"

	"go.uber.org/zap"

	"scope-chat/internal/proxy"
	"scope-chat/internal/repository"
	chatevents "scope-chat/pkg/events"
	"scope-chat/pkg/logger"
)

// TypingService relays typing signals. Nothing is persisted.
type TypingService struct {
	access   *proxy.AccessControl
	tracker  TypingTracker
	notifier Notifier
	log      *logger.Logger
}

func NewTypingService(chats repository.ChatRepository, tracker TypingTracker, notifier Notifier, log *logger.Logger) *TypingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TypingService{
		access:   proxy.NewAccessControl(chats),
		tracker:  tracker,
		notifier: notifier,
		log:      log.Named("typing"),
	}
}

// SendTyping publishes a typing event unless the user is already marked as
// typing in this chat.
func (s *TypingService) SendTyping(ctx context.Context, chatID, userID int64) error {
	if _, err := s.access.RequireMember(ctx, chatID, userID); err != nil {
		return err
	}
	fresh := true
	if s.tracker != nil {
		var err error
		fresh, err = s.tracker.Track(ctx, chatID, userID)
		if err != nil {
			s.log.With(ctx).Warn("typing tracker unavailable", zap.Int64("chat_id", chatID), zap.Error(err))
			fresh = true
		}
	}
	if fresh {
		s.notifier.Publish(chatID, chatevents.KindTyping, chatevents.TypingPayload{UserID: userID})
	}
	return nil
}

// Typing lists the users currently typing in a chat.
func (s *TypingService) Typing(ctx context.Context, chatID, userID int64) ([]int64, error) {
	if _, err := s.access.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if s.tracker == nil {
		return []int64{}, nil
	}
	return s.tracker.Typing(ctx, chatID)
}
