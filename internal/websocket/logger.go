package websocket

import (
	"go.uber.org/zap"

	"scope-chat/pkg/logger"
)

// SocketLogger tags every line with the connection it belongs to.
type SocketLogger struct {
	logger *zap.Logger
}

func NewSocketLogger(l *logger.Logger) *SocketLogger {
	if l == nil {
		l = logger.NewNop()
	}
	return &SocketLogger{logger: l.Logger.With(zap.String("component", "websocket"))}
}

func (l *SocketLogger) Info(event string, userID int64, clientID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Int64("user_id", userID),
		zap.String("client_id", clientID),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

func (l *SocketLogger) Error(event string, userID int64, clientID string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Int64("user_id", userID),
		zap.String("client_id", clientID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

func (l *SocketLogger) Warn(event string, userID int64, clientID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.Int64("user_id", userID),
		zap.String("client_id", clientID),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
