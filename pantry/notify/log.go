package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notices to a zap logger. Error notices log at warn.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier that logs to logger (no-op if nil).
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, to Recipient, n Notice) error {
	fields := []zap.Field{
		zap.String("title", n.Title),
		zap.String("description", n.Description),
		zap.String("kind", string(n.Kind)),
		zap.String("user_id", to.UserID),
		zap.String("email", to.Email),
	}
	if n.Kind == KindError {
		l.logger.Warn("user notice", fields...)
		return nil
	}
	l.logger.Info("user notice", fields...)
	return nil
}
