package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a notification and returns the provider's delivery id.
type Sender interface {
	Send(ctx context.Context, n Notification) (string, error)
}

// LogSender only logs. LOCAL_MODE uses it in place of SES.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) (string, error) {
	id := uuid.NewString()
	s.logger.Info("Notification",
		zap.String("delivery_id", id),
		zap.String("to", n.To),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body))
	return id, nil
}
