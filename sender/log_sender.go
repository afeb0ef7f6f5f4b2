package sender

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LogSender writes e-mails to the log instead of sending them. Local use only.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, htmlBody string) (SendResult, error) {
	id := fmt.Sprintf("log-%d", time.Now().UnixNano())
	s.logger.Info("Email suppressed (log sender)",
		zap.String("message_id", id),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)),
	)
	return SendResult{MessageID: id, SentAt: time.Now().UTC()}, nil
}
