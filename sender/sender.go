package sender

import (
	"context"
	"time"
)

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// EmailSender delivers one HTML e-mail.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) (SendResult, error)
}
