package models

import "time"

const (
	ChannelEmail = "email"

	NotificationSent   = "sent"
	NotificationFailed = "failed"

	TypeOrderConfirmation = "order_confirmation"
)

// DeliveryReceipt is returned by the e-mail provider on acceptance.
type DeliveryReceipt struct {
	MessageID string    `json:"message_id"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

type NotificationLog struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"type:varchar(255);index"`
	Recipient string    `json:"recipient"`
	Type      string    `json:"type" gorm:"type:varchar(50)"`
	Channel   string    `json:"channel" gorm:"type:varchar(20)"`
	Status    string    `json:"status" gorm:"type:varchar(20)"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
