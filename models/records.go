package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusRecord mirrors the gateway-held status in Postgres.
type OrderStatusRecord struct {
	SessionID string    `gorm:"type:varchar(255);primaryKey"`
	Status    string    `gorm:"type:varchar(20);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (OrderStatusRecord) TableName() string { return "order_statuses" }

// WebhookEventRecord is an append-only audit row per verified webhook event.
type WebhookEventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID    string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Type       string    `gorm:"type:varchar(100);index;not null"`
	ObjectID   string    `gorm:"type:varchar(255);index"`
	Payload    string    `gorm:"type:jsonb"`
	ReceivedAt time.Time `gorm:"autoCreateTime"`
}

func (WebhookEventRecord) TableName() string { return "webhook_events" }
