package services

import (
	"context"
	"time"

	"github.com/dodomiyake/zenhaven/models"
)

// OrderStatusStore reads and writes an order's lifecycle status.
type OrderStatusStore interface {
	GetStatus(ctx context.Context, sessionID string) (models.OrderStatus, error)
	SetStatus(ctx context.Context, sessionID string, status models.OrderStatus) (*models.CheckoutSession, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, sessionID string, status models.OrderStatus) (*models.CheckoutSession, error)
}

type ConfirmationNotifier interface {
	SendOrderConfirmation(ctx context.Context, to string, order models.OrderView) (*models.DeliveryReceipt, error)
}

type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

type NotificationLogStore interface {
	SaveLog(ctx context.Context, log *models.NotificationLog) error
}

type NotificationLogReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.NotificationLog, error)
}

type NotificationDeduper interface {
	Claim(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

type WebhookEventStore interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
}

const metricsTimeout = 5 * time.Second

// recordCount ships a counter in the background so request latency never
// depends on CloudWatch.
func recordCount(m MetricsRecorder, name string, dims map[string]string) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsTimeout)
		defer cancel()
		_ = m.RecordCount(ctx, name, dims)
	}()
}
