package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/events"
	"github.com/dodomiyake/zenhaven/logger"
	"github.com/dodomiyake/zenhaven/models"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

// StatusReconciler is the single write path for order status. By default a
// write always overwrites (last write wins), so a stale redelivery can move
// an order backwards.
type StatusReconciler struct {
	store     OrderStatusStore
	publisher events.Publisher
	metrics   MetricsRecorder
	strict    bool
	logger    *zap.Logger
}

type ReconcilerOption func(*StatusReconciler)

// WithStrictTransitions refuses to move an order out of cancelled or
// delivered. It costs one extra gateway read per write.
func WithStrictTransitions(strict bool) ReconcilerOption {
	return func(r *StatusReconciler) { r.strict = strict }
}

func WithPublisher(p events.Publisher) ReconcilerOption {
	return func(r *StatusReconciler) { r.publisher = p }
}

func WithReconcilerMetrics(m MetricsRecorder) ReconcilerOption {
	return func(r *StatusReconciler) { r.metrics = m }
}

func NewStatusReconciler(store OrderStatusStore, log *zap.Logger, opts ...ReconcilerOption) *StatusReconciler {
	r := &StatusReconciler{
		store:     store,
		publisher: events.NoopPublisher{},
		logger:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *StatusReconciler) Reconcile(ctx context.Context, sessionID string, status models.OrderStatus) (*models.CheckoutSession, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("session id is required")
	}
	if !status.IsValid() {
		return nil, apperrors.Validation(fmt.Sprintf("invalid status %q", status))
	}

	log := logger.WithContext(ctx, r.logger).With(
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
	)

	var previous models.OrderStatus
	if r.strict {
		current, err := r.store.GetStatus(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if current.IsTerminal() && current != status {
			log.Warn("Refusing status change out of terminal status", zap.String("current_status", string(current)))
			return nil, apperrors.Conflict(fmt.Sprintf("order is already %s", current))
		}
		previous = current
	}

	sess, err := r.store.SetStatus(ctx, sessionID, status)
	if err != nil {
		return nil, err
	}
	log.Info("Order status updated")
	recordCount(r.metrics, awspkg.MetricOrderStatusUpdated, map[string]string{"status": string(status)})

	event := models.OrderStatusEvent{
		Type:           models.TypeOrderStatusChanged,
		SessionID:      sessionID,
		Status:         status,
		PreviousStatus: previous,
		Timestamp:      time.Now().UTC(),
	}
	if sess != nil {
		event.OrderNumber = sess.PaymentIntentID
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.publisher.PublishOrderStatus(pubCtx, event); err != nil {
		log.Error("Failed to publish order status event", zap.Error(err))
	}
	return sess, nil
}
