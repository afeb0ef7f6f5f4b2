package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

const (
	shipmentCreated = "shipment_created"
	shipmentUpdated = "shipment_updated"
)

// ShippingEventConsumer advances orders from shipping-service events.
// Like the admin PATCH, it writes status without coordinating with webhooks.
type ShippingEventConsumer struct {
	reconciler Reconciler
	logger     *zap.Logger
}

func NewShippingEventConsumer(reconciler Reconciler, log *zap.Logger) *ShippingEventConsumer {
	return &ShippingEventConsumer{reconciler: reconciler, logger: log}
}

// Handle implements awspkg.MessageHandler. Bad payloads and unknown orders
// are dropped; gateway failures are returned so SQS redelivers.
func (c *ShippingEventConsumer) Handle(ctx context.Context, body string) error {
	var event models.ShippingEvent
	if err := json.Unmarshal([]byte(awspkg.UnwrapSNS(body)), &event); err != nil {
		return fmt.Errorf("%w: invalid shipping event: %v", awspkg.ErrDropMessage, err)
	}

	status, ok := shippingStatus(event)
	if !ok {
		c.logger.Debug("Ignoring shipping event", zap.String("event_type", event.EventType), zap.String("status", event.Status))
		return nil
	}
	if event.OrderID == "" {
		return fmt.Errorf("%w: shipping event without order_id", awspkg.ErrDropMessage)
	}

	log := c.logger.With(
		zap.String("session_id", event.OrderID),
		zap.String("event_type", event.EventType),
		zap.String("shipment_id", event.ShipmentID),
	)

	_, err := c.reconciler.Reconcile(ctx, event.OrderID, status)
	switch kind := apperrors.KindOf(err); {
	case err == nil:
		log.Info("Order status advanced from shipping event", zap.String("status", string(status)))
		return nil
	case kind == apperrors.KindNotFound, kind == apperrors.KindValidation, kind == apperrors.KindConflict:
		log.Warn("Dropping shipping event", zap.Error(err))
		return fmt.Errorf("%w: %v", awspkg.ErrDropMessage, err)
	default:
		return err
	}
}

func shippingStatus(e models.ShippingEvent) (models.OrderStatus, bool) {
	switch e.EventType {
	case shipmentCreated:
		return models.StatusShipped, true
	case shipmentUpdated:
		if strings.EqualFold(e.Status, "DELIVERED") {
			return models.StatusDelivered, true
		}
	}
	return "", false
}
