package events

import (
	"context"
	"errors"

	"github.com/dodomiyake/zenhaven/models"
)

// Publisher announces order status changes to downstream consumers.
type Publisher interface {
	PublishOrderStatus(ctx context.Context, event models.OrderStatusEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishOrderStatus(context.Context, models.OrderStatusEvent) error { return nil }

// MultiPublisher fans one event out to every configured publisher and joins
// their errors. A failing publisher does not stop the others.
type MultiPublisher []Publisher

func (m MultiPublisher) PublishOrderStatus(ctx context.Context, event models.OrderStatusEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishOrderStatus(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
