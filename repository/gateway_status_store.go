package repository

import (
	"context"

	"github.com/dodomiyake/zenhaven/models"
)

// SessionGateway is the part of the payment gateway that holds order status.
type SessionGateway interface {
	RetrieveSession(ctx context.Context, id string, expand ...string) (*models.CheckoutSession, error)
	UpdateSessionMetadata(ctx context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error)
}

// GatewayStatusStore keeps order status in the checkout session's metadata.
// Writes are blind overwrites; there is no compare-and-swap.
type GatewayStatusStore struct {
	gateway SessionGateway
}

func NewGatewayStatusStore(gateway SessionGateway) *GatewayStatusStore {
	return &GatewayStatusStore{gateway: gateway}
}

func (s *GatewayStatusStore) GetStatus(ctx context.Context, sessionID string) (models.OrderStatus, error) {
	sess, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return sess.Status.OrPending(), nil
}

func (s *GatewayStatusStore) SetStatus(ctx context.Context, sessionID string, status models.OrderStatus) (*models.CheckoutSession, error) {
	return s.gateway.UpdateSessionMetadata(ctx, sessionID, status)
}
