package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPageNumber   = 50
)

// OrderService answers order queries straight from the gateway.
type OrderService struct {
	gateway       PaymentGateway
	notifications NotificationLogReader
	logger        *zap.Logger
}

func NewOrderService(gateway PaymentGateway, notifications NotificationLogReader, log *zap.Logger) *OrderService {
	return &OrderService{gateway: gateway, notifications: notifications, logger: log}
}

// ListOrders returns one page of orders. Page numbers are served by walking
// cursors from the start, so deep pages cost one gateway call per page.
func (s *OrderService) ListOrders(ctx context.Context, q models.OrderQuery) (*models.OrderPage, error) {
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit < 1 || q.Limit > MaxPageSize {
		return nil, apperrors.Validation("limit must be between 1 and 100")
	}
	if q.Page < 0 || q.Page > MaxPageNumber {
		return nil, apperrors.Validation("page must be between 1 and 50")
	}
	if q.Page > 0 && q.StartingAfter != "" {
		return nil, apperrors.Validation("use either page or starting_after, not both")
	}

	filter := models.SessionFilter{
		Limit:           q.Limit,
		StartingAfter:   q.StartingAfter,
		CustomerEmail:   q.CustomerEmail,
		ExpandLineItems: true,
	}

	for p := 1; p < q.Page; p++ {
		skipped, err := s.gateway.ListSessions(ctx, filter)
		if err != nil {
			return nil, err
		}
		if !skipped.HasMore {
			return &models.OrderPage{Orders: []models.OrderView{}}, nil
		}
		filter.StartingAfter = skipped.NextCursor
	}

	page, err := s.gateway.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := &models.OrderPage{
		Orders:     make([]models.OrderView, 0, len(page.Sessions)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for i := range page.Sessions {
		sess := &page.Sessions[i]
		if q.PaidOnly && sess.PaymentStatus != models.PaymentStatusPaid {
			continue
		}
		out.Orders = append(out.Orders, ProjectOrder(sess, nil))
	}
	return out, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.OrderView, error) {
	sess, err := s.gateway.RetrieveSession(ctx, id, "line_items")
	if err != nil {
		return nil, err
	}
	view := ProjectOrder(sess, nil)
	return &view, nil
}

// VerifyPayment backs the checkout success page.
func (s *OrderService) VerifyPayment(ctx context.Context, sessionID string) (*models.OrderView, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("Session ID is required")
	}
	sess, err := s.gateway.RetrieveSession(ctx, sessionID, "line_items")
	if err != nil {
		return nil, err
	}
	if sess.PaymentStatus != models.PaymentStatusPaid {
		return nil, apperrors.Validation("Payment not completed")
	}
	view := ProjectOrder(sess, nil)
	return &view, nil
}

// NotificationHistory lists confirmation attempts for an order. It is empty
// when no notification log is configured.
func (s *OrderService) NotificationHistory(ctx context.Context, sessionID string) ([]models.NotificationLog, error) {
	if s.notifications == nil {
		return []models.NotificationLog{}, nil
	}
	logs, err := s.notifications.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.NotificationLog{}
	}
	return logs, nil
}
