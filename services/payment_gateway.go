package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

// PaymentGateway is everything the service asks of the payment processor.
// The processor also stores each order's lifecycle status.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params models.NewSessionParams) (*models.CheckoutSession, error)
	RetrieveSession(ctx context.Context, id string, expand ...string) (*models.CheckoutSession, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) (*models.SessionPage, error)
	ListLineItems(ctx context.Context, sessionID string) ([]models.LineItem, error)
	UpdateSessionMetadata(ctx context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error)
	EnsureCoupon(ctx context.Context, code string, percentOff float64) (string, error)
	VerifyWebhookSignature(raw []byte, header string) (*models.WebhookEvent, error)
}

// StripeService implements PaymentGateway on stripe-go. Nothing is retried.
type StripeService struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

func NewStripeService(secretKey, webhookSecret string, tolerance time.Duration) *StripeService {
	return NewStripeServiceWithBackends(secretKey, webhookSecret, tolerance, nil)
}

// NewStripeServiceWithBackends lets tests point the client at a fake API.
func NewStripeServiceWithBackends(secretKey, webhookSecret string, tolerance time.Duration, backends *stripe.Backends) *StripeService {
	if tolerance <= 0 {
		tolerance = 300 * time.Second
	}
	return &StripeService{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
	}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, p models.NewSessionParams) (*models.CheckoutSession, error) {
	if len(p.LineItems) == 0 {
		return nil, apperrors.Validation("cart is empty")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
	}
	params.Context = ctx

	for _, item := range p.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		if len(item.Images) > 0 {
			product.Images = stripe.StringSlice(item.Images)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(p.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(p.CouponID)}}
	}

	params.AddMetadata(models.MetadataStatusKey, string(models.StatusPending))
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError("create checkout session", err)
	}
	return toCheckoutSession(sess), nil
}

func (s *StripeService) RetrieveSession(ctx context.Context, id string, expand ...string) (*models.CheckoutSession, error) {
	if id == "" {
		return nil, apperrors.Validation("session id is required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	for _, e := range expand {
		params.AddExpand(e)
	}

	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError("retrieve session "+id, err)
	}
	return toCheckoutSession(sess), nil
}

// ListSessions fetches exactly one page; callers walk cursors themselves.
func (s *StripeService) ListSessions(ctx context.Context, f models.SessionFilter) (*models.SessionPage, error) {
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Single = true
	if f.Limit > 0 {
		params.Limit = stripe.Int64(f.Limit)
	}
	if f.StartingAfter != "" {
		params.StartingAfter = stripe.String(f.StartingAfter)
	}
	if f.PaymentIntentID != "" {
		params.PaymentIntent = stripe.String(f.PaymentIntentID)
	}
	if f.CustomerEmail != "" {
		params.CustomerDetails = &stripe.CheckoutSessionListCustomerDetailsParams{
			Email: stripe.String(f.CustomerEmail),
		}
	}
	if f.ExpandLineItems {
		params.AddExpand("data.line_items")
	}

	iter := s.api.CheckoutSessions.List(params)
	page := &models.SessionPage{Sessions: []models.CheckoutSession{}}
	for iter.Next() {
		page.Sessions = append(page.Sessions, *toCheckoutSession(iter.CheckoutSession()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError("list sessions", err)
	}

	if meta := iter.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}
	if page.HasMore && len(page.Sessions) > 0 {
		page.NextCursor = page.Sessions[len(page.Sessions)-1].ID
	}
	return page, nil
}

func (s *StripeService) ListLineItems(ctx context.Context, sessionID string) ([]models.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	params.AddExpand("data.price.product")

	iter := s.api.CheckoutSessions.ListLineItems(params)
	items := []models.LineItem{}
	for iter.Next() {
		items = append(items, toLineItem(iter.LineItem()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError("list line items for "+sessionID, err)
	}
	return items, nil
}

// UpdateSessionMetadata overwrites the status key. It is the only status write.
func (s *StripeService) UpdateSessionMetadata(ctx context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddMetadata(models.MetadataStatusKey, string(status))

	sess, err := s.api.CheckoutSessions.Update(id, params)
	if err != nil {
		return nil, mapStripeError("update session "+id, err)
	}
	return toCheckoutSession(sess), nil
}

// EnsureCoupon returns the coupon id for code, creating a one-time
// percentage coupon under that id when it does not exist yet.
func (s *StripeService) EnsureCoupon(ctx context.Context, code string, percentOff float64) (string, error) {
	getParams := &stripe.CouponParams{}
	getParams.Context = ctx

	existing, err := s.api.Coupons.Get(code, getParams)
	if err == nil {
		return existing.ID, nil
	}
	if !isStripeNotFound(err) {
		return "", mapStripeError("retrieve coupon "+code, err)
	}

	params := &stripe.CouponParams{
		ID:         stripe.String(code),
		Name:       stripe.String(code),
		PercentOff: stripe.Float64(percentOff),
		Duration:   stripe.String(string(stripe.CouponDurationOnce)),
	}
	params.Context = ctx

	created, err := s.api.Coupons.New(params)
	if err != nil {
		return "", mapStripeError("create coupon "+code, err)
	}
	return created.ID, nil
}

func (s *StripeService) VerifyWebhookSignature(raw []byte, header string) (*models.WebhookEvent, error) {
	return ParseStripeEvent(raw, header, s.webhookSecret, s.tolerance)
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

func mapStripeError(op string, err error) error {
	if isStripeNotFound(err) {
		return apperrors.NotFound("session not found", fmt.Errorf("%s: %w", op, err))
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusBadRequest {
		return apperrors.New(apperrors.KindValidation, stripeErr.Msg, fmt.Errorf("%s: %w", op, err))
	}
	return apperrors.Gateway("payment gateway error", fmt.Errorf("%s: %w", op, err))
}
