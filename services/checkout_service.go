package services

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/logger"
	"github.com/dodomiyake/zenhaven/models"
	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

// CheckoutService turns a storefront cart into a gateway checkout session.
type CheckoutService struct {
	gateway  PaymentGateway
	baseURL  *url.URL
	currency string
	metrics  MetricsRecorder
	logger   *zap.Logger
}

func NewCheckoutService(gateway PaymentGateway, baseURL, currency string, metrics MetricsRecorder, log *zap.Logger) (*CheckoutService, error) {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if currency == "" {
		currency = "usd"
	}
	return &CheckoutService{gateway: gateway, baseURL: base, currency: currency, metrics: metrics, logger: log}, nil
}

func (s *CheckoutService) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResult, error) {
	if len(req.CartItems) == 0 {
		return nil, apperrors.Validation("cart is empty")
	}
	if req.CustomerEmail != "" {
		if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
			return nil, apperrors.Validation("invalid customer email")
		}
	}
	if math.IsNaN(req.Discount) || req.Discount < 0 || req.Discount >= 1 {
		return nil, apperrors.Validation("discount must be between 0 and 1")
	}

	params := models.NewSessionParams{
		Currency:      s.currency,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    s.baseURL.String() + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.baseURL.String() + "/cart",
		Metadata:      map[string]string{},
	}

	for i, item := range req.CartItems {
		if strings.TrimSpace(item.Name) == "" {
			return nil, apperrors.Validation(fmt.Sprintf("cart item %d has no name", i))
		}
		if item.Quantity < 1 {
			return nil, apperrors.Validation(fmt.Sprintf("cart item %q has invalid quantity", item.Name))
		}
		if item.Price < 0 || item.Price > maxUnitPrice || math.IsNaN(item.Price) {
			return nil, apperrors.Validation(fmt.Sprintf("cart item %q has invalid price", item.Name))
		}
		params.LineItems = append(params.LineItems, models.SessionLineItem{
			Name:        item.Name,
			Description: item.Description,
			Images:      ResolveImageURLs(s.baseURL, item.Images),
			UnitAmount:  toMinor(item.Price),
			Quantity:    item.Quantity,
		})
	}

	if req.CouponCode != "" && req.Discount > 0 {
		couponID, err := s.gateway.EnsureCoupon(ctx, req.CouponCode, percentOff(req.Discount))
		if err != nil {
			return nil, err
		}
		params.CouponID = couponID
		params.Metadata["coupon_code"] = req.CouponCode
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	recordCount(s.metrics, awspkg.MetricCheckoutSessionsCreated, nil)
	logger.WithContext(ctx, s.logger).Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.Int("line_items", len(params.LineItems)),
	)
	return &models.CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// ResolveImageURLs makes every image absolute against base. Entries that do
// not parse or do not end up as http(s) are dropped.
func ResolveImageURLs(base *url.URL, images []string) []string {
	out := make([]string, 0, len(images))
	for _, raw := range images {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
			continue
		}
		out = append(out, abs.String())
	}
	return out
}
