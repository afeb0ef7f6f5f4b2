package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

func toCheckoutSession(s *stripe.CheckoutSession) *models.CheckoutSession {
	if s == nil {
		return nil
	}

	out := &models.CheckoutSession{
		ID:            s.ID,
		PaymentStatus: models.PaymentStatus(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
		Created:       s.Created,
		URL:           s.URL,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	out.Status = models.OrderStatus(s.Metadata[models.MetadataStatusKey]).OrPending()

	if s.LineItems != nil {
		out.LineItems = make([]models.LineItem, 0, len(s.LineItems.Data))
		for _, li := range s.LineItems.Data {
			out.LineItems = append(out.LineItems, toLineItem(li))
		}
	}
	return out
}

func toLineItem(li *stripe.LineItem) models.LineItem {
	item := models.LineItem{
		Description: li.Description,
		Quantity:    li.Quantity,
	}
	if li.Price != nil {
		amount := li.Price.UnitAmount
		item.UnitAmount = &amount
		if li.Price.Product != nil && len(li.Price.Product.Images) > 0 {
			item.ImageURL = li.Price.Product.Images[0]
		}
	}
	return item
}

// ParseStripeEvent verifies the Stripe-Signature header against the exact raw
// body and maps the event onto internal types. Verification failures are
// signature errors; a verified but undecodable object is a validation error.
func ParseStripeEvent(raw []byte, header, secret string, tolerance time.Duration) (*models.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(raw, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperrors.Signature(err)
	}

	out := &models.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: event.Created,
		Payload: raw,
	}
	if event.Data == nil {
		return out, nil
	}
	if obj, ok := event.Data.Object["object"].(string); ok {
		out.ObjectType = obj
	}
	if id, ok := event.Data.Object["id"].(string); ok {
		out.ObjectID = id
	}

	switch out.ObjectType {
	case models.ObjectCheckoutSession:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, malformed(err)
		}
		out.Session = toCheckoutSession(&sess)
	case models.ObjectPaymentIntent:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, malformed(err)
		}
		out.PaymentIntentID = pi.ID
	case models.ObjectCharge:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, malformed(err)
		}
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
	}
	return out, nil
}

func malformed(err error) error {
	return apperrors.New(apperrors.KindValidation, "malformed webhook payload", fmt.Errorf("decode event object: %w", err))
}
