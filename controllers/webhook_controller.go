package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/services"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 65536
)

type WebhookHandler interface {
	Handle(ctx context.Context, raw []byte, signature string) (*services.WebhookOutcome, error)
}

type WebhookController struct {
	Webhooks WebhookHandler
	Logger   *zap.Logger
}

func NewWebhookController(webhooks WebhookHandler, log *zap.Logger) *WebhookController {
	return &WebhookController{Webhooks: webhooks, Logger: log}
}

// StripeWebhook reads the raw body untouched; the signature covers its exact
// bytes.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	signature := c.GetHeader(signatureHeader)
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No signature found"})
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, wc.Logger, "Webhook body too large", apperrors.TooLarge("Request body too large"))
			return
		}
		respondError(c, wc.Logger, "Failed to read webhook body", apperrors.Validation("Invalid request body"))
		return
	}

	out, err := wc.Webhooks.Handle(c.Request.Context(), raw, signature)
	if err != nil {
		respondError(c, wc.Logger, "Webhook handling failed", err)
		return
	}

	wc.Logger.Debug("Webhook handled",
		zap.String("event_id", out.EventID),
		zap.String("action", out.Action),
	)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
