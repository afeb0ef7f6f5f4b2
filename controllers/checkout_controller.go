package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/models"
)

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutResult, error)
}

type CheckoutController struct {
	Checkout CheckoutCreator
	Logger   *zap.Logger
}

func NewCheckoutController(checkout CheckoutCreator, log *zap.Logger) *CheckoutController {
	return &CheckoutController{Checkout: checkout, Logger: log}
}

// CreateCheckoutSession handles POST /checkout.
func (cc *CheckoutController) CreateCheckoutSession(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, cc.Logger, "Invalid checkout request", apperrors.Validation("Invalid request body"))
		return
	}

	res, err := cc.Checkout.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, cc.Logger, "Failed to create checkout session", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
