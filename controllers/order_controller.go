package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dodomiyake/zenhaven/apperrors"
	"github.com/dodomiyake/zenhaven/middleware"
	"github.com/dodomiyake/zenhaven/models"
	"github.com/dodomiyake/zenhaven/services"
)

type OrderQueries interface {
	ListOrders(ctx context.Context, q models.OrderQuery) (*models.OrderPage, error)
	GetOrder(ctx context.Context, id string) (*models.OrderView, error)
	VerifyPayment(ctx context.Context, sessionID string) (*models.OrderView, error)
	NotificationHistory(ctx context.Context, sessionID string) ([]models.NotificationLog, error)
}

type OrderController struct {
	Orders     OrderQueries
	Reconciler services.Reconciler
	Logger     *zap.Logger
}

func NewOrderController(orders OrderQueries, reconciler services.Reconciler, log *zap.Logger) *OrderController {
	return &OrderController{Orders: orders, Reconciler: reconciler, Logger: log}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type verifyPaymentRequest struct {
	SessionID string `json:"sessionId"`
}

// ListOrders serves the admin listing of paid orders.
func (oc *OrderController) ListOrders(c *gin.Context) {
	q, err := parseOrderQuery(c)
	if err != nil {
		respondError(c, oc.Logger, "Invalid order query", err)
		return
	}
	oc.listOrders(c, q)
}

// ListCustomerOrders is ListOrders scoped to the authenticated customer.
func (oc *OrderController) ListCustomerOrders(c *gin.Context) {
	email := middleware.GetEmail(c)
	if email == "" {
		respondError(c, oc.Logger, "Customer identity missing", apperrors.Unauthorized("Unauthorized"))
		return
	}
	q, err := parseOrderQuery(c)
	if err != nil {
		respondError(c, oc.Logger, "Invalid order query", err)
		return
	}
	q.CustomerEmail = email
	oc.listOrders(c, q)
}

func (oc *OrderController) listOrders(c *gin.Context, q models.OrderQuery) {
	q.PaidOnly = true
	page, err := oc.Orders.ListOrders(c.Request.Context(), q)
	if err != nil {
		respondError(c, oc.Logger, "Failed to fetch orders", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	order, err := oc.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, oc.Logger, "Failed to fetch order", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus is the admin override. It writes straight through the
// reconciler without looking at webhook activity.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondError(c, oc.Logger, "Missing order id", apperrors.Validation("Session ID is required"))
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, oc.Logger, "Invalid status update", apperrors.Validation("Invalid request body"))
		return
	}
	status, ok := models.ParseOrderStatus(req.Status)
	if !ok {
		respondError(c, oc.Logger, "Invalid status update", apperrors.Validation("Invalid status"))
		return
	}

	if _, err := oc.Reconciler.Reconcile(c.Request.Context(), id, status); err != nil {
		respondError(c, oc.Logger, "Failed to update order", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// VerifyPayment backs the checkout success page.
func (oc *OrderController) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, oc.Logger, "Invalid verify request", apperrors.Validation("Invalid request body"))
		return
	}

	order, err := oc.Orders.VerifyPayment(c.Request.Context(), req.SessionID)
	if err != nil {
		respondError(c, oc.Logger, "Payment verification failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "complete", "order": order})
}

func (oc *OrderController) NotificationHistory(c *gin.Context) {
	logs, err := oc.Orders.NotificationHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, oc.Logger, "Failed to fetch notification history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": logs})
}

func parseOrderQuery(c *gin.Context) (models.OrderQuery, error) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return models.OrderQuery{}, err
	}
	page, err := queryInt(c, "page")
	if err != nil {
		return models.OrderQuery{}, err
	}
	return models.OrderQuery{
		Limit:         limit,
		StartingAfter: c.Query("starting_after"),
		Page:          int(page),
	}, nil
}
