package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dodomiyake/zenhaven/controllers"
	"github.com/dodomiyake/zenhaven/middleware"
)

type Controllers struct {
	Checkout *controllers.CheckoutController
	Webhook  *controllers.WebhookController
	Orders   *controllers.OrderController
}

type Options struct {
	AdminSecret string
	JWTSecret   string
	// Limiter guards the public storefront endpoints; nil disables it.
	Limiter *middleware.RateLimiter
}

func RegisterRoutes(r *gin.Engine, ctrl Controllers, opts Options) {
	router := r.Group("/")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "zenhaven"})
	})

	// Stripe webhooks (signature checked by the handler)
	router.POST("/webhook", ctrl.Webhook.StripeWebhook)
	router.POST("/api/webhooks/stripe", ctrl.Webhook.StripeWebhook)

	storefront := router.Group("/")
	if opts.Limiter != nil {
		storefront.Use(middleware.RateLimit(opts.Limiter))
	}
	storefront.POST("/checkout", ctrl.Checkout.CreateCheckoutSession)
	storefront.POST("/verify-payment", ctrl.Orders.VerifyPayment)

	adminAuth := middleware.AdminAuth(opts.AdminSecret)

	router.GET("/orders", middleware.CustomerAuth(opts.JWTSecret), ctrl.Orders.ListCustomerOrders)
	router.PATCH("/orders/:id", adminAuth, ctrl.Orders.UpdateOrderStatus)

	admin := router.Group("/admin", adminAuth)
	{
		admin.GET("/orders", ctrl.Orders.ListOrders)
		admin.GET("/orders/:id", ctrl.Orders.GetOrder)
		admin.GET("/orders/:id/notifications", ctrl.Orders.NotificationHistory)
		admin.PATCH("/orders/:id", ctrl.Orders.UpdateOrderStatus)
	}
}
