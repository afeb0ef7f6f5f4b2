package routes_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dodomiyake/zenhaven/controllers"
	"github.com/dodomiyake/zenhaven/middleware"
	"github.com/dodomiyake/zenhaven/models"
	"github.com/dodomiyake/zenhaven/routes"
	"github.com/dodomiyake/zenhaven/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCheckout struct{}

func (stubCheckout) CreateCheckoutSession(context.Context, models.CheckoutRequest) (*models.CheckoutResult, error) {
	return &models.CheckoutResult{SessionID: "cs_1"}, nil
}

type stubWebhooks struct{}

func (stubWebhooks) Handle(context.Context, []byte, string) (*services.WebhookOutcome, error) {
	return &services.WebhookOutcome{State: services.StateDone}, nil
}

type stubOrders struct{ lastEmail string }

func (s *stubOrders) ListOrders(_ context.Context, q models.OrderQuery) (*models.OrderPage, error) {
	s.lastEmail = q.CustomerEmail
	return &models.OrderPage{Orders: []models.OrderView{}}, nil
}
func (s *stubOrders) GetOrder(_ context.Context, id string) (*models.OrderView, error) {
	return &models.OrderView{ID: id}, nil
}
func (s *stubOrders) VerifyPayment(_ context.Context, id string) (*models.OrderView, error) {
	return &models.OrderView{ID: id}, nil
}
func (s *stubOrders) NotificationHistory(context.Context, string) ([]models.NotificationLog, error) {
	return []models.NotificationLog{}, nil
}

type stubReconciler struct{}

func (stubReconciler) Reconcile(_ context.Context, id string, status models.OrderStatus) (*models.CheckoutSession, error) {
	return &models.CheckoutSession{ID: id, Status: status}, nil
}

const (
	adminSecret = "admin-secret"
	jwtSecret   = "jwt-secret"
)

func setupRouter(limiter *middleware.RateLimiter) (*gin.Engine, *stubOrders) {
	orders := &stubOrders{}
	log := zap.NewNop()
	r := gin.New()
	routes.RegisterRoutes(r, routes.Controllers{
		Checkout: controllers.NewCheckoutController(stubCheckout{}, log),
		Webhook:  controllers.NewWebhookController(stubWebhooks{}, log),
		Orders:   controllers.NewOrderController(orders, stubReconciler{}, log),
	}, routes.Options{AdminSecret: adminSecret, JWTSecret: jwtSecret, Limiter: limiter})
	return r, orders
}

func send(r http.Handler, method, path, body string, headers map[string]string) int {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(nil)
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/health", "", nil))
}

func TestWebhookRoutesArePublic(t *testing.T) {
	r, _ := setupRouter(nil)
	sig := map[string]string{"Stripe-Signature": "t=1,v1=abc"}

	assert.Equal(t, http.StatusOK, send(r, http.MethodPost, "/webhook", `{}`, sig))
	assert.Equal(t, http.StatusOK, send(r, http.MethodPost, "/api/webhooks/stripe", `{}`, sig))
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/webhook", `{}`, nil))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r, _ := setupRouter(nil)
	admin := map[string]string{middleware.AdminTokenHeader: adminSecret}

	paths := []struct{ method, path, body string }{
		{http.MethodGet, "/admin/orders", ""},
		{http.MethodGet, "/admin/orders/cs_1", ""},
		{http.MethodGet, "/admin/orders/cs_1/notifications", ""},
		{http.MethodPatch, "/admin/orders/cs_1", `{"status":"shipped"}`},
		{http.MethodPatch, "/orders/cs_1", `{"status":"shipped"}`},
	}
	for _, p := range paths {
		assert.Equal(t, http.StatusUnauthorized, send(r, p.method, p.path, p.body, nil), p.path)
		assert.Equal(t, http.StatusOK, send(r, p.method, p.path, p.body, admin), p.path)
	}
}

func TestCustomerOrdersRequireJWT(t *testing.T) {
	r, orders := setupRouter(nil)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "jane@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodGet, "/orders", "", nil))
	assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodGet, "/orders", "", map[string]string{middleware.AdminTokenHeader: adminSecret}))
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/orders", "", map[string]string{"Authorization": "Bearer " + token}))
	assert.Equal(t, "jane@example.com", orders.lastEmail)
}

func TestStorefrontRateLimited(t *testing.T) {
	r, _ := setupRouter(middleware.NewRateLimiter(rate.Every(time.Hour), 1, time.Minute))
	body := `{"cartItems":[{"name":"Zafu","price":1,"quantity":1}]}`

	assert.Equal(t, http.StatusOK, send(r, http.MethodPost, "/checkout", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodPost, "/checkout", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, send(r, http.MethodPost, "/verify-payment", `{"sessionId":"cs_1"}`, nil))
	assert.Equal(t, http.StatusOK, send(r, http.MethodGet, "/health", "", nil))
}
