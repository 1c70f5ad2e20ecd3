package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/offer"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/serial"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type testEnv struct {
	repo    *repository.MemoryRepository
	handler http.Handler
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T, checks map[string]func(context.Context) error) *testEnv {
	t.Helper()
	repo := repository.NewMemoryRepository()
	locker := serial.NewSerializer(nil)
	t.Cleanup(locker.Close)

	offers := offer.NewService(repo, nil).WithClock(clock)
	carts := cart.NewService(cart.Deps{
		Store:   repo,
		Catalog: repo,
		Offers:  offers,
		Locker:  locker,
		Policy:  cart.PricingPolicy{TaxRate: money.MustParse("0.10"), Shipping: money.Zero},
		Clock:   clock,
	})
	orders := order.NewService(order.Deps{Store: repo, Inventory: repo, Locker: locker, Clock: clock})
	co := checkout.NewService(checkout.Deps{
		Carts:     carts,
		Catalog:   repo,
		Offers:    repo,
		Orders:    repo,
		Inventory: repo,
		Sequence:  repo,
		Clock:     clock,
	})

	cfg := &config.Config{Gateway: config.GatewayConfig{Mode: "test"}}
	g := NewGateway(cfg, zap.NewNop(), Services{
		Carts:    carts,
		Checkout: co,
		Orders:   orders,
		Offers:   offers,
		Checks:   checks,
	})

	require.NoError(t, repo.PutProduct(context.Background(), &models.Product{
		ID:          "p1",
		Name:        "Headphones",
		Price:       money.MustParse("100.00"),
		ProductType: models.ProductPhysical,
		IsActive:    true,
		Inventory:   models.Inventory{Quantity: 10, TrackInventory: true},
	}))
	return &testEnv{repo: repo, handler: g.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, user string, role models.Role, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	if role != "" {
		req.Header.Set(headerUserRole, string(role))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec.Code, resp
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.do(t, http.MethodPost, "/api/v1/admin/offers", "admin1", models.RoleAdmin, map[string]any{
		"name":       "Ten off",
		"code":       " save10 ",
		"type":       "percentage",
		"value":      10,
		"start_date": "2025-03-01T00:00:00Z",
		"end_date":   "2025-04-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var created models.Offer
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "SAVE10", created.Code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", "", map[string]any{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = env.do(t, http.MethodPost, "/api/v1/cart/coupon", "u1", "", map[string]any{"code": "save10"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var c models.Cart
	require.NoError(t, json.Unmarshal(resp.Data, &c))
	assert.True(t, c.CouponDiscount.Equal(money.MustParse("20")), "discount %s", c.CouponDiscount)
	assert.True(t, c.Total.Equal(money.MustParse("200")), "total %s", c.Total)

	code, resp = env.do(t, http.MethodPost, "/api/v1/orders", "u1", "", map[string]any{
		"payment_method": "transfer",
		"shipping_address": map[string]any{
			"full_name": "Ada Lovelace", "line1": "1 Main St", "city": "London",
			"postal_code": "N1", "country": "GB",
		},
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	var placed models.Order
	require.NoError(t, json.Unmarshal(resp.Data, &placed))
	assert.Equal(t, "ORD-250315-000001", placed.OrderNumber)
	assert.Equal(t, models.OrderPending, placed.Status)
	assert.Equal(t, "SAVE10", placed.CouponCode)

	code, resp = env.do(t, http.MethodGet, "/api/v1/orders/ORD-250315-000001", "u2", "", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "unauthorized", resp.Error)

	code, resp = env.do(t, http.MethodGet, "/api/v1/orders?limit=5", "u1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var listed struct {
		Items []models.Order `json:"items"`
		Total int64          `json:"total"`
		Limit int            `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	assert.Equal(t, int64(1), listed.Total)
	assert.Equal(t, 5, listed.Limit)

	code, resp = env.do(t, http.MethodPost, "/api/v1/orders/ORD-250315-000001/cancel", "u1", "", map[string]any{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = env.do(t, http.MethodPost, "/api/v1/orders/ORD-250315-000001/cancel", "u1", "", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", resp.Error)

	p, err := env.repo.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Inventory.Quantity)
}

func TestAdminOrderOperations(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", "", map[string]any{"product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusOK, code)
	code, resp := env.do(t, http.MethodPost, "/api/v1/orders", "u1", "", map[string]any{"payment_method": "cod"})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, _ = env.do(t, http.MethodPut, "/api/v1/admin/orders/ORD-250315-000001/status", "u1", "", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = env.do(t, http.MethodPut, "/api/v1/admin/orders/ORD-250315-000001/status", "admin1", models.RoleAdmin, map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", resp.Error)

	for _, status := range []string{"processing", "completed"} {
		code, resp = env.do(t, http.MethodPut, "/api/v1/admin/orders/ORD-250315-000001/status", "admin1", models.RoleAdmin, map[string]any{"status": status})
		require.Equal(t, http.StatusOK, code, resp.Message)
	}

	code, resp = env.do(t, http.MethodPost, "/api/v1/admin/orders/ORD-250315-000001/refund", "admin1", models.RoleAdmin, map[string]any{"amount": 5})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_refund_requested", resp.Error)

	code, resp = env.do(t, http.MethodPost, "/api/v1/orders/ORD-250315-000001/refund", "u1", "", map[string]any{"reason": "damaged"})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = env.do(t, http.MethodPost, "/api/v1/admin/orders/ORD-250315-000001/refund", "admin1", models.RoleSuperAdmin, map[string]any{"amount": 5})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var refunded models.Order
	require.NoError(t, json.Unmarshal(resp.Data, &refunded))
	assert.Equal(t, models.OrderRefunded, refunded.Status)
	require.NotNil(t, refunded.Refund.Amount)
	assert.True(t, refunded.Refund.Amount.Equal(decimal.NewFromInt(5)))

	code, resp = env.do(t, http.MethodGet, "/api/v1/admin/orders?status=refunded", "admin1", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var listed struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	assert.Equal(t, int64(1), listed.Total)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.do(t, http.MethodGet, "/api/v1/cart", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)

	code, resp = env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", "", map[string]any{"product_id": "missing", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Error)

	code, resp = env.do(t, http.MethodPost, "/api/v1/cart/items", "u1", "", map[string]any{"product_id": "p1", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", resp.Error)

	code, resp = env.do(t, http.MethodPost, "/api/v1/orders", "u1", "", map[string]any{"payment_method": "cod"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "empty_cart", resp.Error)

	code, resp = env.do(t, http.MethodPost, "/api/v1/offers/validate", "u1", "", map[string]any{"code": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_coupon", resp.Error)

	code, _ = env.do(t, http.MethodGet, "/api/v1/admin/offers", "u1", models.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t, map[string]func(context.Context) error{
		"mongodb": func(context.Context) error { return nil },
		"redis":   func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(""))
	assert.Equal(t, http.StatusConflict, statusFor("conflict"))
	assert.Equal(t, http.StatusBadRequest, statusFor("out_of_stock"))
}
