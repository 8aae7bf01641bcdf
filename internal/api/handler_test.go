package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distribution-service/config"
	"distribution-service/internal/auth"
	"distribution-service/internal/models"
	"distribution-service/internal/service"
	"distribution-service/internal/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testHTTPConfig = config.HTTPConfig{
	RateLimit:          "1000-M",
	LoginRatePerMinute: 60,
	LoginBurst:         20,
	CORSOrigins:        []string{"http://localhost:3000"},
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type apiFixture struct {
	t          *testing.T
	router     *gin.Engine
	repo       *memstore.Store
	adminToken string
}

func newAPIFixture(t *testing.T, cfg config.HTTPConfig, checks map[string]Pinger) *apiFixture {
	t.Helper()

	repo := memstore.New()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	ledger := service.NewLedger()
	cache := service.NewInventoryCache(repo, nil)
	publisher := service.NewLocalProjector(cache)

	partners := service.NewPartnerService(repo, tokens, bcrypt.MinCost)
	require.NoError(t, partners.EnsureAdmin(context.Background(), "admin", "admin-pass"))

	if checks == nil {
		checks = map[string]Pinger{"store": repo}
	}
	h := NewHandler(Services{
		Orders:   service.NewOrderService(repo, ledger, publisher, []string{"Pickup", "Courier"}),
		Sales:    service.NewSaleService(repo, ledger, publisher),
		Products: service.NewProductService(repo, ledger, cache, publisher),
		Partners: partners,
	}, tokens, checks)

	router := gin.New()
	require.NoError(t, h.SetupRoutes(router, cfg))

	f := &apiFixture{t: t, router: router, repo: repo}
	f.adminToken = f.login("admin", "admin-pass")
	return f
}

func (f *apiFixture) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) login(userID, password string) string {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"userid": userID, "password": password})
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
	return decode[service.LoginResponse](f.t, w).Token
}

// createPartner registers a partner through the API and returns its token and id
func (f *apiFixture) createPartner(name string) (string, int64) {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/partners", f.adminToken, gin.H{"name": name, "phone": "9876543210"})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[service.CreatePartnerResponse](f.t, w)
	return f.login(resp.Partner.UserID, resp.Password), resp.Partner.ID
}

func (f *apiFixture) createProduct(name string, stock int) int64 {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/products", f.adminToken, gin.H{
		"product_name":  name,
		"partner_price": "25.00",
		"mrp":           "40.00",
		"initial_stock": stock,
	})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Product](f.t, w).ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	body := decode[map[string]string](t, w)
	assert.NotEmpty(t, body["details"])
	return body
}

func TestHealthAndReadiness(t *testing.T) {
	f := newAPIFixture(t, testHTTPConfig, nil)

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := newAPIFixture(t, testHTTPConfig, map[string]Pinger{"redis": failingPinger{}})
	w = down.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAuthentication(t *testing.T) {
	f := newAPIFixture(t, testHTTPConfig, nil)

	w := f.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", errorBody(t, w)["error"])

	w = f.do(http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"userid": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"userid": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/products", f.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrderAndSaleFlow(t *testing.T) {
	f := newAPIFixture(t, testHTTPConfig, nil)
	productID := f.createProduct("Soap", 10)
	partnerToken, partnerID := f.createPartner("Asha Traders")

	order := gin.H{
		"partner_id":       partnerID,
		"items":            []gin.H{{"product_id": productID, "quantity": 4}},
		"delivery_date":    "2026-11-02",
		"delivery_channel": "Pickup",
	}
	w := f.do(http.MethodPost, "/api/v1/orders", partnerToken, order, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Order](t, w)
	assert.Equal(t, models.OrderStatusCreated, created.Status)
	assert.Equal(t, "100", created.TotalAmount.String())

	// same key replays the stored order
	w = f.do(http.MethodPost, "/api/v1/orders", partnerToken, order, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, created.OrderID, decode[models.Order](t, w).OrderID)

	w = f.do(http.MethodGet, fmt.Sprintf("/api/v1/products/%d/stock", productID), partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[models.ProductSnapshot](t, w)
	assert.Equal(t, 10, snap.CurrentStock, "an order only reserves stock")
	assert.Equal(t, 4, snap.PendingUnits)
	assert.Equal(t, 1, snap.PendingOrders)

	orderPath := "/api/v1/orders/" + created.OrderID
	w = f.do(http.MethodPut, orderPath+"/status", partnerToken, gin.H{"status": "Shipped"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPut, orderPath+"/status", f.adminToken, gin.H{"status": "Shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.OrderStatusShipped, decode[models.Order](t, w).Status)

	w = f.do(http.MethodGet, fmt.Sprintf("/api/v1/products/%d/stock", productID), partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[models.ProductSnapshot](t, w)
	assert.Equal(t, 6, snap.CurrentStock)
	assert.Equal(t, 0, snap.PendingUnits)
	assert.Equal(t, 0, snap.PendingOrders)
	assert.Equal(t, 4, snap.InCirculation)

	w = f.do(http.MethodDelete, orderPath, partnerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Invalid state", errorBody(t, w)["error"])

	w = f.do(http.MethodGet, orderPath+"/history", partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.OrderStatusChange](t, w), 2)

	w = f.do(http.MethodGet, fmt.Sprintf("/api/v1/partners/%d/inventory", partnerID), partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inventory := decode[[]models.PartnerStock](t, w)
	require.Len(t, inventory, 1)
	assert.Equal(t, 4, inventory[0].Stock)

	sale := gin.H{
		"items":          []gin.H{{"product_id": productID, "quantity": 3, "unit_price": "40.00"}},
		"customer_name":  "Ravi",
		"customer_phone": "9123456780",
	}
	w = f.do(http.MethodPost, "/api/v1/sales", partnerToken, sale)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	recorded := decode[models.Sale](t, w)
	assert.Equal(t, partnerID, recorded.PartnerID)

	w = f.do(http.MethodGet, "/api/v1/sales/"+recorded.SaleID, partnerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	sale["items"] = []gin.H{{"product_id": productID, "quantity": 5, "unit_price": "40.00"}}
	w = f.do(http.MethodPost, "/api/v1/sales", partnerToken, sale)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Insufficient stock", errorBody(t, w)["error"])

	w = f.do(http.MethodGet, fmt.Sprintf("/api/v1/products/%d/stock", productID), partnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[models.ProductSnapshot](t, w)
	assert.Equal(t, 6, snap.CurrentStock)
	assert.Equal(t, 0, snap.PendingUnits)
	assert.Equal(t, 1, snap.InCirculation)
}

func TestErrorMapping(t *testing.T) {
	f := newAPIFixture(t, testHTTPConfig, nil)
	partnerToken, _ := f.createPartner("Bela Stores")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{"unknown order", http.MethodGet, "/api/v1/orders/ORD-missing", f.adminToken, nil, http.StatusNotFound},
		{"unknown product", http.MethodGet, "/api/v1/products/999", f.adminToken, nil, http.StatusNotFound},
		{"bad product id", http.MethodGet, "/api/v1/products/abc", f.adminToken, nil, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/v1/orders?status=Lost", f.adminToken, nil, http.StatusBadRequest},
		{"bad partner filter", http.MethodGet, "/api/v1/sales?partner_id=-1", f.adminToken, nil, http.StatusBadRequest},
		{"partner creates product", http.MethodPost, "/api/v1/products", partnerToken,
			gin.H{"product_name": "Oil", "partner_price": "1", "mrp": "2"}, http.StatusForbidden},
		{"partner lists partners", http.MethodGet, "/api/v1/partners", partnerToken, nil, http.StatusForbidden},
		{"negative price", http.MethodPost, "/api/v1/products", f.adminToken,
			gin.H{"product_name": "Oil", "partner_price": "-1", "mrp": "2"}, http.StatusBadRequest},
		{"restock zero", http.MethodPost, "/api/v1/products/1/restock", f.adminToken, gin.H{"quantity": 0}, http.StatusBadRequest},
		{"empty order", http.MethodPost, "/api/v1/orders", f.adminToken, gin.H{"partner_id": 1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			body := errorBody(t, w)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testHTTPConfig
	cfg.LoginRatePerMinute = 1
	cfg.LoginBurst = 2
	f := newAPIFixture(t, cfg, nil)

	// the fixture already spent one token logging in as admin
	w := f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"userid": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"userid": "admin", "password": "admin-pass"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitConfig(t *testing.T) {
	h := NewHandler(Services{}, auth.NewTokenIssuer("s", time.Hour), nil)
	err := h.SetupRoutes(gin.New(), config.HTTPConfig{RateLimit: "lots"})
	assert.Error(t, err)
}
