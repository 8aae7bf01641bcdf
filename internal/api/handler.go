package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"distribution-service/config"
	"distribution-service/internal/auth"
	"distribution-service/internal/models"
	"distribution-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the domain services the handlers call
type Services struct {
	Orders   *service.OrderService
	Sales    *service.SaleService
	Products *service.ProductService
	Partners *service.PartnerService
}

// Handler contains HTTP handlers
type Handler struct {
	orders   *service.OrderService
	sales    *service.SaleService
	products *service.ProductService
	partners *service.PartnerService
	tokens   *auth.TokenIssuer
	checks   map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, tokens *auth.TokenIssuer, checks map[string]Pinger) *Handler {
	return &Handler{
		orders:   svc.Orders,
		sales:    svc.Sales,
		products: svc.Products,
		partners: svc.Partners,
		tokens:   tokens,
		checks:   checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, cfg config.HTTPConfig) error {
	limit, err := rateLimitMiddleware(cfg.RateLimit)
	if err != nil {
		return err
	}

	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(cfg.CORSOrigins))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(limit)

	login := newLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst)
	v1.POST("/auth/login", login.Middleware(), h.login)

	authed := v1.Group("")
	authed.Use(authMiddleware(h.tokens))
	{
		authed.GET("/products", h.listProducts)
		authed.POST("/products", h.createProduct)
		authed.GET("/products/:id", h.getProduct)
		authed.PUT("/products/:id", h.updateProduct)
		authed.GET("/products/:id/stock", h.getProductStock)
		authed.POST("/products/:id/restock", h.restockProduct)

		authed.GET("/partners", h.listPartners)
		authed.POST("/partners", h.createPartner)
		authed.GET("/partners/:id/inventory", h.getPartnerInventory)

		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:orderId", h.getOrder)
		authed.PUT("/orders/:orderId", h.editOrder)
		authed.DELETE("/orders/:orderId", h.cancelOrder)
		authed.PUT("/orders/:orderId/status", h.advanceStatus)
		authed.GET("/orders/:orderId/history", h.getOrderHistory)

		authed.POST("/sales", h.recordSale)
		authed.GET("/sales", h.listSales)
		authed.GET("/sales/:saleId", h.getSale)
	}
	return nil
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers a ping
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.partners.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.products.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), sessionFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	product, err := h.products.UpdateProduct(c.Request.Context(), sessionFrom(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getProductStock(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	snap, err := h.products.GetProductStock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) restockProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	product, err := h.products.Restock(c.Request.Context(), sessionFrom(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listPartners(c *gin.Context) {
	partners, err := h.partners.ListPartners(c.Request.Context(), sessionFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, partners)
}

func (h *Handler) createPartner(c *gin.Context) {
	var req service.CreatePartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	resp, err := h.partners.CreatePartner(c.Request.Context(), sessionFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getPartnerInventory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	inventory, err := h.partners.GetPartnerInventory(c.Request.Context(), sessionFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), sessionFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	var filter models.OrderFilter

	if raw := c.Query("partner_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(c, fmt.Errorf("%w: partner_id must be a positive integer", models.ErrValidation))
			return
		}
		filter.PartnerID = id
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseOrderStatus(raw)
		if !ok {
			respondError(c, fmt.Errorf("%w: unknown status %q", models.ErrValidation, raw))
			return
		}
		filter.Status = status
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), sessionFrom(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// getOrder handles order retrieval
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), sessionFrom(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) editOrder(c *gin.Context) {
	var req service.EditOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := h.orders.EditOrder(c.Request.Context(), sessionFrom(c), c.Param("orderId"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	order, err := h.orders.CancelOrder(c.Request.Context(), sessionFrom(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) advanceStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	order, err := h.orders.AdvanceStatus(c.Request.Context(), sessionFrom(c), c.Param("orderId"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getOrderHistory(c *gin.Context) {
	history, err := h.orders.GetOrderHistory(c.Request.Context(), sessionFrom(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) recordSale(c *gin.Context) {
	var req service.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	sale, err := h.sales.RecordSale(c.Request.Context(), sessionFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) listSales(c *gin.Context) {
	var partnerID int64
	if raw := c.Query("partner_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(c, fmt.Errorf("%w: partner_id must be a positive integer", models.ErrValidation))
			return
		}
		partnerID = id
	}

	sales, err := h.sales.ListSales(c.Request.Context(), sessionFrom(c), partnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) getSale(c *gin.Context) {
	sale, err := h.sales.GetSale(c.Request.Context(), sessionFrom(c), c.Param("saleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, fmt.Errorf("%w: %s must be a positive integer", models.ErrValidation, name))
		return 0, false
	}
	return id, true
}
