package store

import (
	"context"
	"errors"
	"time"

	"distribution-service/internal/models"

	"github.com/shopspring/decimal"
)

// ErrCounterUnderflow is returned when a guarded adjustment would drive a
// product counter or partner stock below zero. Nothing is written.
var ErrCounterUnderflow = errors.New("counter underflow")

// Reader is the read side shared by all repository implementations
type Reader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)

	GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error)
	GetPartnerByUserID(ctx context.Context, userID string) (*models.Partner, error)
	ListPartners(ctx context.Context) ([]models.Partner, error)
	ListPartnerInventory(ctx context.Context, partnerID int64) ([]models.PartnerStock, error)

	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	GetOrderItems(ctx context.Context, orderPK int64) ([]models.OrderItem, error)
	GetOrderHistory(ctx context.Context, orderPK int64) ([]models.OrderStatusChange, error)

	GetSaleBySaleID(ctx context.Context, saleID string) (*models.Sale, error)
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	ListSales(ctx context.Context, partnerID int64) ([]models.Sale, error)
	GetSaleItems(ctx context.Context, salePK int64) ([]models.SaleItem, error)
}

// Repository is the persistence surface the services depend on
type Repository interface {
	Reader

	// WithTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise; fn's error is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	CreatePartner(ctx context.Context, partner *models.Partner) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the write side, only reachable inside WithTx
type Tx interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error)
	// AdjustProductCounters applies d in a single statement and returns the
	// updated row, or ErrCounterUnderflow if any counter would go negative.
	AdjustProductCounters(ctx context.Context, productID int64, d models.CounterDelta) (*models.Product, error)

	GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error)
	// GetPartnerStockForUpdate returns 0 when the partner holds no row for the product
	GetPartnerStockForUpdate(ctx context.Context, partnerID, productID int64) (int, error)
	// AddPartnerStock upserts the (partner, product) row and returns the new balance
	AddPartnerStock(ctx context.Context, partnerID, productID int64, qty int) (int, error)

	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderPK int64) ([]models.OrderItem, error)
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	UpdateOrderItem(ctx context.Context, item *models.OrderItem) error
	UpdateOrderTotal(ctx context.Context, orderPK int64, total decimal.Decimal) error
	UpdateOrderStatus(ctx context.Context, orderPK int64, status models.OrderStatus, at time.Time) error
	InsertStatusChange(ctx context.Context, change *models.OrderStatusChange) error

	InsertSale(ctx context.Context, sale *models.Sale) error
	InsertSaleItem(ctx context.Context, item *models.SaleItem) error
}
