package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerType discriminates the two actor roles
type PartnerType string

const (
	PartnerTypeAdmin   PartnerType = "admin"
	PartnerTypePartner PartnerType = "partner"
)

// Product carries the company-level inventory counters
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"product_name" json:"product_name"`
	PartnerPrice  decimal.Decimal `db:"partner_price" json:"partner_price"`
	MRP           decimal.Decimal `db:"mrp" json:"mrp"`
	CurrentStock  int             `db:"current_stock" json:"current_stock"`
	PendingOrders int             `db:"pending_orders" json:"pending_orders"`
	PendingUnits  int             `db:"pending_units" json:"pending_units"`
	InCirculation int             `db:"in_circulation" json:"in_circulation"`
	// Version is bumped by every write to the row, in commit order
	Version       int64           `db:"version" json:"version"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// CounterDelta is a signed adjustment of the four product counters
type CounterDelta struct {
	CurrentStock  int
	PendingOrders int
	PendingUnits  int
	InCirculation int
}

// Apply returns a copy of p with d added, and whether every counter stays non-negative
func (d CounterDelta) Apply(p Product) (Product, bool) {
	p.CurrentStock += d.CurrentStock
	p.PendingOrders += d.PendingOrders
	p.PendingUnits += d.PendingUnits
	p.InCirculation += d.InCirculation
	ok := p.CurrentStock >= 0 && p.PendingOrders >= 0 && p.PendingUnits >= 0 && p.InCirculation >= 0
	return p, ok
}

// Partner is an admin or a distribution partner
type Partner struct {
	ID           int64       `db:"id" json:"id"`
	UserID       string      `db:"userid" json:"userid"`
	PasswordHash string      `db:"password_hash" json:"-"`
	Name         string      `db:"name" json:"name"`
	Email        string      `db:"email" json:"email"`
	Phone        string      `db:"phone" json:"phone"`
	Address      string      `db:"address" json:"address"`
	PartnerType  PartnerType `db:"partner_type" json:"partner_type"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// PartnerInventory is stock held by a partner, eligible for resale
type PartnerInventory struct {
	PartnerID int64     `db:"partner_id" json:"partner_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Stock     int       `db:"stock" json:"stock"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PartnerStock is a partner inventory row joined with its product
type PartnerStock struct {
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	MRP         decimal.Decimal `db:"mrp" json:"mrp"`
	Stock       int             `db:"stock" json:"stock"`
}

// Order is a stock transfer request from the company to a partner
type Order struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         string          `db:"order_id" json:"order_id"`
	PartnerID       int64           `db:"partner_id" json:"partner_id"`
	Status          OrderStatus     `db:"status" json:"status"`
	CreatedBy       PartnerType     `db:"created_by" json:"created_by"`
	DeliveryDate    time.Time       `db:"delivery_date" json:"delivery_date"`
	DeliveryChannel string          `db:"delivery_channel" json:"delivery_channel"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	IdempotencyKey  *string         `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	StatusChangedAt time.Time       `db:"status_changed_at" json:"status_changed_at"`
	Items           []OrderItem     `db:"-" json:"items,omitempty"`
}

// OrderItem stores the partner price at order time in Price
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderPK   int64           `db:"order_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// LineTotal is (price - discount) * quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Sub(i.Discount).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderTotal sums the line totals of items
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// OrderStatusChange is one row of an order's transition log
type OrderStatusChange struct {
	ID         int64       `db:"id" json:"id"`
	OrderPK    int64       `db:"order_id" json:"-"`
	FromStatus OrderStatus `db:"from_status" json:"from_status"`
	ToStatus   OrderStatus `db:"to_status" json:"to_status"`
	ChangedBy  string      `db:"changed_by" json:"changed_by"`
	ChangedAt  time.Time   `db:"changed_at" json:"changed_at"`
}

// OrderFilter narrows order listings; zero values match everything
type OrderFilter struct {
	PartnerID int64
	Status    OrderStatus
}

// Sale is an immutable point-of-sale transaction against partner stock
type Sale struct {
	ID              int64           `db:"id" json:"id"`
	SaleID          string          `db:"sale_id" json:"sale_id"`
	PartnerID       int64           `db:"partner_id" json:"partner_id"`
	CustomerName    string          `db:"customer_name" json:"customer_name"`
	CustomerPhone   string          `db:"customer_phone" json:"customer_phone"`
	CustomerAddress string          `db:"customer_address" json:"customer_address,omitempty"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	IdempotencyKey  *string         `db:"idempotency_key" json:"-"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	Items           []SaleItem      `db:"-" json:"items,omitempty"`
}

// SaleItem stores the unit price charged and the line total
type SaleItem struct {
	ID        int64           `db:"id" json:"id"`
	SalePK    int64           `db:"sale_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"price" json:"unit_price"`
	Total     decimal.Decimal `db:"total" json:"total"`
}

// ProductSnapshot is the cached read model of a product's counters
type ProductSnapshot struct {
	ProductID     int64     `json:"product_id"`
	Name          string    `json:"product_name"`
	CurrentStock  int       `json:"current_stock"`
	PendingOrders int       `json:"pending_orders"`
	PendingUnits  int       `json:"pending_units"`
	InCirculation int       `json:"in_circulation"`
	Version       int64     `json:"version"`
	CachedAt      time.Time `json:"cached_at"`
}

// SnapshotOf builds a snapshot carrying the product's row version
func SnapshotOf(p *Product) ProductSnapshot {
	return ProductSnapshot{
		ProductID:     p.ID,
		Name:          p.Name,
		CurrentStock:  p.CurrentStock,
		PendingOrders: p.PendingOrders,
		PendingUnits:  p.PendingUnits,
		InCirculation: p.InCirculation,
		Version:       p.Version,
		CachedAt:      time.Now(),
	}
}
