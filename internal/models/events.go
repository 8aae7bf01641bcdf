package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderUpdated       = "ORDER_UPDATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeSaleRecorded       = "SALE_RECORDED"
	EventTypeProductRestocked   = "PRODUCT_RESTOCKED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published after an order mutation commits
type OrderEvent struct {
	BaseEvent
	OrderID        string          `json:"order_id"`
	PartnerID      int64           `json:"partner_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Items          []EventItem     `json:"items"`
}

// SaleEvent is published after a sale commits
type SaleEvent struct {
	BaseEvent
	SaleID      string          `json:"sale_id"`
	PartnerID   int64           `json:"partner_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []EventItem     `json:"items"`
}

// ProductEvent is published after a restock commits
type ProductEvent struct {
	BaseEvent
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// EventItem represents item data in events
type EventItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// ProductIDs lists the products an event touches
func ProductIDs(items []EventItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
