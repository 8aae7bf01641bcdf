package models

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses, stored verbatim
const (
	OrderStatusCreated    OrderStatus = "Order Created"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCreated, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// ParseOrderStatus reports whether s names a known status
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusCreated, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

// IsPending is true while the order still holds a reservation
func (s OrderStatus) IsPending() bool {
	return s == OrderStatusCreated || s == OrderStatusProcessing
}

// IsShippedOrLater is true once stock has moved to the partner
func (s OrderStatus) IsShippedOrLater() bool {
	return s == OrderStatusShipped || s == OrderStatusDelivered
}

// IsTerminal is true for statuses an order never leaves
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition reports whether from -> to is an allowed move
func CanTransition(from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ShipsStock is true when from -> to crosses the pending/shipped boundary
func ShipsStock(from, to OrderStatus) bool {
	return from.IsPending() && to.IsShippedOrLater()
}
