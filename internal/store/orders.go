package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"distribution-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, order_id, partner_id, status, created_by, delivery_date, delivery_channel, total_amount, idempotency_key, created_at, status_changed_at`

const orderItemColumns = `id, order_id, product_id, quantity, discount, price`

const (
	QueryGetOrderByOrderID = `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	QueryLockOrder = QueryGetOrderByOrderID + ` FOR UPDATE`

	QueryGetOrderByIdempotencyKey = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	QueryInsertOrder = `
		INSERT INTO orders (order_id, partner_id, status, created_by, delivery_date, delivery_channel, total_amount, idempotency_key, created_at, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`

	QueryUpdateOrderTotal = `UPDATE orders SET total_amount = $1 WHERE id = $2`

	QueryUpdateOrderStatus = `UPDATE orders SET status = $1, status_changed_at = $2 WHERE id = $3`

	QueryGetOrderItems = `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY product_id`

	QueryInsertOrderItem = `
		INSERT INTO order_items (order_id, product_id, quantity, discount, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	QueryUpdateOrderItem = `UPDATE order_items SET quantity = $1, discount = $2 WHERE id = $3`

	QueryInsertStatusChange = `
		INSERT INTO order_status_history (order_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	QueryGetOrderHistory = `
		SELECT id, order_id, from_status, to_status, changed_by, changed_at
		FROM order_status_history WHERE order_id = $1 ORDER BY changed_at, id`
)

// GetOrderByOrderID retrieves an order by its external id
func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(ctx, s.db, QueryGetOrderByOrderID, orderID)
}

// GetOrderByIdempotencyKey returns nil, nil when no order carries key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, QueryGetOrderByIdempotencyKey, key)
	if err != nil {
		err = mapError(err, "order by idempotency key")
		if models.Kind(err) == models.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListOrders returns orders newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.PartnerID != 0 {
		args = append(args, filter.PartnerID)
		where = append(where, fmt.Sprintf("partner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, mapError(err, "list orders")
	}
	return orders, nil
}

func (s *Store) GetOrderItems(ctx context.Context, orderPK int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, s.db, orderPK)
}

// GetOrderHistory returns status changes oldest first
func (s *Store) GetOrderHistory(ctx context.Context, orderPK int64) ([]models.OrderStatusChange, error) {
	changes := []models.OrderStatusChange{}
	if err := s.db.SelectContext(ctx, &changes, QueryGetOrderHistory, orderPK); err != nil {
		return nil, mapError(err, fmt.Sprintf("order %d history", orderPK))
	}
	return changes, nil
}

// GetOrderForUpdate locks the order row until the transaction ends
func (t *sqlTx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(ctx, t.tx, QueryLockOrder, orderID)
}

func (t *sqlTx) GetOrderItems(ctx context.Context, orderPK int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, t.tx, orderPK)
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *models.Order) error {
	err := t.tx.GetContext(ctx, &order.ID, QueryInsertOrder,
		order.OrderID, order.PartnerID, order.Status, order.CreatedBy,
		order.DeliveryDate, order.DeliveryChannel, order.TotalAmount,
		nullable(order.IdempotencyKey), order.CreatedAt)
	return mapError(err, fmt.Sprintf("insert order %s", order.OrderID))
}

func (t *sqlTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	err := t.tx.GetContext(ctx, &item.ID, QueryInsertOrderItem,
		item.OrderPK, item.ProductID, item.Quantity, item.Discount, item.Price)
	return mapError(err, fmt.Sprintf("insert item for product %d", item.ProductID))
}

func (t *sqlTx) UpdateOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := t.tx.ExecContext(ctx, QueryUpdateOrderItem, item.Quantity, item.Discount, item.ID)
	return mapError(err, fmt.Sprintf("update order item %d", item.ID))
}

func (t *sqlTx) UpdateOrderTotal(ctx context.Context, orderPK int64, total decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx, QueryUpdateOrderTotal, total, orderPK)
	return mapError(err, fmt.Sprintf("update order %d total", orderPK))
}

func (t *sqlTx) UpdateOrderStatus(ctx context.Context, orderPK int64, status models.OrderStatus, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, QueryUpdateOrderStatus, status, at, orderPK)
	return mapError(err, fmt.Sprintf("update order %d status", orderPK))
}

func (t *sqlTx) InsertStatusChange(ctx context.Context, change *models.OrderStatusChange) error {
	err := t.tx.GetContext(ctx, &change.ID, QueryInsertStatusChange,
		change.OrderPK, change.FromStatus, change.ToStatus, change.ChangedBy, change.ChangedAt)
	return mapError(err, fmt.Sprintf("insert order %d status change", change.OrderPK))
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, query, orderID string) (*models.Order, error) {
	var order models.Order
	if err := sqlx.GetContext(ctx, q, &order, query, orderID); err != nil {
		return nil, mapError(err, fmt.Sprintf("order %s", orderID))
	}
	return &order, nil
}

func getOrderItems(ctx context.Context, q sqlx.QueryerContext, orderPK int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	if err := sqlx.SelectContext(ctx, q, &items, QueryGetOrderItems, orderPK); err != nil {
		return nil, mapError(err, fmt.Sprintf("order %d items", orderPK))
	}
	return items, nil
}
