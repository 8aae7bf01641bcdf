package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const deliveryDateLayout = "2006-01-02"

// OrderService owns orders and their status machine
type OrderService struct {
	repo      store.Repository
	ledger    *Ledger
	publisher EventPublisher
	channels  map[string]bool
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	ledger *Ledger,
	publisher EventPublisher,
	deliveryChannels []string,
) *OrderService {
	channels := make(map[string]bool, len(deliveryChannels))
	for _, c := range deliveryChannels {
		channels[c] = true
	}
	return &OrderService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		channels:  channels,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// OrderLineRequest is one product line of a new order
type OrderLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Discount  decimal.Decimal `json:"discount"`
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	PartnerID       int64              `json:"partner_id" validate:"required,gt=0"`
	Items           []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryDate    string             `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	DeliveryChannel string             `json:"delivery_channel" validate:"required"`
	CreatedBy       models.PartnerType `json:"created_by,omitempty" validate:"omitempty,oneof=admin partner"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// EditLineRequest changes quantity and discount of a line already on the order.
// Price, when sent, must match the stored snapshot.
type EditLineRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	Discount  decimal.Decimal  `json:"discount"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// EditOrderRequest represents a request to edit order lines
type EditOrderRequest struct {
	Items []EditLineRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateOrder persists a new order and reserves its stock in one transaction
func (s *OrderService) CreateOrder(ctx context.Context, session models.Session, req *CreateOrderRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()
	defer func() { s.observeFailure(span, "create", err) }()

	if req.PartnerID == 0 && !session.IsAdmin() {
		req.PartnerID = session.PartnerID
	}
	deliveryDate, err := s.validateCreate(session, req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.replay(ctx, req); existing != nil || err != nil {
			return existing, err
		}
	}

	now := s.now().UTC()
	orderID, err := NewOrderID(now)
	if err != nil {
		return nil, fmt.Errorf("%w: generate order id: %v", models.ErrTransactionFailure, err)
	}

	lines := append([]OrderLineRequest(nil), req.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	order = &models.Order{
		OrderID:         orderID,
		PartnerID:       req.PartnerID,
		Status:          models.OrderStatusCreated,
		CreatedBy:       session.Type,
		DeliveryDate:    deliveryDate,
		DeliveryChannel: req.DeliveryChannel,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	err = inTx(ctx, s.repo, func(tx store.Tx) error {
		partner, err := tx.GetPartnerByID(ctx, req.PartnerID)
		if models.Kind(err) == models.ErrNotFound {
			return fmt.Errorf("%w: unknown partner %d", models.ErrValidation, req.PartnerID)
		}
		if err != nil {
			return err
		}
		if partner.PartnerType != models.PartnerTypePartner {
			return fmt.Errorf("%w: %s is not a partner account", models.ErrValidation, partner.UserID)
		}

		products, err := productsByID(ctx, tx, lines)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			price := products[line.ProductID].PartnerPrice
			if line.Discount.GreaterThan(price) {
				return fmt.Errorf("%w: discount %s exceeds price %s for product %d",
					models.ErrValidation, line.Discount, price, line.ProductID)
			}
			items = append(items, models.OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Discount:  line.Discount,
				Price:     price,
			})
		}
		order.TotalAmount = models.OrderTotal(items)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for i := range items {
			items[i].OrderPK = order.ID
			if err := tx.InsertOrderItem(ctx, &items[i]); err != nil {
				return err
			}
			if err := s.ledger.Reserve(ctx, tx, items[i].ProductID, items[i].Quantity); err != nil {
				return err
			}
		}
		order.Items = items

		return tx.InsertStatusChange(ctx, &models.OrderStatusChange{
			OrderPK:   order.ID,
			ToStatus:  models.OrderStatusCreated,
			ChangedBy: session.UserID,
			ChangedAt: now,
		})
	})
	if err != nil {
		if models.Kind(err) == models.ErrConflict && req.IdempotencyKey != "" {
			if existing, replayErr := s.replay(ctx, req); existing != nil {
				return existing, replayErr
			}
		}
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.OrderID),
		zap.Int64("partner_id", order.PartnerID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)))

	publishOrder(ctx, s.publisher, s.logger, orderEvent(models.EventTypeOrderCreated, order, ""))
	return order, nil
}

// EditOrder changes quantities and discounts of an open order
func (s *OrderService) EditOrder(ctx context.Context, session models.Session, orderID string, req *EditOrderRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.EditOrder")
	defer span.End()
	defer func() { s.observeFailure(span, "edit", err) }()

	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can edit orders", models.ErrForbidden)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, line := range req.Items {
		if seen[line.ProductID] {
			return nil, fmt.Errorf("%w: product %d listed twice", models.ErrValidation, line.ProductID)
		}
		seen[line.ProductID] = true
		if err := checkMoney(fmt.Sprintf("discount for product %d", line.ProductID), line.Discount); err != nil {
			return nil, err
		}
		if line.Price != nil {
			if err := checkMoney(fmt.Sprintf("price for product %d", line.ProductID), *line.Price); err != nil {
				return nil, err
			}
		}
	}

	lines := append([]EditLineRequest(nil), req.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	err = inTx(ctx, s.repo, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsPending() {
			return fmt.Errorf("%w: order %s is %s and can no longer be edited", models.ErrInvalidState, orderID, order.Status)
		}

		items, err := tx.GetOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		byProduct := make(map[int64]int, len(items))
		for i, item := range items {
			byProduct[item.ProductID] = i
		}

		for _, line := range lines {
			idx, ok := byProduct[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %d is not on order %s", models.ErrValidation, line.ProductID, orderID)
			}
			item := &items[idx]
			if line.Price != nil && !line.Price.Equal(item.Price) {
				return fmt.Errorf("%w: price %s for product %d differs from the order price %s",
					models.ErrValidation, line.Price, line.ProductID, item.Price)
			}
			if line.Discount.GreaterThan(item.Price) {
				return fmt.Errorf("%w: discount %s exceeds price %s for product %d",
					models.ErrValidation, line.Discount, item.Price, line.ProductID)
			}

			diff := line.Quantity - item.Quantity
			if order.Status != models.OrderStatusShipped {
				if err := s.ledger.AdjustReservation(ctx, tx, item.ProductID, diff); err != nil {
					return err
				}
			}

			item.Quantity = line.Quantity
			item.Discount = line.Discount
			if err := tx.UpdateOrderItem(ctx, item); err != nil {
				return err
			}
		}

		order.Items = items
		order.TotalAmount = models.OrderTotal(items)
		return tx.UpdateOrderTotal(ctx, order.ID, order.TotalAmount)
	})
	if err != nil {
		return nil, err
	}

	util.OrdersEditedTotal.Inc()
	s.logger.Info("Order edited",
		zap.String("order_id", order.OrderID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)))

	publishOrder(ctx, s.publisher, s.logger, orderEvent(models.EventTypeOrderUpdated, order, ""))
	return order, nil
}

// CancelOrder releases the reservations of an open order
func (s *OrderService) CancelOrder(ctx context.Context, session models.Session, orderID string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()
	defer func() { s.observeFailure(span, "cancel", err) }()

	var previous models.OrderStatus
	err = inTx(ctx, s.repo, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !session.CanActFor(order.PartnerID) {
			return fmt.Errorf("%w: order %s belongs to another partner", models.ErrForbidden, orderID)
		}
		if !order.Status.IsPending() {
			return fmt.Errorf("%w: order %s is %s and cannot be cancelled", models.ErrInvalidState, orderID, order.Status)
		}

		items, err := tx.GetOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := s.ledger.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		order.Items = items

		previous = order.Status
		return s.setStatus(ctx, tx, session, order, models.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	util.OrderTransitionsTotal.WithLabelValues(string(previous), string(models.OrderStatusCancelled)).Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_id", order.OrderID),
		zap.String("previous_status", string(previous)),
		zap.String("cancelled_by", session.UserID))

	publishOrder(ctx, s.publisher, s.logger, orderEvent(models.EventTypeOrderCancelled, order, previous))
	return order, nil
}

// AdvanceStatus moves an order along the status machine. Crossing from a
// pending status into Shipped or Delivered ships the stock exactly once.
func (s *OrderService) AdvanceStatus(ctx context.Context, session models.Session, orderID, newStatus string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdvanceStatus")
	defer span.End()

	if !session.IsAdmin() {
		err = fmt.Errorf("%w: only admins can change order status", models.ErrForbidden)
		s.observeFailure(span, "advance", err)
		return nil, err
	}
	target, ok := models.ParseOrderStatus(newStatus)
	if !ok {
		err = fmt.Errorf("%w: unknown status %q", models.ErrValidation, newStatus)
		s.observeFailure(span, "advance", err)
		return nil, err
	}
	if target == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, session, orderID)
	}
	defer func() { s.observeFailure(span, "advance", err) }()

	var previous models.OrderStatus
	err = inTx(ctx, s.repo, func(tx store.Tx) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if !models.CanTransition(previous, target) {
			return fmt.Errorf("%w: order %s cannot move from %s to %s", models.ErrInvalidState, orderID, previous, target)
		}

		items, err := tx.GetOrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		if models.ShipsStock(previous, target) {
			for _, item := range items {
				if err := s.ledger.ShipToPartner(ctx, tx, order.PartnerID, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		order.Items = items

		return s.setStatus(ctx, tx, session, order, target)
	})
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(previous), string(target)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", order.OrderID),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
		zap.Bool("stock_shipped", models.ShipsStock(previous, target)))

	publishOrder(ctx, s.publisher, s.logger, orderEvent(models.EventTypeOrderStatusChanged, order, previous))
	return order, nil
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, session models.Session, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !session.CanActFor(order.PartnerID) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}

	order.Items, err = s.repo.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders lists orders; partners only ever see their own
func (s *OrderService) ListOrders(ctx context.Context, session models.Session, filter models.OrderFilter) ([]models.Order, error) {
	if !session.IsAdmin() {
		filter.PartnerID = session.PartnerID
	}
	return s.repo.ListOrders(ctx, filter)
}

// GetOrderHistory returns the status changes of an order, oldest first
func (s *OrderService) GetOrderHistory(ctx context.Context, session models.Session, orderID string) ([]models.OrderStatusChange, error) {
	order, err := s.repo.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !session.CanActFor(order.PartnerID) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	return s.repo.GetOrderHistory(ctx, order.ID)
}

func (s *OrderService) setStatus(ctx context.Context, tx store.Tx, session models.Session, order *models.Order, to models.OrderStatus) error {
	at := s.now().UTC()
	from := order.Status

	if err := tx.UpdateOrderStatus(ctx, order.ID, to, at); err != nil {
		return err
	}
	order.Status = to
	order.StatusChangedAt = at

	return tx.InsertStatusChange(ctx, &models.OrderStatusChange{
		OrderPK:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  session.UserID,
		ChangedAt:  at,
	})
}

// validateCreate checks everything that does not need the store
func (s *OrderService) validateCreate(session models.Session, req *CreateOrderRequest) (time.Time, error) {
	if err := validateStruct(req); err != nil {
		return time.Time{}, err
	}

	deliveryDate, err := time.Parse(deliveryDateLayout, req.DeliveryDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: delivery_date: %v", models.ErrValidation, err)
	}
	if !s.channels[req.DeliveryChannel] {
		return time.Time{}, fmt.Errorf("%w: unknown delivery channel %q", models.ErrValidation, req.DeliveryChannel)
	}
	if req.CreatedBy != "" && req.CreatedBy != session.Type {
		return time.Time{}, fmt.Errorf("%w: created_by %q does not match the caller", models.ErrValidation, req.CreatedBy)
	}
	if !session.CanActFor(req.PartnerID) {
		return time.Time{}, fmt.Errorf("%w: partners can only order for themselves", models.ErrForbidden)
	}

	seen := make(map[int64]bool, len(req.Items))
	for _, line := range req.Items {
		if seen[line.ProductID] {
			return time.Time{}, fmt.Errorf("%w: product %d listed twice", models.ErrValidation, line.ProductID)
		}
		seen[line.ProductID] = true

		if err := checkMoney(fmt.Sprintf("discount for product %d", line.ProductID), line.Discount); err != nil {
			return time.Time{}, err
		}
		if !line.Discount.IsZero() && !session.CanSetDiscount() {
			return time.Time{}, fmt.Errorf("%w: partners cannot set discounts", models.ErrValidation)
		}
	}
	return deliveryDate, nil
}

// replay returns the order already stored under the request's idempotency key
func (s *OrderService) replay(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.PartnerID != req.PartnerID {
		return nil, fmt.Errorf("%w: idempotency key already used for another partner", models.ErrConflict)
	}

	existing.Items, err = s.repo.GetOrderItems(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("order_id", existing.OrderID))
	return existing, nil
}

func (s *OrderService) observeFailure(span trace.Span, op string, err error) {
	if err == nil {
		return
	}
	util.RecordError(span, err)
	util.OrdersFailedTotal.WithLabelValues(op, reason(err)).Inc()
	s.logger.Warn("Order operation rejected", zap.String("op", op), zap.Error(err))
}

func productsByID(ctx context.Context, tx store.Tx, lines []OrderLineRequest) (map[int64]models.Product, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := tx.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: unknown product %d", models.ErrValidation, id)
		}
	}
	return byID, nil
}
