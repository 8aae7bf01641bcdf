// Package memstore is an in-memory Repository. Transactions are serialized
// behind one lock and work on a copy of the data that replaces the live
// state only on commit, so a failed transaction leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/store"

	"github.com/shopspring/decimal"
)

type stockKey struct {
	partnerID int64
	productID int64
}

type state struct {
	products     map[int64]models.Product
	partners     map[int64]models.Partner
	partnerStock map[stockKey]models.PartnerInventory
	orders       map[int64]models.Order
	orderItems   map[int64]models.OrderItem
	history      []models.OrderStatusChange
	sales        map[int64]models.Sale
	saleItems    map[int64]models.SaleItem
	lastID       int64
}

func newState() *state {
	return &state{
		products:     map[int64]models.Product{},
		partners:     map[int64]models.Partner{},
		partnerStock: map[stockKey]models.PartnerInventory{},
		orders:       map[int64]models.Order{},
		orderItems:   map[int64]models.OrderItem{},
		sales:        map[int64]models.Sale{},
		saleItems:    map[int64]models.SaleItem{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:     make(map[int64]models.Product, len(s.products)),
		partners:     make(map[int64]models.Partner, len(s.partners)),
		partnerStock: make(map[stockKey]models.PartnerInventory, len(s.partnerStock)),
		orders:       make(map[int64]models.Order, len(s.orders)),
		orderItems:   make(map[int64]models.OrderItem, len(s.orderItems)),
		history:      append([]models.OrderStatusChange(nil), s.history...),
		sales:        make(map[int64]models.Sale, len(s.sales)),
		saleItems:    make(map[int64]models.SaleItem, len(s.saleItems)),
		lastID:       s.lastID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.partners {
		c.partners[k] = v
	}
	for k, v := range s.partnerStock {
		c.partnerStock[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.orderItems {
		c.orderItems[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.saleItems {
		c.saleItems[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

// Store is a Repository held in process memory
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransactionFailure, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&memTx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrTransactionFailure, err)
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

// Writes outside WithTx still go through a transaction
func (s *Store) write(ctx context.Context, fn func(st *state, now time.Time) error) error {
	return s.WithTx(ctx, func(tx store.Tx) error {
		mt := tx.(*memTx)
		return fn(mt.st, mt.now())
	})
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	return s.write(ctx, func(st *state, now time.Time) error {
		if product.CurrentStock < 0 {
			return fmt.Errorf("%w: product %q", store.ErrCounterUnderflow, product.Name)
		}
		p := *product
		p.ID = st.nextID()
		p.PendingOrders, p.PendingUnits, p.InCirculation = 0, 0, 0
		p.Version = 1
		p.CreatedAt, p.UpdatedAt = now, now
		st.products[p.ID] = p
		*product = p
		return nil
	})
}

func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	return s.write(ctx, func(st *state, now time.Time) error {
		p, ok := st.products[product.ID]
		if !ok {
			return fmt.Errorf("%w: product %d", models.ErrNotFound, product.ID)
		}
		p.Name = product.Name
		p.PartnerPrice = product.PartnerPrice
		p.MRP = product.MRP
		p.Version++
		p.UpdatedAt = now
		st.products[p.ID] = p
		*product = p
		return nil
	})
}

func (s *Store) CreatePartner(ctx context.Context, partner *models.Partner) error {
	return s.write(ctx, func(st *state, now time.Time) error {
		for _, existing := range st.partners {
			if existing.UserID == partner.UserID {
				return fmt.Errorf("%w: insert partner %q: partners_userid_key", models.ErrConflict, partner.UserID)
			}
		}
		p := *partner
		p.ID = st.nextID()
		p.CreatedAt = now
		st.partners[p.ID] = p
		*partner = p
		return nil
	})
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return getProduct(s.read(), id)
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	st := s.read()
	products := make([]models.Product, 0, len(st.products))
	for _, p := range st.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error) {
	return getPartner(s.read(), id)
}

func (s *Store) GetPartnerByUserID(ctx context.Context, userID string) (*models.Partner, error) {
	for _, p := range s.read().partners {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: partner %q", models.ErrNotFound, userID)
}

func (s *Store) ListPartners(ctx context.Context) ([]models.Partner, error) {
	st := s.read()
	partners := make([]models.Partner, 0, len(st.partners))
	for _, p := range st.partners {
		partners = append(partners, p)
	}
	sort.Slice(partners, func(i, j int) bool {
		if partners[i].Name != partners[j].Name {
			return partners[i].Name < partners[j].Name
		}
		return partners[i].ID < partners[j].ID
	})
	return partners, nil
}

func (s *Store) ListPartnerInventory(ctx context.Context, partnerID int64) ([]models.PartnerStock, error) {
	st := s.read()
	rows := []models.PartnerStock{}
	for key, inv := range st.partnerStock {
		if key.partnerID != partnerID || inv.Stock <= 0 {
			continue
		}
		p := st.products[key.productID]
		rows = append(rows, models.PartnerStock{ProductID: p.ID, ProductName: p.Name, MRP: p.MRP, Stock: inv.Stock})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductName != rows[j].ProductName {
			return rows[i].ProductName < rows[j].ProductName
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	return rows, nil
}

func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(s.read(), orderID)
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	for _, o := range s.read().orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	orders := []models.Order{}
	for _, o := range s.read().orders {
		if filter.PartnerID != 0 && o.PartnerID != filter.PartnerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (s *Store) GetOrderItems(ctx context.Context, orderPK int64) ([]models.OrderItem, error) {
	return orderItems(s.read(), orderPK), nil
}

func (s *Store) GetOrderHistory(ctx context.Context, orderPK int64) ([]models.OrderStatusChange, error) {
	changes := []models.OrderStatusChange{}
	for _, c := range s.read().history {
		if c.OrderPK == orderPK {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

func (s *Store) GetSaleBySaleID(ctx context.Context, saleID string) (*models.Sale, error) {
	for _, sale := range s.read().sales {
		if sale.SaleID == saleID {
			sale := sale
			return &sale, nil
		}
	}
	return nil, fmt.Errorf("%w: sale %s", models.ErrNotFound, saleID)
}

func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	for _, sale := range s.read().sales {
		if sale.IdempotencyKey != nil && *sale.IdempotencyKey == key {
			sale := sale
			return &sale, nil
		}
	}
	return nil, nil
}

func (s *Store) ListSales(ctx context.Context, partnerID int64) ([]models.Sale, error) {
	sales := []models.Sale{}
	for _, sale := range s.read().sales {
		if partnerID != 0 && sale.PartnerID != partnerID {
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.After(sales[j].CreatedAt)
		}
		return sales[i].ID > sales[j].ID
	})
	return sales, nil
}

func (s *Store) GetSaleItems(ctx context.Context, salePK int64) ([]models.SaleItem, error) {
	items := []models.SaleItem{}
	for _, item := range s.read().saleItems {
		if item.SalePK == salePK {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// memTx implements store.Tx against a private copy of the state
type memTx struct {
	st  *state
	now func() time.Time
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	products := []models.Product{}
	seen := map[int64]bool{}
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok && !seen[id] {
			seen[id] = true
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (t *memTx) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	return getProduct(t.st, id)
}

func (t *memTx) AdjustProductCounters(ctx context.Context, productID int64, d models.CounterDelta) (*models.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", models.ErrNotFound, productID)
	}
	next, ok := d.Apply(p)
	if !ok {
		return nil, fmt.Errorf("%w: product %d %+v", store.ErrCounterUnderflow, productID, d)
	}
	next.Version++
	next.UpdatedAt = t.now()
	t.st.products[productID] = next
	return &next, nil
}

func (t *memTx) GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error) {
	return getPartner(t.st, id)
}

func (t *memTx) GetPartnerStockForUpdate(ctx context.Context, partnerID, productID int64) (int, error) {
	return t.st.partnerStock[stockKey{partnerID, productID}].Stock, nil
}

func (t *memTx) AddPartnerStock(ctx context.Context, partnerID, productID int64, qty int) (int, error) {
	if _, ok := t.st.partners[partnerID]; !ok {
		return 0, fmt.Errorf("%w: partner %d", models.ErrNotFound, partnerID)
	}
	if _, ok := t.st.products[productID]; !ok {
		return 0, fmt.Errorf("%w: product %d", models.ErrNotFound, productID)
	}

	key := stockKey{partnerID, productID}
	inv, ok := t.st.partnerStock[key]
	if !ok {
		inv = models.PartnerInventory{PartnerID: partnerID, ProductID: productID}
	}
	if inv.Stock+qty < 0 {
		return 0, fmt.Errorf("%w: partner %d stock of product %d by %d", store.ErrCounterUnderflow, partnerID, productID, qty)
	}
	inv.Stock += qty
	inv.UpdatedAt = t.now()
	t.st.partnerStock[key] = inv
	return inv.Stock, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	return getOrder(t.st, orderID)
}

func (t *memTx) GetOrderItems(ctx context.Context, orderPK int64) ([]models.OrderItem, error) {
	return orderItems(t.st, orderPK), nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	if _, ok := t.st.partners[order.PartnerID]; !ok {
		return fmt.Errorf("%w: partner %d", models.ErrNotFound, order.PartnerID)
	}
	for _, o := range t.st.orders {
		if o.OrderID == order.OrderID {
			return fmt.Errorf("%w: insert order %s: orders_order_id_key", models.ErrConflict, order.OrderID)
		}
		if sameKey(o.IdempotencyKey, order.IdempotencyKey) {
			return fmt.Errorf("%w: insert order %s: orders_idempotency_key_key", models.ErrConflict, order.OrderID)
		}
	}
	o := *order
	o.ID = t.st.nextID()
	o.StatusChangedAt = o.CreatedAt
	o.Items = nil
	t.st.orders[o.ID] = o
	order.ID = o.ID
	return nil
}

func (t *memTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	if _, ok := t.st.orders[item.OrderPK]; !ok {
		return fmt.Errorf("%w: order %d", models.ErrNotFound, item.OrderPK)
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return fmt.Errorf("%w: product %d", models.ErrNotFound, item.ProductID)
	}
	for _, existing := range t.st.orderItems {
		if existing.OrderPK == item.OrderPK && existing.ProductID == item.ProductID {
			return fmt.Errorf("%w: order %d already has product %d", models.ErrConflict, item.OrderPK, item.ProductID)
		}
	}
	item.ID = t.st.nextID()
	t.st.orderItems[item.ID] = *item
	return nil
}

func (t *memTx) UpdateOrderItem(ctx context.Context, item *models.OrderItem) error {
	existing, ok := t.st.orderItems[item.ID]
	if !ok {
		return fmt.Errorf("%w: order item %d", models.ErrNotFound, item.ID)
	}
	existing.Quantity = item.Quantity
	existing.Discount = item.Discount
	t.st.orderItems[item.ID] = existing
	return nil
}

func (t *memTx) UpdateOrderTotal(ctx context.Context, orderPK int64, total decimal.Decimal) error {
	o, ok := t.st.orders[orderPK]
	if !ok {
		return fmt.Errorf("%w: order %d", models.ErrNotFound, orderPK)
	}
	o.TotalAmount = total
	t.st.orders[orderPK] = o
	return nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, orderPK int64, status models.OrderStatus, at time.Time) error {
	o, ok := t.st.orders[orderPK]
	if !ok {
		return fmt.Errorf("%w: order %d", models.ErrNotFound, orderPK)
	}
	o.Status = status
	o.StatusChangedAt = at
	t.st.orders[orderPK] = o
	return nil
}

func (t *memTx) InsertStatusChange(ctx context.Context, change *models.OrderStatusChange) error {
	if _, ok := t.st.orders[change.OrderPK]; !ok {
		return fmt.Errorf("%w: order %d", models.ErrNotFound, change.OrderPK)
	}
	change.ID = t.st.nextID()
	t.st.history = append(t.st.history, *change)
	return nil
}

func (t *memTx) InsertSale(ctx context.Context, sale *models.Sale) error {
	if _, ok := t.st.partners[sale.PartnerID]; !ok {
		return fmt.Errorf("%w: partner %d", models.ErrNotFound, sale.PartnerID)
	}
	for _, existing := range t.st.sales {
		if existing.SaleID == sale.SaleID {
			return fmt.Errorf("%w: insert sale %s: sales_sale_id_key", models.ErrConflict, sale.SaleID)
		}
		if sameKey(existing.IdempotencyKey, sale.IdempotencyKey) {
			return fmt.Errorf("%w: insert sale %s: sales_idempotency_key_key", models.ErrConflict, sale.SaleID)
		}
	}
	s := *sale
	s.ID = t.st.nextID()
	s.Items = nil
	t.st.sales[s.ID] = s
	sale.ID = s.ID
	return nil
}

func (t *memTx) InsertSaleItem(ctx context.Context, item *models.SaleItem) error {
	if _, ok := t.st.sales[item.SalePK]; !ok {
		return fmt.Errorf("%w: sale %d", models.ErrNotFound, item.SalePK)
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return fmt.Errorf("%w: product %d", models.ErrNotFound, item.ProductID)
	}
	item.ID = t.st.nextID()
	t.st.saleItems[item.ID] = *item
	return nil
}

func getProduct(st *state, id int64) (*models.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", models.ErrNotFound, id)
	}
	return &p, nil
}

func getPartner(st *state, id int64) (*models.Partner, error) {
	p, ok := st.partners[id]
	if !ok {
		return nil, fmt.Errorf("%w: partner %d", models.ErrNotFound, id)
	}
	return &p, nil
}

func getOrder(st *state, orderID string) (*models.Order, error) {
	for _, o := range st.orders {
		if o.OrderID == orderID {
			o := o
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
}

func orderItems(st *state, orderPK int64) []models.OrderItem {
	items := []models.OrderItem{}
	for _, item := range st.orderItems {
		if item.OrderPK == orderPK {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

func sameKey(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.TrimSpace(*a) != "" && *a == *b
}
