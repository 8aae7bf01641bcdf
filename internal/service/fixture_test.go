package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"distribution-service/internal/models"
	"distribution-service/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testChannels = []string{"Pickup", "Courier", "Beat Delivery"}

const testDeliveryDate = "2026-11-02"

type recordingPublisher struct {
	mu     sync.Mutex
	fail   bool
	orders []*models.OrderEvent
	sales  []*models.SaleEvent
	stock  []*models.ProductEvent
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.orders = append(p.orders, event)
	return nil
}

func (p *recordingPublisher) PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.sales = append(p.sales, event)
	return nil
}

func (p *recordingPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.stock = append(p.stock, event)
	return nil
}

func (p *recordingPublisher) orderEventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.orders))
	for _, e := range p.orders {
		types = append(types, e.EventType)
	}
	return types
}

type fixture struct {
	ctx      context.Context
	repo     *memstore.Store
	events   *recordingPublisher
	orders   *OrderService
	sales    *SaleService
	products *ProductService
	admin    models.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memstore.New()
	events := &recordingPublisher{}
	ledger := NewLedger()
	f := &fixture{
		ctx:      context.Background(),
		repo:     repo,
		events:   events,
		orders:   NewOrderService(repo, ledger, events, testChannels),
		sales:    NewSaleService(repo, ledger, events),
		products: NewProductService(repo, ledger, NewInventoryCache(repo, nil), events),
	}

	admin := &models.Partner{UserID: "admin", Name: "Administrator", PartnerType: models.PartnerTypeAdmin}
	require.NoError(t, repo.CreatePartner(f.ctx, admin))
	f.admin = models.Session{PartnerID: admin.ID, UserID: admin.UserID, Type: models.PartnerTypeAdmin}
	return f
}

func (f *fixture) addPartner(t *testing.T, userID string) models.Session {
	t.Helper()
	p := &models.Partner{UserID: userID, Name: userID, PartnerType: models.PartnerTypePartner}
	require.NoError(t, f.repo.CreatePartner(f.ctx, p))
	return models.Session{PartnerID: p.ID, UserID: p.UserID, Type: models.PartnerTypePartner}
}

func (f *fixture) addProduct(t *testing.T, name, price string, stock int) int64 {
	t.Helper()
	p := &models.Product{
		Name:         name,
		PartnerPrice: decimal.RequireFromString(price),
		MRP:          decimal.RequireFromString(price).Mul(decimal.NewFromInt(2)),
		CurrentStock: stock,
	}
	require.NoError(t, f.repo.CreateProduct(f.ctx, p))
	return p.ID
}

func (f *fixture) product(t *testing.T, id int64) models.Product {
	t.Helper()
	p, err := f.repo.GetProductByID(f.ctx, id)
	require.NoError(t, err)
	return *p
}

func (f *fixture) partnerStock(t *testing.T, partnerID, productID int64) int {
	t.Helper()
	rows, err := f.repo.ListPartnerInventory(f.ctx, partnerID)
	require.NoError(t, err)
	for _, r := range rows {
		if r.ProductID == productID {
			return r.Stock
		}
	}
	return 0
}

// placeOrder creates an order as admin for partner with one line per product
func (f *fixture) placeOrder(t *testing.T, partner models.Session, lines ...OrderLineRequest) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(f.ctx, f.admin, &CreateOrderRequest{
		PartnerID:       partner.PartnerID,
		Items:           lines,
		DeliveryDate:    testDeliveryDate,
		DeliveryChannel: "Courier",
	})
	require.NoError(t, err)
	return order
}

func line(productID int64, qty int) OrderLineRequest {
	return OrderLineRequest{ProductID: productID, Quantity: qty}
}

func counters(p models.Product) [4]int {
	return [4]int{p.CurrentStock, p.PendingOrders, p.PendingUnits, p.InCirculation}
}
