package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"distribution-service/internal/models"
	"distribution-service/internal/store/memstore"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

type lifecycleContext struct {
	ctx      context.Context
	repo     *memstore.Store
	orders   *OrderService
	sales    *SaleService
	admin    models.Session
	partners map[string]models.Session
	products map[string]int64
	order    *models.Order
	err      error
}

var errorsByName = map[string]error{
	"validation":         models.ErrValidation,
	"not found":          models.ErrNotFound,
	"invalid state":      models.ErrInvalidState,
	"insufficient stock": models.ErrInsufficientStock,
	"forbidden":          models.ErrForbidden,
}

func (c *lifecycleContext) reset() error {
	c.ctx = context.Background()
	c.repo = memstore.New()
	ledger := NewLedger()
	events := &recordingPublisher{}
	c.orders = NewOrderService(c.repo, ledger, events, testChannels)
	c.sales = NewSaleService(c.repo, ledger, events)
	c.partners = make(map[string]models.Session)
	c.products = make(map[string]int64)
	c.order = nil
	c.err = nil

	admin := &models.Partner{UserID: "admin", Name: "Administrator", PartnerType: models.PartnerTypeAdmin}
	if err := c.repo.CreatePartner(c.ctx, admin); err != nil {
		return err
	}
	c.admin = models.Session{PartnerID: admin.ID, UserID: admin.UserID, Type: models.PartnerTypeAdmin}
	return nil
}

func (c *lifecycleContext) aPartner(userID string) error {
	p := &models.Partner{UserID: userID, Name: userID, PartnerType: models.PartnerTypePartner}
	if err := c.repo.CreatePartner(c.ctx, p); err != nil {
		return err
	}
	c.partners[userID] = models.Session{PartnerID: p.ID, UserID: userID, Type: models.PartnerTypePartner}
	return nil
}

func (c *lifecycleContext) aProductPricedWithStock(name, price string, stock int) error {
	partnerPrice, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	p := &models.Product{Name: name, PartnerPrice: partnerPrice, MRP: partnerPrice, CurrentStock: stock}
	if err := c.repo.CreateProduct(c.ctx, p); err != nil {
		return err
	}
	c.products[name] = p.ID
	return nil
}

func (c *lifecycleContext) theAdminOrders(qty int, product, partner string) error {
	c.order, c.err = c.orders.CreateOrder(c.ctx, c.admin, &CreateOrderRequest{
		PartnerID:       c.partners[partner].PartnerID,
		Items:           []OrderLineRequest{{ProductID: c.products[product], Quantity: qty}},
		DeliveryDate:    testDeliveryDate,
		DeliveryChannel: "Courier",
	})
	return c.err
}

func (c *lifecycleContext) theAdminMovesTheOrderTo(status string) error {
	if c.order == nil {
		return errors.New("no order placed")
	}
	_, c.err = c.orders.AdvanceStatus(c.ctx, c.admin, c.order.OrderID, status)
	return nil
}

func (c *lifecycleContext) theAdminChangesTheQuantity(product string, qty int) error {
	if c.order == nil {
		return errors.New("no order placed")
	}
	_, c.err = c.orders.EditOrder(c.ctx, c.admin, c.order.OrderID, &EditOrderRequest{
		Items: []EditLineRequest{{ProductID: c.products[product], Quantity: qty}},
	})
	return c.err
}

func (c *lifecycleContext) partnerCancelsTheOrder(partner string) error {
	if c.order == nil {
		return errors.New("no order placed")
	}
	_, c.err = c.orders.CancelOrder(c.ctx, c.partners[partner], c.order.OrderID)
	return nil
}

func (c *lifecycleContext) partnerSells(partner string, qty int, product, price, phone string) error {
	unitPrice, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	_, c.err = c.sales.RecordSale(c.ctx, c.partners[partner], &RecordSaleRequest{
		Items:         []SaleLineRequest{{ProductID: c.products[product], Quantity: qty, UnitPrice: unitPrice}},
		CustomerName:  "Walk-in customer",
		CustomerPhone: phone,
	})
	return nil
}

func (c *lifecycleContext) productHasCounters(product string, stock, pendingOrders, pendingUnits, circulation int) error {
	p, err := c.repo.GetProductByID(c.ctx, c.products[product])
	if err != nil {
		return err
	}
	got := [4]int{p.CurrentStock, p.PendingOrders, p.PendingUnits, p.InCirculation}
	want := [4]int{stock, pendingOrders, pendingUnits, circulation}
	if got != want {
		return fmt.Errorf("%s counters: want %v, got %v", product, want, got)
	}
	return nil
}

func (c *lifecycleContext) partnerHolds(partner string, qty int, product string) error {
	rows, err := c.repo.ListPartnerInventory(c.ctx, c.partners[partner].PartnerID)
	if err != nil {
		return err
	}
	held := 0
	for _, r := range rows {
		if r.ProductID == c.products[product] {
			held = r.Stock
		}
	}
	if held != qty {
		return fmt.Errorf("%s holds %d %s, want %d", partner, held, product, qty)
	}
	return nil
}

func (c *lifecycleContext) theOrderStatusIs(status string) error {
	order, err := c.orders.GetOrder(c.ctx, c.admin, c.order.OrderID)
	if err != nil {
		return err
	}
	if string(order.Status) != status {
		return fmt.Errorf("order status: want %q, got %q", status, order.Status)
	}
	return nil
}

func (c *lifecycleContext) theOrderTotalIs(total string) error {
	want, err := decimal.NewFromString(total)
	if err != nil {
		return err
	}
	order, err := c.orders.GetOrder(c.ctx, c.admin, c.order.OrderID)
	if err != nil {
		return err
	}
	if !order.TotalAmount.Equal(want) {
		return fmt.Errorf("order total: want %s, got %s", want, order.TotalAmount)
	}
	return nil
}

func (c *lifecycleContext) theOperationFailsWith(kind string) error {
	want, ok := errorsByName[kind]
	if !ok {
		return fmt.Errorf("unknown error kind %q", kind)
	}
	if !errors.Is(c.err, want) {
		return fmt.Errorf("expected %s error, got %v", kind, c.err)
	}
	return nil
}

func InitializeLifecycleScenario(ctx *godog.ScenarioContext) {
	tc := &lifecycleContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})

	// Given steps
	ctx.Step(`^a partner "([^"]*)"$`, tc.aPartner)
	ctx.Step(`^a product "([^"]*)" priced ([\d.]+) with (\d+) units in stock$`, tc.aProductPricedWithStock)

	// When steps
	ctx.Step(`^the admin orders (\d+) "([^"]*)" for "([^"]*)"$`, tc.theAdminOrders)
	ctx.Step(`^the admin moves the order to "([^"]*)"$`, tc.theAdminMovesTheOrderTo)
	ctx.Step(`^the admin changes the "([^"]*)" quantity to (\d+)$`, tc.theAdminChangesTheQuantity)
	ctx.Step(`^"([^"]*)" cancels the order$`, tc.partnerCancelsTheOrder)
	ctx.Step(`^"([^"]*)" sells (\d+) "([^"]*)" at ([\d.]+) to "([^"]*)"$`, tc.partnerSells)

	// Then steps
	ctx.Step(`^"([^"]*)" has stock (\d+), pending orders (\d+), pending units (\d+) and circulation (\d+)$`, tc.productHasCounters)
	ctx.Step(`^"([^"]*)" holds (\d+) "([^"]*)"$`, tc.partnerHolds)
	ctx.Step(`^the order status is "([^"]*)"$`, tc.theOrderStatusIs)
	ctx.Step(`^the order total is ([\d.]+)$`, tc.theOrderTotalIs)
	ctx.Step(`^the operation fails with "([^"]*)"$`, tc.theOperationFailsWith)
}

func TestLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/order_lifecycle.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
