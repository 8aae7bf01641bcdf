package service

import (
	"context"
	"errors"
	"testing"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyRepo hands out transactions whose partner lookup fails with partnerErr
type faultyRepo struct {
	*memstore.Store
	partnerErr error
}

func (r *faultyRepo) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, partnerErr: r.partnerErr})
	})
}

type faultyTx struct {
	store.Tx
	partnerErr error
}

func (t *faultyTx) GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error) {
	return nil, t.partnerErr
}

func TestPartnerLookupFaultIsRetryable(t *testing.T) {
	f := newFixture(t)
	partner := f.addPartner(t, "acme1")
	soap := f.addProduct(t, "Soap", "10.00", 7)

	repo := &faultyRepo{Store: f.repo, partnerErr: errors.New("driver: bad connection")}
	ledger := NewLedger()
	orders := NewOrderService(repo, ledger, f.events, testChannels)
	sales := NewSaleService(repo, ledger, f.events)

	_, err := orders.CreateOrder(f.ctx, f.admin, &CreateOrderRequest{
		PartnerID:       partner.PartnerID,
		Items:           []OrderLineRequest{line(soap, 2)},
		DeliveryDate:    testDeliveryDate,
		DeliveryChannel: "Pickup",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrTransactionFailure, models.Kind(err))

	_, err = sales.RecordSale(f.ctx, f.admin, &RecordSaleRequest{
		PartnerID:     partner.PartnerID,
		Items:         []SaleLineRequest{{ProductID: soap, Quantity: 1}},
		CustomerName:  "Ravi",
		CustomerPhone: "9123456780",
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrTransactionFailure, models.Kind(err))

	assert.Equal(t, [4]int{7, 0, 0, 0}, counters(f.product(t, soap)))
}

func TestUnknownPartnerIsValidationError(t *testing.T) {
	f := newFixture(t)
	soap := f.addProduct(t, "Soap", "10.00", 7)

	_, err := f.orders.CreateOrder(f.ctx, f.admin, &CreateOrderRequest{
		PartnerID:       4242,
		Items:           []OrderLineRequest{line(soap, 2)},
		DeliveryDate:    testDeliveryDate,
		DeliveryChannel: "Pickup",
	})
	assert.Equal(t, models.ErrValidation, models.Kind(err))

	_, err = f.sales.RecordSale(f.ctx, f.admin, &RecordSaleRequest{
		PartnerID:     4242,
		Items:         []SaleLineRequest{{ProductID: soap, Quantity: 1}},
		CustomerName:  "Ravi",
		CustomerPhone: "9123456780",
	})
	assert.Equal(t, models.ErrValidation, models.Kind(err))
}
