package service

import (
	"testing"

	"distribution-service/internal/models"
	"distribution-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerOperations(t *testing.T) {
	f := newFixture(t)
	partner := f.addPartner(t, "acme1")
	soap := f.addProduct(t, "Soap", "10.00", 5)
	ledger := NewLedger()

	steps := []struct {
		name string
		run  func(tx store.Tx) error
		want [4]int
	}{
		{"reserve", func(tx store.Tx) error { return ledger.Reserve(f.ctx, tx, soap, 3) }, [4]int{5, 1, 3, 0}},
		{"grow reservation", func(tx store.Tx) error { return ledger.AdjustReservation(f.ctx, tx, soap, 2) }, [4]int{5, 1, 5, 0}},
		{"shrink reservation", func(tx store.Tx) error { return ledger.AdjustReservation(f.ctx, tx, soap, -1) }, [4]int{5, 1, 4, 0}},
		{"unchanged reservation", func(tx store.Tx) error { return ledger.AdjustReservation(f.ctx, tx, soap, 0) }, [4]int{5, 1, 4, 0}},
		{"receive", func(tx store.Tx) error { return ledger.Receive(f.ctx, tx, soap, 5) }, [4]int{10, 1, 4, 0}},
		{"ship", func(tx store.Tx) error { return ledger.ShipToPartner(f.ctx, tx, partner.PartnerID, soap, 4) }, [4]int{6, 0, 0, 4}},
		{"consume", func(tx store.Tx) error { return ledger.ConsumeFromPartner(f.ctx, tx, partner.PartnerID, soap, 3) }, [4]int{6, 0, 0, 1}},
	}

	for _, step := range steps {
		require.NoError(t, inTx(f.ctx, f.repo, step.run), step.name)
		assert.Equal(t, step.want, counters(f.product(t, soap)), step.name)
	}
	assert.Equal(t, 1, f.partnerStock(t, partner.PartnerID, soap))
}

func TestLedgerRejections(t *testing.T) {
	f := newFixture(t)
	partner := f.addPartner(t, "acme1")
	soap := f.addProduct(t, "Soap", "10.00", 2)
	ledger := NewLedger()

	require.NoError(t, inTx(f.ctx, f.repo, func(tx store.Tx) error {
		return ledger.Reserve(f.ctx, tx, soap, 3)
	}))

	tests := []struct {
		name    string
		run     func(tx store.Tx) error
		wantErr error
	}{
		{"release more than reserved", func(tx store.Tx) error { return ledger.Release(f.ctx, tx, soap, 4) }, models.ErrInvariantViolation},
		{"shrink below zero", func(tx store.Tx) error { return ledger.AdjustReservation(f.ctx, tx, soap, -4) }, models.ErrInvariantViolation},
		{"ship beyond stock", func(tx store.Tx) error { return ledger.ShipToPartner(f.ctx, tx, partner.PartnerID, soap, 3) }, models.ErrInsufficientStock},
		{"consume without partner stock", func(tx store.Tx) error { return ledger.ConsumeFromPartner(f.ctx, tx, partner.PartnerID, soap, 1) }, models.ErrInsufficientStock},
		{"zero quantity", func(tx store.Tx) error { return ledger.Reserve(f.ctx, tx, soap, 0) }, models.ErrValidation},
		{"negative receive", func(tx store.Tx) error { return ledger.Receive(f.ctx, tx, soap, -1) }, models.ErrValidation},
		{"unknown product", func(tx store.Tx) error { return ledger.Reserve(f.ctx, tx, 9999, 1) }, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inTx(f.ctx, f.repo, tt.run)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, [4]int{2, 1, 3, 0}, counters(f.product(t, soap)))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(store.ErrCounterUnderflow), models.ErrInvariantViolation)
	assert.ErrorIs(t, classify(assert.AnError), models.ErrTransactionFailure)
	assert.ErrorIs(t, classify(assert.AnError), assert.AnError)
	assert.Equal(t, models.ErrNotFound, models.Kind(classify(models.ErrNotFound)))
}
