package service

import (
	"context"
	"errors"
	"fmt"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"go.uber.org/zap"
)

// Ledger applies invariant-preserving mutations to product counters and
// partner stock. It never opens a transaction; callers pass their own.
type Ledger struct {
	logger *zap.Logger
}

// NewLedger creates a new inventory ledger
func NewLedger() *Ledger {
	return &Ledger{logger: util.GetLogger()}
}

// Reserve books qty units of productID for a new open order
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Reserve")
	defer span.End()

	if err := positive("reserve", qty); err != nil {
		return err
	}
	return l.adjust(ctx, "reserve", tx, productID, qty, models.CounterDelta{PendingOrders: 1, PendingUnits: qty})
}

// AdjustReservation moves pendingUnits by diff when an open order is edited
func (l *Ledger) AdjustReservation(ctx context.Context, tx store.Tx, productID int64, diff int) error {
	if diff == 0 {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "Ledger.AdjustReservation")
	defer span.End()

	units := diff
	if units < 0 {
		units = -units
	}
	return l.adjust(ctx, "adjust_reservation", tx, productID, units, models.CounterDelta{PendingUnits: diff})
}

// Release is the inverse of Reserve
func (l *Ledger) Release(ctx context.Context, tx store.Tx, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Release")
	defer span.End()

	if err := positive("release", qty); err != nil {
		return err
	}
	return l.adjust(ctx, "release", tx, productID, qty, models.CounterDelta{PendingOrders: -1, PendingUnits: -qty})
}

// Receive adds qty units to company stock
func (l *Ledger) Receive(ctx context.Context, tx store.Tx, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.Receive")
	defer span.End()

	if err := positive("receive", qty); err != nil {
		return err
	}
	return l.adjust(ctx, "receive", tx, productID, qty, models.CounterDelta{CurrentStock: qty})
}

// ShipToPartner converts a reservation into partner-held stock
func (l *Ledger) ShipToPartner(ctx context.Context, tx store.Tx, partnerID, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.ShipToPartner")
	defer span.End()

	const op = "ship_to_partner"
	if err := positive(op, qty); err != nil {
		return err
	}

	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return l.fail(op, productID, err)
	}
	if product.CurrentStock < qty {
		return l.fail(op, productID, fmt.Errorf("%w: product %d has %d units in stock, %d required",
			models.ErrInsufficientStock, productID, product.CurrentStock, qty))
	}

	delta := models.CounterDelta{CurrentStock: -qty, PendingOrders: -1, PendingUnits: -qty, InCirculation: qty}
	if _, err := tx.AdjustProductCounters(ctx, productID, delta); err != nil {
		return l.fail(op, productID, err)
	}
	if _, err := tx.AddPartnerStock(ctx, partnerID, productID, qty); err != nil {
		return l.fail(op, productID, err)
	}

	l.succeed(op, qty)
	return nil
}

// ConsumeFromPartner debits partner stock and circulation for a sale.
// The balance is checked under lock before anything is written.
func (l *Ledger) ConsumeFromPartner(ctx context.Context, tx store.Tx, partnerID, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "Ledger.ConsumeFromPartner")
	defer span.End()

	const op = "consume_from_partner"
	if err := positive(op, qty); err != nil {
		return err
	}

	stock, err := tx.GetPartnerStockForUpdate(ctx, partnerID, productID)
	if err != nil {
		return l.fail(op, productID, err)
	}
	if stock < qty {
		return l.fail(op, productID, fmt.Errorf("%w: partner %d holds %d units of product %d, %d requested",
			models.ErrInsufficientStock, partnerID, stock, productID, qty))
	}

	if _, err := tx.AddPartnerStock(ctx, partnerID, productID, -qty); err != nil {
		return l.fail(op, productID, err)
	}
	if _, err := tx.AdjustProductCounters(ctx, productID, models.CounterDelta{InCirculation: -qty}); err != nil {
		return l.fail(op, productID, err)
	}

	l.succeed(op, qty)
	return nil
}

func (l *Ledger) adjust(ctx context.Context, op string, tx store.Tx, productID int64, units int, delta models.CounterDelta) error {
	if _, err := tx.AdjustProductCounters(ctx, productID, delta); err != nil {
		return l.fail(op, productID, err)
	}
	l.succeed(op, units)
	return nil
}

func (l *Ledger) succeed(op string, units int) {
	util.LedgerOperationsTotal.WithLabelValues(op, "ok").Inc()
	util.UnitsMovedTotal.WithLabelValues(op).Add(float64(units))
}

func (l *Ledger) fail(op string, productID int64, err error) error {
	if errors.Is(err, store.ErrCounterUnderflow) {
		err = fmt.Errorf("%w: %s: %w", models.ErrInvariantViolation, op, err)
		l.logger.Error("Ledger invariant violated",
			zap.String("op", op),
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	util.LedgerOperationsTotal.WithLabelValues(op, reason(err)).Inc()
	return err
}

func positive(op string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %s quantity must be positive, got %d", models.ErrValidation, op, qty)
	}
	return nil
}
