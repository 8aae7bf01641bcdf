package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"distribution-service/internal/models"
)

// Each adjustment is evaluated by the database in one statement; the WHERE
// guard leaves the row untouched when any counter would go negative.
const (
	QueryAdjustProductCounters = `
		UPDATE products
		SET current_stock = current_stock + $2,
			pending_orders = pending_orders + $3,
			pending_units = pending_units + $4,
			in_circulation = in_circulation + $5,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
			AND current_stock + $2 >= 0
			AND pending_orders + $3 >= 0
			AND pending_units + $4 >= 0
			AND in_circulation + $5 >= 0
		RETURNING ` + productColumns

	QueryLockPartnerStock = `
		SELECT stock FROM partner_inventory
		WHERE partner_id = $1 AND product_id = $2
		FOR UPDATE`

	QueryUpsertPartnerStock = `
		INSERT INTO partner_inventory (partner_id, product_id, stock)
		VALUES ($1, $2, $3)
		ON CONFLICT (partner_id, product_id)
		DO UPDATE SET stock = partner_inventory.stock + EXCLUDED.stock, updated_at = NOW()
		WHERE partner_inventory.stock + EXCLUDED.stock >= 0
		RETURNING stock`
)

func (t *sqlTx) AdjustProductCounters(ctx context.Context, productID int64, d models.CounterDelta) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product, QueryAdjustProductCounters,
		productID, d.CurrentStock, d.PendingOrders, d.PendingUnits, d.InCirculation)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, mapError(err, fmt.Sprintf("adjust product %d", productID))
	}

	var exists bool
	if err := t.tx.GetContext(ctx, &exists, QueryProductExists, productID); err != nil {
		return nil, mapError(err, fmt.Sprintf("product %d", productID))
	}
	if !exists {
		return nil, fmt.Errorf("%w: product %d", models.ErrNotFound, productID)
	}
	return nil, fmt.Errorf("%w: product %d %+v", ErrCounterUnderflow, productID, d)
}

func (t *sqlTx) GetPartnerStockForUpdate(ctx context.Context, partnerID, productID int64) (int, error) {
	var stock int
	err := t.tx.GetContext(ctx, &stock, QueryLockPartnerStock, partnerID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("partner %d stock of product %d", partnerID, productID))
	}
	return stock, nil
}

func (t *sqlTx) AddPartnerStock(ctx context.Context, partnerID, productID int64, qty int) (int, error) {
	var stock int
	err := t.tx.GetContext(ctx, &stock, QueryUpsertPartnerStock, partnerID, productID, qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: partner %d stock of product %d by %d", ErrCounterUnderflow, partnerID, productID, qty)
	}
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("partner %d stock of product %d", partnerID, productID))
	}
	return stock, nil
}
