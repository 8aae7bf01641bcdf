package store

import (
	"context"
	"fmt"

	"distribution-service/internal/models"
)

const saleColumns = `id, sale_id, partner_id, customer_name, customer_phone, customer_address, total_amount, idempotency_key, created_at`

const (
	QueryGetSaleBySaleID = `SELECT ` + saleColumns + ` FROM sales WHERE sale_id = $1`

	QueryGetSaleByIdempotencyKey = `SELECT ` + saleColumns + ` FROM sales WHERE idempotency_key = $1`

	QueryListSales = `SELECT ` + saleColumns + ` FROM sales ORDER BY created_at DESC, id DESC`

	QueryListPartnerSales = `SELECT ` + saleColumns + ` FROM sales WHERE partner_id = $1 ORDER BY created_at DESC, id DESC`

	QueryGetSaleItems = `SELECT id, sale_id, product_id, quantity, price, total FROM sale_items WHERE sale_id = $1 ORDER BY id`

	QueryInsertSale = `
		INSERT INTO sales (sale_id, partner_id, customer_name, customer_phone, customer_address, total_amount, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	QueryInsertSaleItem = `
		INSERT INTO sale_items (sale_id, product_id, quantity, price, total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
)

func (s *Store) GetSaleBySaleID(ctx context.Context, saleID string) (*models.Sale, error) {
	var sale models.Sale
	if err := s.db.GetContext(ctx, &sale, QueryGetSaleBySaleID, saleID); err != nil {
		return nil, mapError(err, fmt.Sprintf("sale %s", saleID))
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey returns nil, nil when no sale carries key
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, QueryGetSaleByIdempotencyKey, key)
	if err != nil {
		err = mapError(err, "sale by idempotency key")
		if models.Kind(err) == models.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// ListSales lists every sale when partnerID is 0
func (s *Store) ListSales(ctx context.Context, partnerID int64) ([]models.Sale, error) {
	sales := []models.Sale{}
	var err error
	if partnerID == 0 {
		err = s.db.SelectContext(ctx, &sales, QueryListSales)
	} else {
		err = s.db.SelectContext(ctx, &sales, QueryListPartnerSales, partnerID)
	}
	if err != nil {
		return nil, mapError(err, "list sales")
	}
	return sales, nil
}

func (s *Store) GetSaleItems(ctx context.Context, salePK int64) ([]models.SaleItem, error) {
	items := []models.SaleItem{}
	if err := s.db.SelectContext(ctx, &items, QueryGetSaleItems, salePK); err != nil {
		return nil, mapError(err, fmt.Sprintf("sale %d items", salePK))
	}
	return items, nil
}

func (t *sqlTx) InsertSale(ctx context.Context, sale *models.Sale) error {
	err := t.tx.GetContext(ctx, &sale.ID, QueryInsertSale,
		sale.SaleID, sale.PartnerID, sale.CustomerName, sale.CustomerPhone,
		sale.CustomerAddress, sale.TotalAmount, nullable(sale.IdempotencyKey), sale.CreatedAt)
	return mapError(err, fmt.Sprintf("insert sale %s", sale.SaleID))
}

func (t *sqlTx) InsertSaleItem(ctx context.Context, item *models.SaleItem) error {
	err := t.tx.GetContext(ctx, &item.ID, QueryInsertSaleItem,
		item.SalePK, item.ProductID, item.Quantity, item.UnitPrice, item.Total)
	return mapError(err, fmt.Sprintf("insert sale item for product %d", item.ProductID))
}
