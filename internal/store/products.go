package store

import (
	"context"
	"fmt"

	"distribution-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, product_name, partner_price, mrp, current_stock, pending_orders, pending_units, in_circulation, version, created_at, updated_at`

const (
	QueryGetProduct = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	QueryLockProduct = QueryGetProduct + ` FOR UPDATE`

	QueryListProducts = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	QueryInsertProduct = `
		INSERT INTO products (product_name, partner_price, mrp, current_stock)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + productColumns

	QueryUpdateProduct = `
		UPDATE products
		SET product_name = $1, partner_price = $2, mrp = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4
		RETURNING ` + productColumns

	QueryProductExists = `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`
)

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return getProduct(ctx, s.db, QueryGetProduct, id)
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, QueryListProducts); err != nil {
		return nil, mapError(err, "list products")
	}
	return products, nil
}

// CreateProduct inserts a product; pending counters start at zero
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	err := s.db.GetContext(ctx, product, QueryInsertProduct,
		product.Name, product.PartnerPrice, product.MRP, product.CurrentStock)
	return mapError(err, "insert product")
}

// UpdateProduct changes catalogue fields only; counters move through the ledger
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	err := s.db.GetContext(ctx, product, QueryUpdateProduct,
		product.Name, product.PartnerPrice, product.MRP, product.ID)
	return mapError(err, fmt.Sprintf("product %d", product.ID))
}

// GetProductsByIDs retrieves multiple products by IDs
func (t *sqlTx) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	query = t.tx.Rebind(query)

	products := []models.Product{}
	if err := t.tx.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, mapError(err, "select products")
	}
	return products, nil
}

func (t *sqlTx) GetProductForUpdate(ctx context.Context, id int64) (*models.Product, error) {
	return getProduct(ctx, t.tx, QueryLockProduct, id)
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, query string, id int64) (*models.Product, error) {
	var product models.Product
	if err := sqlx.GetContext(ctx, q, &product, query, id); err != nil {
		return nil, mapError(err, fmt.Sprintf("product %d", id))
	}
	return &product, nil
}
