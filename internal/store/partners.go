package store

import (
	"context"
	"fmt"

	"distribution-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const partnerColumns = `id, userid, password_hash, name, email, phone, address, partner_type, created_at`

const (
	QueryGetPartnerByID = `SELECT ` + partnerColumns + ` FROM partners WHERE id = $1`

	QueryGetPartnerByUserID = `SELECT ` + partnerColumns + ` FROM partners WHERE userid = $1`

	QueryListPartners = `SELECT ` + partnerColumns + ` FROM partners ORDER BY name`

	QueryInsertPartner = `
		INSERT INTO partners (userid, password_hash, name, email, phone, address, partner_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	QueryListPartnerInventory = `
		SELECT pi.product_id, p.product_name, p.mrp, pi.stock
		FROM partner_inventory pi
		JOIN products p ON p.id = pi.product_id
		WHERE pi.partner_id = $1 AND pi.stock > 0
		ORDER BY p.product_name`
)

func (s *Store) GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error) {
	return getPartnerByID(ctx, s.db, id)
}

func (s *Store) GetPartnerByUserID(ctx context.Context, userID string) (*models.Partner, error) {
	var partner models.Partner
	if err := s.db.GetContext(ctx, &partner, QueryGetPartnerByUserID, userID); err != nil {
		return nil, mapError(err, fmt.Sprintf("partner %q", userID))
	}
	return &partner, nil
}

func (s *Store) ListPartners(ctx context.Context) ([]models.Partner, error) {
	partners := []models.Partner{}
	if err := s.db.SelectContext(ctx, &partners, QueryListPartners); err != nil {
		return nil, mapError(err, "list partners")
	}
	return partners, nil
}

// CreatePartner inserts a partner; a taken userid maps to ErrConflict
func (s *Store) CreatePartner(ctx context.Context, partner *models.Partner) error {
	err := s.db.GetContext(ctx, partner, QueryInsertPartner,
		partner.UserID, partner.PasswordHash, partner.Name, partner.Email,
		partner.Phone, partner.Address, partner.PartnerType)
	return mapError(err, fmt.Sprintf("insert partner %q", partner.UserID))
}

// ListPartnerInventory returns the products a partner currently holds
func (s *Store) ListPartnerInventory(ctx context.Context, partnerID int64) ([]models.PartnerStock, error) {
	rows := []models.PartnerStock{}
	if err := s.db.SelectContext(ctx, &rows, QueryListPartnerInventory, partnerID); err != nil {
		return nil, mapError(err, fmt.Sprintf("partner %d inventory", partnerID))
	}
	return rows, nil
}

func (t *sqlTx) GetPartnerByID(ctx context.Context, id int64) (*models.Partner, error) {
	return getPartnerByID(ctx, t.tx, id)
}

func getPartnerByID(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Partner, error) {
	var partner models.Partner
	if err := sqlx.GetContext(ctx, q, &partner, QueryGetPartnerByID, id); err != nil {
		return nil, mapError(err, fmt.Sprintf("partner %d", id))
	}
	return &partner, nil
}
