package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleService records point-of-sale transactions against partner stock
type SaleService struct {
	repo      store.Repository
	ledger    *Ledger
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSaleService creates a new sale service
func NewSaleService(repo store.Repository, ledger *Ledger, publisher EventPublisher) *SaleService {
	return &SaleService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

type SaleLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// RecordSaleRequest represents a sale made by a partner to a customer
type RecordSaleRequest struct {
	PartnerID       int64             `json:"partner_id" validate:"required,gt=0"`
	Items           []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	CustomerName    string            `json:"customer_name" validate:"required,max=255"`
	CustomerPhone   string            `json:"customer_phone" validate:"required,phone10"`
	CustomerAddress string            `json:"customer_address,omitempty" validate:"max=1024"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

// RecordSale debits partner stock and circulation and stores the sale, all or nothing
func (s *SaleService) RecordSale(ctx context.Context, session models.Session, req *RecordSaleRequest) (sale *models.Sale, err error) {
	ctx, span := util.StartSpan(ctx, "SaleService.RecordSale")
	defer span.End()
	defer func() {
		if err != nil {
			util.RecordError(span, err)
			util.SalesFailedTotal.WithLabelValues(reason(err)).Inc()
			s.logger.Warn("Sale rejected", zap.Int64("partner_id", req.PartnerID), zap.Error(err))
		}
	}()

	if req.PartnerID == 0 && !session.IsAdmin() {
		req.PartnerID = session.PartnerID
	}
	if err := s.validate(session, req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.replay(ctx, req); existing != nil || err != nil {
			return existing, err
		}
	}

	now := s.now().UTC()
	saleID, err := NewSaleID(now)
	if err != nil {
		return nil, fmt.Errorf("%w: generate sale id: %v", models.ErrTransactionFailure, err)
	}

	lines := append([]SaleLineRequest(nil), req.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	items := make([]models.SaleItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	sale = &models.Sale{
		SaleID:          saleID,
		PartnerID:       req.PartnerID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		TotalAmount:     saleTotal(items),
		CreatedAt:       now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		sale.IdempotencyKey = &key
	}

	err = inTx(ctx, s.repo, func(tx store.Tx) error {
		partner, err := tx.GetPartnerByID(ctx, req.PartnerID)
		if models.Kind(err) == models.ErrNotFound {
			return fmt.Errorf("%w: unknown partner %d", models.ErrValidation, req.PartnerID)
		}
		if err != nil {
			return err
		}
		if partner.PartnerType != models.PartnerTypePartner {
			return fmt.Errorf("%w: %s is not a partner account", models.ErrValidation, partner.UserID)
		}

		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}
		products, err := tx.GetProductsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(products) != len(ids) {
			return fmt.Errorf("%w: sale references an unknown product", models.ErrValidation)
		}

		for _, item := range items {
			if err := s.ledger.ConsumeFromPartner(ctx, tx, req.PartnerID, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for i := range items {
			items[i].SalePK = sale.ID
			if err := tx.InsertSaleItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		sale.Items = items
		return nil
	})
	if err != nil {
		if models.Kind(err) == models.ErrConflict && req.IdempotencyKey != "" {
			if existing, replayErr := s.replay(ctx, req); existing != nil {
				return existing, replayErr
			}
		}
		return nil, err
	}

	util.SalesRecordedTotal.Inc()
	s.logger.Info("Sale recorded",
		zap.String("sale_id", sale.SaleID),
		zap.Int64("partner_id", sale.PartnerID),
		zap.String("total_amount", sale.TotalAmount.StringFixed(2)))

	event := &models.SaleEvent{
		BaseEvent:   newBaseEvent(models.EventTypeSaleRecorded),
		SaleID:      sale.SaleID,
		PartnerID:   sale.PartnerID,
		TotalAmount: sale.TotalAmount,
		Items:       make([]models.EventItem, 0, len(items)),
	}
	for _, item := range items {
		event.Items = append(event.Items, models.EventItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	pubErr := s.publisher.PublishSaleEvent(ctx, event)
	observePublish(event.EventType, pubErr)
	if pubErr != nil {
		s.logger.Error("Failed to publish sale event", zap.String("sale_id", sale.SaleID), zap.Error(pubErr))
	}

	return sale, nil
}

// GetSale retrieves a sale with its items
func (s *SaleService) GetSale(ctx context.Context, session models.Session, saleID string) (*models.Sale, error) {
	sale, err := s.repo.GetSaleBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !session.CanActFor(sale.PartnerID) {
		return nil, fmt.Errorf("%w: sale %s", models.ErrNotFound, saleID)
	}
	sale.Items, err = s.repo.GetSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ListSales returns sales newest first. Admins may pass 0 to see every partner.
func (s *SaleService) ListSales(ctx context.Context, session models.Session, partnerID int64) ([]models.Sale, error) {
	if !session.IsAdmin() {
		partnerID = session.PartnerID
	}
	return s.repo.ListSales(ctx, partnerID)
}

func (s *SaleService) validate(session models.Session, req *RecordSaleRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if !session.CanActFor(req.PartnerID) {
		return fmt.Errorf("%w: partners can only record their own sales", models.ErrForbidden)
	}

	seen := make(map[int64]bool, len(req.Items))
	for _, line := range req.Items {
		if seen[line.ProductID] {
			return fmt.Errorf("%w: product %d listed twice", models.ErrValidation, line.ProductID)
		}
		seen[line.ProductID] = true
		if err := checkMoney(fmt.Sprintf("unit_price for product %d", line.ProductID), line.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

func (s *SaleService) replay(ctx context.Context, req *RecordSaleRequest) (*models.Sale, error) {
	existing, err := s.repo.GetSaleByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.PartnerID != req.PartnerID {
		return nil, fmt.Errorf("%w: idempotency key already used for another partner", models.ErrConflict)
	}

	existing.Items, err = s.repo.GetSaleItems(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Duplicate sale request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("sale_id", existing.SaleID))
	return existing, nil
}

func saleTotal(items []models.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}
