package service

import (
	"context"
	"fmt"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService manages the catalogue and company stock receipts
type ProductService struct {
	repo      store.Repository
	ledger    *Ledger
	cache     *InventoryCache
	publisher EventPublisher
	logger    *zap.Logger
}

func NewProductService(repo store.Repository, ledger *Ledger, cache *InventoryCache, publisher EventPublisher) *ProductService {
	return &ProductService{
		repo:      repo,
		ledger:    ledger,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

type CreateProductRequest struct {
	Name         string          `json:"product_name" validate:"required,max=255"`
	PartnerPrice decimal.Decimal `json:"partner_price"`
	MRP          decimal.Decimal `json:"mrp"`
	InitialStock int             `json:"initial_stock" validate:"gte=0"`
}

type UpdateProductRequest struct {
	Name         string          `json:"product_name" validate:"required,max=255"`
	PartnerPrice decimal.Decimal `json:"partner_price"`
	MRP          decimal.Decimal `json:"mrp"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (s *ProductService) CreateProduct(ctx context.Context, session models.Session, req *CreateProductRequest) (*models.Product, error) {
	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create products", models.ErrForbidden)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := validatePrices(req.PartnerPrice, req.MRP); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:         req.Name,
		PartnerPrice: req.PartnerPrice,
		MRP:          req.MRP,
		CurrentStock: req.InitialStock,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, classify(err)
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("initial_stock", product.CurrentStock))
	return product, nil
}

// UpdateProduct changes the name and prices. Counters are only ever moved by the ledger.
func (s *ProductService) UpdateProduct(ctx context.Context, session models.Session, productID int64, req *UpdateProductRequest) (*models.Product, error) {
	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can update products", models.ErrForbidden)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := validatePrices(req.PartnerPrice, req.MRP); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:           productID,
		Name:         req.Name,
		PartnerPrice: req.PartnerPrice,
		MRP:          req.MRP,
	}
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, classify(err)
	}
	return product, nil
}

// Restock receives qty units into company stock
func (s *ProductService) Restock(ctx context.Context, session models.Session, productID int64, req *RestockRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Restock")
	defer span.End()

	if !session.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can restock", models.ErrForbidden)
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	err := inTx(ctx, s.repo, func(tx store.Tx) error {
		return s.ledger.Receive(ctx, tx, productID, req.Quantity)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product restocked",
		zap.Int64("product_id", productID),
		zap.Int("quantity", req.Quantity),
		zap.Int("current_stock", product.CurrentStock))

	event := &models.ProductEvent{
		BaseEvent: newBaseEvent(models.EventTypeProductRestocked),
		ProductID: productID,
		Quantity:  req.Quantity,
	}
	pubErr := s.publisher.PublishProductEvent(ctx, event)
	observePublish(event.EventType, pubErr)
	if pubErr != nil {
		s.logger.Error("Failed to publish product event", zap.Int64("product_id", productID), zap.Error(pubErr))
	}
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return s.repo.GetProductByID(ctx, productID)
}

func (s *ProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetProductStock returns the counters, from the snapshot cache when possible
func (s *ProductService) GetProductStock(ctx context.Context, productID int64) (*models.ProductSnapshot, error) {
	return s.cache.Stock(ctx, productID)
}

func validatePrices(partnerPrice, mrp decimal.Decimal) error {
	if err := checkMoney("partner_price", partnerPrice); err != nil {
		return err
	}
	return checkMoney("mrp", mrp)
}
