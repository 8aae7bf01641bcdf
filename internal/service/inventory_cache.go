package service

import (
	"context"
	"fmt"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"go.uber.org/zap"
)

// InventoryCache serves product counters from the snapshot cache and
// falls back to the store. The store stays the source of truth; a cache
// failure only costs a store read.
type InventoryCache struct {
	repo   store.Reader
	cache  SnapshotCache
	logger *zap.Logger
}

// NewInventoryCache creates a read-through cache. cache may be nil.
func NewInventoryCache(repo store.Reader, cache SnapshotCache) *InventoryCache {
	return &InventoryCache{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Stock returns the product snapshot, filling the cache on a miss
func (ic *InventoryCache) Stock(ctx context.Context, productID int64) (*models.ProductSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "InventoryCache.Stock")
	defer span.End()

	if ic.cache != nil {
		snap, err := ic.cache.GetProductSnapshot(ctx, productID)
		switch {
		case err != nil:
			ic.logger.Warn("Snapshot read failed, falling back to store",
				zap.Int64("product_id", productID),
				zap.Error(err))
		case snap != nil:
			return snap, nil
		}
	}

	product, err := ic.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	snap := models.SnapshotOf(product)
	ic.store(ctx, snap)
	return &snap, nil
}

// Refresh re-reads the given products and overwrites their snapshots
func (ic *InventoryCache) Refresh(ctx context.Context, productIDs []int64) error {
	if ic.cache == nil {
		return nil
	}

	for _, id := range productIDs {
		product, err := ic.repo.GetProductByID(ctx, id)
		if err != nil {
			return fmt.Errorf("refresh product %d: %w", id, err)
		}
		ic.store(ctx, models.SnapshotOf(product))
	}
	return nil
}

// Warm loads every product into the cache
func (ic *InventoryCache) Warm(ctx context.Context) error {
	if ic.cache == nil {
		return nil
	}
	ic.logger.Info("Starting snapshot warm-up")

	products, err := ic.repo.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}
	for i := range products {
		ic.store(ctx, models.SnapshotOf(&products[i]))
	}

	ic.logger.Info("Snapshot warm-up completed", zap.Int("count", len(products)))
	return nil
}

func (ic *InventoryCache) store(ctx context.Context, snap models.ProductSnapshot) {
	if ic.cache == nil {
		return
	}

	applied, err := ic.cache.SetProductSnapshot(ctx, snap)
	switch {
	case err != nil:
		util.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		ic.logger.Warn("Failed to store snapshot",
			zap.Int64("product_id", snap.ProductID),
			zap.Error(err))
	case !applied:
		util.SnapshotRefreshTotal.WithLabelValues("stale").Inc()
	default:
		util.SnapshotRefreshTotal.WithLabelValues("ok").Inc()
	}
}

// LocalProjector is the EventPublisher used when no broker is configured:
// it refreshes affected snapshots in-process instead of publishing.
type LocalProjector struct {
	cache *InventoryCache
}

func NewLocalProjector(cache *InventoryCache) *LocalProjector {
	return &LocalProjector{cache: cache}
}

func (p *LocalProjector) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return p.cache.Refresh(ctx, models.ProductIDs(event.Items))
}

func (p *LocalProjector) PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	return p.cache.Refresh(ctx, models.ProductIDs(event.Items))
}

func (p *LocalProjector) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	return p.cache.Refresh(ctx, []int64{event.ProductID})
}
