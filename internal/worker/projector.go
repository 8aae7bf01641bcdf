package worker

import (
	"context"
	"time"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const processedEventTTL = 24 * time.Hour

// SnapshotRefresher rebuilds cached product snapshots from the store
type SnapshotRefresher interface {
	Refresh(ctx context.Context, productIDs []int64) error
}

// EventDeduper remembers which events were already applied
type EventDeduper interface {
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

// InventoryProjector keeps product snapshots in step with committed
// order, sale and restock events
type InventoryProjector struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	refresher    SnapshotRefresher
	deduper      EventDeduper
	logger       *zap.Logger
}

// NewInventoryProjector creates the projector. deduper may be nil.
func NewInventoryProjector(consumer *broker.Consumer, refresher SnapshotRefresher, deduper EventDeduper) *InventoryProjector {
	p := &InventoryProjector{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		refresher:    refresher,
		deduper:      deduper,
		logger:       util.GetLogger(),
	}
	p.eventHandler.OnStockChange(p.apply)
	return p
}

// Start consumes until ctx is cancelled
func (p *InventoryProjector) Start(ctx context.Context) error {
	p.logger.Info("Starting inventory projector")
	return p.consumer.StartConsuming(ctx, p.Handle)
}

// Stop stops the projector
func (p *InventoryProjector) Stop() error {
	p.logger.Info("Stopping inventory projector")
	return p.consumer.Close()
}

// Handle applies one broker message
func (p *InventoryProjector) Handle(ctx context.Context, msg kafka.Message) error {
	return p.eventHandler.HandleMessage(ctx, msg)
}

func (p *InventoryProjector) apply(ctx context.Context, event models.BaseEvent, productIDs []int64) error {
	ctx, span := util.StartSpan(ctx, "InventoryProjector.apply")
	defer span.End()

	if p.deduper != nil && event.EventID != "" {
		fresh, err := p.deduper.MarkEventProcessed(ctx, event.EventID, processedEventTTL)
		switch {
		case err != nil:
			// refreshing twice is harmless
			p.logger.Warn("Event dedupe unavailable", zap.String("event_id", event.EventID), zap.Error(err))
		case !fresh:
			p.logger.Debug("Skipping duplicate event", zap.String("event_id", event.EventID))
			return nil
		}
	}

	if err := p.refresher.Refresh(ctx, productIDs); err != nil {
		util.RecordError(span, err)
		if p.deduper != nil && event.EventID != "" {
			if ferr := p.deduper.ForgetEvent(ctx, event.EventID); ferr != nil {
				p.logger.Warn("Failed to release event marker", zap.String("event_id", event.EventID), zap.Error(ferr))
			}
		}
		return err
	}

	p.logger.Debug("Snapshots refreshed",
		zap.String("event_type", event.EventType),
		zap.Int64s("product_ids", productIDs))
	return nil
}
