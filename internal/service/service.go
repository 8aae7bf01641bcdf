package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/store"
	"distribution-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events once their transaction committed
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error
	PublishProductEvent(ctx context.Context, event *models.ProductEvent) error
}

// SnapshotCache stores product read models; a nil snapshot is a miss
type SnapshotCache interface {
	GetProductSnapshot(ctx context.Context, productID int64) (*models.ProductSnapshot, error)
	SetProductSnapshot(ctx context.Context, snap models.ProductSnapshot) (bool, error)
}

// inTx runs fn in one transaction and classifies whatever escapes it
func inTx(ctx context.Context, repo store.Repository, fn func(tx store.Tx) error) error {
	return classify(repo.WithTx(ctx, fn))
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrCounterUnderflow) && !errors.Is(err, models.ErrInvariantViolation):
		return fmt.Errorf("%w: %w", models.ErrInvariantViolation, err)
	case models.Kind(err) != nil:
		return err
	default:
		return fmt.Errorf("%w: %w", models.ErrTransactionFailure, err)
	}
}

// reason is the metrics label for err
func reason(err error) string {
	switch models.Kind(err) {
	case models.ErrValidation:
		return "validation"
	case models.ErrNotFound:
		return "not_found"
	case models.ErrInvalidState:
		return "invalid_state"
	case models.ErrInsufficientStock:
		return "insufficient_stock"
	case models.ErrInvariantViolation:
		return "invariant_violation"
	case models.ErrConflict:
		return "conflict"
	case models.ErrForbidden, models.ErrUnauthorized:
		return "forbidden"
	default:
		return "transaction_failure"
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// publishOrder never fails the caller: the order is already committed
func publishOrder(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event *models.OrderEvent) {
	err := publisher.PublishOrderEvent(ctx, event)
	observePublish(event.EventType, err)
	if err != nil {
		logger.Error("Failed to publish order event",
			zap.String("event_type", event.EventType),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
}

func observePublish(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}

func eventItemsFromOrder(items []models.OrderItem) []models.EventItem {
	out := make([]models.EventItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.EventItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

func orderEvent(eventType string, order *models.Order, previous models.OrderStatus) *models.OrderEvent {
	return &models.OrderEvent{
		BaseEvent:      newBaseEvent(eventType),
		OrderID:        order.OrderID,
		PartnerID:      order.PartnerID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount,
		Items:          eventItemsFromOrder(order.Items),
	}
}
