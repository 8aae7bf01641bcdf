package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"distribution-service/internal/models"
	"distribution-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics names where each event family is published
type Topics struct {
	Order   string
	Sale    string
	Product string
}

// EventPublisher publishes domain events to Kafka
type EventPublisher struct {
	producer *Producer
	topics   Topics
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer, topics Topics) *EventPublisher {
	return &EventPublisher{producer: producer, topics: topics}
}

func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "EventPublisher.PublishOrderEvent")
	defer span.End()
	return ep.producer.PublishEvent(ctx, ep.topics.Order, event.OrderID, event)
}

func (ep *EventPublisher) PublishSaleEvent(ctx context.Context, event *models.SaleEvent) error {
	ctx, span := util.StartSpan(ctx, "EventPublisher.PublishSaleEvent")
	defer span.End()
	return ep.producer.PublishEvent(ctx, ep.topics.Sale, event.SaleID, event)
}

func (ep *EventPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	ctx, span := util.StartSpan(ctx, "EventPublisher.PublishProductEvent")
	defer span.End()
	return ep.producer.PublishEvent(ctx, ep.topics.Product, strconv.FormatInt(event.ProductID, 10), event)
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, *models.OrderEvent) error     { return nil }
func (NopPublisher) PublishSaleEvent(context.Context, *models.SaleEvent) error       { return nil }
func (NopPublisher) PublishProductEvent(context.Context, *models.ProductEvent) error { return nil }

// ErrMalformedEvent marks a message that no retry can handle
var ErrMalformedEvent = errors.New("malformed event")

// StockChangeFunc receives the products an event touched
type StockChangeFunc func(ctx context.Context, event models.BaseEvent, productIDs []int64) error

// EventHandler decodes incoming events and reports which products changed
type EventHandler struct {
	onStockChange StockChangeFunc
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnStockChange registers the callback for every event that moves counters
func (eh *EventHandler) OnStockChange(handler StockChangeFunc) {
	eh.onStockChange = handler
}

// HandleMessage routes messages to the registered callback
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedEvent, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	var productIDs []int64
	switch baseEvent.EventType {
	case models.EventTypeOrderCreated,
		models.EventTypeOrderUpdated,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderCancelled:
		var event models.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: %s event: %v", ErrMalformedEvent, baseEvent.EventType, err)
		}
		productIDs = models.ProductIDs(event.Items)

	case models.EventTypeSaleRecorded:
		var event models.SaleEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: %s event: %v", ErrMalformedEvent, baseEvent.EventType, err)
		}
		productIDs = models.ProductIDs(event.Items)

	case models.EventTypeProductRestocked:
		var event models.ProductEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: %s event: %v", ErrMalformedEvent, baseEvent.EventType, err)
		}
		productIDs = []int64{event.ProductID}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
		return nil
	}

	if eh.onStockChange == nil || len(productIDs) == 0 {
		return nil
	}
	return eh.onStockChange(ctx, baseEvent, productIDs)
}
