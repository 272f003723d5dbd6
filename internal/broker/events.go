package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"reservation-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events. Delivery of the
// resulting notifications (Telegram and friends) is an external concern;
// the engine only emits the facts.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishHoldCreated publishes a HoldCreated event
func (ep *EventPublisher) PublishHoldCreated(ctx context.Context, event *models.HoldCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("hold-%s", event.HoldID), event)
}

// PublishHoldExpired publishes a HoldExpired event
func (ep *EventPublisher) PublishHoldExpired(ctx context.Context, event *models.HoldExpiredEvent) error {
	return ep.producer.PublishEvent(ctx, "hold-sweep", event)
}

// PublishHoldCancelled publishes a HoldCancelled event
func (ep *EventPublisher) PublishHoldCancelled(ctx context.Context, event *models.HoldCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("hold-%s", event.HoldID), event)
}

// PublishDealSubmitted publishes a DealSubmitted event
func (ep *EventPublisher) PublishDealSubmitted(ctx context.Context, event *models.DealSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("deal-%s", event.DealID), event)
}

// PublishDealStatusChanged publishes a DealStatusChanged event
func (ep *EventPublisher) PublishDealStatusChanged(ctx context.Context, event *models.DealStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("deal-%s", event.DealID), event)
}

// PublishCommissionCredited publishes a CommissionCredited event
func (ep *EventPublisher) PublishCommissionCredited(ctx context.Context, event *models.CommissionCreditedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("deal-%s", event.DealID), event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onDealSubmitted      func(context.Context, *models.DealSubmittedEvent) error
	onDealStatusChanged  func(context.Context, *models.DealStatusChangedEvent) error
	onCommissionCredited func(context.Context, *models.CommissionCreditedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnDealSubmitted registers a handler for DealSubmitted events
func (eh *EventHandler) OnDealSubmitted(handler func(context.Context, *models.DealSubmittedEvent) error) {
	eh.onDealSubmitted = handler
}

// OnDealStatusChanged registers a handler for DealStatusChanged events
func (eh *EventHandler) OnDealStatusChanged(handler func(context.Context, *models.DealStatusChangedEvent) error) {
	eh.onDealStatusChanged = handler
}

// OnCommissionCredited registers a handler for CommissionCredited events
func (eh *EventHandler) OnCommissionCredited(handler func(context.Context, *models.CommissionCreditedEvent) error) {
	eh.onCommissionCredited = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeDealSubmitted:
		if eh.onDealSubmitted != nil {
			var event models.DealSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DealSubmitted event: %w", err)
			}
			return eh.onDealSubmitted(ctx, &event)
		}

	case models.EventTypeDealStatusChanged:
		if eh.onDealStatusChanged != nil {
			var event models.DealStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DealStatusChanged event: %w", err)
			}
			return eh.onDealStatusChanged(ctx, &event)
		}

	case models.EventTypeCommissionCredited:
		if eh.onCommissionCredited != nil {
			var event models.CommissionCreditedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CommissionCredited event: %w", err)
			}
			return eh.onCommissionCredited(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
