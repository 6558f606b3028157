package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"compliance-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events. Compliance events and
// EDI events go to separate topics so the workers can consume
// independently.
type EventPublisher struct {
	compliance *Producer
	edi        *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(compliance, edi *Producer) *EventPublisher {
	return &EventPublisher{compliance: compliance, edi: edi}
}

// PublishComplianceRecalculated publishes ComplianceRecalculated event
func (ep *EventPublisher) PublishComplianceRecalculated(ctx context.Context, event *models.ComplianceRecalculatedEvent) error {
	key := fmt.Sprintf("listing-%s", event.ListingID)
	return ep.compliance.PublishEvent(ctx, key, event)
}

// PublishCertificateIssued publishes CertificateIssued event
func (ep *EventPublisher) PublishCertificateIssued(ctx context.Context, event *models.CertificateIssuedEvent) error {
	key := fmt.Sprintf("listing-%s", event.ListingID)
	return ep.compliance.PublishEvent(ctx, key, event)
}

// PublishTransactionCreated publishes TransactionCreated event. Keyed by
// listing so one listing's document chain stays ordered per partition.
func (ep *EventPublisher) PublishTransactionCreated(ctx context.Context, event *models.TransactionCreatedEvent) error {
	key := fmt.Sprintf("listing-%s", event.ListingID)
	return ep.edi.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onTransactionCreated     func(context.Context, *models.TransactionCreatedEvent) error
	onComplianceRecalculated func(context.Context, *models.ComplianceRecalculatedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnTransactionCreated registers a handler for TransactionCreated events
func (eh *EventHandler) OnTransactionCreated(handler func(context.Context, *models.TransactionCreatedEvent) error) {
	eh.onTransactionCreated = handler
}

// OnComplianceRecalculated registers a handler for ComplianceRecalculated events
func (eh *EventHandler) OnComplianceRecalculated(handler func(context.Context, *models.ComplianceRecalculatedEvent) error) {
	eh.onComplianceRecalculated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeTransactionCreated:
		if eh.onTransactionCreated != nil {
			var event models.TransactionCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal TransactionCreated event: %w", err)
			}
			return eh.onTransactionCreated(ctx, &event)
		}

	case models.EventTypeComplianceRecalculated:
		if eh.onComplianceRecalculated != nil {
			var event models.ComplianceRecalculatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ComplianceRecalculated event: %w", err)
			}
			return eh.onComplianceRecalculated(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
