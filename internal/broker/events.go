package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"pricing-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	rules *Producer
	sync  *Producer
}

// NewEventPublisher creates a new event publisher over the rule-events
// and sync-events topics
func NewEventPublisher(rules, sync *Producer) *EventPublisher {
	return &EventPublisher{rules: rules, sync: sync}
}

// PublishRulesChanged publishes a RulesChanged event so all instances
// invalidate the affected cache scope
func (ep *EventPublisher) PublishRulesChanged(ctx context.Context, event *models.RulesChangedEvent) error {
	key := fmt.Sprintf("rules-%s-%s", event.ScopeKind, event.ScopeKey)
	return ep.rules.PublishEvent(ctx, key, event)
}

// PublishSyncRequested publishes a catalog sync request
func (ep *EventPublisher) PublishSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	key := fmt.Sprintf("sync-%s", event.JobID)
	return ep.sync.PublishEvent(ctx, key, event)
}

// PublishSyncCompleted publishes a sync job terminal status
func (ep *EventPublisher) PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error {
	key := fmt.Sprintf("sync-%s", event.JobID)
	return ep.sync.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onRulesChanged  func(context.Context, *models.RulesChangedEvent) error
	onSyncRequested func(context.Context, *models.SyncRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnRulesChanged registers a handler for RulesChanged events
func (eh *EventHandler) OnRulesChanged(handler func(context.Context, *models.RulesChangedEvent) error) {
	eh.onRulesChanged = handler
}

// OnSyncRequested registers a handler for SyncRequested events
func (eh *EventHandler) OnSyncRequested(handler func(context.Context, *models.SyncRequestedEvent) error) {
	eh.onSyncRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeRulesChanged:
		if eh.onRulesChanged != nil {
			var event models.RulesChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal RulesChanged event: %w", err)
			}
			return eh.onRulesChanged(ctx, &event)
		}

	case models.EventTypeSyncRequested:
		if eh.onSyncRequested != nil {
			var event models.SyncRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SyncRequested event: %w", err)
			}
			return eh.onSyncRequested(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
