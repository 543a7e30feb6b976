package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"thirteen-shop/internal/models"
	"thirteen-shop/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes shop events keyed by profile
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func profileKey(profileID string) string {
	return fmt.Sprintf("profile-%s", profileID)
}

// PublishPurchaseCompleted publishes PurchaseCompleted event
func (ep *EventPublisher) PublishPurchaseCompleted(ctx context.Context, event *models.PurchaseCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, profileKey(event.ProfileID), event)
}

// PublishPurchaseFailed publishes PurchaseFailed event
func (ep *EventPublisher) PublishPurchaseFailed(ctx context.Context, event *models.PurchaseFailedEvent) error {
	return ep.producer.PublishEvent(ctx, profileKey(event.ProfileID), event)
}

// PublishPurchasePartialFailure publishes PurchasePartialFailure event
func (ep *EventPublisher) PublishPurchasePartialFailure(ctx context.Context, event *models.PurchasePartialFailureEvent) error {
	return ep.producer.PublishEvent(ctx, profileKey(event.ProfileID), event)
}

// PublishAdRewardClaimed publishes AdRewardClaimed event
func (ep *EventPublisher) PublishAdRewardClaimed(ctx context.Context, event *models.AdRewardClaimedEvent) error {
	return ep.producer.PublishEvent(ctx, profileKey(event.ProfileID), event)
}

// PublishBoosterActivated publishes BoosterActivated event
func (ep *EventPublisher) PublishBoosterActivated(ctx context.Context, event *models.BoosterActivatedEvent) error {
	return ep.producer.PublishEvent(ctx, profileKey(event.ProfileID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onProfileChanged func(context.Context, *models.ProfileChangedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Component("events")}
}

// OnProfileChanged registers a handler for ProfileChanged events
func (eh *EventHandler) OnProfileChanged(handler func(context.Context, *models.ProfileChangedEvent) error) {
	eh.onProfileChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeProfileChanged:
		if eh.onProfileChanged != nil {
			var event models.ProfileChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProfileChanged event: %w", err)
			}
			return eh.onProfileChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
