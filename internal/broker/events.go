package broker

import (
	"context"
	"fmt"

	"registration-service/internal/models"
)

// EventPublisher handles publishing registration domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishRegistrationCompleted publishes a RegistrationCompleted event
func (ep *EventPublisher) PublishRegistrationCompleted(ctx context.Context, event *models.RegistrationCompletedEvent) error {
	key := fmt.Sprintf("registration-%s", event.RegistrationID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishRegistrationRejected publishes a RegistrationRejected event
func (ep *EventPublisher) PublishRegistrationRejected(ctx context.Context, event *models.RegistrationRejectedEvent) error {
	key := fmt.Sprintf("registration-%s", event.RegistrationID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishBulkImportFinished publishes a BulkImportFinished event
func (ep *EventPublisher) PublishBulkImportFinished(ctx context.Context, event *models.BulkImportFinishedEvent) error {
	return ep.producer.PublishEvent(ctx, event.EventID, event)
}
