package eventbridge

import (
	"context"

	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
)

// PublishingStore decorates an EventStore so every successfully appended
// event is also forwarded onto the bus. The durable log remains the source
// of truth: a publish failure is logged, never surfaced to the appender.
type PublishingStore struct {
	ports.EventStore

	publisher *Publisher
	logger    *zap.Logger
}

// NewPublishingStore wraps the given store with bus forwarding.
func NewPublishingStore(inner ports.EventStore, publisher *Publisher, logger *zap.Logger) *PublishingStore {
	return &PublishingStore{
		EventStore: inner,
		publisher:  publisher,
		logger:     logger,
	}
}

// Append persists the record and then forwards it to the bus.
func (s *PublishingStore) Append(ctx context.Context, event *events.Event) error {
	if err := s.EventStore.Append(ctx, event); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("appended event not forwarded to bus",
			zap.String("eventId", event.EventID),
			zap.String("eventType", string(event.EventType)),
			zap.Error(err),
		)
	}
	return nil
}
