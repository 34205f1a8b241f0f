// Package eventbridge forwards durable events onto an AWS EventBridge bus
// for cross-service consumers (search indexing, notifications). Publishing
// is a downstream concern: the durable log remains the source of truth
// whether or not a publish succeeds.
package eventbridge

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"storyweave-backend/domain/events"
	apperrors "storyweave-backend/pkg/errors"
)

// Source identifies this service on the bus.
const Source = "storyweave.events"

// putEventsBatchSize is the EventBridge limit per PutEvents call.
const putEventsBatchSize = 10

// Client is the subset of the EventBridge API the publisher uses.
type Client interface {
	PutEvents(ctx context.Context, input *awseventbridge.PutEventsInput, optFns ...func(*awseventbridge.Options)) (*awseventbridge.PutEventsOutput, error)
}

// Publisher sends durable events to EventBridge.
type Publisher struct {
	client       Client
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates a publisher for the named bus.
func NewPublisher(client Client, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// Publish sends a single event.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	return p.PublishBatch(ctx, []*events.Event{event})
}

// PublishBatch sends events in chunks of the EventBridge batch limit.
func (p *Publisher) PublishBatch(ctx context.Context, batch []*events.Event) error {
	if len(batch) == 0 {
		return nil
	}

	for i := 0; i < len(batch); i += putEventsBatchSize {
		end := i + putEventsBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		if err := p.putEvents(ctx, batch[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) putEvents(ctx context.Context, batch []*events.Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, ev := range batch {
		detail, err := json.Marshal(ev)
		if err != nil {
			return apperrors.NewStorageError("publish", err)
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(string(ev.EventType)),
			Detail:       aws.String(string(detail)),
		})
	}

	result, err := p.client.PutEvents(ctx, &awseventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		p.logger.Error("failed to publish events", zap.Int("count", len(entries)), zap.Error(err))
		return apperrors.NewStorageError("publish", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Warn("event publish entry failed",
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return apperrors.NewStorageError("publish", nil).
			WithDetails(map[string]any{"failed_entries": result.FailedEntryCount})
	}

	return nil
}
