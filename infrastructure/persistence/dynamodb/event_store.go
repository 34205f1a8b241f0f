// Package dynamodb implements the EventStore port on a DynamoDB single-table
// layout with global secondary indexes for by-type and recent-activity
// queries.
package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
	apperrors "storyweave-backend/pkg/errors"
)

// activityPartition is the fixed GSI3 partition key under which every event
// is indexed by timestamp, supporting the recent-activity query.
const activityPartition = "EVENT"

// timeLayout is a fixed-width RFC3339 variant: fractional seconds are always
// padded to nine digits so the sort keys built from it order lexically the
// same as chronologically. RFC3339Nano trims trailing zeros, which would sort
// a whole-second timestamp after fractional ones in the same second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EventRecord is the DynamoDB representation of a durable event.
//
//	PK:     EVENTS#<aggregate_type>#<aggregate_id>
//	SK:     EVENT#<timestamp>#<event_id>
//	GSI2:   EVENTTYPE#<event_type> / EVENT#<timestamp>
//	GSI3:   EVENT / EVENT#<timestamp>
type EventRecord struct {
	PK            string         `dynamodbav:"PK"`
	SK            string         `dynamodbav:"SK"`
	EventID       string         `dynamodbav:"EventID"`
	EventType     string         `dynamodbav:"EventType"`
	AggregateID   string         `dynamodbav:"AggregateID"`
	AggregateType string         `dynamodbav:"AggregateType"`
	Payload       map[string]any `dynamodbav:"Payload"`
	UserID        string         `dynamodbav:"UserID,omitempty"`
	SessionID     string         `dynamodbav:"SessionID,omitempty"`
	Timestamp     string         `dynamodbav:"Timestamp"`

	GSI2PK string `dynamodbav:"GSI2PK"`
	GSI2SK string `dynamodbav:"GSI2SK"`
	GSI3PK string `dynamodbav:"GSI3PK"`
	GSI3SK string `dynamodbav:"GSI3SK"`
}

// EventStore is a DynamoDB-backed durable log.
type EventStore struct {
	client         *awsdynamodb.Client
	tableName      string
	eventTypeIndex string
	activityIndex  string
	logger         *zap.Logger
}

// NewEventStore creates a store over the given table. eventTypeIndex and
// activityIndex name the GSIs for by-type and recent-activity queries.
func NewEventStore(client *awsdynamodb.Client, tableName, eventTypeIndex, activityIndex string, logger *zap.Logger) *EventStore {
	return &EventStore{
		client:         client,
		tableName:      tableName,
		eventTypeIndex: eventTypeIndex,
		activityIndex:  activityIndex,
		logger:         logger,
	}
}

// Append persists the record. Failures are not retried here.
func (s *EventStore) Append(ctx context.Context, event *events.Event) error {
	item, err := attributevalue.MarshalMap(eventToRecord(event))
	if err != nil {
		return apperrors.NewStorageError("append", err)
	}

	_, err = s.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.Error("failed to append event",
			zap.String("eventId", event.EventID),
			zap.Error(err),
		)
		return apperrors.NewStorageError("append", err)
	}
	return nil
}

// GetEvents returns matching records newest-first. The access path is chosen
// from the filter: aggregate queries hit the base table, by-type queries the
// event-type GSI, everything else the activity GSI; remaining filters apply
// as filter expressions.
func (s *EventStore) GetEvents(ctx context.Context, filter ports.EventFilter) ([]*events.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}

	input := &awsdynamodb.QueryInput{
		TableName:        aws.String(s.tableName),
		ScanIndexForward: aws.Bool(false),
	}

	var keyCond expression.KeyConditionBuilder
	var filters []expression.ConditionBuilder

	switch {
	case filter.AggregateID != "" && filter.AggregateType != "":
		keyCond = expression.Key("PK").Equal(expression.Value(aggregateKey(filter.AggregateType, filter.AggregateID)))
		if filter.EventType != "" {
			filters = append(filters, expression.Name("EventType").Equal(expression.Value(string(filter.EventType))))
		}
	case filter.EventType != "":
		input.IndexName = aws.String(s.eventTypeIndex)
		keyCond = expression.Key("GSI2PK").Equal(expression.Value("EVENTTYPE#" + string(filter.EventType)))
		if filter.AggregateID != "" {
			filters = append(filters, expression.Name("AggregateID").Equal(expression.Value(filter.AggregateID)))
		}
		if filter.AggregateType != "" {
			filters = append(filters, expression.Name("AggregateType").Equal(expression.Value(filter.AggregateType)))
		}
	default:
		input.IndexName = aws.String(s.activityIndex)
		keyCond = expression.Key("GSI3PK").Equal(expression.Value(activityPartition))
		if filter.AggregateID != "" {
			filters = append(filters, expression.Name("AggregateID").Equal(expression.Value(filter.AggregateID)))
		}
		if filter.AggregateType != "" {
			filters = append(filters, expression.Name("AggregateType").Equal(expression.Value(filter.AggregateType)))
		}
	}

	if !filter.Since.IsZero() {
		filters = append(filters, expression.Name("Timestamp").GreaterThanEqual(
			expression.Value(filter.Since.UTC().Format(timeLayout))))
	}

	builder := expression.NewBuilder().WithKeyCondition(keyCond)
	if len(filters) > 0 {
		cond := filters[0]
		for _, f := range filters[1:] {
			cond = cond.And(f)
		}
		builder = builder.WithFilter(cond)
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, apperrors.NewStorageError("query", err)
	}

	input.KeyConditionExpression = expr.KeyCondition()
	input.FilterExpression = expr.Filter()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()

	return s.queryUpTo(ctx, input, limit)
}

// GetEventsForAggregate returns the aggregate's full history oldest-first.
func (s *EventStore) GetEventsForAggregate(ctx context.Context, aggregateID, aggregateType string) ([]*events.Event, error) {
	input := &awsdynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: aggregateKey(aggregateType, aggregateID)},
		},
		ScanIndexForward: aws.Bool(true),
	}

	return s.queryUpTo(ctx, input, 0)
}

// GetRecentActivity returns the most recent records overall, optionally
// restricted to a set of kinds.
func (s *EventStore) GetRecentActivity(ctx context.Context, limit int, eventTypes ...events.EventType) ([]*events.Event, error) {
	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}

	input := &awsdynamodb.QueryInput{
		TableName:        aws.String(s.tableName),
		IndexName:        aws.String(s.activityIndex),
		ScanIndexForward: aws.Bool(false),
	}

	keyCond := expression.Key("GSI3PK").Equal(expression.Value(activityPartition))
	builder := expression.NewBuilder().WithKeyCondition(keyCond)

	if len(eventTypes) > 0 {
		values := make([]expression.OperandBuilder, len(eventTypes))
		for i, t := range eventTypes {
			values[i] = expression.Value(string(t))
		}
		builder = builder.WithFilter(expression.Name("EventType").In(values[0], values[1:]...))
	}

	expr, err := builder.Build()
	if err != nil {
		return nil, apperrors.NewStorageError("query", err)
	}

	input.KeyConditionExpression = expr.KeyCondition()
	input.FilterExpression = expr.Filter()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()

	return s.queryUpTo(ctx, input, limit)
}

// queryUpTo pages through results until limit records are collected, or all
// pages are exhausted when limit is zero.
func (s *EventStore) queryUpTo(ctx context.Context, input *awsdynamodb.QueryInput, limit int) ([]*events.Event, error) {
	var collected []*events.Event

	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, apperrors.NewStorageError("query", err)
		}

		for _, item := range result.Items {
			var record EventRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, apperrors.NewStorageError("query", err)
			}
			ev, err := recordToEvent(record)
			if err != nil {
				return nil, err
			}
			collected = append(collected, ev)
			if limit > 0 && len(collected) == limit {
				return collected, nil
			}
		}

		if result.LastEvaluatedKey == nil {
			return collected, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func aggregateKey(aggregateType, aggregateID string) string {
	return fmt.Sprintf("EVENTS#%s#%s", aggregateType, aggregateID)
}

func eventToRecord(event *events.Event) *EventRecord {
	ts := event.Timestamp.UTC().Format(timeLayout)
	return &EventRecord{
		PK:            aggregateKey(event.AggregateType, event.AggregateID),
		SK:            fmt.Sprintf("EVENT#%s#%s", ts, event.EventID),
		EventID:       event.EventID,
		EventType:     string(event.EventType),
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		Payload:       event.Payload,
		UserID:        event.UserID,
		SessionID:     event.SessionID,
		Timestamp:     ts,
		GSI2PK:        "EVENTTYPE#" + string(event.EventType),
		GSI2SK:        "EVENT#" + ts,
		GSI3PK:        activityPartition,
		GSI3SK:        "EVENT#" + ts,
	}
}

func recordToEvent(record EventRecord) (*events.Event, error) {
	ts, err := time.Parse(timeLayout, record.Timestamp)
	if err != nil {
		return nil, apperrors.NewStorageError("query", fmt.Errorf("malformed timestamp for event %s: %w", record.EventID, err))
	}
	return &events.Event{
		EventID:       record.EventID,
		EventType:     events.EventType(record.EventType),
		AggregateID:   record.AggregateID,
		AggregateType: record.AggregateType,
		Payload:       record.Payload,
		UserID:        record.UserID,
		SessionID:     record.SessionID,
		Timestamp:     ts,
	}, nil
}
