package ports

import (
	"context"
	"time"

	"storyweave-backend/domain/events"
)

// DefaultQueryLimit caps query result sizes when the caller does not supply
// a limit.
const DefaultQueryLimit = 50

// EventFilter narrows a durable-log query. All provided fields are combined
// conjunctively; zero values mean "no restriction".
type EventFilter struct {
	AggregateID   string
	AggregateType string
	EventType     events.EventType
	Since         time.Time
	Limit         int
}

// EventStore is the port for the durable, append-only event log. Append is
// the only write operation; records are never updated or deleted.
//
// Implementations must not retry failed operations internally: storage
// failures propagate to the caller, who decides on retry policy.
type EventStore interface {
	// Append persists a record durably.
	Append(ctx context.Context, event *events.Event) error

	// GetEvents returns matching records newest-first, truncated at the
	// filter limit (DefaultQueryLimit when unset).
	GetEvents(ctx context.Context, filter EventFilter) ([]*events.Event, error)

	// GetEventsForAggregate returns every record for the aggregate
	// oldest-first. This ordering is required for correct replay.
	GetEventsForAggregate(ctx context.Context, aggregateID, aggregateType string) ([]*events.Event, error)

	// GetRecentActivity returns the most recent records overall, optionally
	// restricted to a set of kinds.
	GetRecentActivity(ctx context.Context, limit int, eventTypes ...events.EventType) ([]*events.Event, error)
}
