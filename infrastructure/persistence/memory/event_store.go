// Package memory provides an in-process EventStore used by tests and local
// development. Records live in append order; queries sort on timestamp with
// append order as the tie-breaker so results are deterministic even for
// events sharing a timestamp.
package memory

import (
	"context"
	"sort"
	"sync"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
)

type record struct {
	seq   int
	event *events.Event
}

// EventStore is a thread-safe in-memory durable log.
type EventStore struct {
	mu      sync.RWMutex
	records []record
	nextSeq int
}

// NewEventStore creates an empty store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append stores the record. It never fails.
func (s *EventStore) Append(ctx context.Context, event *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record{seq: s.nextSeq, event: event})
	s.nextSeq++
	return nil
}

// GetEvents returns matching records newest-first, truncated at the filter
// limit.
func (s *EventStore) GetEvents(ctx context.Context, filter ports.EventFilter) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []record
	for _, r := range s.records {
		if matches(r.event, filter) {
			matched = append(matched, r)
		}
	}

	sortNewestFirst(matched)

	limit := filter.Limit
	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return toEvents(matched), nil
}

// GetEventsForAggregate returns the aggregate's full history oldest-first.
func (s *EventStore) GetEventsForAggregate(ctx context.Context, aggregateID, aggregateType string) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []record
	for _, r := range s.records {
		if r.event.AggregateID == aggregateID && r.event.AggregateType == aggregateType {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].event.Timestamp.Equal(matched[j].event.Timestamp) {
			return matched[i].seq < matched[j].seq
		}
		return matched[i].event.Timestamp.Before(matched[j].event.Timestamp)
	})

	return toEvents(matched), nil
}

// GetRecentActivity returns the most recent records overall, optionally
// restricted to a set of kinds.
func (s *EventStore) GetRecentActivity(ctx context.Context, limit int, eventTypes ...events.EventType) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[events.EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		allowed[t] = struct{}{}
	}

	var matched []record
	for _, r := range s.records {
		if len(allowed) > 0 {
			if _, ok := allowed[r.event.EventType]; !ok {
				continue
			}
		}
		matched = append(matched, r)
	}

	sortNewestFirst(matched)

	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	return toEvents(matched), nil
}

// Len returns the number of stored records.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(ev *events.Event, filter ports.EventFilter) bool {
	if filter.AggregateID != "" && ev.AggregateID != filter.AggregateID {
		return false
	}
	if filter.AggregateType != "" && ev.AggregateType != filter.AggregateType {
		return false
	}
	if filter.EventType != "" && ev.EventType != filter.EventType {
		return false
	}
	if !filter.Since.IsZero() && ev.Timestamp.Before(filter.Since) {
		return false
	}
	return true
}

func sortNewestFirst(records []record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].event.Timestamp.Equal(records[j].event.Timestamp) {
			return records[i].seq > records[j].seq
		}
		return records[i].event.Timestamp.After(records[j].event.Timestamp)
	})
}

func toEvents(records []record) []*events.Event {
	result := make([]*events.Event, len(records))
	for i, r := range records {
		result[i] = r.event
	}
	return result
}
