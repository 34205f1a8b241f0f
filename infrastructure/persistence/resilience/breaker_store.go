// Package resilience wraps an EventStore with a circuit breaker so a
// persistently failing storage backend sheds load fast instead of queueing
// callers behind timeouts.
package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
	apperrors "storyweave-backend/pkg/errors"
)

// BreakerStore decorates an EventStore with a shared circuit breaker.
// Operations short-circuit with a storage failure while the breaker is open.
// The wrapped store's own error semantics are preserved otherwise; nothing
// is retried.
type BreakerStore struct {
	inner  ports.EventStore
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerStore wraps the given store. The breaker opens after five
// consecutive failures and probes again after thirty seconds.
func NewBreakerStore(inner ports.EventStore, logger *zap.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "event-store",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("event store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerStore{inner: inner, cb: cb, logger: logger}
}

// Append implements ports.EventStore.
func (s *BreakerStore) Append(ctx context.Context, event *events.Event) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.inner.Append(ctx, event)
	})
	return s.mapErr("append", err)
}

// GetEvents implements ports.EventStore.
func (s *BreakerStore) GetEvents(ctx context.Context, filter ports.EventFilter) ([]*events.Event, error) {
	result, err := s.cb.Execute(func() (any, error) {
		return s.inner.GetEvents(ctx, filter)
	})
	if err != nil {
		return nil, s.mapErr("query", err)
	}
	return result.([]*events.Event), nil
}

// GetEventsForAggregate implements ports.EventStore.
func (s *BreakerStore) GetEventsForAggregate(ctx context.Context, aggregateID, aggregateType string) ([]*events.Event, error) {
	result, err := s.cb.Execute(func() (any, error) {
		return s.inner.GetEventsForAggregate(ctx, aggregateID, aggregateType)
	})
	if err != nil {
		return nil, s.mapErr("query", err)
	}
	return result.([]*events.Event), nil
}

// GetRecentActivity implements ports.EventStore.
func (s *BreakerStore) GetRecentActivity(ctx context.Context, limit int, eventTypes ...events.EventType) ([]*events.Event, error) {
	result, err := s.cb.Execute(func() (any, error) {
		return s.inner.GetRecentActivity(ctx, limit, eventTypes...)
	})
	if err != nil {
		return nil, s.mapErr("query", err)
	}
	return result.([]*events.Event), nil
}

func (s *BreakerStore) mapErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewStorageError(operation, err)
	}
	return err
}
