package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
	"storyweave-backend/infrastructure/persistence/memory"
	apperrors "storyweave-backend/pkg/errors"
)

type flakyStore struct {
	*memory.EventStore
	appendErr error
}

func (s *flakyStore) Append(ctx context.Context, ev *events.Event) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.EventStore.Append(ctx, ev)
}

func TestBreakerStorePassesThroughWhenHealthy(t *testing.T) {
	store := NewBreakerStore(memory.NewEventStore(), zap.NewNop())
	ev := events.NewEvent(events.EventNodeCreated, "node-1", "node", map[string]any{"label": "Intro"}, "u1", "s1", time.Now())

	require.NoError(t, store.Append(context.Background(), ev))

	got, err := store.GetEventsForAggregate(context.Background(), "node-1", "node")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev.EventID, got[0].EventID)

	recent, err := store.GetRecentActivity(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	filtered, err := store.GetEvents(context.Background(), ports.EventFilter{EventType: events.EventNodeCreated})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestBreakerStorePreservesInnerErrors(t *testing.T) {
	innerErr := errors.New("throughput exceeded")
	store := NewBreakerStore(&flakyStore{EventStore: memory.NewEventStore(), appendErr: innerErr}, zap.NewNop())

	ev := events.NewEvent(events.EventNodeCreated, "node-1", "node", nil, "u1", "s1", time.Now())
	err := store.Append(context.Background(), ev)
	assert.ErrorIs(t, err, innerErr)
}

func TestBreakerStoreOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{EventStore: memory.NewEventStore(), appendErr: errors.New("storage down")}
	store := NewBreakerStore(inner, zap.NewNop())

	ev := events.NewEvent(events.EventNodeCreated, "node-1", "node", nil, "u1", "s1", time.Now())
	for i := 0; i < 5; i++ {
		require.Error(t, store.Append(context.Background(), ev))
	}

	// Breaker is open now; even a recovered backend is short-circuited
	// until the probe interval elapses.
	inner.appendErr = nil
	err := store.Append(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, apperrors.IsStorageFailure(err))
	assert.Equal(t, 0, inner.Len())
}
