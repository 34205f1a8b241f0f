package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
)

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedStore(t *testing.T, store *EventStore) {
	t.Helper()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []*events.Event{
		events.NewEvent(events.EventNodeCreated, "node-1", "node", map[string]any{"label": "Intro"}, "u1", "s1", base),
		events.NewEvent(events.EventNodeUpdated, "node-1", "node", map[string]any{"changes": map[string]any{"label": "Intro Scene"}}, "u1", "s1", base.Add(time.Minute)),
		events.NewEvent(events.EventNodeCreated, "node-2", "node", map[string]any{"label": "Climax"}, "u2", "s2", base.Add(2*time.Minute)),
		events.NewEvent(events.EventBranchCreated, "branch-1", "branch", map[string]any{"name": "alt"}, "u1", "s1", base.Add(3*time.Minute)),
	}
	for _, ev := range seed {
		require.NoError(t, store.Append(context.Background(), ev))
	}
}

func TestAppendAndRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)

	src := events.NewEvent(events.EventNodeCreated, "node-1", "node", map[string]any{
		"label": "Intro",
		"x":     12.5,
	}, "u1", "s1", ts)
	require.NoError(t, store.Append(context.Background(), src))

	got, err := store.GetEventsForAggregate(context.Background(), "node-1", "node")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, src.EventID, got[0].EventID)
	assert.Equal(t, events.EventNodeCreated, got[0].EventType)
	assert.Equal(t, "Intro", got[0].Payload["label"])
	assert.Equal(t, 12.5, got[0].Payload["x"])
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.True(t, got[0].Timestamp.Equal(ts))
}

func TestAppendNullUserRoundTrip(t *testing.T) {
	store := newTestStore(t)

	src := events.NewEvent(events.EventSessionStarted, "proj-1", "project", nil, "", "", time.Now().UTC())
	require.NoError(t, store.Append(context.Background(), src))

	got, err := store.GetEventsForAggregate(context.Background(), "proj-1", "project")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].UserID)
	assert.Empty(t, got[0].SessionID)
}

func TestAppendDuplicateEventIDFails(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	ev := events.NewEvent(events.EventNodeCreated, "node-1", "node", nil, "u1", "s1", ts)
	require.NoError(t, store.Append(context.Background(), ev))
	assert.Error(t, store.Append(context.Background(), ev))
}

func TestGetEventsNewestFirstWithFilters(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store)

	got, err := store.GetEvents(context.Background(), ports.EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, events.EventBranchCreated, got[0].EventType)
	assert.Equal(t, events.EventNodeCreated, got[3].EventType)

	got, err = store.GetEvents(context.Background(), ports.EventFilter{
		AggregateType: "node",
		EventType:     events.EventNodeCreated,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "node-2", got[0].AggregateID)
	assert.Equal(t, "node-1", got[1].AggregateID)
}

func TestGetEventsSinceAndLimit(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	got, err := store.GetEvents(context.Background(), ports.EventFilter{
		Since: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.GetEvents(context.Background(), ports.EventFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.EventBranchCreated, got[0].EventType)
}

func TestGetEventsForAggregateOldestFirst(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store)

	got, err := store.GetEventsForAggregate(context.Background(), "node-1", "node")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.EventNodeCreated, got[0].EventType)
	assert.Equal(t, events.EventNodeUpdated, got[1].EventType)
}

func TestOrderingAcrossFractionalSeconds(t *testing.T) {
	store := newTestStore(t)
	whole := time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)
	fractional := whole.Add(500 * time.Millisecond)

	created := events.NewEvent(events.EventNodeCreated, "node-1", "node", map[string]any{"label": "Intro"}, "u1", "s1", whole)
	updated := events.NewEvent(events.EventNodeUpdated, "node-1", "node", map[string]any{"changes": map[string]any{"label": "Intro Scene"}}, "u1", "s1", fractional)
	require.NoError(t, store.Append(context.Background(), created))
	require.NoError(t, store.Append(context.Background(), updated))

	history, err := store.GetEventsForAggregate(context.Background(), "node-1", "node")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, events.EventNodeCreated, history[0].EventType, "whole-second event precedes fractional one in the same second")
	assert.Equal(t, events.EventNodeUpdated, history[1].EventType)

	newest, err := store.GetEvents(context.Background(), ports.EventFilter{})
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, events.EventNodeUpdated, newest[0].EventType)

	since, err := store.GetEvents(context.Background(), ports.EventFilter{Since: fractional})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, events.EventNodeUpdated, since[0].EventType)
}

func TestGetEventsForAggregateTypeMismatch(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store)

	got, err := store.GetEventsForAggregate(context.Background(), "node-1", "branch")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetRecentActivity(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store)

	got, err := store.GetRecentActivity(context.Background(), 10, events.EventBranchCreated)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "branch-1", got[0].AggregateID)

	got, err = store.GetRecentActivity(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.EventBranchCreated, got[0].EventType)
	assert.Equal(t, "node-2", got[1].AggregateID)
}
