package dynamodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyweave-backend/domain/events"
)

func TestEventToRecordKeys(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)
	ev := events.NewEvent(events.EventNodeCreated, "node-1", "node", map[string]any{"label": "Intro"}, "u1", "s1", ts)

	record := eventToRecord(ev)

	assert.Equal(t, "EVENTS#node#node-1", record.PK)
	assert.Equal(t, "EVENT#2025-03-01T10:00:01.000000000Z#"+ev.EventID, record.SK)
	assert.Equal(t, "EVENTTYPE#NODE_CREATED", record.GSI2PK)
	assert.Equal(t, "EVENT#2025-03-01T10:00:01.000000000Z", record.GSI2SK)
	assert.Equal(t, activityPartition, record.GSI3PK)
	assert.Equal(t, record.GSI2SK, record.GSI3SK)
}

func TestSortKeysOrderLexicallyAcrossFractionalSeconds(t *testing.T) {
	whole := time.Date(2025, 3, 1, 10, 0, 1, 0, time.UTC)
	fractional := whole.Add(500 * time.Millisecond)

	earlier := eventToRecord(events.NewEvent(events.EventNodeCreated, "node-1", "node", nil, "u1", "s1", whole))
	later := eventToRecord(events.NewEvent(events.EventNodeUpdated, "node-1", "node", nil, "u1", "s1", fractional))

	// Fixed-width fractional seconds keep lexical and chronological order
	// aligned within the same second.
	assert.Less(t, earlier.SK, later.SK)
	assert.Less(t, earlier.GSI2SK, later.GSI2SK)
	assert.Less(t, earlier.GSI3SK, later.GSI3SK)
	assert.Less(t, earlier.Timestamp, later.Timestamp)
}

func TestRecordRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 1, 123456789, time.UTC)
	src := events.NewEvent(events.EventTextEdited, "node-1", "node", map[string]any{"summary": "rewrote dialogue"}, "u1", "s1", ts)

	got, err := recordToEvent(*eventToRecord(src))
	require.NoError(t, err)

	assert.Equal(t, src.EventID, got.EventID)
	assert.Equal(t, src.EventType, got.EventType)
	assert.Equal(t, src.Payload, got.Payload)
	assert.True(t, got.Timestamp.Equal(ts))
}
