package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyweave-backend/domain/collaboration"
	apperrors "storyweave-backend/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*CollaborationEngine, *fakeClock) {
	t.Helper()
	clk := newFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	registry := NewRoomRegistry(zap.NewNop())
	registry.clock = clk.Now
	engine := NewCollaborationEngine(registry, nil, zap.NewNop())
	engine.clock = clk.Now
	return engine, clk
}

func collectEvents(e *CollaborationEngine) *[]collaboration.Event {
	events := &[]collaboration.Event{}
	e.Subscribe(func(evt collaboration.Event) {
		*events = append(*events, evt)
	})
	return events
}

func TestJoinRoomAssignsPaletteColorsInOrder(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, alice := engine.JoinRoom("story-1", "u1", "Alice")
	_, bob := engine.JoinRoom("story-1", "u2", "Bob")
	_, carol := engine.JoinRoom("story-1", "u3", "Carol")

	assert.Equal(t, "#FF6B6B", alice.Color)
	assert.Equal(t, "#4ECDC4", bob.Color)
	assert.Equal(t, "#45B7D1", carol.Color)
}

func TestJoinRoomEmitsUserJoined(t *testing.T) {
	engine, _ := newTestEngine(t)
	events := collectEvents(engine)

	engine.JoinRoom("story-1", "u1", "Alice")

	require.Len(t, *events, 1)
	evt := (*events)[0]
	assert.Equal(t, collaboration.EventUserJoined, evt.Type)
	assert.Equal(t, "story-1", evt.RoomID)
	assert.Equal(t, "u1", evt.UserID)
	assert.Equal(t, "Alice", evt.Payload["userName"])
	assert.Equal(t, 1, evt.Payload["activeUsers"])
}

func TestLeaveRoomDeletesRoomAfterLastLeave(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")

	room := engine.LeaveRoom("story-1", "u1")
	require.NotNil(t, room)
	assert.Equal(t, 1, room.ActiveCount())

	room = engine.LeaveRoom("story-1", "u2")
	assert.Nil(t, room)
	assert.Equal(t, 0, engine.registry.Len())
}

func TestLeaveRoomUnknownRoomIsNoOp(t *testing.T) {
	engine, _ := newTestEngine(t)
	events := collectEvents(engine)

	assert.Nil(t, engine.LeaveRoom("story-1", "u1"))
	assert.Empty(t, *events)
}

func TestLeaveRoomTwiceEmitsOnce(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")
	events := collectEvents(engine)

	engine.LeaveRoom("story-1", "u1")
	engine.LeaveRoom("story-1", "u1")

	require.Len(t, *events, 1)
	assert.Equal(t, collaboration.EventUserLeft, (*events)[0].Type)
}

func TestAcquireEditLockConflictNamesHolder(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")

	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))

	err := engine.AcquireEditLock("story-1", "node-1", "u2", "Bob")
	require.Error(t, err)
	assert.True(t, apperrors.IsLockConflict(err))
	assert.Contains(t, err.Error(), "Alice")
}

func TestAcquireEditLockExpiredLockIsTakenOver(t *testing.T) {
	engine, clk := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")

	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))

	clk.Advance(collaboration.LockTimeout)

	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u2", "Bob"))

	room, ok := engine.registry.Get("story-1")
	require.True(t, ok)
	locks := room.Locks()
	require.Len(t, locks, 1)
	assert.Equal(t, "u2", locks[0].UserID)
}

func TestAcquireEditLockSameUserRefreshes(t *testing.T) {
	engine, clk := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")

	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))
	first := engine.GetPresenceSync("story-1").Locks[0]

	clk.Advance(100 * time.Second)
	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))
	refreshed := engine.GetPresenceSync("story-1").Locks[0]

	assert.True(t, refreshed.ExpiresAt.After(first.ExpiresAt))
}

func TestAcquireEditLockUnknownRoom(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.AcquireEditLock("story-1", "node-1", "u1", "Alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsRoomNotFound(err))
}

func TestReleaseEditLock(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")

	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))

	assert.False(t, engine.ReleaseEditLock("story-1", "node-1", "u2"), "non-holder release must fail")
	assert.True(t, engine.ReleaseEditLock("story-1", "node-1", "u1"))
	assert.False(t, engine.ReleaseEditLock("story-1", "node-1", "u1"), "second release must fail")

	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u2", "Bob"))
}

func TestLeaveRoomReleasesLocksBeforeUserLeft(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")
	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))
	require.NoError(t, engine.AcquireEditLock("story-1", "node-2", "u1", "Alice"))

	events := collectEvents(engine)
	engine.LeaveRoom("story-1", "u1")

	require.Len(t, *events, 3)
	assert.Equal(t, collaboration.EventEditUnlocked, (*events)[0].Type)
	assert.Equal(t, "node-1", (*events)[0].Payload["nodeId"])
	assert.Equal(t, collaboration.EventEditUnlocked, (*events)[1].Type)
	assert.Equal(t, "node-2", (*events)[1].Payload["nodeId"])
	assert.Equal(t, collaboration.EventUserLeft, (*events)[2].Type)

	// Bob can now lock what Alice held.
	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u2", "Bob"))
}

func TestLastLeaveWithHeldLocksStillDeletesRoom(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))

	assert.Nil(t, engine.LeaveRoom("story-1", "u1"))
	assert.Equal(t, 0, engine.registry.Len())
}

func TestUpdateCursorBroadcastsWithIdentity(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")
	events := collectEvents(engine)

	engine.UpdateCursor("story-1", "u1", 120.5, 80.25, "node-3")

	require.Len(t, *events, 1)
	evt := (*events)[0]
	assert.Equal(t, collaboration.EventCursorUpdate, evt.Type)
	assert.Equal(t, 120.5, evt.Payload["x"])
	assert.Equal(t, 80.25, evt.Payload["y"])
	assert.Equal(t, "node-3", evt.Payload["nodeId"])
	assert.Equal(t, "Alice", evt.Payload["userName"])
	assert.Equal(t, "#FF6B6B", evt.Payload["color"])

	room, _ := engine.registry.Get("story-1")
	presence, ok := room.Presence("u1")
	require.True(t, ok)
	assert.Equal(t, 120.5, presence.CursorX)
	assert.Equal(t, 80.25, presence.CursorY)
}

func TestUpdateCursorUnknownUserIsSilent(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")
	events := collectEvents(engine)

	engine.UpdateCursor("story-1", "ghost", 1, 2, "")
	engine.UpdateCursor("no-such-room", "u1", 1, 2, "")

	assert.Empty(t, *events)
}

func TestSelectNodeAndSetEditing(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")
	events := collectEvents(engine)

	engine.SelectNode("story-1", "u1", "node-4")
	engine.SetEditing("story-1", "u1", "node-4")

	require.Len(t, *events, 2)
	assert.Equal(t, collaboration.EventNodeSelected, (*events)[0].Type)
	assert.Equal(t, collaboration.EventNodeEditing, (*events)[1].Type)

	room, _ := engine.registry.Get("story-1")
	presence, _ := room.Presence("u1")
	assert.Equal(t, "node-4", presence.SelectedNodeID)
	assert.Equal(t, "node-4", presence.EditingNodeID)
}

func TestApplyChangeRequiresActivePresence(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")
	events := collectEvents(engine)

	engine.ApplyChange("story-1", "u1", map[string]any{"op": "move"})
	engine.ApplyChange("story-1", "ghost", map[string]any{"op": "move"})

	require.Len(t, *events, 1)
	assert.Equal(t, collaboration.EventChangeApplied, (*events)[0].Type)
	assert.Equal(t, "move", (*events)[0].Payload["op"])
}

func TestGetPresenceSyncIncludesExpiredLocks(t *testing.T) {
	engine, clk := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-1", "u2", "Bob")
	require.NoError(t, engine.AcquireEditLock("story-1", "node-1", "u1", "Alice"))

	clk.Advance(collaboration.LockTimeout + time.Minute)

	snap := engine.GetPresenceSync("story-1")
	require.NotNil(t, snap)
	assert.Equal(t, "story-1", snap.RoomID)
	assert.Len(t, snap.Users, 2)
	require.Len(t, snap.Locks, 1, "expired lock stays visible until contended")
	assert.Equal(t, "node-1", snap.Locks[0].NodeID)

	assert.Nil(t, engine.GetPresenceSync("no-such-room"))
}

func TestSubscribersInvokedInRegistrationOrder(t *testing.T) {
	engine, _ := newTestEngine(t)

	var order []string
	engine.Subscribe(func(collaboration.Event) { order = append(order, "first") })
	engine.Subscribe(func(collaboration.Event) { order = append(order, "second") })
	engine.Subscribe(func(collaboration.Event) { order = append(order, "third") })

	engine.JoinRoom("story-1", "u1", "Alice")

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	engine, _ := newTestEngine(t)

	var delivered int
	engine.Subscribe(func(collaboration.Event) { panic("boom") })
	engine.Subscribe(func(collaboration.Event) { delivered++ })

	engine.JoinRoom("story-1", "u1", "Alice")

	assert.Equal(t, 1, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	engine, _ := newTestEngine(t)

	var delivered int
	id := engine.Subscribe(func(collaboration.Event) { delivered++ })

	engine.JoinRoom("story-1", "u1", "Alice")
	assert.True(t, engine.Unsubscribe(id))
	engine.UpdateCursor("story-1", "u1", 1, 2, "")

	assert.Equal(t, 1, delivered)
	assert.False(t, engine.Unsubscribe(id))
}

func TestRoomForUser(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, ok := engine.RoomForUser("u1")
	assert.False(t, ok)

	engine.JoinRoom("story-1", "u1", "Alice")
	roomID, ok := engine.RoomForUser("u1")
	require.True(t, ok)
	assert.Equal(t, "story-1", roomID)

	engine.LeaveRoom("story-1", "u1")
	_, ok = engine.RoomForUser("u1")
	assert.False(t, ok)
}

func TestRoomForUserSurvivesLeavingAnEarlierRoom(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.JoinRoom("story-1", "u1", "Alice")
	engine.JoinRoom("story-2", "u1", "Alice")

	engine.LeaveRoom("story-1", "u1")

	roomID, ok := engine.RoomForUser("u1")
	require.True(t, ok, "leaving an earlier room must not clear the newer mapping")
	assert.Equal(t, "story-2", roomID)
}

func TestPresenceSyncAsEvent(t *testing.T) {
	engine, clk := newTestEngine(t)
	engine.JoinRoom("story-1", "u1", "Alice")

	snap := engine.GetPresenceSync("story-1")
	evt := snap.AsEvent(clk.Now())

	assert.Equal(t, collaboration.EventPresenceSync, evt.Type)
	assert.Equal(t, "story-1", evt.RoomID)
	users, ok := evt.Payload["users"].([]collaboration.UserPresence)
	require.True(t, ok)
	assert.Len(t, users, 1)
}
