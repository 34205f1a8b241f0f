package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyweave-backend/domain/collaboration"
	apperrors "storyweave-backend/pkg/errors"
	"storyweave-backend/pkg/observability"
)

// EventHandler receives every collaboration event emitted by the engine.
// Handlers are invoked synchronously in registration order; a panicking
// handler is recovered and does not prevent delivery to the rest.
type EventHandler func(event collaboration.Event)

type subscriber struct {
	id      string
	handler EventHandler
}

// PresenceSync is the snapshot used to bring a newly joined or reconnecting
// client up to date: all active users' public state plus every lock entry
// currently in the room (expired-but-unreleased locks included, since expiry
// is only evaluated at contention time).
type PresenceSync struct {
	RoomID string                       `json:"roomId"`
	Users  []collaboration.UserPresence `json:"users"`
	Locks  []collaboration.EditLock     `json:"locks"`
}

// AsEvent frames the snapshot as a presence_sync event suitable for
// transport delivery.
func (s *PresenceSync) AsEvent(now time.Time) collaboration.Event {
	return collaboration.NewEvent(collaboration.EventPresenceSync, s.RoomID, "", map[string]any{
		"users": s.Users,
		"locks": s.Locks,
	}, now)
}

// CollaborationEngine orchestrates room membership, cursor and selection
// streaming, and exclusive edit-lock arbitration. Every state transition is
// fanned out synchronously as a collaboration.Event to registered
// subscribers before the triggering operation returns.
//
// The engine is an explicitly constructed instance; callers receive it via
// dependency injection rather than through package-level state.
type CollaborationEngine struct {
	registry *RoomRegistry
	metrics  *observability.Collector
	logger   *zap.Logger
	clock    func() time.Time

	userRoomsMu sync.Mutex
	userRooms   map[string]string // user id -> room id

	subMu       sync.RWMutex
	subscribers []subscriber
}

// NewCollaborationEngine creates an engine backed by the given registry.
// metrics may be nil.
func NewCollaborationEngine(registry *RoomRegistry, metrics *observability.Collector, logger *zap.Logger) *CollaborationEngine {
	return &CollaborationEngine{
		registry:  registry,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
		userRooms: make(map[string]string),
	}
}

// Subscribe registers a handler for every emitted event and returns its
// subscription id. Invocation order equals registration order.
func (e *CollaborationEngine) Subscribe(handler EventHandler) string {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := uuid.NewString()
	e.subscribers = append(e.subscribers, subscriber{id: id, handler: handler})
	return id
}

// Unsubscribe removes a previously registered handler.
func (e *CollaborationEngine) Unsubscribe(id string) bool {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for i, s := range e.subscribers {
		if s.id == id {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// JoinRoom creates the room if absent, inserts a fresh active presence with
// a deterministically assigned palette color, and broadcasts user_joined.
func (e *CollaborationEngine) JoinRoom(roomID, userID, userName string) (*collaboration.Room, collaboration.UserPresence) {
	room := e.registry.GetOrCreate(roomID)
	presence, activeCount := room.Join(userID, userName, e.clock())

	e.userRoomsMu.Lock()
	e.userRooms[userID] = roomID
	e.userRoomsMu.Unlock()

	e.logger.Debug("user joined room",
		zap.String("roomId", roomID),
		zap.String("userId", userID),
		zap.Int("activeUsers", activeCount),
	)
	e.updateGauges()

	e.emit(collaboration.NewEvent(collaboration.EventUserJoined, roomID, userID, map[string]any{
		"userName":    userName,
		"color":       presence.Color,
		"activeUsers": activeCount,
	}, e.clock()))

	return room, presence
}

// LeaveRoom retires the user's presence, releases every lock they hold
// through the normal release path, and broadcasts user_left. When the last
// active user leaves, the room is deleted and nil is returned. Missing rooms
// and missing or inactive users are benign races and degrade to no-ops.
func (e *CollaborationEngine) LeaveRoom(roomID, userID string) *collaboration.Room {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return nil
	}

	presence, present := room.Presence(userID)
	activeCount, left := room.Leave(userID, e.clock())
	if !present || !left {
		return room
	}

	// Locks must be cleared, with edit_unlocked emitted per lock, before
	// the room is evaluated for deletion.
	for _, nodeID := range room.LocksHeldBy(userID) {
		e.ReleaseEditLock(roomID, nodeID, userID)
	}

	e.userRoomsMu.Lock()
	if e.userRooms[userID] == roomID {
		delete(e.userRooms, userID)
	}
	e.userRoomsMu.Unlock()

	e.emit(collaboration.NewEvent(collaboration.EventUserLeft, roomID, userID, map[string]any{
		"userName":    presence.UserName,
		"activeUsers": activeCount,
	}, e.clock()))

	if activeCount == 0 {
		e.registry.Remove(roomID)
		e.updateGauges()
		e.logger.Debug("room deleted after last leave", zap.String("roomId", roomID))
		return nil
	}

	e.updateGauges()
	return room
}

// UpdateCursor streams a cursor move. This path deliberately bypasses the
// room mutex: the fresh presence value is stored last-write-wins.
func (e *CollaborationEngine) UpdateCursor(roomID, userID string, x, y float64, nodeID string) {
	room, presence, ok := e.activePresence(roomID, userID)
	if !ok {
		return
	}

	now := e.clock()
	room.StorePresence(presence.WithCursor(x, y, nodeID, now))

	e.emit(collaboration.NewEvent(collaboration.EventCursorUpdate, roomID, userID, map[string]any{
		"x":        x,
		"y":        y,
		"nodeId":   nodeID,
		"color":    presence.Color,
		"userName": presence.UserName,
	}, now))
}

// SelectNode updates the user's node selection. An empty nodeID clears it.
func (e *CollaborationEngine) SelectNode(roomID, userID, nodeID string) {
	room, presence, ok := e.activePresence(roomID, userID)
	if !ok {
		return
	}

	now := e.clock()
	room.StorePresence(presence.WithSelection(nodeID, now))

	e.emit(collaboration.NewEvent(collaboration.EventNodeSelected, roomID, userID, map[string]any{
		"nodeId":   nodeID,
		"userName": presence.UserName,
	}, now))
}

// SetEditing broadcasts that the user started or stopped editing a node
// without taking a lock. This is a soft indicator for UI affordances; lock
// arbitration goes through AcquireEditLock.
func (e *CollaborationEngine) SetEditing(roomID, userID, nodeID string) {
	room, presence, ok := e.activePresence(roomID, userID)
	if !ok {
		return
	}

	now := e.clock()
	room.StorePresence(presence.WithEditing(nodeID, now))

	e.emit(collaboration.NewEvent(collaboration.EventNodeEditing, roomID, userID, map[string]any{
		"nodeId":   nodeID,
		"userName": presence.UserName,
	}, now))
}

// ApplyChange broadcasts an applied mutation to the room. The payload is
// caller-defined; the engine only guards against missing rooms and users.
func (e *CollaborationEngine) ApplyChange(roomID, userID string, payload map[string]any) {
	_, _, ok := e.activePresence(roomID, userID)
	if !ok {
		return
	}
	e.emit(collaboration.NewEvent(collaboration.EventChangeApplied, roomID, userID, payload, e.clock()))
}

// AcquireEditLock grants an exclusive timed lock on the node. It fails with
// a room-not-found error when the room is absent and with a lock-conflict
// error, naming the current holder, when another user's unexpired lock
// exists. Expired locks are overwritten at this point; there is no
// background sweeper.
func (e *CollaborationEngine) AcquireEditLock(roomID, nodeID, userID, userName string) error {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return apperrors.NewRoomNotFoundError(roomID)
	}

	now := e.clock()
	lock, holder := room.AcquireLock(nodeID, userID, userName, now)
	if holder != nil {
		if e.metrics != nil {
			e.metrics.LockConflicts.Inc()
		}
		e.logger.Debug("edit lock conflict",
			zap.String("roomId", roomID),
			zap.String("nodeId", nodeID),
			zap.String("holder", holder.UserName),
		)
		return apperrors.NewLockConflictError(nodeID, holder.UserName)
	}

	if presence, ok := room.Presence(userID); ok {
		room.StorePresence(presence.WithEditing(nodeID, now))
	}

	if e.metrics != nil {
		e.metrics.LocksAcquired.Inc()
	}
	e.logger.Debug("edit lock acquired",
		zap.String("roomId", roomID),
		zap.String("nodeId", nodeID),
		zap.String("userId", userID),
		zap.Time("expiresAt", lock.ExpiresAt),
	)

	e.emit(collaboration.NewEvent(collaboration.EventEditLocked, roomID, userID, map[string]any{
		"nodeId":    nodeID,
		"userName":  userName,
		"expiresAt": lock.ExpiresAt,
	}, now))

	return nil
}

// ReleaseEditLock removes the lock if it is held by the given user,
// reporting success as a boolean rather than an error: releasing a lock
// that is gone or owned by someone else is not exceptional.
func (e *CollaborationEngine) ReleaseEditLock(roomID, nodeID, userID string) bool {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return false
	}

	if !room.ReleaseLock(nodeID, userID) {
		return false
	}

	now := e.clock()
	if presence, ok := room.Presence(userID); ok && presence.EditingNodeID == nodeID {
		room.StorePresence(presence.WithEditing("", now))
	}

	e.emit(collaboration.NewEvent(collaboration.EventEditUnlocked, roomID, userID, map[string]any{
		"nodeId": nodeID,
	}, now))

	return true
}

// GetPresenceSync returns the room snapshot, or nil when the room does not
// exist.
func (e *CollaborationEngine) GetPresenceSync(roomID string) *PresenceSync {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return nil
	}
	return &PresenceSync{
		RoomID: roomID,
		Users:  room.ActiveUsers(),
		Locks:  room.Locks(),
	}
}

// RoomForUser reports which room a user last joined. Transports use this to
// resolve a disconnecting connection back to its room.
func (e *CollaborationEngine) RoomForUser(userID string) (string, bool) {
	e.userRoomsMu.Lock()
	defer e.userRoomsMu.Unlock()

	roomID, ok := e.userRooms[userID]
	return roomID, ok
}

func (e *CollaborationEngine) activePresence(roomID, userID string) (*collaboration.Room, collaboration.UserPresence, bool) {
	room, ok := e.registry.Get(roomID)
	if !ok {
		return nil, collaboration.UserPresence{}, false
	}
	presence, ok := room.Presence(userID)
	if !ok || !presence.Active {
		return nil, collaboration.UserPresence{}, false
	}
	return room, presence, true
}

// emit delivers the event to every subscriber in registration order. Each
// delivery is individually recovered so one failing subscriber cannot block
// or crash the others or the engine.
func (e *CollaborationEngine) emit(evt collaboration.Event) {
	e.subMu.RLock()
	subs := make([]subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.subMu.RUnlock()

	if e.metrics != nil {
		e.metrics.EventsBroadcast.WithLabelValues(string(evt.Type)).Inc()
	}

	for _, s := range subs {
		e.deliver(s, evt)
	}
}

func (e *CollaborationEngine) deliver(s subscriber, evt collaboration.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("collaboration subscriber panicked",
				zap.String("subscriptionId", s.id),
				zap.String("eventType", string(evt.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	s.handler(evt)
}

func (e *CollaborationEngine) updateGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.ActiveRooms.Set(float64(e.registry.Len()))

	e.userRoomsMu.Lock()
	users := len(e.userRooms)
	e.userRoomsMu.Unlock()
	e.metrics.ActiveUsers.Set(float64(users))
}
