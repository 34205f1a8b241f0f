package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"storyweave-backend/domain/collaboration"
)

// RoomRegistry is the keyed collection of collaboration rooms. Structural
// mutations (insert or delete of a room entry) serialize through a single
// registry-wide mutex; the mutex is held across the entire create-if-absent
// check so concurrent joins cannot create duplicate rooms.
type RoomRegistry struct {
	mu     sync.Mutex
	rooms  map[string]*collaboration.Room
	logger *zap.Logger
	clock  func() time.Time
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(logger *zap.Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*collaboration.Room),
		logger: logger,
		clock:  time.Now,
	}
}

// GetOrCreate returns the existing room or creates and stores a new one.
// Idempotent under concurrency.
func (r *RoomRegistry) GetOrCreate(roomID string) *collaboration.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		return room
	}

	room := collaboration.NewRoom(roomID, r.clock())
	r.rooms[roomID] = room
	r.logger.Debug("room created", zap.String("roomId", roomID))
	return room
}

// Get returns the room without creating it as a side effect.
func (r *RoomRegistry) Get(roomID string) (*collaboration.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	return room, ok
}

// Remove deletes a room entry. Called only when the last active user leaves.
func (r *RoomRegistry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, roomID)
	r.logger.Debug("room removed", zap.String("roomId", roomID))
}

// Len returns the number of rooms currently held.
func (r *RoomRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
