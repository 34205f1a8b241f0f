package collaboration

import "time"

// EventType identifies a transient collaboration event kind.
type EventType string

const (
	EventUserJoined    EventType = "user_joined"
	EventUserLeft      EventType = "user_left"
	EventCursorUpdate  EventType = "cursor_update"
	EventNodeSelected  EventType = "node_selected"
	EventNodeEditing   EventType = "node_editing"
	EventEditLocked    EventType = "edit_locked"
	EventEditUnlocked  EventType = "edit_unlocked"
	EventChangeApplied EventType = "change_applied"
	EventPresenceSync  EventType = "presence_sync"
)

// Event is the notification value fanned out synchronously to subscribers
// whenever the engine mutates presence or lock state. Events are ephemeral
// and never persisted; durable domain facts live in the events package.
type Event struct {
	Type      EventType      `json:"type"`
	RoomID    string         `json:"roomId"`
	UserID    string         `json:"userId"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates a collaboration event stamped with the given instant.
func NewEvent(eventType EventType, roomID, userID string, payload map[string]any, now time.Time) Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	return Event{
		Type:      eventType,
		RoomID:    roomID,
		UserID:    userID,
		Payload:   payload,
		Timestamp: now,
	}
}
