package collaboration

import "time"

// Palette is the fixed ordered set of colors assigned to users by join order.
// The k-th joiner of a room receives Palette[(k-1) % len(Palette)], so the
// 11th joiner repeats the first joiner's color.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E9",
}

// ColorForIndex returns the palette color for a zero-based join index.
func ColorForIndex(index int) string {
	if index < 0 {
		index = 0
	}
	return Palette[index%len(Palette)]
}

// UserPresence describes one user's live state within a room.
//
// Values are immutable: every update produces a fresh copy via the With*
// methods, so a presence read from a room can be shared freely across
// goroutines without synchronization.
type UserPresence struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	Color          string    `json:"color"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastActiveAt   time.Time `json:"lastActiveAt"`
	CursorX        float64   `json:"cursorX"`
	CursorY        float64   `json:"cursorY"`
	SelectedNodeID string    `json:"selectedNodeId,omitempty"`
	EditingNodeID  string    `json:"editingNodeId,omitempty"`
	Active         bool      `json:"active"`
}

// NewUserPresence creates an active presence for a user joining a room.
func NewUserPresence(userID, userName, color string, now time.Time) UserPresence {
	return UserPresence{
		UserID:       userID,
		UserName:     userName,
		Color:        color,
		JoinedAt:     now,
		LastActiveAt: now,
		Active:       true,
	}
}

// WithCursor returns a copy with updated cursor coordinates.
func (p UserPresence) WithCursor(x, y float64, nodeID string, now time.Time) UserPresence {
	p.CursorX = x
	p.CursorY = y
	if nodeID != "" {
		p.SelectedNodeID = nodeID
	}
	p.LastActiveAt = now
	return p
}

// WithSelection returns a copy with an updated node selection. An empty
// nodeID clears the selection.
func (p UserPresence) WithSelection(nodeID string, now time.Time) UserPresence {
	p.SelectedNodeID = nodeID
	p.LastActiveAt = now
	return p
}

// WithEditing returns a copy with an updated editing target. An empty nodeID
// clears it.
func (p UserPresence) WithEditing(nodeID string, now time.Time) UserPresence {
	p.EditingNodeID = nodeID
	p.LastActiveAt = now
	return p
}

// Deactivated returns a logically retired copy, kept in the room until the
// room itself is deleted.
func (p UserPresence) Deactivated(now time.Time) UserPresence {
	p.Active = false
	p.LastActiveAt = now
	return p
}

// CursorPosition is the transient payload shape for a cursor-update
// broadcast. It is never stored.
type CursorPosition struct {
	UserID    string    `json:"userId"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	NodeID    string    `json:"nodeId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCursorPosition creates a cursor position. A zero timestamp defaults to
// the creation instant.
func NewCursorPosition(userID string, x, y float64, nodeID string, timestamp time.Time) CursorPosition {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return CursorPosition{
		UserID:    userID,
		X:         x,
		Y:         y,
		NodeID:    nodeID,
		Timestamp: timestamp,
	}
}
