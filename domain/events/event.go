// Package events defines the durable, append-only event records that form
// the source of truth for aggregate history. These are distinct from the
// transient collaboration events: a durable event records a domain fact
// (node created, text edited, branch created) and is never mutated or
// deleted once appended.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// EventType identifies a durable domain fact.
type EventType string

const (
	EventNodeCreated     EventType = "NODE_CREATED"
	EventNodeUpdated     EventType = "NODE_UPDATED"
	EventNodeDeleted     EventType = "NODE_DELETED"
	EventEdgeCreated     EventType = "EDGE_CREATED"
	EventEdgeDeleted     EventType = "EDGE_DELETED"
	EventTextEdited      EventType = "TEXT_EDITED"
	EventPanelGenerated  EventType = "PANEL_GENERATED"
	EventBranchCreated   EventType = "BRANCH_CREATED"
	EventBranchMerged    EventType = "BRANCH_MERGED"
	EventProjectCreated  EventType = "PROJECT_CREATED"
	EventProjectExported EventType = "PROJECT_EXPORTED"
	EventSessionStarted  EventType = "SESSION_STARTED"
	EventSessionEnded    EventType = "SESSION_ENDED"
)

// AllEventTypes lists every known durable event kind.
var AllEventTypes = []EventType{
	EventNodeCreated,
	EventNodeUpdated,
	EventNodeDeleted,
	EventEdgeCreated,
	EventEdgeDeleted,
	EventTextEdited,
	EventPanelGenerated,
	EventBranchCreated,
	EventBranchMerged,
	EventProjectCreated,
	EventProjectExported,
	EventSessionStarted,
	EventSessionEnded,
}

// Event is an immutable durable log record. The aggregate id and type name
// the entity the event is about (node, branch, project, scene); the payload
// shape per event type is the contract the replay and audit engines depend
// on.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     EventType      `json:"event_type"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	Payload       map[string]any `json:"payload"`
	UserID        string         `json:"user_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewEvent creates a durable event stamped with the given instant and a
// generated id.
func NewEvent(eventType EventType, aggregateID, aggregateType string, payload map[string]any, userID, sessionID string, now time.Time) *Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Event{
		EventID:       generateEventID(aggregateID, now),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       payload,
		UserID:        userID,
		SessionID:     sessionID,
		Timestamp:     now,
	}
}

// generateEventID derives a fixed-length hexadecimal id from the aggregate
// id and a nanosecond timestamp. This gives practical uniqueness under
// normal operation; callers needing stronger guarantees can substitute their
// own id before appending.
func generateEventID(aggregateID string, now time.Time) string {
	sum := sha256.Sum256([]byte(aggregateID + strconv.FormatInt(now.UnixNano(), 10)))
	return hex.EncodeToString(sum[:16])
}
