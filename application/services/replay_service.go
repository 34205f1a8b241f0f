package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
)

// AuditEntry is one human-readable line of an aggregate's audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Details   string    `json:"details"`
}

// ReplayService reconstructs aggregate state by folding ordered event
// history, and renders that history as an audit trail. Both operations are
// pure over the stored sequence: state derives solely from the events, never
// from the time of the call.
type ReplayService struct {
	store  ports.EventStore
	logger *zap.Logger
}

// NewReplayService creates a replay service over the given store.
func NewReplayService(store ports.EventStore, logger *zap.Logger) *ReplayService {
	return &ReplayService{store: store, logger: logger}
}

// ReplayAggregate folds the aggregate's full history, oldest-first, into a
// reconstructed state snapshot. It returns nil when the aggregate has no
// history.
func (s *ReplayService) ReplayAggregate(ctx context.Context, aggregateID, aggregateType string) (map[string]any, error) {
	history, err := s.store.GetEventsForAggregate(ctx, aggregateID, aggregateType)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}

	state := map[string]any{
		"aggregate_id":   aggregateID,
		"aggregate_type": aggregateType,
		"created_at":     history[0].Timestamp,
		"updated_at":     history[len(history)-1].Timestamp,
		"event_count":    len(history),
	}

	for _, ev := range history {
		applyEvent(state, ev)
	}

	s.logger.Debug("aggregate replayed",
		zap.String("aggregateId", aggregateID),
		zap.String("aggregateType", aggregateType),
		zap.Int("events", len(history)),
	)

	return state, nil
}

// GetAuditTrail renders the aggregate's history, oldest-first, into
// human-readable entries. Events without a user id are attributed to
// "system".
func (s *ReplayService) GetAuditTrail(ctx context.Context, aggregateID, aggregateType string) ([]AuditEntry, error) {
	history, err := s.store.GetEventsForAggregate(ctx, aggregateID, aggregateType)
	if err != nil {
		return nil, err
	}

	trail := make([]AuditEntry, 0, len(history))
	for _, ev := range history {
		user := ev.UserID
		if user == "" {
			user = "system"
		}
		trail = append(trail, AuditEntry{
			Timestamp: ev.Timestamp,
			Action:    string(ev.EventType),
			User:      user,
			Details:   describeEvent(ev),
		})
	}
	return trail, nil
}

// applyEvent folds one event into the state record. The switch covers every
// known kind; unrecognized kinds contribute nothing beyond the seeded
// counters.
func applyEvent(state map[string]any, ev *events.Event) {
	switch ev.EventType {
	case events.EventNodeCreated:
		for _, key := range []string{"label", "x", "y", "branch_id"} {
			if v, ok := ev.Payload[key]; ok {
				state[key] = v
			}
		}

	case events.EventNodeUpdated:
		if changes, ok := ev.Payload["changes"].(map[string]any); ok {
			for k, v := range changes {
				state[k] = v
			}
		}

	case events.EventNodeDeleted:
		state["deleted"] = true

	case events.EventEdgeCreated:
		connections, _ := state["connections"].([]any)
		if target, ok := ev.Payload["target_id"]; ok {
			connections = append(connections, target)
		}
		state["connections"] = connections

	case events.EventEdgeDeleted:
		if connections, ok := state["connections"].([]any); ok && len(connections) > 0 {
			target := ev.Payload["target_id"]
			for i, c := range connections {
				if c == target {
					state["connections"] = append(connections[:i:i], connections[i+1:]...)
					break
				}
			}
		}

	case events.EventTextEdited:
		if summary, ok := ev.Payload["summary"]; ok {
			state["last_edit"] = summary
		}
		if ev.UserID != "" {
			state["last_edited_by"] = ev.UserID
		}

	case events.EventPanelGenerated:
		panels, _ := state["panels"].([]any)
		panels = append(panels, map[string]any{
			"panel_id": ev.Payload["panel_id"],
			"prompt":   ev.Payload["prompt"],
		})
		state["panels"] = panels

	case events.EventBranchCreated:
		for _, key := range []string{"name", "fork_node_id"} {
			if v, ok := ev.Payload[key]; ok {
				state[key] = v
			}
		}

	case events.EventBranchMerged:
		if target, ok := ev.Payload["merged_into"]; ok {
			state["merged_into"] = target
		}

	case events.EventProjectCreated:
		if title, ok := ev.Payload["title"]; ok {
			state["title"] = title
		}

	case events.EventProjectExported:
		if format, ok := ev.Payload["format"]; ok {
			state["last_export_format"] = format
		}

	case events.EventSessionStarted, events.EventSessionEnded:
		// Session markers carry no aggregate state beyond the counters.
	}
}

// describeEvent renders one event into a fixed human-readable template per
// kind, falling back to a raw payload rendering for unrecognized kinds.
func describeEvent(ev *events.Event) string {
	switch ev.EventType {
	case events.EventNodeCreated:
		return fmt.Sprintf("Created node '%v'", ev.Payload["label"])
	case events.EventNodeUpdated:
		if changes, ok := ev.Payload["changes"].(map[string]any); ok {
			keys := make([]string, 0, len(changes))
			for k := range changes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return "Updated: " + strings.Join(keys, ", ")
		}
		return "Updated node"
	case events.EventNodeDeleted:
		return "Deleted node"
	case events.EventEdgeCreated:
		return fmt.Sprintf("Connected to %v", ev.Payload["target_id"])
	case events.EventEdgeDeleted:
		return "Removed connection"
	case events.EventTextEdited:
		return fmt.Sprintf("Edited text (%v)", ev.Payload["summary"])
	case events.EventPanelGenerated:
		return "Generated panel"
	case events.EventBranchCreated:
		return fmt.Sprintf("Created branch '%v'", ev.Payload["name"])
	case events.EventBranchMerged:
		return fmt.Sprintf("Merged into '%v'", ev.Payload["merged_into"])
	case events.EventProjectCreated:
		return fmt.Sprintf("Created project '%v'", ev.Payload["title"])
	case events.EventProjectExported:
		return fmt.Sprintf("Exported project as %v", ev.Payload["format"])
	case events.EventSessionStarted:
		return "Started session"
	case events.EventSessionEnded:
		return "Ended session"
	default:
		return renderPayload(ev.Payload)
	}
}

func renderPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return "(no details)"
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, ", ")
}
