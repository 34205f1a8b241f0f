package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
	"storyweave-backend/pkg/observability"
)

// Aggregate types used by the logging helpers.
const (
	AggregateNode    = "node"
	AggregateBranch  = "branch"
	AggregateProject = "project"
)

// EventLogger is the convenience surface the application layer calls into
// whenever a domain fact occurs. Each helper constructs an event of the
// appropriate kind and appends it once; the payload shapes produced here are
// the contract the replay and audit engines depend on.
type EventLogger struct {
	store   ports.EventStore
	metrics *observability.Collector
	logger  *zap.Logger
	clock   func() time.Time
}

// NewEventLogger creates an event logger over the given store. metrics may
// be nil.
func NewEventLogger(store ports.EventStore, metrics *observability.Collector, logger *zap.Logger) *EventLogger {
	return &EventLogger{store: store, metrics: metrics, logger: logger, clock: time.Now}
}

// NewSessionID generates a session identifier for correlating events from
// one editing session.
func (l *EventLogger) NewSessionID() string {
	return uuid.NewString()
}

// LogNodeCreated records the creation of a graph node.
func (l *EventLogger) LogNodeCreated(ctx context.Context, nodeID, label string, x, y float64, branchID, userID, sessionID string) (*events.Event, error) {
	return l.append(ctx, events.NewEvent(events.EventNodeCreated, nodeID, AggregateNode, map[string]any{
		"label":     label,
		"x":         x,
		"y":         y,
		"branch_id": branchID,
	}, userID, sessionID, l.clock()))
}

// LogNodeUpdated records a field-level update. The changes map is merged
// key-by-key during replay.
func (l *EventLogger) LogNodeUpdated(ctx context.Context, nodeID string, changes map[string]any, userID, sessionID string) (*events.Event, error) {
	return l.append(ctx, events.NewEvent(events.EventNodeUpdated, nodeID, AggregateNode, map[string]any{
		"changes": changes,
	}, userID, sessionID, l.clock()))
}

// LogNodeDeleted records a node deletion.
func (l *EventLogger) LogNodeDeleted(ctx context.Context, nodeID, userID, sessionID string) (*events.Event, error) {
	return l.append(ctx, events.NewEvent(events.EventNodeDeleted, nodeID, AggregateNode, nil, userID, sessionID, l.clock()))
}

// LogTextEdited records an edit to a node's text content.
func (l *EventLogger) LogTextEdited(ctx context.Context, nodeID, summary, userID, sessionID string) (*events.Event, error) {
	return l.append(ctx, events.NewEvent(events.EventTextEdited, nodeID, AggregateNode, map[string]any{
		"summary": summary,
	}, userID, sessionID, l.clock()))
}

// LogPanelGenerated records an AI-generated panel attached to a node.
func (l *EventLogger) LogPanelGenerated(ctx context.Context, nodeID, panelID, prompt, userID, sessionID string) (*events.Event, error) {
	return l.append(ctx, events.NewEvent(events.EventPanelGenerated, nodeID, AggregateNode, map[string]any{
		"panel_id": panelID,
		"prompt":   prompt,
	}, userID, sessionID, l.clock()))
}

// LogBranchCreated records a new story branch forked from a node.
func (l *EventLogger) LogBranchCreated(ctx context.Context, branchID, name, forkNodeID, userID, sessionID string) (*events.Event, error) {
	return l.append(ctx, events.NewEvent(events.EventBranchCreated, branchID, AggregateBranch, map[string]any{
		"name":         name,
		"fork_node_id": forkNodeID,
	}, userID, sessionID, l.clock()))
}

func (l *EventLogger) append(ctx context.Context, ev *events.Event) (*events.Event, error) {
	if err := l.store.Append(ctx, ev); err != nil {
		if l.metrics != nil {
			l.metrics.StorageErrors.Inc()
		}
		l.logger.Error("failed to append event",
			zap.String("eventType", string(ev.EventType)),
			zap.String("aggregateId", ev.AggregateID),
			zap.Error(err),
		)
		return nil, err
	}
	if l.metrics != nil {
		l.metrics.EventsAppended.WithLabelValues(string(ev.EventType)).Inc()
	}
	return ev, nil
}
