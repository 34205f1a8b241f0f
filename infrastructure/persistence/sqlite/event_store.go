// Package sqlite implements the EventStore port on an embedded SQLite
// database, for deployments that do not run against DynamoDB.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"storyweave-backend/application/ports"
	"storyweave-backend/domain/events"
	apperrors "storyweave-backend/pkg/errors"
)

// timeLayout is a fixed-width RFC3339 variant: fractional seconds are always
// padded to nine digits so lexical ordering of the stored strings matches
// chronological ordering. RFC3339Nano trims trailing zeros, which would sort
// a whole-second timestamp after fractional ones in the same second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id       TEXT PRIMARY KEY,
	event_type     TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	payload        TEXT NOT NULL,
	user_id        TEXT,
	session_id     TEXT,
	timestamp      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events (aggregate_id, aggregate_type);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
`

// EventStore is a SQLite-backed durable log.
type EventStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventStore opens the database at path (":memory:" for an ephemeral
// store) and ensures the schema exists.
func NewEventStore(path string, logger *zap.Logger) (*EventStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.NewStorageError("open", err)
	}
	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("init schema", err)
	}

	return &EventStore{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// Append persists the record. Appends are never retried here; failures
// propagate to the caller.
func (s *EventStore) Append(ctx context.Context, event *events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return apperrors.NewStorageError("append", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, aggregate_id, aggregate_type, payload, user_id, session_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID,
		string(event.EventType),
		event.AggregateID,
		event.AggregateType,
		string(payload),
		nullable(event.UserID),
		nullable(event.SessionID),
		event.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		s.logger.Error("failed to append event",
			zap.String("eventId", event.EventID),
			zap.Error(err),
		)
		return apperrors.NewStorageError("append", err)
	}
	return nil
}

// GetEvents returns matching records newest-first with all filters combined
// conjunctively.
func (s *EventStore) GetEvents(ctx context.Context, filter ports.EventFilter) ([]*events.Event, error) {
	var clauses []string
	var args []any

	if filter.AggregateID != "" {
		clauses = append(clauses, "aggregate_id = ?")
		args = append(args, filter.AggregateID)
	}
	if filter.AggregateType != "" {
		clauses = append(clauses, "aggregate_type = ?")
		args = append(args, filter.AggregateType)
	}
	if filter.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	query := "SELECT event_id, event_type, aggregate_id, aggregate_type, payload, user_id, session_id, timestamp FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

// GetEventsForAggregate returns the aggregate's full history oldest-first.
func (s *EventStore) GetEventsForAggregate(ctx context.Context, aggregateID, aggregateType string) ([]*events.Event, error) {
	return s.query(ctx,
		`SELECT event_id, event_type, aggregate_id, aggregate_type, payload, user_id, session_id, timestamp
		 FROM events WHERE aggregate_id = ? AND aggregate_type = ?
		 ORDER BY timestamp ASC, rowid ASC`,
		aggregateID, aggregateType,
	)
}

// GetRecentActivity returns the most recent records overall, optionally
// restricted to a set of kinds.
func (s *EventStore) GetRecentActivity(ctx context.Context, limit int, eventTypes ...events.EventType) ([]*events.Event, error) {
	query := "SELECT event_id, event_type, aggregate_id, aggregate_type, payload, user_id, session_id, timestamp FROM events"
	var args []any

	if len(eventTypes) > 0 {
		placeholders := make([]string, len(eventTypes))
		for i, t := range eventTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += " WHERE event_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	if limit <= 0 {
		limit = ports.DefaultQueryLimit
	}
	args = append(args, limit)

	return s.query(ctx, query, args...)
}

func (s *EventStore) query(ctx context.Context, query string, args ...any) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("query", err)
	}
	defer rows.Close()

	var result []*events.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("query", err)
	}
	return result, nil
}

func scanEvent(rows *sql.Rows) (*events.Event, error) {
	var (
		ev        events.Event
		eventType string
		payload   string
		userID    sql.NullString
		sessionID sql.NullString
		timestamp string
	)
	if err := rows.Scan(&ev.EventID, &eventType, &ev.AggregateID, &ev.AggregateType, &payload, &userID, &sessionID, &timestamp); err != nil {
		return nil, apperrors.NewStorageError("scan", err)
	}

	ev.EventType = events.EventType(eventType)
	ev.UserID = userID.String
	ev.SessionID = sessionID.String

	if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
		return nil, apperrors.NewStorageError("scan", fmt.Errorf("malformed payload for event %s: %w", ev.EventID, err))
	}

	ts, err := time.Parse(timeLayout, timestamp)
	if err != nil {
		return nil, apperrors.NewStorageError("scan", fmt.Errorf("malformed timestamp for event %s: %w", ev.EventID, err))
	}
	ev.Timestamp = ts

	return &ev, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
