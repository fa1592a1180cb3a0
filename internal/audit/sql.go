package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/sqldb"
	"github.com/google/uuid"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS audit_system_events (
	id          TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	message     TEXT,
	scenario_id TEXT,
	run_id      TEXT,
	step_id     TEXT,
	action      TEXT,
	actor_id    TEXT,
	actor_ref   TEXT,
	before_json TEXT,
	after_json  TEXT,
	flags       TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_system_scenario ON audit_system_events(scenario_id, created_at);

CREATE TABLE IF NOT EXISTS audit_timeline (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	action        TEXT NOT NULL,
	target        TEXT,
	metadata_json TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region sql-sink
// SQLSink writes audit records to SQLite or Postgres.
type SQLSink struct {
	db *sqldb.DB
}

// NewSQLSink creates tables and returns a sink.
func NewSQLSink(db *sqldb.DB) (*SQLSink, error) {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("audit schema: %w", err)
		}
	}
	return &SQLSink{db: db}, nil
}

// WriteSystem inserts one system event.
func (s *SQLSink) WriteSystem(ctx context.Context, e SystemEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	before, err := encodeMap(e.Before)
	if err != nil {
		return fmt.Errorf("encode before: %w", err)
	}
	after, err := encodeMap(e.After)
	if err != nil {
		return fmt.Errorf("encode after: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO audit_system_events
		 (id, event_type, message, scenario_id, run_id, step_id, action, actor_id, actor_ref, before_json, after_json, flags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID,
		e.Type,
		sqldb.NullIfEmpty(e.Message),
		sqldb.NullIfEmpty(e.ScenarioID),
		sqldb.NullIfEmpty(e.RunID),
		sqldb.NullIfEmpty(e.StepID),
		sqldb.NullIfEmpty(e.Action),
		sqldb.NullIfEmpty(e.ActorID),
		sqldb.NullIfEmpty(e.ActorRef),
		sqldb.NullIfEmpty(before),
		sqldb.NullIfEmpty(after),
		sqldb.NullIfEmpty(strings.Join(e.Flags, ",")),
		sqldb.FormatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write system event: %w", err)
	}
	return nil
}

// WriteTimeline inserts one timeline entry.
func (s *SQLSink) WriteTimeline(ctx context.Context, e TimelineEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	meta, err := encodeMap(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO audit_timeline (id, owner_id, action, target, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		e.ID, e.OwnerID, e.Action, sqldb.NullIfEmpty(e.Target), sqldb.NullIfEmpty(meta), sqldb.FormatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}

// SystemEvents reads a scenario's events in write order.
func (s *SQLSink) SystemEvents(ctx context.Context, scenarioID string) ([]SystemEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT id, event_type, COALESCE(message, ''), COALESCE(scenario_id, ''), COALESCE(run_id, ''),
		        COALESCE(step_id, ''), COALESCE(action, ''), COALESCE(actor_id, ''), COALESCE(actor_ref, ''),
		        COALESCE(before_json, ''), COALESCE(after_json, ''), COALESCE(flags, ''), created_at
		 FROM audit_system_events WHERE scenario_id = ? ORDER BY created_at, id`),
		scenarioID,
	)
	if err != nil {
		return nil, fmt.Errorf("query system events: %w", err)
	}
	defer rows.Close()

	var out []SystemEvent
	for rows.Next() {
		var (
			e                    SystemEvent
			before, after, flags string
			createdAt            string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Message, &e.ScenarioID, &e.RunID, &e.StepID, &e.Action,
			&e.ActorID, &e.ActorRef, &before, &after, &flags, &createdAt); err != nil {
			return nil, fmt.Errorf("scan system event: %w", err)
		}
		if e.Before, err = decodeMap(before); err != nil {
			return nil, fmt.Errorf("decode before: %w", err)
		}
		if e.After, err = decodeMap(after); err != nil {
			return nil, fmt.Errorf("decode after: %w", err)
		}
		if flags != "" {
			e.Flags = strings.Split(flags, ",")
		}
		e.CreatedAt, _ = sqldb.ParseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion sql-sink

// #region helpers
func encodeMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// #endregion helpers
