package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS trust_events (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	stream              TEXT NOT NULL,
	id                  TEXT NOT NULL UNIQUE,
	engine_version      TEXT NOT NULL,
	acting_user         TEXT,
	action_type         TEXT NOT NULL,
	payload             TEXT NOT NULL,
	payload_fingerprint TEXT NOT NULL,
	state_fingerprint   TEXT NOT NULL,
	created_at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trust_events_stream ON trust_events(stream, seq);
`
// #endregion schema

// #region store-struct
// Store persists action logs in SQLite, one ordered stream per subject or run.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	return Open(db)
}

// Open runs migrations on an existing handle.
func Open(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle so sibling stores can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion constructor

// #region append
// Append writes records to the end of a stream inside one transaction.
func (s *Store) Append(ctx context.Context, stream string, recs ...Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range recs {
		var user any
		if r.ActingUser != nil {
			user = *r.ActingUser
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trust_events
			 (stream, id, engine_version, acting_user, action_type, payload, payload_fingerprint, state_fingerprint, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stream, r.ID, r.EngineVersion, user, string(r.ActionType), string(r.Payload),
			r.PayloadFingerprint, r.StateFingerprint, r.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
// #endregion append

// #region load
// Load returns a stream's records in append order.
func (s *Store) Load(ctx context.Context, stream string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, engine_version, acting_user, action_type, payload, payload_fingerprint, state_fingerprint, created_at
		 FROM trust_events WHERE stream = ? ORDER BY seq`,
		stream,
	)
	if err != nil {
		return nil, fmt.Errorf("query stream: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			user      sql.NullString
			kind      string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.EngineVersion, &user, &kind, &payload,
			&r.PayloadFingerprint, &r.StateFingerprint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if user.Valid {
			u := user.String
			r.ActingUser = &u
		}
		r.ActionType = trust.Kind(kind)
		r.Payload = []byte(payload)
		r.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// StreamInfo summarises one stream.
type StreamInfo struct {
	Stream  string
	Records int
	Last    time.Time
}

// Streams lists every stream with its record count, newest first.
func (s *Store) Streams(ctx context.Context) ([]StreamInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stream, COUNT(*), MAX(created_at) FROM trust_events GROUP BY stream ORDER BY MAX(seq) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	var out []StreamInfo
	for rows.Next() {
		var (
			info StreamInfo
			last string
		)
		if err := rows.Scan(&info.Stream, &info.Records, &last); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		info.Last, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, info)
	}
	return out, rows.Err()
}
// #endregion load
