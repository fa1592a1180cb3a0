package fuzz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/invariant"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sqldb"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("fuzz run not found")

// Status of a persisted run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Summary is the compact outcome stored with a run.
type Summary struct {
	Passed           bool   `json:"passed"`
	Partial          bool   `json:"partial"`
	StepsRun         int    `json:"steps_run"`
	FailedStep       int    `json:"failed_step"`
	AssertionsPassed int    `json:"assertions_passed"`
	AssertionsTotal  int    `json:"assertions_total"`
	InvariantsPassed bool   `json:"invariants_passed"`
	Error            string `json:"error,omitempty"`
}

// RunRecord is one fuzz execution.
type RunRecord struct {
	ID           string             `json:"id"`
	ScenarioID   string             `json:"scenario_id"`
	ScenarioName string             `json:"scenario_name"`
	Attack       AttackType         `json:"attack_type"`
	Mode         string             `json:"mode"`
	SandboxID    string             `json:"sandbox_id"`
	Seed         uint32             `json:"seed"`
	Status       Status             `json:"status"`
	StepCount    int                `json:"step_count"`
	Summary      Summary            `json:"result_summary"`
	Invariants   []invariant.Result `json:"invariant_results"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Store persists runs and their score snapshots.
type Store interface {
	CreateRun(ctx context.Context, rec RunRecord) error
	UpdateRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	// ListRuns returns the newest runs first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	AppendSnapshots(ctx context.Context, runID string, rows []invariant.Snapshot) error
	// Snapshots returns rows ordered by step index then actor reference.
	Snapshots(ctx context.Context, runID string) ([]invariant.Snapshot, error)
}

func sortSnapshots(rows []invariant.Snapshot) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].StepIndex != rows[j].StepIndex {
			return rows[i].StepIndex < rows[j].StepIndex
		}
		return rows[i].ActorRef < rows[j].ActorRef
	})
}

// #region memory-store
// MemoryStore keeps runs in process.
type MemoryStore struct {
	mu        sync.Mutex
	runs      map[string]RunRecord
	snapshots map[string][]invariant.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string]RunRecord{}, snapshots: map[string][]invariant.Snapshot{}}
}

func (m *MemoryStore) CreateRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.ID]; ok {
		return fmt.Errorf("create run: %s already exists", rec.ID)
	}
	m.runs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) UpdateRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.ID]; !ok {
		return fmt.Errorf("update run %s: %w", rec.ID, ErrRunNotFound)
	}
	m.runs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.runs[id]
	if !ok {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.Lock()
	out := make([]RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendSnapshots(_ context.Context, runID string, rows []invariant.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[runID] = append(m.snapshots[runID], rows...)
	return nil
}

func (m *MemoryStore) Snapshots(_ context.Context, runID string) ([]invariant.Snapshot, error) {
	m.mu.Lock()
	out := slices.Clone(m.snapshots[runID])
	m.mu.Unlock()
	sortSnapshots(out)
	return out, nil
}

// #endregion memory-store

// #region sql-store
const schema = `
CREATE TABLE IF NOT EXISTS fuzz_runs (
	id                TEXT PRIMARY KEY,
	scenario_id       TEXT NOT NULL,
	scenario_name     TEXT,
	attack_type       TEXT,
	mode              TEXT NOT NULL,
	sandbox_id        TEXT NOT NULL,
	seed              BIGINT NOT NULL,
	status            TEXT NOT NULL,
	step_count        INTEGER NOT NULL,
	result_summary    TEXT,
	invariant_results TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fuzz_runs_created ON fuzz_runs(created_at);

CREATE TABLE IF NOT EXISTS fuzz_snapshots (
	run_id     TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	actor_ref  TEXT NOT NULL,
	actor_id   TEXT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, step_index, actor_ref)
);
`

// SQLStore persists runs to SQLite or Postgres.
type SQLStore struct {
	db *sqldb.DB
}

// NewSQLStore creates tables and returns a store.
func NewSQLStore(db *sqldb.DB) (*SQLStore, error) {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("fuzz schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) CreateRun(ctx context.Context, rec RunRecord) error {
	summary, results, err := encodeRun(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO fuzz_runs (id, scenario_id, scenario_name, attack_type, mode, sandbox_id, seed, status,
		                        step_count, result_summary, invariant_results, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.ScenarioID, rec.ScenarioName, string(rec.Attack), rec.Mode, rec.SandboxID, int64(rec.Seed),
		string(rec.Status), rec.StepCount, summary, results,
		sqldb.FormatTime(rec.CreatedAt), sqldb.FormatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateRun(ctx context.Context, rec RunRecord) error {
	summary, results, err := encodeRun(rec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE fuzz_runs SET status = ?, result_summary = ?, invariant_results = ?, updated_at = ? WHERE id = ?`),
		string(rec.Status), summary, results, sqldb.FormatTime(rec.UpdatedAt), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", rec.ID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, scenario_id, COALESCE(scenario_name, ''), COALESCE(attack_type, ''), mode, sandbox_id, seed,
	status, step_count, COALESCE(result_summary, ''), COALESCE(invariant_results, ''), created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec                  RunRecord
		attack, status       string
		seed                 int64
		summary, results     string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.ScenarioID, &rec.ScenarioName, &attack, &rec.Mode, &rec.SandboxID, &seed,
		&status, &rec.StepCount, &summary, &results, &createdAt, &updatedAt); err != nil {
		return RunRecord{}, err
	}
	rec.Attack, rec.Status, rec.Seed = AttackType(attack), Status(status), uint32(seed)
	if summary != "" {
		if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
			return RunRecord{}, fmt.Errorf("decode summary: %w", err)
		}
	}
	if results != "" {
		if err := json.Unmarshal([]byte(results), &rec.Invariants); err != nil {
			return RunRecord{}, fmt.Errorf("decode invariants: %w", err)
		}
	}
	rec.CreatedAt, _ = sqldb.ParseTime(createdAt)
	rec.UpdatedAt, _ = sqldb.ParseTime(updatedAt)
	return rec, nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+runColumns+` FROM fuzz_runs WHERE id = ?`), id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT `+runColumns+` FROM fuzz_runs ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) AppendSnapshots(ctx context.Context, runID string, rows []invariant.Snapshot) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshots: %w", err)
	}
	defer tx.Rollback()
	q := s.db.Rebind(`INSERT INTO fuzz_snapshots (run_id, step_index, actor_ref, actor_id, value) VALUES (?, ?, ?, ?, ?)`)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, q, runID, r.StepIndex, r.ActorRef, r.ActorID, r.Value); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}

func (s *SQLStore) Snapshots(ctx context.Context, runID string) ([]invariant.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`SELECT step_index, actor_ref, actor_id, value FROM fuzz_snapshots WHERE run_id = ? ORDER BY step_index, actor_ref`),
		runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	var out []invariant.Snapshot
	for rows.Next() {
		var r invariant.Snapshot
		if err := rows.Scan(&r.StepIndex, &r.ActorRef, &r.ActorID, &r.Value); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func encodeRun(rec RunRecord) (summary, results string, err error) {
	b, err := json.Marshal(rec.Summary)
	if err != nil {
		return "", "", fmt.Errorf("encode summary: %w", err)
	}
	summary = string(b)
	if rec.Invariants != nil {
		b, err = json.Marshal(rec.Invariants)
		if err != nil {
			return "", "", fmt.Errorf("encode invariants: %w", err)
		}
		results = string(b)
	}
	return summary, results, nil
}

// #endregion sql-store
