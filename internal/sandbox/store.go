package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/sqldb"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sandbox_reputation (
	scope       TEXT NOT NULL,
	actor_id    TEXT NOT NULL,
	trust       REAL NOT NULL,
	profile     REAL NOT NULL,
	confidence  REAL NOT NULL,
	decision    TEXT,
	version     INTEGER NOT NULL DEFAULT 0,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (scope, actor_id)
);

CREATE TABLE IF NOT EXISTS sandbox_references (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	reviewer_id TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	rating      REAL NOT NULL,
	comment     TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sandbox_references_target ON sandbox_references(scope, target_id);

CREATE TABLE IF NOT EXISTS sandbox_abuse_flags (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	reporter_id TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sandbox_disputes (
	id           TEXT PRIMARY KEY,
	scope        TEXT NOT NULL,
	filer_id     TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	reference_id TEXT,
	reason       TEXT,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	resolved_at  TEXT
);
`

// #endregion schema

var errNotFound = errors.New("not found")

// #region records
// Reputation is one actor's stored derived score.
type Reputation struct {
	ActorID    string
	Trust      float64
	Profile    float64
	Confidence float64
	Decision   string
	Version    int
	UpdatedAt  time.Time
}

type reviewerSummary struct {
	ReviewerID string
	AvgRating  float64
	Count      int
}

type dispute struct {
	ID          string
	FilerID     string
	TargetID    string
	ReferenceID string
	Status      string
}

const (
	disputeOpen     = "open"
	disputeUpheld   = "upheld"
	disputeRejected = "rejected"
)

// #endregion records

// #region rows
func (s *Sandbox) ensureActor(ctx context.Context, scope, actorID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sandbox_reputation (scope, actor_id, trust, profile, confidence, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(scope, actor_id) DO NOTHING`,
		scope, actorID, baselineTrust, baselineProfile, 0.0, sqldb.FormatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("ensure actor %s: %w", actorID, err)
	}
	return nil
}

func (s *Sandbox) reputation(ctx context.Context, scope, actorID string) (Reputation, error) {
	var (
		r         Reputation
		decision  sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT actor_id, trust, profile, confidence, decision, version, updated_at
		 FROM sandbox_reputation WHERE scope = ? AND actor_id = ?`,
		scope, actorID,
	).Scan(&r.ActorID, &r.Trust, &r.Profile, &r.Confidence, &decision, &r.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Reputation{}, errNotFound
	}
	if err != nil {
		return Reputation{}, fmt.Errorf("read reputation: %w", err)
	}
	r.Decision = decision.String
	r.UpdatedAt, _ = sqldb.ParseTime(updatedAt)
	return r, nil
}

func (s *Sandbox) actors(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT actor_id FROM sandbox_reputation WHERE scope = ? ORDER BY actor_id`, scope)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Sandbox) writeReputation(ctx context.Context, scope string, r Reputation) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sandbox_reputation
		 SET trust = ?, profile = ?, confidence = ?, decision = ?, version = ?, updated_at = ?
		 WHERE scope = ? AND actor_id = ?`,
		r.Trust, r.Profile, r.Confidence, r.Decision, r.Version, sqldb.FormatTime(s.now()),
		scope, r.ActorID,
	)
	if err != nil {
		return fmt.Errorf("write reputation: %w", err)
	}
	return nil
}

func (s *Sandbox) reviewers(ctx context.Context, scope, targetID string) ([]reviewerSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reviewer_id, AVG(rating), COUNT(*) FROM sandbox_references
		 WHERE scope = ? AND target_id = ? GROUP BY reviewer_id ORDER BY reviewer_id`,
		scope, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reviewers: %w", err)
	}
	defer rows.Close()
	var out []reviewerSummary
	for rows.Next() {
		var r reviewerSummary
		if err := rows.Scan(&r.ReviewerID, &r.AvgRating, &r.Count); err != nil {
			return nil, fmt.Errorf("scan reviewer: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Sandbox) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Sandbox) loadDispute(ctx context.Context, scope, id string) (dispute, error) {
	var (
		d   dispute
		ref sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filer_id, target_id, reference_id, status FROM sandbox_disputes WHERE scope = ? AND id = ?`,
		scope, id,
	).Scan(&d.ID, &d.FilerID, &d.TargetID, &ref, &d.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return dispute{}, errNotFound
	}
	if err != nil {
		return dispute{}, fmt.Errorf("read dispute: %w", err)
	}
	d.ReferenceID = ref.String
	return d, nil
}

// latestOpenDispute finds the newest open dispute filed by filerID.
func (s *Sandbox) latestOpenDispute(ctx context.Context, scope, filerID string) (dispute, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sandbox_disputes WHERE scope = ? AND filer_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		scope, filerID, disputeOpen,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return dispute{}, errNotFound
	}
	if err != nil {
		return dispute{}, fmt.Errorf("find dispute: %w", err)
	}
	return s.loadDispute(ctx, scope, id)
}

// #endregion rows
