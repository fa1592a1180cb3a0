package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/graph"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sqldb"
	"github.com/google/uuid"
)

// Register binds the five sandbox handlers to r.
func (s *Sandbox) Register(r *action.Registry) {
	r.Register(action.SubmitReference, s.submitReference)
	r.Register(action.Recalculate, s.recalculate)
	r.Register(action.FlagAbuse, s.flagAbuse)
	r.Register(action.FileDispute, s.fileDispute)
	r.Register(action.ResolveDispute, s.resolveDispute)
}

func invalid(format string, args ...any) action.Result {
	return action.Failure(http.StatusBadRequest, format, args...).WithFlags(action.FlagValidationError)
}

func internalError(err error) action.Result {
	return action.Failure(http.StatusInternalServerError, "%v", err)
}

// #region submit-reference
func (s *Sandbox) submitReference(ctx context.Context, params map[string]any, ec action.ExecContext) action.Result {
	target, ok := action.String(params, "target")
	if !ok {
		return invalid("target is required")
	}
	if target == ec.ActorID {
		return invalid("cannot reference yourself")
	}
	rating, ok := action.Float(params, "rating")
	if !ok {
		return invalid("rating is required")
	}
	if rating < 1 || rating > maxRating {
		return action.Failure(http.StatusUnprocessableEntity, "rating %.1f outside [1,5]", rating)
	}
	comment, _ := action.String(params, "comment")
	scope := ec.SandboxID

	for _, id := range []string{ec.ActorID, target} {
		if err := s.ensureActor(ctx, scope, id); err != nil {
			return internalError(err)
		}
	}
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sandbox_references (id, scope, reviewer_id, target_id, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, scope, ec.ActorID, target, rating, sqldb.NullIfEmpty(comment), sqldb.FormatTime(s.now()),
	); err != nil {
		return internalError(err)
	}
	if err := s.graph.IncrementEdge(ctx, scope, ec.ActorID, target, graph.EdgeReference, rating/maxRating*edgeIncrement); err != nil {
		return internalError(err)
	}

	back, err := s.graph.GetNeighbors(ctx, scope, target, 0)
	if err != nil {
		return internalError(err)
	}
	reciprocal := false
	for _, e := range back {
		if e.TargetID == ec.ActorID && e.EdgeType == graph.EdgeReference {
			reciprocal = true
			break
		}
	}

	res := action.Success(map[string]any{
		"reference_id": id,
		"target":       target,
		"rating":       rating,
		"reciprocal":   reciprocal,
	})
	if reciprocal {
		res = res.WithFlags(action.FlagReciprocalReference)
	}
	return res
}

// #endregion submit-reference

// #region recalculate
func (s *Sandbox) recalculate(ctx context.Context, params map[string]any, ec action.ExecContext) action.Result {
	scope := ec.SandboxID
	if decay, ok := action.Float(params, "decay"); ok && decay > 0 {
		pruned, err := s.graph.DecayAll(ctx, scope, 1-decay)
		if err != nil {
			return invalid("decay: %v", err)
		}
		s.log.Debug("decayed reference graph", "scope", scope, "pruned", pruned)
	}

	var ids []string
	if one, ok := action.String(params, "actor"); ok {
		if _, found, err := s.Reputation(ctx, scope, one); err != nil {
			return internalError(err)
		} else if !found {
			return action.Failure(http.StatusNotFound, "unknown actor: %s", one)
		}
		ids = []string{one}
	} else {
		var err error
		if ids, err = s.actors(ctx, scope); err != nil {
			return internalError(err)
		}
	}

	scores := make(map[string]any, len(ids))
	decisions := make(map[string]any, len(ids))
	for _, id := range ids {
		r, err := s.recompute(ctx, scope, id, ec.ActorID)
		if err != nil {
			return internalError(err)
		}
		scores[id] = r.Trust
		decisions[id] = r.Decision
	}
	return action.Success(map[string]any{"scores": scores, "decisions": decisions})
}

// #endregion recalculate

// #region flag-abuse
func (s *Sandbox) flagAbuse(ctx context.Context, params map[string]any, ec action.ExecContext) action.Result {
	target, ok := action.String(params, "target")
	if !ok {
		return invalid("target is required")
	}
	reason, _ := action.String(params, "reason")
	scope := ec.SandboxID

	for _, id := range []string{ec.ActorID, target} {
		if err := s.ensureActor(ctx, scope, id); err != nil {
			return internalError(err)
		}
	}
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sandbox_abuse_flags (id, scope, reporter_id, target_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, scope, ec.ActorID, target, sqldb.NullIfEmpty(reason), sqldb.FormatTime(s.now()),
	); err != nil {
		return internalError(err)
	}
	severed := false
	if sever, _ := action.Bool(params, "sever"); sever {
		if err := s.graph.SeverNode(ctx, scope, target); err != nil {
			return internalError(err)
		}
		severed = true
	}
	return action.Success(map[string]any{"flag_id": id, "target": target, "severed": severed}).
		WithFlags(action.FlagAbuseSignal)
}

// #endregion flag-abuse

// #region disputes
func (s *Sandbox) fileDispute(ctx context.Context, params map[string]any, ec action.ExecContext) action.Result {
	target, ok := action.String(params, "target")
	if !ok {
		return invalid("target is required")
	}
	refID, _ := action.String(params, "reference_id")
	reason, _ := action.String(params, "reason")
	scope := ec.SandboxID

	for _, id := range []string{ec.ActorID, target} {
		if err := s.ensureActor(ctx, scope, id); err != nil {
			return internalError(err)
		}
	}
	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sandbox_disputes (id, scope, filer_id, target_id, reference_id, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, scope, ec.ActorID, target, sqldb.NullIfEmpty(refID), sqldb.NullIfEmpty(reason),
		disputeOpen, sqldb.FormatTime(s.now()),
	); err != nil {
		return internalError(err)
	}
	return action.Success(map[string]any{"dispute_id": id, "target": target, "status": disputeOpen})
}

func (s *Sandbox) resolveDispute(ctx context.Context, params map[string]any, ec action.ExecContext) action.Result {
	scope := ec.SandboxID
	outcome, _ := action.String(params, "outcome")
	if outcome == "" {
		outcome = disputeRejected
	}
	if outcome != disputeUpheld && outcome != disputeRejected {
		return invalid("outcome must be %q or %q", disputeUpheld, disputeRejected)
	}

	var (
		d   dispute
		err error
	)
	if id, ok := action.String(params, "dispute_id"); ok {
		d, err = s.loadDispute(ctx, scope, id)
	} else {
		d, err = s.latestOpenDispute(ctx, scope, ec.ActorID)
	}
	if errors.Is(err, errNotFound) {
		return action.Failure(http.StatusNotFound, "dispute not found")
	}
	if err != nil {
		return internalError(err)
	}
	if d.Status != disputeOpen {
		return action.Failure(http.StatusConflict, "dispute %s already %s", d.ID, d.Status)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE sandbox_disputes SET status = ?, resolved_at = ? WHERE scope = ? AND id = ?`,
		outcome, sqldb.FormatTime(s.now()), scope, d.ID,
	); err != nil {
		return internalError(err)
	}
	if outcome == disputeUpheld && d.ReferenceID != "" {
		if err := s.withdrawReference(ctx, scope, d.ReferenceID); err != nil {
			return internalError(err)
		}
	}
	return action.Success(map[string]any{"dispute_id": d.ID, "target": d.TargetID, "status": outcome})
}

// withdrawReference deletes a disputed reference and rebuilds the edge it
// contributed to from the references that remain.
func (s *Sandbox) withdrawReference(ctx context.Context, scope, refID string) error {
	var reviewer, target string
	err := s.db.QueryRowContext(ctx,
		`SELECT reviewer_id, target_id FROM sandbox_references WHERE scope = ? AND id = ?`, scope, refID,
	).Scan(&reviewer, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read reference: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sandbox_references WHERE scope = ? AND id = ?`, scope, refID); err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	if err := s.graph.RemoveEdge(ctx, scope, reviewer, target, graph.EdgeReference); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rating FROM sandbox_references WHERE scope = ? AND reviewer_id = ? AND target_id = ?`,
		scope, reviewer, target)
	if err != nil {
		return fmt.Errorf("query remaining references: %w", err)
	}
	var remaining []float64
	for rows.Next() {
		var rating float64
		if err := rows.Scan(&rating); err != nil {
			rows.Close()
			return fmt.Errorf("scan rating: %w", err)
		}
		remaining = append(remaining, rating)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, rating := range remaining {
		if err := s.graph.IncrementEdge(ctx, scope, reviewer, target, graph.EdgeReference, rating/maxRating*edgeIncrement); err != nil {
			return err
		}
	}
	return nil
}

// #endregion disputes
