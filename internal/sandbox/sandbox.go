// Package sandbox is a SQL-backed reference implementation of the action
// handler set and score lookup. Reference edges live in the peer graph;
// derived scores are recomputed only by the recalculate action, by folding
// trust.Reduce over a per-actor action log.
package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/eventlog"
	"github.com/Blackthor84/WorkVouch-sub000/internal/graph"
	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
)

const (
	baselineTrust   = 50.0
	baselineProfile = 40.0

	// neutralRating contributes nothing; each point above or below moves
	// the target by ratingScale.
	neutralRating = 3.0
	ratingScale   = 15.0
	maxRating     = 5.0
	edgeIncrement = 0.5

	profilePerReviewer = 10.0
)

// #region options
// Options tune scoring.
type Options struct {
	// CycleDiscount scales references whose edge closes a cycle back to the
	// reviewer by CycleWeight.
	CycleDiscount bool
	CycleWeight   float64
	CycleDepth    int

	// Journal, when set, receives every recalculation's action log as the
	// stream "<scope>:<actor>:<version>".
	Journal *eventlog.Store
	Logger  *slog.Logger

	// Industry and EmployerMode seed every actor's reducer state. Empty
	// values keep the reducer's defaults.
	Industry     string
	EmployerMode trust.EmployerMode
}

// DefaultOptions enables the cycle discount.
func DefaultOptions() Options {
	return Options{CycleDiscount: true, CycleWeight: 0.1, CycleDepth: 8}
}

// #endregion options

// #region sandbox
// Sandbox owns its tables on db. Scope is the sandbox id carried in
// action.ExecContext.
type Sandbox struct {
	db    *sql.DB
	graph *graph.GraphStore
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

// New migrates the sandbox tables on db.
func New(db *sql.DB, opts Options) (*Sandbox, error) {
	gs, err := graph.NewGraphStore(db)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sandbox schema: %w", err)
	}
	if opts.CycleWeight <= 0 {
		opts.CycleWeight = 0.1
	}
	if opts.CycleDepth <= 0 {
		opts.CycleDepth = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{
		db:    db,
		graph: gs,
		opts:  opts,
		log:   logger.With("component", "sandbox"),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Graph exposes the reference graph.
func (s *Sandbox) Graph() *graph.GraphStore { return s.graph }

// #endregion sandbox

// #region lookup
// Score returns the actor's stored trust score, or nil when the actor has
// never taken part in the scope.
func (s *Sandbox) Score(ctx context.Context, scope, actorID string) (*float64, error) {
	r, err := s.reputation(ctx, scope, actorID)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := r.Trust
	return &v, nil
}

// Reputation returns the full stored row for an actor.
func (s *Sandbox) Reputation(ctx context.Context, scope, actorID string) (Reputation, bool, error) {
	r, err := s.reputation(ctx, scope, actorID)
	if errors.Is(err, errNotFound) {
		return Reputation{}, false, nil
	}
	return r, err == nil, err
}

// Scores returns every stored trust score in scope.
func (s *Sandbox) Scores(ctx context.Context, scope string) (map[string]float64, error) {
	ids, err := s.actors(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		r, err := s.reputation(ctx, scope, id)
		if err != nil {
			return nil, err
		}
		out[id] = r.Trust
	}
	return out, nil
}

// #endregion lookup

// #region scoring
// recompute derives an actor's reputation from the references, flags and
// disputes in scope and stores it.
func (s *Sandbox) recompute(ctx context.Context, scope, actorID, actingUser string) (Reputation, error) {
	actions, err := s.scoringActions(ctx, scope, actorID)
	if err != nil {
		return Reputation{}, err
	}

	var user *string
	if actingUser != "" {
		user = &actingUser
	}
	e := eventlog.NewEngine()
	for _, a := range actions {
		if _, err := e.Dispatch(user, a); err != nil {
			return Reputation{}, fmt.Errorf("score %s: %w", actorID, err)
		}
	}
	st := e.State()
	verdict := trust.Evaluate(st)

	prev, err := s.reputation(ctx, scope, actorID)
	if err != nil {
		return Reputation{}, err
	}
	next := Reputation{
		ActorID:    actorID,
		Trust:      st.TrustScore,
		Profile:    st.ProfileStrength,
		Confidence: st.ConfidenceScore,
		Decision:   string(verdict.Decision),
		Version:    prev.Version + 1,
	}
	if err := s.writeReputation(ctx, scope, next); err != nil {
		return Reputation{}, err
	}
	if s.opts.Journal != nil {
		stream := fmt.Sprintf("%s:%s:%d", scope, actorID, next.Version)
		if err := s.opts.Journal.Append(ctx, stream, e.Log()...); err != nil {
			s.log.Warn("journal append failed", "stream", stream, "err", err)
		}
	}
	return next, nil
}

// scoringActions builds the reducer input for one actor: the peer edges,
// one scenario carrying the reference evidence, then penalties.
func (s *Sandbox) scoringActions(ctx context.Context, scope, actorID string) ([]trust.Action, error) {
	out, err := s.graph.GetNeighbors(ctx, scope, actorID, 0)
	if err != nil {
		return nil, err
	}
	in, err := s.graph.Incoming(ctx, scope, actorID, 0)
	if err != nil {
		return nil, err
	}
	strength := map[string]float64{}
	for _, e := range out {
		strength[e.TargetID] = max(strength[e.TargetID], e.Weight)
	}
	for _, e := range in {
		strength[e.SourceID] = max(strength[e.SourceID], e.Weight)
	}
	peers := make([]string, 0, len(strength))
	for p := range strength {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	actions := s.profileActions()
	for _, p := range peers {
		actions = append(actions, trust.ConnectPeer{PeerID: p, Strength: strength[p]})
	}

	reviewers, err := s.reviewers(ctx, scope, actorID)
	if err != nil {
		return nil, err
	}
	after := baselineTrust
	events := make([]trust.EventSpec, 0, len(reviewers))
	for _, r := range reviewers {
		m := 1.0
		if s.opts.CycleDiscount {
			cyclic, err := s.graph.InCycle(ctx, scope, r.ReviewerID, actorID, s.opts.CycleDepth, 64)
			if err != nil {
				return nil, err
			}
			if cyclic {
				m = s.opts.CycleWeight
			}
		}
		after += (r.AvgRating - neutralRating) * ratingScale * m
		events = append(events, trust.EventSpec{
			Type:   trust.EventReference,
			Detail: fmt.Sprintf("%s rated %.1f (x%d)", r.ReviewerID, r.AvgRating, r.Count),
		})
	}
	if len(reviewers) > 0 {
		actions = append(actions, trust.RunScenario{
			Label:           "recalculate",
			AfterTrust:      after,
			ProfileStrength: baselineProfile + profilePerReviewer*float64(len(reviewers)),
			Events:          events,
		})
	}

	flags, err := s.count(ctx,
		`SELECT COUNT(*) FROM sandbox_abuse_flags WHERE scope = ? AND target_id = ?`, scope, actorID)
	if err != nil {
		return nil, err
	}
	upheld, err := s.count(ctx,
		`SELECT COUNT(*) FROM sandbox_disputes WHERE scope = ? AND target_id = ? AND status = ?`,
		scope, actorID, disputeUpheld)
	if err != nil {
		return nil, err
	}
	if flags > 0 || upheld > 0 {
		actions = append(actions, trust.SetActorMode{Mode: trust.ActorEmployer})
	}
	if flags > 0 {
		actions = append(actions, trust.EmployerAbusePattern{
			Severity: abuseSeverity(flags),
			Reason:   fmt.Sprintf("%d abuse flag(s)", flags),
		})
	}
	for i := 0; i < upheld; i++ {
		actions = append(actions, trust.FlagInconsistency{Reason: "dispute upheld"})
	}
	return actions, nil
}

// profileActions configures the reducer before any evidence is folded.
func (s *Sandbox) profileActions() []trust.Action {
	base := trust.Initial()
	var out []trust.Action
	if s.opts.Industry != "" && s.opts.Industry != base.Industry {
		out = append(out, trust.SetIndustry{Industry: s.opts.Industry})
	}
	if s.opts.EmployerMode != "" && s.opts.EmployerMode != base.EmployerMode {
		out = append(out, trust.SetEmployerMode{Mode: s.opts.EmployerMode})
	}
	return out
}

func abuseSeverity(flags int) trust.Severity {
	switch {
	case flags >= 3:
		return trust.SeverityHigh
	case flags == 2:
		return trust.SeverityMedium
	default:
		return trust.SeverityLow
	}
}

// #endregion scoring
