// Package scenario parses SDL documents and runs them step by step against
// an action registry, with per-step impersonation and dual audit logging.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
	"github.com/Blackthor84/WorkVouch-sub000/internal/invariant"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScoreLookup reads an actor's current derived score, or nil when the
// actor has none.
type ScoreLookup interface {
	Score(ctx context.Context, scope, actorID string) (*float64, error)
}

// Attribution chooses who owns user-facing timeline entries.
type Attribution string

const (
	AttributeImpersonated Attribution = "impersonated"
	AttributeOperator     Attribution = "operator"
)

// userFacing actions also write a timeline entry.
var userFacing = map[string]bool{
	action.SubmitReference: true,
	action.FileDispute:     true,
	action.ResolveDispute:  true,
}

// #region options
// Hook runs after each executed step with the score rows captured for it.
// A returned error aborts the run.
type Hook func(ctx context.Context, step StepResult, rows []invariant.Snapshot) error

// Options configure one run.
type Options struct {
	SandboxID string
	RunID     string
	// Actors maps actor references to concrete ids. Nil maps every
	// declared actor to itself.
	Actors map[string]string
	// StartStep resumes at a step index without re-running earlier steps.
	StartStep   int
	OperatorID  string
	Attribution Attribution
	Hook        Hook
	// Scope for score lookups; defaults to SandboxID.
	Scope string
}

// #endregion options

// #region runner
// Runner executes documents. It holds no per-run state, so one Runner may
// serve concurrent runs.
type Runner struct {
	registry *action.Registry
	sink     audit.Sink
	scores   ScoreLookup
	log      *slog.Logger
	tracer   trace.Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithScoreLookup enables before/after capture and the score series.
func WithScoreLookup(l ScoreLookup) RunnerOption {
	return func(r *Runner) { r.scores = l }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner returns a runner over registry and sink. A nil sink keeps
// audit records in memory.
func NewRunner(registry *action.Registry, sink audit.Sink, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		sink:     sink,
		log:      slog.Default(),
		tracer:   otel.Tracer("trustsim/scenario"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sink == nil {
		r.sink = audit.NewMemorySink()
	}
	r.log = r.log.With("component", "scenario")
	return r
}

// #endregion runner

// #region run
type run struct {
	*Runner
	doc     *Doc
	opts    Options
	resolve map[string]string
	scope   string
	series  []invariant.Snapshot
	started bool
}

// Run executes doc sequentially and evaluates its assertions. Step and
// assertion failures are reported in the result; the error is reserved for
// infrastructure faults such as a failing hook.
func (r *Runner) Run(ctx context.Context, doc *Doc, opts Options) (*RunResult, error) {
	if opts.StartStep < 0 || opts.StartStep > len(doc.Steps) {
		return nil, fmt.Errorf("start step %d outside [0,%d]", opts.StartStep, len(doc.Steps))
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	if opts.Attribution == "" {
		opts.Attribution = AttributeImpersonated
	}
	resolve := opts.Actors
	if resolve == nil {
		resolve = make(map[string]string, len(doc.Actors))
		for _, a := range doc.Actors {
			resolve[a.ID] = a.ID
		}
	}
	scope := opts.Scope
	if scope == "" {
		scope = opts.SandboxID
	}
	st := &run{Runner: r, doc: doc, opts: opts, resolve: resolve, scope: scope}

	ctx, span := r.tracer.Start(ctx, "scenario.run", trace.WithAttributes(
		attribute.String("scenario.id", doc.ID),
		attribute.String("scenario.mode", string(doc.Mode)),
		attribute.String("run.id", opts.RunID),
		attribute.Int("scenario.steps", len(doc.Steps)),
	))
	defer span.End()

	res := &RunResult{
		ScenarioID: doc.ID,
		RunID:      opts.RunID,
		SandboxID:  opts.SandboxID,
		Steps:      []StepResult{},
		FailedStep: -1,
	}
	for i := opts.StartStep; i < len(doc.Steps); i++ {
		sr, err := st.step(ctx, i)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		res.Steps = append(res.Steps, sr)
		if !sr.OK {
			res.FailedStep = i
			res.Partial = true
			r.log.WarnContext(ctx, "run failed, partial",
				"scenario", doc.ID, "run", opts.RunID, "step", sr.StepID, "error", sr.Error)
			break
		}
	}
	res.Series = st.series

	assertions, err := st.assertions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Assertions = assertions

	res.Passed = res.FailedStep < 0
	for _, a := range res.Assertions {
		res.Passed = res.Passed && a.Passed
	}
	span.SetAttributes(attribute.Bool("scenario.passed", res.Passed))
	if !res.Passed {
		span.SetStatus(codes.Error, "scenario failed")
	}
	return res, nil
}

// #endregion run

// #region step
func (st *run) step(ctx context.Context, i int) (StepResult, error) {
	step := st.doc.Steps[i]
	ctx, span := st.tracer.Start(ctx, "scenario.step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.action", step.Action),
		attribute.String("step.as", step.As),
	))
	defer span.End()

	sr := StepResult{Index: i, StepID: step.ID, Action: step.Action, ActorRef: step.As}
	safe := st.doc.Mode == ModeSafe

	if step.RealOnly && safe {
		sr.OK, sr.Skipped = true, true
		sr.Result = action.Success(map[string]any{"skipped": SkippedRealOnly})
		st.writeSystem(ctx, audit.SystemEvent{
			Type:     audit.TypeStepSkipped,
			Message:  SkippedRealOnly,
			StepID:   step.ID,
			Action:   step.Action,
			ActorRef: step.As,
		})
		return sr, nil
	}

	actorID, ok := st.resolve[step.As]
	if !ok {
		return st.reject(ctx, span, sr, "unresolved actor reference: %s", step.As), nil
	}
	sr.ActorID = actorID
	params, err := Substitute(step.Params, st.resolve)
	if err != nil {
		return st.reject(ctx, span, sr, "step %s params: %v", step.ID, err), nil
	}

	if err := st.baseline(ctx); err != nil {
		return sr, err
	}

	ec := action.ExecContext{
		RunID:      st.opts.RunID,
		SandboxID:  st.opts.SandboxID,
		ScenarioID: st.doc.ID,
		Mode:       string(st.doc.Mode),
		ActorRef:   step.As,
		ActorID:    actorID,
		StepID:     step.ID,
		SafeMode:   safe,
	}
	targets := st.captureTargets(step.Action, actorID, params)
	sr.Before = st.capture(ctx, targets)
	sr.Result = st.registry.Invoke(ctx, step.Action, params, ec)
	sr.After = st.capture(ctx, targets)

	sr.OK, sr.Error = matchExpect(step.Expect, sr.Result)
	typ := audit.TypeStepExecuted
	if !sr.OK {
		typ = audit.TypeStepFailed
		span.SetStatus(codes.Error, sr.Error)
	}
	st.writeSystem(ctx, audit.SystemEvent{
		Type:     typ,
		Message:  sr.Error,
		StepID:   step.ID,
		Action:   step.Action,
		ActorID:  actorID,
		ActorRef: step.As,
		Before:   sr.Before,
		After:    sr.After,
		Flags:    sr.Result.Flags,
	})
	if sr.Result.OK && userFacing[step.Action] {
		st.writeTimeline(ctx, step, actorID, params)
	}

	rows, err := st.snapshot(ctx, i)
	if err != nil {
		return sr, err
	}
	st.series = append(st.series, rows...)
	if st.opts.Hook != nil {
		if err := st.opts.Hook(ctx, sr, rows); err != nil {
			return sr, fmt.Errorf("step %s hook: %w", step.ID, err)
		}
	}
	return sr, nil
}

// reject fails a step before its handler runs.
func (st *run) reject(ctx context.Context, span trace.Span, sr StepResult, format string, args ...any) StepResult {
	sr.Result = action.Failure(http.StatusBadRequest, format, args...).WithFlags(action.FlagValidationError)
	sr.Error = sr.Result.Error
	span.SetStatus(codes.Error, sr.Error)
	st.writeSystem(ctx, audit.SystemEvent{
		Type:     audit.TypeStepFailed,
		Message:  sr.Error,
		StepID:   sr.StepID,
		Action:   sr.Action,
		ActorID:  sr.ActorID,
		ActorRef: sr.ActorRef,
		Flags:    sr.Result.Flags,
	})
	return sr
}

func matchExpect(e *Expect, r action.Result) (bool, string) {
	if e == nil {
		if r.OK {
			return true, ""
		}
		return false, r.Error
	}
	var miss []string
	if e.OK != nil && *e.OK != r.OK {
		miss = append(miss, fmt.Sprintf("expected ok=%t, got ok=%t", *e.OK, r.OK))
	}
	if e.Status != 0 && e.Status != r.Status {
		miss = append(miss, fmt.Sprintf("expected status %d, got %d", e.Status, r.Status))
	}
	if e.ErrorContains != "" && !strings.Contains(r.Error, e.ErrorContains) {
		miss = append(miss, fmt.Sprintf("expected error containing %q, got %q", e.ErrorContains, r.Error))
	}
	if len(miss) > 0 {
		return false, strings.Join(miss, "; ")
	}
	return true, ""
}

// #endregion step

// #region capture
// captureTargets picks the actors whose scores an action can move: the
// step's actor plus any actor id named in params. Recalculation can move
// every actor.
func (st *run) captureTargets(name, actorID string, params map[string]any) []string {
	if name == action.Recalculate {
		ids := make([]string, 0, len(st.doc.Actors))
		for _, ref := range st.doc.ActorRefs() {
			if id, ok := st.resolve[ref]; ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	known := make(map[string]bool, len(st.resolve))
	for _, id := range st.resolve {
		known[id] = true
	}
	ids := []string{actorID}
	seen := map[string]bool{actorID: true}
	for _, v := range params {
		if s, ok := v.(string); ok && known[s] && !seen[s] {
			ids = append(ids, s)
			seen[s] = true
		}
	}
	return ids
}

func (st *run) capture(ctx context.Context, ids []string) map[string]any {
	if st.scores == nil || len(ids) == 0 {
		return nil
	}
	out := make(map[string]any, len(ids))
	for _, id := range ids {
		v, err := st.scores.Score(ctx, st.scope, id)
		if err != nil {
			st.log.WarnContext(ctx, "score capture failed", "actor", id, "err", err)
			continue
		}
		if v == nil {
			out[id] = nil
			continue
		}
		out[id] = *v
	}
	return out
}

// baseline records one row per actor before the first executed step.
func (st *run) baseline(ctx context.Context) error {
	if st.started {
		return nil
	}
	st.started = true
	rows, err := st.snapshot(ctx, -1)
	if err != nil {
		return err
	}
	st.series = append(st.series, rows...)
	return nil
}

// snapshot reads every actor's score. Actors without a score are omitted.
func (st *run) snapshot(ctx context.Context, stepIndex int) ([]invariant.Snapshot, error) {
	if st.scores == nil {
		return nil, nil
	}
	var rows []invariant.Snapshot
	for _, ref := range st.doc.ActorRefs() {
		id, ok := st.resolve[ref]
		if !ok {
			continue
		}
		v, err := st.scores.Score(ctx, st.scope, id)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", ref, err)
		}
		if v == nil {
			continue
		}
		rows = append(rows, invariant.Snapshot{StepIndex: stepIndex, ActorRef: ref, ActorID: id, Value: *v})
	}
	return rows, nil
}

// #endregion capture

// #region audit
func (st *run) writeSystem(ctx context.Context, e audit.SystemEvent) {
	e.ScenarioID = st.doc.ID
	e.RunID = st.opts.RunID
	e.CreatedAt = time.Now().UTC()
	if err := st.sink.WriteSystem(ctx, e); err != nil {
		st.log.WarnContext(ctx, "system audit write failed", "step", e.StepID, "err", err)
	}
}

func (st *run) writeTimeline(ctx context.Context, step Step, actorID string, params map[string]any) {
	owner := actorID
	if st.opts.Attribution == AttributeOperator && st.opts.OperatorID != "" {
		owner = st.opts.OperatorID
	}
	target, _ := action.String(params, "target")
	meta := map[string]any{
		"scenario_id": st.doc.ID,
		"run_id":      st.opts.RunID,
		"step_id":     step.ID,
		"actor_id":    actorID,
	}
	if owner != actorID {
		meta["impersonated"] = actorID
	}
	err := st.sink.WriteTimeline(ctx, audit.TimelineEntry{
		OwnerID:  owner,
		Action:   step.Action,
		Target:   target,
		Metadata: meta,
	})
	if err != nil {
		st.log.WarnContext(ctx, "timeline write failed", "step", step.ID, "err", err)
	}
}

// #endregion audit
