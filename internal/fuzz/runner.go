package fuzz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
	"github.com/Blackthor84/WorkVouch-sub000/internal/invariant"
	"github.com/Blackthor84/WorkVouch-sub000/internal/scenario"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request describes one fuzz run. A non-nil Doc is run as given and the
// generator is skipped.
type Request struct {
	Attack    AttackType
	Bounds    Bounds
	Seed      uint32
	SandboxID string
	Doc       *scenario.Doc
}

// Runner generates documents, executes them and persists the outcome.
type Runner struct {
	scenarios *scenario.Runner
	store     Store
	reader    audit.Reader
	log       *slog.Logger
	runs      metric.Int64Counter
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner wires a fuzz runner. reader must observe the audit sink the
// scenario runner writes to.
func NewRunner(scenarios *scenario.Runner, store Store, reader audit.Reader, opts ...Option) *Runner {
	r := &Runner{
		scenarios: scenarios,
		store:     store,
		reader:    reader,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "fuzz")
	counter, err := otel.Meter("trustsim/fuzz").Int64Counter("trustsim.fuzz.runs",
		metric.WithDescription("Fuzz runs by attack type and final status"))
	if err == nil {
		r.runs = counter
	}
	return r
}

// Run executes one request. The record is created as running before any
// step executes and always ends completed or failed; a failed record is
// returned alongside the error.
func (r *Runner) Run(ctx context.Context, req Request) (rec RunRecord, err error) {
	doc := req.Doc
	if doc == nil {
		if doc, err = Generate(req.Attack, req.Bounds, req.Seed); err != nil {
			return RunRecord{}, err
		}
	}
	bounds := req.Bounds.normalized()
	sandboxID := req.SandboxID
	if sandboxID == "" {
		sandboxID = uuid.New().String()
	}
	actors := make(map[string]string, len(doc.Actors))
	for _, ref := range doc.ActorRefs() {
		actors[ref] = fmt.Sprintf("fz-%d-%s", req.Seed, ref)
	}

	now := r.now()
	rec = RunRecord{
		ID:           uuid.New().String(),
		ScenarioID:   doc.ID,
		ScenarioName: doc.Name,
		Attack:       req.Attack,
		Mode:         string(doc.Mode),
		SandboxID:    sandboxID,
		Seed:         req.Seed,
		Status:       StatusRunning,
		StepCount:    len(doc.Steps),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.CreateRun(ctx, rec); err != nil {
		return RunRecord{}, fmt.Errorf("create run: %w", err)
	}
	log := r.log.With("run", rec.ID, "scenario", doc.ID, "seed", req.Seed)
	log.InfoContext(ctx, "fuzz run started", "attack", req.Attack, "steps", rec.StepCount)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fuzz run panicked: %v", p)
		}
		if err != nil {
			rec.Status = StatusFailed
			rec.Summary.Error = err.Error()
			rec.UpdatedAt = r.now()
			if uerr := r.store.UpdateRun(context.WithoutCancel(ctx), rec); uerr != nil {
				log.ErrorContext(ctx, "mark run failed", "error", uerr)
			}
			log.ErrorContext(ctx, "fuzz run failed", "error", err)
		}
		r.count(ctx, rec)
	}()

	result, err := r.scenarios.Run(ctx, doc, scenario.Options{
		SandboxID: sandboxID,
		RunID:     rec.ID,
		Actors:    actors,
		Hook: func(ctx context.Context, _ scenario.StepResult, rows []invariant.Snapshot) error {
			return r.store.AppendSnapshots(ctx, rec.ID, rows)
		},
	})
	if err != nil {
		return rec, err
	}
	var baseline []invariant.Snapshot
	for _, s := range result.Series {
		if s.StepIndex < 0 {
			baseline = append(baseline, s)
		}
	}
	if err := r.store.AppendSnapshots(ctx, rec.ID, baseline); err != nil {
		return rec, err
	}

	in := invariantInput(doc, bounds)
	in.RunID = rec.ID
	in.Series = result.Series
	in.Reader = r.reader
	results, err := invariant.EvaluateAll(ctx, in)
	if err != nil {
		return rec, fmt.Errorf("evaluate invariants: %w", err)
	}

	rec.Invariants = results
	rec.Summary = summarize(result, results)
	rec.Status = StatusCompleted
	rec.UpdatedAt = r.now()
	if err := r.store.UpdateRun(ctx, rec); err != nil {
		return rec, fmt.Errorf("complete run: %w", err)
	}
	log.InfoContext(ctx, "fuzz run completed",
		"passed", rec.Summary.Passed, "invariants_passed", rec.Summary.InvariantsPassed)
	return rec, nil
}

func (r *Runner) count(ctx context.Context, rec RunRecord) {
	if r.runs == nil {
		return
	}
	r.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("attack", string(rec.Attack)),
		attribute.String("status", string(rec.Status)),
	))
}

// invariantInput parameterises the four checks from the document's own
// assertions, falling back to bounds and all declared actors.
func invariantInput(doc *scenario.Doc, b Bounds) invariant.Input {
	refs := doc.ActorRefs()
	in := invariant.Input{
		ScenarioID:          doc.ID,
		RingActors:          refs,
		MaxCombinedIncrease: b.MaxCombinedIncrease,
		WindowSteps:         b.WindowSteps,
		MaxOscillation:      b.MaxOscillation,
	}
	if len(refs) > 0 {
		in.StableActor = refs[0]
	}
	for _, a := range doc.Assertions {
		switch a.Type {
		case scenario.AssertNoLinearBoost:
			if len(a.Actors) > 0 {
				in.RingActors = a.Actors
			}
			if a.MaxCombinedIncrease > 0 {
				in.MaxCombinedIncrease = a.MaxCombinedIncrease
			}
		case scenario.AssertAbuseSignalsTriggered:
			in.MinAbuseSignals = a.MinCount
		case scenario.AssertTrustStabilizes:
			in.StableActor = a.Actor
			if a.WindowSteps > 0 {
				in.WindowSteps = a.WindowSteps
			}
			if a.MaxOscillation > 0 {
				in.MaxOscillation = a.MaxOscillation
			}
		}
	}
	return in
}

func summarize(res *scenario.RunResult, results []invariant.Result) Summary {
	s := Summary{
		Passed:           res.Passed,
		Partial:          res.Partial,
		StepsRun:         len(res.Steps),
		FailedStep:       res.FailedStep,
		AssertionsTotal:  len(res.Assertions),
		InvariantsPassed: invariant.AllPassed(results),
	}
	for _, a := range res.Assertions {
		if a.Passed {
			s.AssertionsPassed++
		}
	}
	return s
}
