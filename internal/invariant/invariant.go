// Package invariant evaluates trust-safety properties over a recorded
// per-step score series and the audit log of one scenario.
package invariant

import (
	"context"
	"fmt"
	"math"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
)

// Invariant names.
const (
	NameReputationNotLinear   = "reputation_not_linear"
	NameAbuseSignalsTriggered = "abuse_signals_triggered"
	NameTrustStabilizes       = "trust_stabilizes"
	NameRateLimitsActivate    = "rate_limits_activate"
)

// #region types
// Snapshot is one actor's score after one step. StepIndex -1 is the
// baseline captured before the first step.
type Snapshot struct {
	StepIndex int     `json:"step_index"`
	ActorRef  string  `json:"actor_ref"`
	ActorID   string  `json:"actor_id"`
	Value     float64 `json:"value"`
}

// Result is the structured outcome of one check.
type Result struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Message string  `json:"message,omitempty"`
	Actual  float64 `json:"actual"`
}

// #endregion types

// #region series
func values(series []Snapshot, actorRef string) []float64 {
	var out []float64
	for _, s := range series {
		if s.ActorRef == actorRef {
			out = append(out, s.Value)
		}
	}
	return out
}

// #endregion series

// #region checks
// ReputationNotLinear sums each named actor's positive (last - first)
// change and fails when the total exceeds maxCombinedIncrease.
func ReputationNotLinear(series []Snapshot, actorRefs []string, maxCombinedIncrease float64) Result {
	var total float64
	for _, ref := range actorRefs {
		v := values(series, ref)
		if len(v) == 0 {
			continue
		}
		if d := v[len(v)-1] - v[0]; d > 0 {
			total += d
		}
	}
	r := Result{Name: NameReputationNotLinear, Actual: total, Passed: total <= maxCombinedIncrease}
	if !r.Passed {
		r.Message = fmt.Sprintf("combined increase %.2f exceeds %.2f", total, maxCombinedIncrease)
	}
	return r
}

// AbuseSignalsTriggered counts abuse-flag audit events for the scenario.
// A non-empty runID restricts the count to that run's events.
func AbuseSignalsTriggered(ctx context.Context, reader audit.Reader, scenarioID, runID string, minCount int) (Result, error) {
	events, err := RunEvents(ctx, reader, scenarioID, runID)
	if err != nil {
		return Result{}, fmt.Errorf("abuse signals: %w", err)
	}
	n := audit.CountFlag(events, action.FlagAbuseSignal)
	r := Result{Name: NameAbuseSignalsTriggered, Actual: float64(n), Passed: n >= minCount}
	if !r.Passed {
		r.Message = fmt.Sprintf("%d abuse signal(s), want at least %d", n, minCount)
	}
	return r, nil
}

// TrustStabilizes fails when max - min over the trailing windowSteps
// values of one actor exceeds maxOscillation.
func TrustStabilizes(series []Snapshot, actorRef string, windowSteps int, maxOscillation float64) Result {
	v := values(series, actorRef)
	if windowSteps > 0 && len(v) > windowSteps {
		v = v[len(v)-windowSteps:]
	}
	r := Result{Name: NameTrustStabilizes, Passed: true}
	if len(v) == 0 {
		r.Message = fmt.Sprintf("no values recorded for %s", actorRef)
		return r
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	r.Actual = hi - lo
	if r.Actual > maxOscillation {
		r.Passed = false
		r.Message = fmt.Sprintf("oscillation %.2f over %d steps exceeds %.2f", r.Actual, len(v), maxOscillation)
	}
	return r
}

// RateLimitsActivate always passes. It reports whether any rate-limited
// audit events were observed.
func RateLimitsActivate(ctx context.Context, reader audit.Reader, scenarioID, runID string) (Result, error) {
	events, err := RunEvents(ctx, reader, scenarioID, runID)
	if err != nil {
		return Result{}, fmt.Errorf("rate limits: %w", err)
	}
	n := audit.CountFlag(events, action.FlagRateLimited)
	r := Result{Name: NameRateLimitsActivate, Passed: true, Actual: float64(n)}
	if n == 0 {
		r.Message = "no rate-limit events observed"
	} else {
		r.Message = fmt.Sprintf("%d rate-limit event(s) observed", n)
	}
	return r, nil
}

// RunEvents reads a scenario's system events, keeping only runID's when
// runID is set.
func RunEvents(ctx context.Context, reader audit.Reader, scenarioID, runID string) ([]audit.SystemEvent, error) {
	events, err := reader.SystemEvents(ctx, scenarioID)
	if err != nil || runID == "" {
		return events, err
	}
	out := events[:0:0]
	for _, e := range events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// #endregion checks

// #region evaluate-all
// Input carries everything EvaluateAll needs.
type Input struct {
	ScenarioID          string
	RunID               string
	Series              []Snapshot
	Reader              audit.Reader
	RingActors          []string
	MaxCombinedIncrease float64
	MinAbuseSignals     int
	StableActor         string
	WindowSteps         int
	MaxOscillation      float64
}

// EvaluateAll runs the four checks in a fixed order.
func EvaluateAll(ctx context.Context, in Input) ([]Result, error) {
	abuse, err := AbuseSignalsTriggered(ctx, in.Reader, in.ScenarioID, in.RunID, in.MinAbuseSignals)
	if err != nil {
		return nil, err
	}
	rate, err := RateLimitsActivate(ctx, in.Reader, in.ScenarioID, in.RunID)
	if err != nil {
		return nil, err
	}
	return []Result{
		ReputationNotLinear(in.Series, in.RingActors, in.MaxCombinedIncrease),
		abuse,
		TrustStabilizes(in.Series, in.StableActor, in.WindowSteps, in.MaxOscillation),
		rate,
	}, nil
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// #endregion evaluate-all
