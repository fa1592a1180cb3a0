package scenario

import (
	"context"
	"fmt"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
	"github.com/Blackthor84/WorkVouch-sub000/internal/invariant"
	"github.com/google/cel-go/cel"
)

// #region assertions
// assertions evaluates the document's assertions over the recorded series
// and audit log. The series-based checks share the invariant package's
// implementation.
func (st *run) assertions(ctx context.Context) ([]AssertionResult, error) {
	out := make([]AssertionResult, 0, len(st.doc.Assertions))
	for _, a := range st.doc.Assertions {
		var (
			r   invariant.Result
			err error
		)
		switch a.Type {
		case AssertReputationDeltaBounded:
			r = deltaBounded(st.series, a)
		case AssertAbuseSignalsTriggered:
			r, err = invariant.AbuseSignalsTriggered(ctx, st.sink, st.doc.ID, st.opts.RunID, a.MinCount)
		case AssertTrustStabilizes:
			r = invariant.TrustStabilizes(st.series, a.Actor, a.WindowSteps, a.MaxOscillation)
		case AssertNoLinearBoost:
			r = invariant.ReputationNotLinear(st.series, a.Actors, a.MaxCombinedIncrease)
		case AssertExpression:
			r, err = st.expression(ctx, a)
		default:
			r = invariant.Result{Message: fmt.Sprintf("unknown assertion type %q", a.Type)}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, AssertionResult{
			Type:    a.Type,
			Name:    a.Name,
			Passed:  r.Passed,
			Message: r.Message,
			Actual:  r.Actual,
		})
	}
	return out, nil
}

func deltaBounded(series []invariant.Snapshot, a Assertion) invariant.Result {
	first, last, ok := endpoints(series, a.Actor)
	r := invariant.Result{Name: AssertReputationDeltaBounded, Passed: true}
	if !ok {
		r.Message = fmt.Sprintf("no score history for %s", a.Actor)
		return r
	}
	r.Actual = last - first
	if a.MaxIncrease != nil && r.Actual > *a.MaxIncrease {
		r.Passed = false
		r.Message = fmt.Sprintf("%s increased %.2f, max %.2f", a.Actor, r.Actual, *a.MaxIncrease)
	}
	if a.MaxDecrease != nil && -r.Actual > *a.MaxDecrease {
		r.Passed = false
		r.Message = fmt.Sprintf("%s decreased %.2f, max %.2f", a.Actor, -r.Actual, *a.MaxDecrease)
	}
	return r
}

func endpoints(series []invariant.Snapshot, ref string) (first, last float64, ok bool) {
	for _, s := range series {
		if s.ActorRef != ref {
			continue
		}
		if !ok {
			first, ok = s.Value, true
		}
		last = s.Value
	}
	return first, last, ok
}

// #endregion assertions

// #region expression
var celEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("scores", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("baseline", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("abuse_signals", cel.IntType),
		cel.Variable("rate_limited", cel.IntType),
		cel.Variable("steps_ok", cel.BoolType),
	)
	if err != nil {
		panic(fmt.Sprintf("scenario cel env: %v", err))
	}
	return env
}()

// expression evaluates a CEL boolean over the run's final scores.
func (st *run) expression(ctx context.Context, a Assertion) (invariant.Result, error) {
	name := a.Name
	if name == "" {
		name = AssertExpression
	}
	r := invariant.Result{Name: name}

	ast, issues := celEnv.Compile(a.Expr)
	if issues != nil && issues.Err() != nil {
		r.Message = fmt.Sprintf("compile: %v", issues.Err())
		return r, nil
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		r.Message = fmt.Sprintf("expression must be bool, got %s", ast.OutputType())
		return r, nil
	}
	prg, err := celEnv.Program(ast, cel.CostLimit(10000))
	if err != nil {
		r.Message = fmt.Sprintf("program: %v", err)
		return r, nil
	}

	events, err := invariant.RunEvents(ctx, st.sink, st.doc.ID, st.opts.RunID)
	if err != nil {
		return r, fmt.Errorf("expression audit read: %w", err)
	}
	scores := map[string]float64{}
	baseline := map[string]float64{}
	for _, ref := range st.doc.ActorRefs() {
		if first, last, ok := endpoints(st.series, ref); ok {
			baseline[ref], scores[ref] = first, last
		}
	}
	stepsOK := true
	for _, e := range events {
		if e.Type == audit.TypeStepFailed {
			stepsOK = false
		}
	}

	out, _, err := prg.Eval(map[string]any{
		"scores":        scores,
		"baseline":      baseline,
		"abuse_signals": int64(audit.CountFlag(events, action.FlagAbuseSignal)),
		"rate_limited":  int64(audit.CountFlag(events, action.FlagRateLimited)),
		"steps_ok":      stepsOK,
	})
	if err != nil {
		r.Message = fmt.Sprintf("eval: %v", err)
		return r, nil
	}
	passed, ok := out.Value().(bool)
	r.Passed = ok && passed
	if !r.Passed {
		r.Message = fmt.Sprintf("%s evaluated to false", a.Expr)
	}
	return r, nil
}

// #endregion expression
