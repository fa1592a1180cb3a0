package sandbox

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/eventlog"
	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const scope = "sbx-test"

func newSandbox(t *testing.T, opts Options) (*Sandbox, *action.Registry) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := New(db, opts)
	require.NoError(t, err)
	r := action.NewRegistry()
	s.Register(r)
	return s, r
}

func as(actor string) action.ExecContext {
	return action.ExecContext{SandboxID: scope, ActorID: actor, Mode: "safe", SafeMode: true}
}

func invoke(t *testing.T, r *action.Registry, name, actor string, params map[string]any) action.Result {
	t.Helper()
	return r.Invoke(context.Background(), name, params, as(actor))
}

func ring(t *testing.T, r *action.Registry) {
	t.Helper()
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}} {
		res := invoke(t, r, action.SubmitReference, e[0], map[string]any{"target": e[1], "rating": 5})
		require.True(t, res.OK, res.Error)
	}
	require.True(t, invoke(t, r, action.Recalculate, "a", nil).OK)
}

func combinedIncrease(t *testing.T, s *Sandbox, ids ...string) float64 {
	t.Helper()
	var total float64
	for _, id := range ids {
		v, err := s.Score(context.Background(), scope, id)
		require.NoError(t, err)
		require.NotNil(t, v)
		if *v > baselineTrust {
			total += *v - baselineTrust
		}
	}
	return total
}

func TestScoreNilBeforeParticipation(t *testing.T) {
	s, r := newSandbox(t, DefaultOptions())
	v, err := s.Score(context.Background(), scope, "a")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.True(t, invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 4}).OK)
	v, err = s.Score(context.Background(), scope, "b")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, baselineTrust, *v, "scores only move on recalculate")
}

func TestSubmitReferenceValidation(t *testing.T) {
	_, r := newSandbox(t, DefaultOptions())

	res := invoke(t, r, action.SubmitReference, "a", map[string]any{"rating": 5})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.True(t, res.HasFlag(action.FlagValidationError))

	res = invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "a", "rating": 5})
	assert.Equal(t, http.StatusBadRequest, res.Status)

	res = invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 9})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
}

func TestReciprocalReferenceFlag(t *testing.T) {
	_, r := newSandbox(t, DefaultOptions())
	first := invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 5})
	assert.False(t, first.HasFlag(action.FlagReciprocalReference))
	second := invoke(t, r, action.SubmitReference, "b", map[string]any{"target": "a", "rating": 5})
	assert.True(t, second.HasFlag(action.FlagReciprocalReference))
	assert.Equal(t, true, second.Value["reciprocal"])
}

func TestBoostRingDiscounted(t *testing.T) {
	s, r := newSandbox(t, DefaultOptions())
	ring(t, r)
	assert.InDelta(t, 6.3, combinedIncrease(t, s, "a", "b", "c"), 0.01)
}

func TestBoostRingWithoutDiscountGrowsLinearly(t *testing.T) {
	opts := DefaultOptions()
	opts.CycleDiscount = false
	s, r := newSandbox(t, opts)
	ring(t, r)
	// Each member: (80-50) x stability 0.7 = +21.
	assert.InDelta(t, 63, combinedIncrease(t, s, "a", "b", "c"), 0.01)
}

func TestIsolatedReferenceIsCapped(t *testing.T) {
	s, r := newSandbox(t, DefaultOptions())
	require.True(t, invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 5}).OK)
	require.True(t, invoke(t, r, action.Recalculate, "a", map[string]any{"actor": "b"}).OK)

	rep, found, err := s.Reputation(context.Background(), scope, "b")
	require.NoError(t, err)
	require.True(t, found)
	// One incoming edge of 0.5: stability 0.7, target 80.
	assert.InDelta(t, 71, rep.Trust, 0.01)
	assert.Equal(t, 50.0, rep.Profile)
	assert.Equal(t, 1, rep.Version)
}

func TestFlagAbuseLowersScore(t *testing.T) {
	s, r := newSandbox(t, DefaultOptions())
	res := invoke(t, r, action.FlagAbuse, "employer", map[string]any{"target": "w", "reason": "spam"})
	require.True(t, res.OK)
	assert.True(t, res.HasFlag(action.FlagAbuseSignal))

	require.True(t, invoke(t, r, action.Recalculate, "employer", nil).OK)
	v, err := s.Score(context.Background(), scope, "w")
	require.NoError(t, err)
	assert.InDelta(t, 30, *v, 0.01)
}

func TestFlagAbuseSeverRemovesEdges(t *testing.T) {
	s, r := newSandbox(t, DefaultOptions())
	require.True(t, invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 5}).OK)
	require.True(t, invoke(t, r, action.FlagAbuse, "x", map[string]any{"target": "b", "sever": true}).OK)
	edges, err := s.Graph().Edges(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestDisputeLifecycle(t *testing.T) {
	s, r := newSandbox(t, DefaultOptions())
	ref := invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 5})
	require.True(t, ref.OK)

	filed := invoke(t, r, action.FileDispute, "b", map[string]any{"target": "a", "reference_id": ref.Value["reference_id"]})
	require.True(t, filed.OK)

	resolved := invoke(t, r, action.ResolveDispute, "b", map[string]any{"outcome": "upheld"})
	require.True(t, resolved.OK, resolved.Error)
	assert.Equal(t, filed.Value["dispute_id"], resolved.Value["dispute_id"])

	edges, err := s.Graph().Edges(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, edges, "upheld dispute withdraws the reference edge")

	again := invoke(t, r, action.ResolveDispute, "b", map[string]any{"dispute_id": filed.Value["dispute_id"]})
	assert.Equal(t, http.StatusConflict, again.Status)

	missing := invoke(t, r, action.ResolveDispute, "nobody", nil)
	assert.Equal(t, http.StatusNotFound, missing.Status)

	bad := invoke(t, r, action.ResolveDispute, "b", map[string]any{"outcome": "maybe"})
	assert.Equal(t, http.StatusBadRequest, bad.Status)
}

func TestRecalculateUnknownActor(t *testing.T) {
	_, r := newSandbox(t, DefaultOptions())
	res := invoke(t, r, action.Recalculate, "a", map[string]any{"actor": "ghost"})
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestRecalculateJournalsActionLog(t *testing.T) {
	journal, err := eventlog.NewStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	opts := DefaultOptions()
	opts.Journal = journal
	s, r := newSandbox(t, opts)
	require.True(t, invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 5}).OK)
	require.True(t, invoke(t, r, action.Recalculate, "a", map[string]any{"actor": "b"}).OK)

	recs, err := journal.Load(context.Background(), scope+":b:1")
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	e := eventlog.NewEngine()
	require.NoError(t, e.Hydrate(recs))
	v, err := s.Score(context.Background(), scope, "b")
	require.NoError(t, err)
	assert.Equal(t, *v, e.State().TrustScore)
	assert.Equal(t, eventlog.StatusComplete, eventlog.Verify(recs).Status)
}

func TestIndustryProfileSeedsReducer(t *testing.T) {
	journal, err := eventlog.NewStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	opts := DefaultOptions()
	opts.Journal = journal
	opts.Industry = trust.IndustryFinance
	opts.EmployerMode = trust.ModeStandard
	_, r := newSandbox(t, opts)
	require.True(t, invoke(t, r, action.SubmitReference, "a", map[string]any{"target": "b", "rating": 4}).OK)
	require.True(t, invoke(t, r, action.Recalculate, "a", map[string]any{"actor": "b"}).OK)

	recs, err := journal.Load(context.Background(), scope+":b:1")
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, trust.KindSetIndustry, recs[0].ActionType, "default employer mode adds no action")

	e := eventlog.NewEngine()
	require.NoError(t, e.Hydrate(recs))
	assert.Equal(t, trust.IndustryFinance, e.State().Industry)
}
