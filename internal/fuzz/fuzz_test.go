package fuzz

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
	"github.com/Blackthor84/WorkVouch-sub000/internal/invariant"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sandbox"
	"github.com/Blackthor84/WorkVouch-sub000/internal/scenario"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sqldb"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region generator
func TestLCGSequence(t *testing.T) {
	l := NewLCG(0)
	assert.Equal(t, uint32(3620793109), l.Next())
	assert.Equal(t, uint32(1690452336), l.Next())
	assert.NotEqual(t, NewLCG(1).Next(), NewLCG(2).Next())
}

func TestGenerateIsDeterministic(t *testing.T) {
	for _, attack := range AttackTypes() {
		a, err := Generate(attack, DefaultBounds(), 42)
		require.NoError(t, err)
		b, err := Generate(attack, DefaultBounds(), 42)
		require.NoError(t, err)
		assert.Equal(t, a, b, attack)
	}
}

func TestGeneratedDocumentsValidate(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("every archetype yields a valid document", prop.ForAll(
		func(seed uint32, pick int) bool {
			attack := AttackTypes()[pick]
			doc, err := Generate(attack, DefaultBounds(), seed)
			if err != nil {
				return false
			}
			return doc.Validate() == nil && len(doc.Steps) > 0
		},
		gen.UInt32(),
		gen.IntRange(0, len(AttackTypes())-1),
	))
	properties.TestingRun(t)
}

func TestGenerateBoostRing(t *testing.T) {
	doc, err := Generate(AttackBoostRings, Bounds{MinActors: 4, MaxActors: 4}, 7)
	require.NoError(t, err)
	require.Len(t, doc.Actors, 4)
	require.Len(t, doc.Steps, 5)
	assert.Equal(t, action.Recalculate, doc.Steps[4].Action)
	targets := map[string]string{}
	for _, s := range doc.Steps[:4] {
		assert.Equal(t, action.SubmitReference, s.Action)
		assert.Equal(t, 5, s.Params["rating"])
		targets[s.As] = s.Params["target"].(string)
	}
	assert.Equal(t, "{{ring1}}", targets["ring0"])
	assert.Equal(t, "{{ring0}}", targets["ring3"])
	require.Len(t, doc.Assertions, 1)
	assert.Equal(t, scenario.AssertNoLinearBoost, doc.Assertions[0].Type)
}

func TestGenerateRetaliationOrders(t *testing.T) {
	orders := map[string]bool{}
	for seed := uint32(0); seed < 32; seed++ {
		doc, err := Generate(AttackRetaliation, DefaultBounds(), seed)
		require.NoError(t, err)
		require.Len(t, doc.Steps, 3)
		orders[doc.Steps[0].ID] = true
		assert.Equal(t, 1, doc.Assertions[0].MinCount)
	}
	assert.True(t, orders["flag"] && orders["dispute"], "both orders appear across seeds")
}

func TestGenerateBoostRingSizesVary(t *testing.T) {
	sizes := map[int]int{}
	for seed := uint32(0); seed < 32; seed++ {
		doc, err := Generate(AttackBoostRings, DefaultBounds(), seed)
		require.NoError(t, err)
		sizes[len(doc.Actors)]++
	}
	for n := 3; n <= 6; n++ {
		assert.Positive(t, sizes[n], "ring of %d actors among consecutive seeds", n)
	}
}

func TestGenerateUnknownAttack(t *testing.T) {
	_, err := Generate("sybil", DefaultBounds(), 1)
	assert.ErrorContains(t, err, "unknown attack type")
}

// #endregion generator

// #region runner
type harness struct {
	runner *Runner
	store  Store
	box    *sandbox.Sandbox
	sink   *audit.MemorySink
}

func newHarness(t *testing.T, opts sandbox.Options, store Store) *harness {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	box, err := sandbox.New(db, opts)
	require.NoError(t, err)
	reg := action.NewRegistry()
	box.Register(reg)
	sink := audit.NewMemorySink()
	sr := scenario.NewRunner(reg, sink, scenario.WithScoreLookup(box))
	if store == nil {
		store = NewMemoryStore()
	}
	return &harness{runner: NewRunner(sr, store, sink), store: store, box: box, sink: sink}
}

func byName(results []invariant.Result, name string) invariant.Result {
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	return invariant.Result{}
}

func TestBoostRingPassesWithCycleDiscount(t *testing.T) {
	h := newHarness(t, sandbox.DefaultOptions(), nil)
	ctx := context.Background()

	rec, err := h.runner.Run(ctx, Request{Doc: BoostRingDoc(), Seed: 1, SandboxID: "sbx-ring"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.True(t, rec.Summary.Passed)
	require.Len(t, rec.Invariants, 4)
	nl := byName(rec.Invariants, invariant.NameReputationNotLinear)
	assert.True(t, nl.Passed, nl.Message)
	assert.InDelta(t, 6.3, nl.Actual, 0.01)

	v, err := h.box.Score(ctx, "sbx-ring", "fz-1-a")
	require.NoError(t, err)
	require.NotNil(t, v)

	stored, err := h.store.GetRun(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Summary, stored.Summary)
	rows, err := h.store.Snapshots(ctx, rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	last := rows[len(rows)-1]
	assert.Equal(t, 3, last.StepIndex)
	assert.Equal(t, "fz-1-"+last.ActorRef, last.ActorID)
}

func TestBoostRingFailsWithoutCycleDiscount(t *testing.T) {
	opts := sandbox.DefaultOptions()
	opts.CycleDiscount = false
	h := newHarness(t, opts, nil)

	rec, err := h.runner.Run(context.Background(), Request{Doc: BoostRingDoc(), Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status, "an invariant violation is a finding, not a run failure")
	assert.False(t, rec.Summary.Passed)
	assert.False(t, rec.Summary.InvariantsPassed)
	nl := byName(rec.Invariants, invariant.NameReputationNotLinear)
	assert.False(t, nl.Passed)
	assert.InDelta(t, 63, nl.Actual, 0.01)
	assert.NotEmpty(t, rec.SandboxID)
}

func TestRetaliationCountsAbuseSignals(t *testing.T) {
	h := newHarness(t, sandbox.DefaultOptions(), nil)
	rec, err := h.runner.Run(context.Background(), Request{Attack: AttackRetaliation, Seed: 9})
	require.NoError(t, err)
	abuse := byName(rec.Invariants, invariant.NameAbuseSignalsTriggered)
	assert.True(t, abuse.Passed, abuse.Message)
	assert.GreaterOrEqual(t, abuse.Actual, 1.0)
	assert.Equal(t, AttackRetaliation, rec.Attack)
}

func TestRerunSameSeedCountsOnlyItsOwnSignals(t *testing.T) {
	h := newHarness(t, sandbox.DefaultOptions(), nil)
	ctx := context.Background()
	first, err := h.runner.Run(ctx, Request{Attack: AttackRetaliation, Seed: 9})
	require.NoError(t, err)
	second, err := h.runner.Run(ctx, Request{Attack: AttackRetaliation, Seed: 9})
	require.NoError(t, err)
	require.Equal(t, first.ScenarioID, second.ScenarioID)

	a := byName(first.Invariants, invariant.NameAbuseSignalsTriggered)
	b := byName(second.Invariants, invariant.NameAbuseSignalsTriggered)
	assert.Equal(t, a.Actual, b.Actual, "the shared sink holds both runs' flags")
}

func TestGeneratedArchetypesComplete(t *testing.T) {
	for _, attack := range AttackTypes() {
		t.Run(string(attack), func(t *testing.T) {
			h := newHarness(t, sandbox.DefaultOptions(), nil)
			rec, err := h.runner.Run(context.Background(), Request{Attack: attack, Seed: 3})
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, rec.Status)
			assert.False(t, rec.Summary.Partial, "generated steps are all valid")
		})
	}
}

func TestPanickingHandlerMarksRunFailed(t *testing.T) {
	reg := action.NewRegistry()
	reg.Register(action.Recalculate, func(context.Context, map[string]any, action.ExecContext) action.Result {
		panic("boom")
	})
	sink := audit.NewMemorySink()
	store := NewMemoryStore()
	r := NewRunner(scenario.NewRunner(reg, sink), store, sink)

	doc := &scenario.Doc{
		ID: "panics", Mode: scenario.ModeSafe,
		Actors: []scenario.Actor{{ID: "a", Role: "worker"}},
		Steps:  []scenario.Step{{ID: "s", Action: action.Recalculate, As: "a"}},
	}
	rec, err := r.Run(context.Background(), Request{Doc: doc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, StatusFailed, rec.Status)

	stored, gerr := store.GetRun(context.Background(), rec.ID)
	require.NoError(t, gerr)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.Summary.Error, "boom")
}

func TestHookStoreErrorMarksRunFailed(t *testing.T) {
	h := newHarness(t, sandbox.DefaultOptions(), &failingSnapshots{MemoryStore: NewMemoryStore()})
	rec, err := h.runner.Run(context.Background(), Request{Doc: BoostRingDoc()})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	stored, err := h.store.GetRun(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
}

type failingSnapshots struct {
	*MemoryStore
}

func (f *failingSnapshots) AppendSnapshots(context.Context, string, []invariant.Snapshot) error {
	return errors.New("disk full")
}

// #endregion runner

// #region stores
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := RunRecord{
		ID: "run-1", ScenarioID: "fuzz-boost_rings-1", ScenarioName: "ring", Attack: AttackBoostRings,
		Mode: "safe", SandboxID: "sbx", Seed: 4000000000, Status: StatusRunning, StepCount: 4,
		CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, s.CreateRun(ctx, first))
	second := first
	second.ID, second.CreatedAt = "run-2", base.Add(time.Minute)
	require.NoError(t, s.CreateRun(ctx, second))

	first.Status = StatusCompleted
	first.Summary = Summary{Passed: true, StepsRun: 4, FailedStep: -1, InvariantsPassed: true}
	first.Invariants = []invariant.Result{{Name: invariant.NameTrustStabilizes, Passed: true, Actual: 1.5}}
	first.UpdatedAt = base.Add(time.Second)
	require.NoError(t, s.UpdateRun(ctx, first))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, uint32(4000000000), got.Seed)
	assert.Equal(t, first.Summary, got.Summary)
	assert.Equal(t, first.Invariants, got.Invariants)
	assert.True(t, got.UpdatedAt.Equal(first.UpdatedAt))

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.UpdateRun(ctx, RunRecord{ID: "missing"}), ErrRunNotFound)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)

	require.NoError(t, s.AppendSnapshots(ctx, "run-1", []invariant.Snapshot{
		{StepIndex: 1, ActorRef: "b", ActorID: "fz-b", Value: 52},
		{StepIndex: 1, ActorRef: "a", ActorID: "fz-a", Value: 51},
	}))
	require.NoError(t, s.AppendSnapshots(ctx, "run-1", []invariant.Snapshot{
		{StepIndex: -1, ActorRef: "a", ActorID: "fz-a", Value: 50},
	}))
	rows, err := s.Snapshots(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, -1, rows[0].StepIndex)
	assert.Equal(t, "a", rows[1].ActorRef)
	assert.Equal(t, 52.0, rows[2].Value)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	db, err := sqldb.Open("sqlite", filepath.Join(t.TempDir(), "fuzz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := NewSQLStore(db)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestSQLStorePostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS fuzz_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS fuzz_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLStore(sqldb.Wrap(db, sqldb.Postgres))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM fuzz_runs WHERE id = \$1`).WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.GetRun(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrRunNotFound)

	mock.ExpectExec(`UPDATE fuzz_runs SET status = \$1`).WillReturnError(errors.New("connection reset"))
	err = s.UpdateRun(context.Background(), RunRecord{ID: "r1", Status: StatusFailed})
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// #endregion stores
