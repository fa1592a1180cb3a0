package multiverse

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func newMultiverse(t *testing.T) *Multiverse {
	t.Helper()
	clock := epoch
	m := New(WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	m.CreateUniverse("root", nil, nil)
	return m
}

func exec(t *testing.T, m *Multiverse, a SimulationAction) Result {
	t.Helper()
	res, err := m.ExecuteAction(a)
	require.NoError(t, err)
	require.True(t, res.OK)
	return res
}

func TestGenesis(t *testing.T) {
	g := Genesis(epoch)
	assert.Equal(t, 0, g.Seq)
	assert.Equal(t, 50.0, g.TrustScore)
	assert.Equal(t, 0.0, g.ConfidenceScore)
	assert.Equal(t, DefaultThreshold, g.Threshold)
	assert.False(t, g.Passing())
}

func TestApplyDeltaDoesNotMutatePrev(t *testing.T) {
	prev := ApplyDelta(Genesis(epoch), Delta{Added: []Item{{ID: "v1", Kind: KindVerification, Weight: 1, CreatedAt: epoch}}})
	before := prev.clone()

	next := ApplyDelta(prev, Delta{Removed: []string{"v1"}, Added: []Item{{ID: "r1", Kind: KindReference, Source: "x"}}})
	assert.Equal(t, before, prev)
	require.Len(t, next.Items, 1)
	assert.Equal(t, "r1", next.Items[0].ID)
	assert.Equal(t, prev.Seq+1, next.Seq)
}

func TestScoring(t *testing.T) {
	s := ApplyDelta(Genesis(epoch), Delta{Added: []Item{{ID: "v", Kind: KindVerification, Weight: 1, CreatedAt: epoch}}})
	assert.Equal(t, 58.0, s.TrustScore)
	assert.InDelta(t, 58.0/6, s.ConfidenceScore, 0.01)
	assert.Equal(t, 0.0, s.NetworkStrength)

	aged := ApplyDelta(s, Delta{At: epoch.Add(100 * 24 * time.Hour)})
	assert.Equal(t, 54.0, aged.TrustScore, "older than 90 days counts half")

	over := 12.0
	forced := ApplyDelta(s, Delta{ScoreOverride: &over})
	assert.Equal(t, 12.0, forced.TrustScore)
}

func TestIsolatedConfidenceCapped(t *testing.T) {
	var added []Item
	for i := 0; i < 6; i++ {
		added = append(added, Item{ID: string(rune('a' + i)), Kind: KindVerification, Weight: 1, CreatedAt: epoch})
	}
	s := ApplyDelta(Genesis(epoch), Delta{Added: added})
	assert.Equal(t, 98.0, s.TrustScore)
	assert.Equal(t, 50.0, s.ConfidenceScore)
}

func TestForkIndependence(t *testing.T) {
	m := newMultiverse(t)
	exec(t, m, InjectSignal{Kind: KindReference, Weight: 1, Source: "peer-1"})
	original, _ := m.Active()

	fork, err := m.Fork()
	require.NoError(t, err)
	require.NotNil(t, fork.ParentID)
	assert.Equal(t, original.ID, *fork.ParentID)
	active, _ := m.Active()
	assert.Equal(t, fork.ID, active.ID, "fork is active")

	exec(t, m, ApplyChaos{Preset: "fraud_burst"})
	exec(t, m, MutateSignal{Weight: 3})

	after, err := m.Universe(original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Timeline, after.Timeline)
	got, err := m.Universe(fork.ID)
	require.NoError(t, err)
	assert.Len(t, got.Timeline, len(original.Timeline)+2)
}

func TestReadsAreCopies(t *testing.T) {
	m := newMultiverse(t)
	exec(t, m, InjectSignal{Kind: KindVerification, Weight: 1})
	u, _ := m.Active()
	u.Timeline[1].Items[0].Weight = 99
	u.Timeline = u.Timeline[:1]

	again, _ := m.Active()
	require.Len(t, again.Timeline, 2)
	assert.Equal(t, 1.0, again.Timeline[1].Items[0].Weight)
}

func TestEveryActionCommitsOneSnapshot(t *testing.T) {
	variants := []SimulationAction{
		MutateSignal{Weight: 2},
		BackdateSignal{Days: 40},
		DeleteSignal{},
		InjectSignal{Kind: KindVerification, Weight: 1},
		MutateSignal{Weight: 2},
		BackdateSignal{Days: 40},
		DeleteSignal{ID: "missing"},
		ApplyChaos{Preset: "fraud_burst"},
		ApplyChaos{Preset: "reference_flood"},
		ApplyChaos{Preset: "verification_drought"},
		ApplyChaos{Preset: "verification_drought"},
		ApplyChaos{Preset: "decay_shock"},
		ApplyChaos{Preset: "meteor"},
		AddItem{Item: Item{ID: "manual", Kind: KindDispute, Weight: 1}},
		AddItem{Item: Item{ID: "manual", Kind: KindDispute}},
		RemoveItem{ID: "manual"},
		RemoveItem{ID: "manual"},
		SetThreshold{Value: 70},
		SetThreshold{Value: 70},
		ReplayScenario{Name: "empty"},
		ReplayScenario{Name: "two", Actions: []SimulationAction{
			InjectSignal{Kind: KindReference, Source: "r"},
			SetThreshold{Value: 40},
		}},
		SaveSnapshot{Label: "checkpoint-1"},
	}
	m := newMultiverse(t)
	for _, a := range variants {
		before, _ := m.Active()
		res := exec(t, m, a)
		after, _ := m.Active()
		require.Len(t, after.Timeline, len(before.Timeline)+1, ActionName(a))
		assert.Equal(t, ActionName(a), res.Snapshot.Meta.Action)
		assert.Equal(t, res.Snapshot, after.Head())
	}
}

func TestNoEffectReasons(t *testing.T) {
	m := newMultiverse(t)
	cases := []struct {
		action SimulationAction
		reason string
	}{
		{MutateSignal{Weight: 2}, "no signals on the timeline"},
		{BackdateSignal{Days: 3}, "no signals on the timeline"},
		{DeleteSignal{}, "no signals on the timeline"},
		{ApplyChaos{Preset: "meteor"}, `unknown chaos preset "meteor"`},
		{ApplyChaos{Preset: "decay_shock"}, "no signals to age"},
		{RemoveItem{ID: "x"}, "item x not found"},
		{SetThreshold{Value: DefaultThreshold}, "threshold already 60.00"},
		{ReplayScenario{}, "empty scenario"},
	}
	for _, c := range cases {
		res := exec(t, m, c.action)
		assert.Equal(t, c.reason, res.NoEffect, ActionName(c.action))
	}
	assert.Empty(t, exec(t, m, SaveSnapshot{Label: "x"}).NoEffect)
}

func TestSignalEditing(t *testing.T) {
	m := newMultiverse(t)
	first := exec(t, m, InjectSignal{Kind: KindReference, Weight: 1, Source: "a"}).Snapshot
	id := first.Items[0].ID
	assert.Equal(t, 55.0, first.TrustScore)
	assert.Equal(t, 20.0, first.NetworkStrength)

	s := exec(t, m, MutateSignal{ID: id, Weight: 2}).Snapshot
	assert.Equal(t, 60.0, s.TrustScore)
	assert.True(t, s.Passing())

	s = exec(t, m, BackdateSignal{ID: id, Days: 45}).Snapshot
	assert.Equal(t, 58.0, s.TrustScore)

	s = exec(t, m, DeleteSignal{ID: id}).Snapshot
	assert.Empty(t, s.Items)
	assert.Equal(t, 50.0, s.TrustScore)
}

func TestChaosPresets(t *testing.T) {
	m := newMultiverse(t)
	s := exec(t, m, ApplyChaos{Preset: "reference_flood"}).Snapshot
	assert.Len(t, s.Items, 10)
	assert.Equal(t, 65.0, s.TrustScore)
	assert.Equal(t, 100.0, s.NetworkStrength)
	assert.Equal(t, 65.0, s.ConfidenceScore)

	s = exec(t, m, ApplyChaos{Preset: "fraud_burst"}).Snapshot
	assert.Equal(t, 0.0, s.TrustScore)

	names := ChaosPresets()
	require.Len(t, names, 4)
	assert.Equal(t, "decay_shock", names[0][0])
}

func TestReplayScenarioIsOneDelta(t *testing.T) {
	m := newMultiverse(t)
	exec(t, m, InjectSignal{Kind: KindVerification, Weight: 1})
	res := exec(t, m, ReplayScenario{Name: "probe", Actions: []SimulationAction{
		InjectSignal{Kind: KindReference, Weight: 1, Source: "p"},
		InjectSignal{Kind: KindReference, Weight: 1, Source: "q"},
		DeleteSignal{},
		SetThreshold{Value: 55},
	}})
	s := res.Snapshot
	assert.Len(t, s.Items, 2)
	assert.Equal(t, 55.0, s.Threshold)
	assert.Equal(t, "probe", s.Meta.Label)

	// Ids minted inside the replay never collide with later ones.
	next := exec(t, m, InjectSignal{Kind: KindReference, Source: "z"}).Snapshot
	seen := map[string]bool{}
	for _, it := range next.Items {
		assert.False(t, seen[it.ID], it.ID)
		seen[it.ID] = true
	}
}

func TestMergeAndDestroy(t *testing.T) {
	m := newMultiverse(t)
	root, _ := m.Active()
	fork, err := m.Fork()
	require.NoError(t, err)
	exec(t, m, InjectSignal{Kind: KindVerification, Weight: 1})

	require.NoError(t, m.Merge(root.ID, fork.ID))
	merged, err := m.Universe(root.ID)
	require.NoError(t, err)
	assert.Len(t, merged.Timeline, 2)

	assert.ErrorIs(t, m.Merge("nope", fork.ID), ErrUniverseNotFound)
	assert.ErrorIs(t, m.Activate("nope"), ErrUniverseNotFound)

	require.NoError(t, m.Destroy(fork.ID))
	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, root.ID, active.ID, "falls back to a remaining universe")

	require.NoError(t, m.Destroy(root.ID))
	_, ok = m.Active()
	assert.False(t, ok)
	_, err = m.ExecuteAction(SaveSnapshot{})
	assert.True(t, errors.Is(err, ErrNoActiveUniverse))
	assert.ErrorIs(t, m.Destroy(root.ID), ErrUniverseNotFound)
}

func TestCreateUniverseWithInitialTimeline(t *testing.T) {
	m := New()
	seed := []Snapshot{Genesis(epoch)}
	parent := "p-1"
	u := m.CreateUniverse("seeded", &parent, seed)
	seed[0].TrustScore = 1
	got, err := m.Universe(u.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Head().TrustScore)
	assert.Equal(t, "p-1", *got.ParentID)
	assert.Len(t, m.List(), 1)
}

func TestExportImport(t *testing.T) {
	m := newMultiverse(t)
	exec(t, m, InjectSignal{Kind: KindVerification, Weight: 1})
	_, err := m.Fork()
	require.NoError(t, err)
	exec(t, m, SetThreshold{Value: 30})

	var buf bytes.Buffer
	require.NoError(t, m.Export(&buf))

	restored := New()
	require.NoError(t, restored.Import(bytes.NewReader(buf.Bytes())))
	assert.Len(t, restored.List(), 2)
	want, _ := m.Active()
	got, ok := restored.Active()
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 30.0, got.Head().Threshold)

	tampered := bytes.Replace(buf.Bytes(), []byte(`"threshold": 30`), []byte(`"threshold": 31`), 1)
	assert.ErrorContains(t, New().Import(bytes.NewReader(tampered)), "digest mismatch")
}
