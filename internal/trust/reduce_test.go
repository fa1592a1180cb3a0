package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connected returns a state whose subject has edges of the given strengths.
func connected(strengths ...float64) State {
	s := Initial()
	for i, st := range strengths {
		s = Reduce(s, ConnectPeer{PeerID: string(rune('a' + i)), Strength: st})
	}
	return s
}

func TestInitialIsFixed(t *testing.T) {
	a := Initial()
	b := Initial()
	assert.Equal(t, a, b)
	assert.Equal(t, 50.0, a.TrustScore)
	assert.Equal(t, 40.0, a.ProfileStrength)
	assert.Equal(t, ModeStandard, a.EmployerMode)
	assert.Equal(t, 60.0, a.EffectiveThreshold())
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := connected(0.5)
	snapshot := Reduce(s, Freeze{}) // copy for comparison
	snapshot.TimeFrozen = false

	_ = Reduce(s, ConnectPeer{PeerID: "a", Strength: 0.9})
	_ = Reduce(s, ConnectPeer{PeerID: "z", Strength: 0.1})
	_ = Reduce(s, AddVerification{Source: "hr"})

	assert.Equal(t, snapshot.PeerGraph, s.PeerGraph)
	assert.Equal(t, snapshot.Events, s.Events)
	assert.Len(t, s.Ledger, 0)
}

func TestTickDecay(t *testing.T) {
	// 1. Within the grace window nothing decays
	s := Reduce(Initial(), Tick{Days: 30})
	assert.Equal(t, 30, s.CurrentDay)
	assert.Equal(t, 50.0, s.TrustScore)

	// 2. Day 31 applies the mild rate once
	s = Reduce(s, Tick{Days: 1})
	assert.InDelta(t, 49.85, s.TrustScore, 1e-9)

	// 3. Days 32..90 mild, day 91 severe
	s = Reduce(s, Tick{Days: 60})
	assert.Equal(t, 91, s.CurrentDay)
	assert.InDelta(t, 50-60*0.15-0.4, s.TrustScore, 1e-9)
}

func TestVerificationResetsDecay(t *testing.T) {
	s := Reduce(Initial(), Tick{Days: 25})
	s = Reduce(s, AddVerification{Source: "employer"})
	s = Reduce(s, Tick{Days: 30})
	assert.Equal(t, 55, s.CurrentDay)
	assert.Equal(t, 50.0, s.TrustScore)
}

func TestFreezeGatesTime(t *testing.T) {
	s := Reduce(Initial(), Freeze{})
	s = Reduce(s, Tick{Days: 100})
	s = Reduce(s, FastForward{Days: 100})
	assert.Equal(t, 0, s.CurrentDay)
	assert.Empty(t, s.Ledger)

	s = Reduce(s, Resume{})
	s = Reduce(s, FastForward{Days: 10})
	assert.Equal(t, 10, s.CurrentDay)
	require.Len(t, s.Ledger, 1)
	assert.Equal(t, "fast_forward", s.Ledger[0].Action)
}

func TestRunScenarioIsolatedCap(t *testing.T) {
	s := Reduce(Initial(), RunScenario{AfterTrust: 100, ProfileStrength: 70})
	// (100-50) * 1.0 * 0.3
	assert.InDelta(t, 65.0, s.TrustScore, 1e-9)
	assert.Equal(t, 70.0, s.ProfileStrength)
	require.Len(t, s.Ledger, 1)
	assert.InDelta(t, 15.0, s.Ledger[0].Delta, 1e-9)
}

func TestRunScenarioNetworkAndIndustry(t *testing.T) {
	s := connected(1.0, 1.0)
	s = Reduce(s, SetIndustry{Industry: IndustryHealthcare})
	s = Reduce(s, RunScenario{AfterTrust: 70, ProfileStrength: 50, Events: []EventSpec{{Type: EventReference}}})
	// (70-50) * 0.8 * min(1.5, 0.3+0.8)
	assert.InDelta(t, 50+20*0.8*1.1, s.TrustScore, 1e-9)
	require.Len(t, s.Events, 1)
	assert.Equal(t, EventReference, s.Events[0].Type)
}

func TestRunScenarioClamps(t *testing.T) {
	s := connected(1.0)
	for i := 0; i < 5; i++ {
		s = Reduce(s, RunScenario{AfterTrust: 200, ProfileStrength: 150})
	}
	assert.Equal(t, 100.0, s.TrustScore)
	assert.Equal(t, 100.0, s.ProfileStrength)
}

func TestFraudCascade(t *testing.T) {
	s := connected(0.5, 0.8)
	s = Reduce(s, RunScenario{AfterTrust: 100, ProfileStrength: 80})
	s = Reduce(s, AddVerification{Source: "registry"})
	before := s
	require.Greater(t, before.TrustScore, 71.0)

	s = Reduce(s, TriggerFraud{Reason: "forged document"})

	// 1. 45 + round(0.5*20) + round(0.8*20)
	assert.InDelta(t, before.TrustScore-71, s.TrustScore, 1e-9)
	assert.InDelta(t, before.ProfileStrength-35, s.ProfileStrength, 1e-9)

	// 2. Verification evidence is discarded, fraud event recorded
	for _, e := range s.Events {
		assert.NotEqual(t, EventVerification, e.Type)
	}
	assert.Equal(t, EventFraud, s.Events[len(s.Events)-1].Type)

	// 3. One ledger entry for the trigger plus one per edge
	tail := s.Ledger[len(before.Ledger):]
	require.Len(t, tail, 3)
	assert.Equal(t, "fraud_trigger", tail[0].Action)
	assert.Equal(t, "fraud_contagion", tail[1].Action)
	assert.InDelta(t, -10.0, tail[1].Delta, 1e-9)
	assert.InDelta(t, -16.0, tail[2].Delta, 1e-9)
}

func TestFraudFloorsAtZero(t *testing.T) {
	s := Reduce(Initial(), TriggerFraud{})
	s = Reduce(s, TriggerFraud{})
	assert.Equal(t, 0.0, s.TrustScore)
	assert.Equal(t, 0.0, s.ProfileStrength)
}

func TestEmployerActionsRequireEmployerMode(t *testing.T) {
	s := Initial()
	got := Reduce(s, EmployerReview{Positive: true})
	assert.Equal(t, s, got)

	s = Reduce(s, SetActorMode{Mode: ActorEmployer})
	s = Reduce(s, EmployerReview{Positive: true, Reason: "solid"})
	assert.Equal(t, 60.0, s.TrustScore)

	s = Reduce(s, EmployerReview{Positive: false})
	assert.Equal(t, 45.0, s.TrustScore)

	s = Reduce(s, FlagInconsistency{})
	assert.Equal(t, 33.0, s.TrustScore)

	s = Reduce(s, RetractEmployerReview{})
	assert.Equal(t, 38.0, s.TrustScore)

	s = Reduce(s, EmployerAbusePattern{Severity: SeverityHigh})
	assert.Equal(t, 8.0, s.TrustScore)

	assert.Len(t, s.Events, 5)
	for _, l := range s.Ledger {
		assert.Equal(t, "employer", l.Actor)
	}
}

func TestEmployerWeightsFollowIndustry(t *testing.T) {
	s := Reduce(Initial(), SetIndustry{Industry: IndustryFinance})
	s = Reduce(s, SetActorMode{Mode: ActorEmployer})
	s = Reduce(s, EmployerAbusePattern{Severity: SeverityMedium})
	// round(20 * 1.4 * 1.2) = 34
	assert.Equal(t, 16.0, s.TrustScore)
}

func TestSettingsIgnoreUnknownValues(t *testing.T) {
	s := Initial()
	assert.Equal(t, s, Reduce(s, SetIndustry{Industry: "piracy"}))
	assert.Equal(t, s, Reduce(s, SetEmployerMode{Mode: "chaotic"}))
	assert.Equal(t, s, Reduce(s, SetActorMode{Mode: "auditor"}))

	s = Reduce(s, SetEmployerMode{Mode: ModeStrict})
	assert.Equal(t, 75.0, s.EffectiveThreshold())
	s = Reduce(s, SetThreshold{Value: 55})
	assert.Equal(t, 55.0, s.EffectiveThreshold())
	s = Reduce(s, SetThreshold{Value: 0})
	assert.Equal(t, 75.0, s.EffectiveThreshold())
}

func TestDisconnectPeer(t *testing.T) {
	s := connected(0.4, 0.6)
	s = Reduce(s, DisconnectPeer{PeerID: "a"})
	require.Len(t, s.PeerGraph[DefaultSubject], 1)
	assert.Equal(t, "b", s.PeerGraph[DefaultSubject][0].PeerID)

	s = Reduce(s, DisconnectPeer{PeerID: "b"})
	assert.NotContains(t, s.PeerGraph, DefaultSubject)
}

func TestResetReturnsInitial(t *testing.T) {
	s := connected(0.5)
	s = Reduce(s, Tick{Days: 40})
	s = Reduce(s, Reset{})
	assert.Equal(t, Initial(), s)
}

func TestConfidenceFormula(t *testing.T) {
	s := connected(1.0, 1.0)
	s = Reduce(s, RunScenario{AfterTrust: 60, ProfileStrength: 50, Events: []EventSpec{
		{Type: EventVerification}, {Type: EventReference}, {Type: EventReference},
	}})
	s = Reduce(s, Tick{Days: 30})
	// round((61 + round(1.0*10)) * 3/6 * 30/90 * 1.1)
	assert.Equal(t, 13.0, s.ConfidenceScore)
}

func TestEveryKindDecodesAndReduces(t *testing.T) {
	s := connected(0.3)
	for _, k := range Kinds() {
		a, err := Decode(k, nil)
		require.NoError(t, err, k)
		assert.Equal(t, k, a.Kind())
		next := Reduce(s, a)
		assert.GreaterOrEqual(t, next.TrustScore, 0.0)
		assert.LessOrEqual(t, next.TrustScore, 100.0)
	}
}
