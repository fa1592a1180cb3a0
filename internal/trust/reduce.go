package trust

import (
	"fmt"
	"math"
)

const (
	fraudTrustPenalty   = 45.0
	fraudProfilePenalty = 35.0
	contagionScale      = 20.0

	decayGraceDays   = 30
	decaySevereDays  = 90
	decayRate        = 0.15
	decaySevereRate  = 0.4
	retractionCredit = 5.0
)

// #region reduce
// Reduce is a pure, total function computing the next state. The input is
// never modified; owned slices and maps are copied before any write.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case Tick:
		return finish(advance(s.clone(), act.Days))
	case FastForward:
		return finish(fastForward(s.clone(), act.Days))
	case Freeze:
		next := s.clone()
		next.TimeFrozen = true
		return finish(next)
	case Resume:
		next := s.clone()
		next.TimeFrozen = false
		return finish(next)
	case RunScenario:
		return finish(runScenario(s.clone(), act))
	case TriggerFraud:
		return finish(triggerFraud(s.clone(), act))
	case AddVerification:
		next := s.clone()
		next.appendEvent(EventVerification, next.Subject, act.Source)
		next.appendLedger("verification", next.role(), 0, act.Source)
		return finish(next)
	case ConnectPeer:
		return finish(connectPeer(s.clone(), act))
	case DisconnectPeer:
		return finish(disconnectPeer(s.clone(), act))
	case EmployerReview, FlagInconsistency, RetractEmployerReview, EmployerAbusePattern:
		if s.ActorMode != ActorEmployer {
			return s
		}
		return finish(employerAction(s.clone(), act))
	case SetEmployerMode:
		if _, ok := modeThresholds[act.Mode]; !ok {
			return s
		}
		next := s.clone()
		next.EmployerMode = act.Mode
		return finish(next)
	case SetIndustry:
		if !KnownIndustry(act.Industry) {
			return s
		}
		next := s.clone()
		next.Industry = act.Industry
		return finish(next)
	case SetThreshold:
		next := s.clone()
		next.Threshold = clamp(act.Value)
		return finish(next)
	case SetView:
		next := s.clone()
		next.View = act.View
		return finish(next)
	case SetActorMode:
		if act.Mode != ActorWorker && act.Mode != ActorEmployer {
			return s
		}
		next := s.clone()
		next.ActorMode = act.Mode
		return finish(next)
	case Reset:
		return Initial()
	}
	return s
}

// Fold applies actions in order starting from s.
func Fold(s State, actions []Action) State {
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s
}

// finish re-derives confidence and enforces the [0,100] bounds.
func finish(s State) State {
	s.TrustScore = clamp(s.TrustScore)
	s.ProfileStrength = clamp(s.ProfileStrength)
	s.ConfidenceScore = Confidence(s)
	return s
}

// #endregion reduce

// #region time
func advance(s State, days int) State {
	if s.TimeFrozen || days <= 0 {
		return s
	}
	for i := 0; i < days; i++ {
		s.CurrentDay++
		gap := s.CurrentDay - lastVerificationDay(s)
		switch {
		case gap > decaySevereDays:
			s.TrustScore = clamp(s.TrustScore - decaySevereRate)
		case gap > decayGraceDays:
			s.TrustScore = clamp(s.TrustScore - decayRate)
		}
		s.ConfidenceScore = Confidence(s)
	}
	return s
}

func fastForward(s State, days int) State {
	if s.TimeFrozen || days <= 0 {
		return s
	}
	before := s.TrustScore
	s = advance(s, days)
	s.appendLedger("fast_forward", "system", s.TrustScore-before, fmt.Sprintf("advanced %d days", days))
	return s
}

// lastVerificationDay returns the day of the newest verification event, or 0.
func lastVerificationDay(s State) int {
	last := 0
	for _, e := range s.Events {
		if e.Type == EventVerification && e.Day > last {
			last = e.Day
		}
	}
	return last
}

// #endregion time

// #region scenario
func runScenario(s State, act RunScenario) State {
	actor := act.ActorID
	if actor == "" {
		actor = s.Subject
	}
	weight := Profile(s.Industry).VerificationWeight
	raw := (act.AfterTrust - s.TrustScore) * weight * StabilityFactor(s, actor)
	after := clamp(s.TrustScore + raw)
	delta := after - s.TrustScore
	s.TrustScore = after
	s.ProfileStrength = clamp(act.ProfileStrength)
	for _, e := range act.Events {
		s.appendEvent(e.Type, actor, e.Detail)
	}
	label := act.Label
	if label == "" {
		label = string(KindRunScenario)
	}
	s.appendLedger(label, s.role(), delta, fmt.Sprintf("target %.2f for %s", act.AfterTrust, actor))
	return s
}

// #endregion scenario

// #region fraud
func triggerFraud(s State, act TriggerFraud) State {
	actor := act.ActorID
	if actor == "" {
		actor = s.Subject
	}
	before := s.TrustScore
	s.TrustScore = math.Max(0, s.TrustScore-fraudTrustPenalty)
	s.ProfileStrength = math.Max(0, s.ProfileStrength-fraudProfilePenalty)

	kept := s.Events[:0:0]
	for _, e := range s.Events {
		if e.Type != EventVerification {
			kept = append(kept, e)
		}
	}
	s.Events = kept
	s.appendEvent(EventFraud, actor, act.Reason)
	s.appendLedger("fraud_trigger", "system", s.TrustScore-before, act.Reason)

	for _, edge := range s.PeerGraph[actor] {
		penalty := math.Round(edge.Strength * contagionScale)
		prev := s.TrustScore
		s.TrustScore = math.Max(0, s.TrustScore-penalty)
		s.appendLedger("fraud_contagion", "system", s.TrustScore-prev,
			fmt.Sprintf("contagion via %s (strength %.2f)", edge.PeerID, edge.Strength))
	}
	return s
}

// #endregion fraud

// #region peers
func connectPeer(s State, act ConnectPeer) State {
	actor := act.ActorID
	if actor == "" {
		actor = s.Subject
	}
	if act.PeerID == "" || act.PeerID == actor {
		return s
	}
	strength := math.Min(1, math.Max(0, act.Strength))
	edges := s.PeerGraph[actor]
	for i, e := range edges {
		if e.PeerID == act.PeerID {
			edges[i].Strength = strength
			s.PeerGraph[actor] = edges
			return s
		}
	}
	s.PeerGraph[actor] = append(edges, PeerEdge{PeerID: act.PeerID, Strength: strength})
	return s
}

func disconnectPeer(s State, act DisconnectPeer) State {
	actor := act.ActorID
	if actor == "" {
		actor = s.Subject
	}
	edges := s.PeerGraph[actor]
	kept := make([]PeerEdge, 0, len(edges))
	for _, e := range edges {
		if e.PeerID != act.PeerID {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.PeerGraph, actor)
		return s
	}
	s.PeerGraph[actor] = kept
	return s
}

// #endregion peers

// #region employer
func employerAction(s State, a Action) State {
	p := Profile(s.Industry)
	var (
		delta  float64
		evType EventType
		label  string
		reason string
	)
	switch act := a.(type) {
	case EmployerReview:
		evType, label, reason = EventEmployerReview, "employer_review_negative", act.Reason
		delta = -math.Round(15 * p.FraudPenalty)
		if act.Positive {
			label = "employer_review_positive"
			delta = math.Round(10 * p.VerificationWeight)
		}
	case FlagInconsistency:
		evType, label, reason = EventInconsistency, "flag_inconsistency", act.Reason
		delta = -math.Round(12 * p.FraudPenalty)
	case RetractEmployerReview:
		evType, label, reason = EventRetraction, "retract_employer_review", act.Reason
		delta = retractionCredit
	case EmployerAbusePattern:
		evType, label, reason = EventAbusePattern, "employer_abuse_pattern", act.Reason
		delta = -math.Round(20 * p.FraudPenalty * severityMultiplier(act.Severity))
	default:
		return s
	}
	before := s.TrustScore
	s.TrustScore = clamp(before + delta)
	s.appendEvent(evType, s.Subject, reason)
	s.appendLedger(label, string(ActorEmployer), s.TrustScore-before, reason)
	return s
}

// #endregion employer

// #region helpers
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(100, math.Max(0, v))
}

func (s State) role() string {
	if s.ActorMode == "" {
		return string(ActorWorker)
	}
	return string(s.ActorMode)
}

// appendEvent stamps an event with the next sequence id and the current day.
func (s *State) appendEvent(t EventType, actor, detail string) {
	s.Seq++
	s.Events = append(s.Events, Event{
		ID:     fmt.Sprintf("evt-%04d", s.Seq),
		Type:   t,
		Day:    s.CurrentDay,
		Actor:  actor,
		Detail: detail,
	})
}

func (s *State) appendLedger(action, actor string, delta float64, reason string) {
	s.Seq++
	s.Ledger = append(s.Ledger, LedgerEntry{
		ID:     fmt.Sprintf("led-%04d", s.Seq),
		Day:    s.CurrentDay,
		Action: action,
		Actor:  actor,
		Delta:  delta,
		Snapshot: LedgerSnapshot{
			Trust:      clamp(s.TrustScore),
			Profile:    clamp(s.ProfileStrength),
			Confidence: Confidence(*s),
		},
		Reason: reason,
	})
}

// #endregion helpers
