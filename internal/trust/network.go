package trust

import "math"

const (
	isolatedFactor        = 0.3
	maxStabilityFactor    = 1.5
	strengthFactorScale   = 0.8
	isolatedConfidenceCap = 50.0
	evidenceSaturation    = 6.0
	stabilitySaturation   = 90.0
	graphBoostScale       = 10.0
)

// #region network
// MeanPeerStrength is the average edge strength of the actor, 0 when isolated.
func MeanPeerStrength(s State, actorID string) float64 {
	edges := s.PeerGraph[actorID]
	if len(edges) == 0 {
		return 0
	}
	var sum float64
	for _, e := range edges {
		sum += e.Strength
	}
	return sum / float64(len(edges))
}

// StabilityFactor limits how fast an actor's trust can move. Isolated actors
// are held at the 0.3 cap.
func StabilityFactor(s State, actorID string) float64 {
	if len(s.PeerGraph[actorID]) == 0 {
		return isolatedFactor
	}
	return math.Min(maxStabilityFactor, isolatedFactor+MeanPeerStrength(s, actorID)*strengthFactorScale)
}

// #endregion network

// #region confidence
// Confidence derives the evidence-backed confidence score for the subject.
func Confidence(s State) float64 {
	actor := s.Subject
	evidence := math.Min(float64(len(s.Events))/evidenceSaturation, 1)
	stability := math.Min(float64(s.CurrentDay)/stabilitySaturation, 1)
	boost := math.Round(MeanPeerStrength(s, actor) * graphBoostScale)
	c := clamp(math.Round((s.TrustScore + boost) * evidence * stability * StabilityFactor(s, actor)))
	if len(s.PeerGraph[actor]) == 0 && c > isolatedConfidenceCap {
		c = isolatedConfidenceCap
	}
	return c
}

// #endregion confidence
