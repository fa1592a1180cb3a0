package trust

import "fmt"

const auditTraceLen = 20

// #region decision-types
// Decision is the employer-facing verdict.
type Decision string

const (
	DecisionPass   Decision = "PASS"
	DecisionFail   Decision = "FAIL"
	DecisionReview Decision = "REVIEW"
)

// Factor is one input to the decision, compared against its bar.
type Factor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
	Met    bool    `json:"met"`
}

// Counterfactual is the signed change in one metric that would flip the
// decision.
type Counterfactual struct {
	Metric string  `json:"metric"`
	Delta  float64 `json:"delta"`
	Effect string  `json:"effect"`
}

// Explanation accompanies every Result.
type Explanation struct {
	PrimaryFactors  []Factor         `json:"primary_factors"`
	Counterfactuals []Counterfactual `json:"counterfactuals"`
	Hints           []string         `json:"hints"`
	AuditTrace      []string         `json:"audit_trace"`
}

// Result is the output of Evaluate.
type Result struct {
	Decision     Decision    `json:"decision"`
	Reason       string      `json:"reason"`
	TrustScore   float64     `json:"trust_score"`
	Confidence   float64     `json:"confidence"`
	Threshold    float64     `json:"threshold"`
	FraudPresent bool        `json:"fraud_present"`
	Explanation  Explanation `json:"explanation"`
}

// #endregion decision-types

// #region evaluate
// Evaluate derives the decision and its explanation. Fraud and a missed
// threshold veto first; a confidence shortfall only demotes to REVIEW.
func Evaluate(s State) Result {
	threshold := s.EffectiveThreshold()
	profile := Profile(s.Industry)
	fraud := fraudPresent(s)

	res := Result{
		TrustScore:   s.TrustScore,
		Confidence:   s.ConfidenceScore,
		Threshold:    threshold,
		FraudPresent: fraud,
	}

	scoreMet := s.TrustScore >= threshold
	confMet := s.ConfidenceScore >= profile.MinConfidence

	// --- Hard veto pass ---
	switch {
	case fraud:
		res.Decision = DecisionFail
		res.Reason = "fraud entry present in ledger"
	case !scoreMet:
		res.Decision = DecisionFail
		res.Reason = fmt.Sprintf("trust %.2f below threshold %.2f", s.TrustScore, threshold)
	case !confMet:
		res.Decision = DecisionReview
		res.Reason = fmt.Sprintf("confidence %.0f below %s bar %.0f", s.ConfidenceScore, profile.Name, profile.MinConfidence)
	default:
		res.Decision = DecisionPass
		res.Reason = "all factors met"
	}

	res.Explanation = Explanation{
		PrimaryFactors: []Factor{
			{Name: "trust_score", Value: s.TrustScore, Target: threshold, Met: scoreMet},
			{Name: "confidence", Value: s.ConfidenceScore, Target: profile.MinConfidence, Met: confMet},
			{Name: "event_count", Value: float64(len(s.Events)), Target: evidenceSaturation, Met: float64(len(s.Events)) >= evidenceSaturation},
		},
		Counterfactuals: counterfactuals(s, res.Decision, threshold, profile.MinConfidence, fraud),
		Hints:           hints(scoreMet, confMet, fraud, s),
		AuditTrace:      auditTrace(s),
	}
	return res
}

// #endregion evaluate

// #region explanation-helpers
func fraudPresent(s State) bool {
	for _, l := range s.Ledger {
		if l.Action == "fraud_trigger" {
			return true
		}
	}
	return false
}

func counterfactuals(s State, d Decision, threshold, minConf float64, fraud bool) []Counterfactual {
	out := []Counterfactual{}
	if fraud {
		out = append(out, Counterfactual{Metric: "fraud_entries", Delta: 0, Effect: "FAIL holds until the state is reset"})
		return out
	}
	switch d {
	case DecisionPass:
		out = append(out, Counterfactual{
			Metric: "trust_score",
			Delta:  threshold - s.TrustScore,
			Effect: "FAIL once trust drops below threshold",
		})
		out = append(out, Counterfactual{
			Metric: "confidence",
			Delta:  minConf - s.ConfidenceScore,
			Effect: "REVIEW once confidence drops below the industry bar",
		})
	case DecisionFail:
		effect := "PASS"
		if s.ConfidenceScore < minConf {
			effect = "REVIEW"
		}
		out = append(out, Counterfactual{
			Metric: "trust_score",
			Delta:  threshold - s.TrustScore,
			Effect: effect + " once trust reaches threshold",
		})
	case DecisionReview:
		out = append(out, Counterfactual{
			Metric: "confidence",
			Delta:  minConf - s.ConfidenceScore,
			Effect: "PASS once confidence reaches the industry bar",
		})
	}
	return out
}

func hints(scoreMet, confMet, fraud bool, s State) []string {
	out := []string{}
	if fraud {
		out = append(out, "resolve the fraud finding before re-evaluation")
	}
	if !scoreMet {
		out = append(out, "add verified employment references to raise trust")
	}
	if !confMet {
		out = append(out, "accumulate more verified events over time")
	}
	if len(s.PeerGraph[s.Subject]) == 0 {
		out = append(out, "connect verified peers; isolated profiles are capped")
	}
	if s.CurrentDay-lastVerificationDay(s) > decayGraceDays {
		out = append(out, "refresh verification to stop decay")
	}
	return out
}

func auditTrace(s State) []string {
	start := 0
	if len(s.Ledger) > auditTraceLen {
		start = len(s.Ledger) - auditTraceLen
	}
	ids := make([]string, 0, len(s.Ledger)-start)
	for _, l := range s.Ledger[start:] {
		ids = append(ids, l.ID)
	}
	return ids
}

// #endregion explanation-helpers
