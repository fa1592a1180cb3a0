package trust

import (
	"math"
	"math/rand/v2"
	"sort"
)

// NoiseModel selects how trials perturb the trust score.
type NoiseModel string

const (
	NoiseUniform          NoiseModel = "uniform"
	NoiseIndustryWeighted NoiseModel = "industry_weighted"
)

const (
	noiseAmplitude = 5.0
	bandBatches    = 20
)

// SimulationResult summarises a Monte-Carlo run.
type SimulationResult struct {
	Runs          int     `json:"runs"`
	PassRate      float64 `json:"pass_rate"`
	BandLow       float64 `json:"band_low"`  // 5th percentile batch pass rate
	BandHigh      float64 `json:"band_high"` // 95th percentile batch pass rate
	WorstCase     float64 `json:"worst_case"`
	BestCase      float64 `json:"best_case"`
	FalsePositive float64 `json:"false_positive"`
	FalseNegative float64 `json:"false_negative"`
}

// Simulate perturbs the current trust score runs times with uniform noise in
// [-5,5] and reports the pass-rate band against the effective threshold.
// The same seed yields the same result.
func Simulate(s State, runs int, model NoiseModel, seed uint64) SimulationResult {
	if runs <= 0 {
		return SimulationResult{}
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	threshold := s.EffectiveThreshold()
	scale := 1.0
	if model == NoiseIndustryWeighted {
		scale = Profile(s.Industry).FraudPenalty
	}

	batchSize := runs / bandBatches
	if batchSize < 1 {
		batchSize = 1
	}

	res := SimulationResult{Runs: runs, WorstCase: math.Inf(1), BestCase: math.Inf(-1)}
	var (
		passed      int
		batchPassed int
		batchCount  int
		batchRates  []float64
	)
	for i := 0; i < runs; i++ {
		noise := (rng.Float64()*2 - 1) * noiseAmplitude * scale
		outcome := clamp(s.TrustScore + noise)
		res.WorstCase = math.Min(res.WorstCase, outcome)
		res.BestCase = math.Max(res.BestCase, outcome)
		if outcome >= threshold {
			passed++
			batchPassed++
		}
		batchCount++
		if batchCount == batchSize {
			batchRates = append(batchRates, float64(batchPassed)/float64(batchCount))
			batchPassed, batchCount = 0, 0
		}
	}
	if batchCount > 0 {
		batchRates = append(batchRates, float64(batchPassed)/float64(batchCount))
	}

	res.PassRate = float64(passed) / float64(runs)
	sort.Float64s(batchRates)
	res.BandLow = percentile(batchRates, 0.05)
	res.BandHigh = percentile(batchRates, 0.95)

	// One-sided: only the outcome opposite to the unperturbed decision is an error.
	if s.TrustScore >= threshold {
		res.FalseNegative = float64(runs-passed) / float64(runs)
	} else {
		res.FalsePositive = float64(passed) / float64(runs)
	}
	return res
}

// percentile uses nearest-rank over sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
