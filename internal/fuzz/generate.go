// Package fuzz generates adversarial scenario documents and runs them with
// invariant evaluation and persisted per-step score snapshots.
package fuzz

import (
	"fmt"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/scenario"
)

// AttackType names a generator archetype.
type AttackType string

const (
	AttackBoostRings        AttackType = "boost_rings"
	AttackRetaliation       AttackType = "retaliation"
	AttackOscillation       AttackType = "oscillation"
	AttackImpersonationSpam AttackType = "impersonation_spam"
)

// AttackTypes lists every archetype.
func AttackTypes() []AttackType {
	return []AttackType{AttackBoostRings, AttackRetaliation, AttackOscillation, AttackImpersonationSpam}
}

// #region bounds
// Bounds limit generated documents and parameterise their assertions.
type Bounds struct {
	MinActors           int     `json:"min_actors" yaml:"min_actors"`
	MaxActors           int     `json:"max_actors" yaml:"max_actors"`
	MaxCombinedIncrease float64 `json:"max_combined_increase" yaml:"max_combined_increase"`
	WindowSteps         int     `json:"window_steps" yaml:"window_steps"`
	MaxOscillation      float64 `json:"max_oscillation" yaml:"max_oscillation"`
}

func DefaultBounds() Bounds {
	return Bounds{MinActors: 3, MaxActors: 6, MaxCombinedIncrease: 50, WindowSteps: 4, MaxOscillation: 15}
}

func (b Bounds) normalized() Bounds {
	d := DefaultBounds()
	if b.MinActors < 2 {
		b.MinActors = 2
	}
	if b.MaxActors < b.MinActors {
		b.MaxActors = b.MinActors
	}
	if b.MaxCombinedIncrease <= 0 {
		b.MaxCombinedIncrease = d.MaxCombinedIncrease
	}
	if b.WindowSteps <= 0 {
		b.WindowSteps = d.WindowSteps
	}
	if b.MaxOscillation <= 0 {
		b.MaxOscillation = d.MaxOscillation
	}
	return b
}

// #endregion bounds

// #region generate
// Generate builds a randomized document for attack. The same attack,
// bounds and seed always give the same document.
func Generate(attack AttackType, b Bounds, seed uint32) (*scenario.Doc, error) {
	b = b.normalized()
	rng := NewLCG(seed)
	doc := &scenario.Doc{
		ID:   fmt.Sprintf("fuzz-%s-%d", attack, seed),
		Name: fmt.Sprintf("%s (seed %d)", attack, seed),
		Mode: scenario.ModeSafe,
	}
	switch attack {
	case AttackBoostRings:
		boostRing(doc, rng, b)
	case AttackRetaliation:
		retaliation(doc, rng)
	case AttackOscillation:
		oscillation(doc, rng, b)
	case AttackImpersonationSpam:
		impersonationSpam(doc, rng, b)
	default:
		return nil, fmt.Errorf("unknown attack type %q", attack)
	}
	return doc, nil
}

func ref(r string) string { return "{{" + r + "}}" }

func actors(prefix, role string, n int) []scenario.Actor {
	out := make([]scenario.Actor, n)
	for i := range out {
		out[i] = scenario.Actor{ID: fmt.Sprintf("%s%d", prefix, i), Role: role}
	}
	return out
}

func recalc(as string) scenario.Step {
	return scenario.Step{ID: "recalc-final", Action: action.Recalculate, As: as}
}

// boostRing: actor i rates actor (i+1 mod n) five stars.
func boostRing(doc *scenario.Doc, rng *LCG, b Bounds) {
	n := rng.Range(b.MinActors, b.MaxActors)
	doc.Actors = actors("ring", "worker", n)
	refs := doc.ActorRefs()
	for i := 0; i < n; i++ {
		doc.Steps = append(doc.Steps, scenario.Step{
			ID:     fmt.Sprintf("ref-%d", i),
			Action: action.SubmitReference,
			As:     refs[i],
			Params: map[string]any{"target": ref(refs[(i+1)%n]), "rating": 5},
		})
	}
	Shuffle(rng, doc.Steps)
	doc.Steps = append(doc.Steps, recalc(refs[0]))
	doc.Assertions = []scenario.Assertion{{
		Type:                scenario.AssertNoLinearBoost,
		Actors:              refs,
		MaxCombinedIncrease: b.MaxCombinedIncrease,
	}}
}

// retaliation: an employer flags abuse and files a dispute, in random
// order, against a worker.
func retaliation(doc *scenario.Doc, rng *LCG) {
	doc.Actors = []scenario.Actor{{ID: "employer", Role: "employer"}, {ID: "worker", Role: "worker"}}
	flag := scenario.Step{
		ID: "flag", Action: action.FlagAbuse, As: "employer",
		Params: map[string]any{"target": ref("worker"), "reason": "retaliation"},
	}
	dispute := scenario.Step{
		ID: "dispute", Action: action.FileDispute, As: "employer",
		Params: map[string]any{"target": ref("worker"), "reason": "retaliation"},
	}
	if rng.Bool() {
		doc.Steps = []scenario.Step{flag, dispute}
	} else {
		doc.Steps = []scenario.Step{dispute, flag}
	}
	doc.Steps = append(doc.Steps, recalc("employer"))
	doc.Assertions = []scenario.Assertion{{Type: scenario.AssertAbuseSignalsTriggered, MinCount: 1}}
}

// oscillation alternates positive references and recalculations on one
// subject, then a minority of supporters flag abuse.
func oscillation(doc *scenario.Doc, rng *LCG, b Bounds) {
	supporters := rng.Range(b.MinActors, b.MaxActors) - 1
	if supporters < 1 {
		supporters = 1
	}
	doc.Actors = append([]scenario.Actor{{ID: "subject", Role: "worker"}}, actors("sup", "worker", supporters)...)
	rounds := rng.Range(3, 6)
	for i := 0; i < rounds; i++ {
		sup := fmt.Sprintf("sup%d", i%supporters)
		doc.Steps = append(doc.Steps,
			scenario.Step{
				ID: fmt.Sprintf("ref-%d", i), Action: action.SubmitReference, As: sup,
				Params: map[string]any{"target": ref("subject"), "rating": rng.Range(4, 5)},
			},
			scenario.Step{ID: fmt.Sprintf("recalc-%d", i), Action: action.Recalculate, As: sup},
		)
	}
	flags := max(1, supporters/3)
	for i := 0; i < flags; i++ {
		doc.Steps = append(doc.Steps, scenario.Step{
			ID: fmt.Sprintf("flag-%d", i), Action: action.FlagAbuse, As: fmt.Sprintf("sup%d", (supporters-1-i)%supporters),
			Params: map[string]any{"target": ref("subject"), "reason": "oscillation probe"},
		})
	}
	doc.Steps = append(doc.Steps, recalc("subject"))
	doc.Assertions = []scenario.Assertion{{
		Type:           scenario.AssertTrustStabilizes,
		Actor:          "subject",
		WindowSteps:    b.WindowSteps,
		MaxOscillation: b.MaxOscillation,
	}}
}

// impersonationSpam: about 2n cross-actor references plus a few abuse
// flags, all shuffled. It probes load and consistency, so its assertion
// is weak.
func impersonationSpam(doc *scenario.Doc, rng *LCG, b Bounds) {
	n := rng.Range(b.MinActors, b.MaxActors)
	doc.Actors = actors("user", "worker", n)
	refs := doc.ActorRefs()
	for i := 0; i < 2*n; i++ {
		from := rng.Intn(n)
		to := (from + 1 + rng.Intn(n-1)) % n
		doc.Steps = append(doc.Steps, scenario.Step{
			ID: fmt.Sprintf("spam-%d", i), Action: action.SubmitReference, As: refs[from],
			Params: map[string]any{"target": ref(refs[to]), "rating": rng.Range(1, 5)},
		})
	}
	for i, flags := 0, rng.Range(1, 3); i < flags; i++ {
		from := rng.Intn(n)
		to := (from + 1 + rng.Intn(n-1)) % n
		doc.Steps = append(doc.Steps, scenario.Step{
			ID: fmt.Sprintf("flag-%d", i), Action: action.FlagAbuse, As: refs[from],
			Params: map[string]any{"target": ref(refs[to]), "reason": "spam"},
		})
	}
	Shuffle(rng, doc.Steps)
	doc.Steps = append(doc.Steps, recalc(refs[0]))
	doc.Assertions = []scenario.Assertion{{Type: scenario.AssertAbuseSignalsTriggered, MinCount: 0}}
}

// #endregion generate

// #region builtin
// BoostRingDoc is the fixed three-actor mutual five-star ring.
func BoostRingDoc() *scenario.Doc {
	refs := []string{"a", "b", "c"}
	doc := &scenario.Doc{
		ID:     "builtin-boost-ring-3",
		Name:   "three actor five star ring",
		Mode:   scenario.ModeSafe,
		Actors: actorsFor(refs),
	}
	for i, r := range refs {
		doc.Steps = append(doc.Steps, scenario.Step{
			ID:     fmt.Sprintf("ref-%s", r),
			Action: action.SubmitReference,
			As:     r,
			Params: map[string]any{"target": ref(refs[(i+1)%len(refs)]), "rating": 5},
		})
	}
	doc.Steps = append(doc.Steps, recalc("a"))
	doc.Assertions = []scenario.Assertion{{
		Type:                scenario.AssertNoLinearBoost,
		Actors:              refs,
		MaxCombinedIncrease: 50,
	}}
	return doc
}

func actorsFor(refs []string) []scenario.Actor {
	out := make([]scenario.Actor, len(refs))
	for i, r := range refs {
		out[i] = scenario.Actor{ID: r, Role: "worker"}
	}
	return out
}

// #endregion builtin
