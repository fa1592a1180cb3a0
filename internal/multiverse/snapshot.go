// Package multiverse keeps branchable timelines of trust snapshots for
// what-if exploration. Timelines only advance through ApplyDelta, and every
// interactive control funnels through ExecuteAction.
package multiverse

import (
	"math"
	"slices"
	"time"
)

// ItemKind classifies a signal on the timeline.
type ItemKind string

const (
	KindVerification ItemKind = "verification"
	KindReference    ItemKind = "reference"
	KindDispute      ItemKind = "dispute"
	KindFraud        ItemKind = "fraud"
)

// DefaultThreshold applies until a SetThreshold action overrides it.
const DefaultThreshold = 60.0

// #region types
// Item is one signal contributing to the score.
type Item struct {
	ID        string    `json:"id"`
	Kind      ItemKind  `json:"kind"`
	Weight    float64   `json:"weight"`
	Source    string    `json:"source,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta annotates the delta that produced a snapshot.
type Meta struct {
	Action   string            `json:"action,omitempty"`
	NoEffect string            `json:"no_effect,omitempty"`
	Label    string            `json:"label,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

func (m *Meta) clone() *Meta {
	if m == nil {
		return nil
	}
	c := *m
	if m.Labels != nil {
		c.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			c.Labels[k] = v
		}
	}
	return &c
}

// Snapshot is an immutable point on a timeline. Seq counts applied deltas.
type Snapshot struct {
	Seq             int       `json:"seq"`
	Timestamp       time.Time `json:"timestamp"`
	Items           []Item    `json:"items"`
	TrustScore      float64   `json:"trust_score"`
	ConfidenceScore float64   `json:"confidence_score"`
	NetworkStrength float64   `json:"network_strength"`
	Threshold       float64   `json:"threshold"`
	Notes           string    `json:"notes,omitempty"`
	Meta            *Meta     `json:"meta,omitempty"`
}

// Passing reports whether the trust score meets the threshold.
func (s Snapshot) Passing() bool {
	return s.TrustScore >= s.Threshold
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.Items = slices.Clone(s.Items)
	c.Meta = s.Meta.clone()
	return c
}

// Item returns the item with id.
func (s Snapshot) Item(id string) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Delta is the only mutation primitive. Removed ids are dropped before
// Added items are appended, so removing and re-adding an id replaces that
// item.
type Delta struct {
	At                time.Time `json:"at"`
	Added             []Item    `json:"added,omitempty"`
	Removed           []string  `json:"removed,omitempty"`
	ThresholdOverride *float64  `json:"threshold_override,omitempty"`
	ScoreOverride     *float64  `json:"score_override,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	Meta              Meta      `json:"meta"`
}

// #endregion types

// #region apply
// Genesis is the empty starting snapshot.
func Genesis(at time.Time) Snapshot {
	return ApplyDelta(Snapshot{Threshold: DefaultThreshold, Seq: -1}, Delta{At: at, Meta: Meta{Action: "genesis"}})
}

// ApplyDelta derives the next snapshot. prev is never modified. A zero
// delta timestamp keeps prev's.
func ApplyDelta(prev Snapshot, d Delta) Snapshot {
	next := Snapshot{
		Seq:       prev.Seq + 1,
		Timestamp: prev.Timestamp,
		Threshold: prev.Threshold,
		Notes:     d.Notes,
	}
	if !d.At.IsZero() {
		next.Timestamp = d.At
	}
	removed := make(map[string]bool, len(d.Removed))
	for _, id := range d.Removed {
		removed[id] = true
	}
	next.Items = make([]Item, 0, len(prev.Items)+len(d.Added))
	for _, it := range prev.Items {
		if !removed[it.ID] {
			next.Items = append(next.Items, it)
		}
	}
	next.Items = append(next.Items, d.Added...)

	if d.ThresholdOverride != nil {
		next.Threshold = clamp(*d.ThresholdOverride)
	}
	next.TrustScore, next.ConfidenceScore, next.NetworkStrength = score(next.Items, next.Timestamp)
	if d.ScoreOverride != nil {
		next.TrustScore = clamp(*d.ScoreOverride)
	}
	meta := d.Meta
	next.Meta = meta.clone()
	return next
}

// #endregion apply

// #region scoring
var kindWeight = map[ItemKind]float64{
	KindVerification: 8,
	KindReference:    5,
	KindDispute:      -10,
	KindFraud:        -30,
}

// ageFactor halves signals older than 90 days and trims those past 30.
func ageFactor(created, now time.Time) float64 {
	if created.IsZero() || now.IsZero() {
		return 1
	}
	days := now.Sub(created).Hours() / 24
	switch {
	case days > 90:
		return 0.5
	case days > 30:
		return 0.8
	}
	return 1
}

func score(items []Item, now time.Time) (trust, confidence, network float64) {
	trust = 50
	sources := map[string]bool{}
	for _, it := range items {
		w := it.Weight
		if w == 0 {
			w = 1
		}
		trust += kindWeight[it.Kind] * w * ageFactor(it.CreatedAt, now)
		if it.Kind == KindReference && it.Source != "" {
			sources[it.Source] = true
		}
	}
	trust = clamp(trust)
	network = clamp(float64(len(sources)) * 20)
	confidence = math.Min(float64(len(items))/6, 1) * trust
	if len(sources) == 0 {
		confidence = math.Min(confidence, 50)
	}
	return round2(trust), round2(clamp(confidence)), network
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// #endregion scoring
