package multiverse

import (
	"fmt"
	"time"
)

// SimulationAction is one interactive control. The set is closed.
type SimulationAction interface {
	actionName() string
}

// #region variants
// InjectSignal adds a new signal.
type InjectSignal struct {
	Kind   ItemKind
	Weight float64
	Source string
	Note   string
}

// MutateSignal reweights a signal. An empty ID targets the newest one.
type MutateSignal struct {
	ID     string
	Weight float64
}

// BackdateSignal moves a signal's creation time back by Days. An empty ID
// targets the newest one.
type BackdateSignal struct {
	ID   string
	Days int
}

// DeleteSignal drops a signal. An empty ID targets the newest one.
type DeleteSignal struct {
	ID string
}

// ApplyChaos runs a named preset; see ChaosPresets.
type ApplyChaos struct {
	Preset string
}

// AddItem inserts a fully specified item.
type AddItem struct {
	Item Item
}

// RemoveItem drops an item by id.
type RemoveItem struct {
	ID string
}

// SetThreshold overrides the pass threshold.
type SetThreshold struct {
	Value float64
}

// ReplayScenario folds a sequence of actions into one delta.
type ReplayScenario struct {
	Name    string
	Actions []SimulationAction
}

// SaveSnapshot records a labelled checkpoint without changing items.
type SaveSnapshot struct {
	Label string
}

func (InjectSignal) actionName() string   { return "inject_signal" }
func (MutateSignal) actionName() string   { return "mutate_signal" }
func (BackdateSignal) actionName() string { return "backdate_signal" }
func (DeleteSignal) actionName() string   { return "delete_signal" }
func (ApplyChaos) actionName() string     { return "apply_chaos" }
func (AddItem) actionName() string        { return "add_item" }
func (RemoveItem) actionName() string     { return "remove_item" }
func (SetThreshold) actionName() string   { return "set_threshold" }
func (ReplayScenario) actionName() string { return "replay_scenario" }
func (SaveSnapshot) actionName() string   { return "save_snapshot" }

// ActionName returns the wire name of a.
func ActionName(a SimulationAction) string { return a.actionName() }

// #endregion variants

// #region to-delta
// ActionToDelta converts an action against head into the delta that
// commits it. It never fails: inapplicable actions yield a delta whose
// Meta.NoEffect explains why. The returned delta carries head's timestamp;
// the committer stamps the real time.
func ActionToDelta(head Snapshot, a SimulationAction) Delta {
	d := Delta{At: head.Timestamp, Meta: Meta{Action: a.actionName()}}
	switch a := a.(type) {
	case InjectSignal:
		kind := a.Kind
		if kind == "" {
			kind = KindReference
		}
		d.Added = []Item{{
			ID: newItemID(head, 0), Kind: kind, Weight: a.Weight, Source: a.Source, Note: a.Note,
			CreatedAt: head.Timestamp,
		}}
		d.Notes = fmt.Sprintf("injected %s signal", kind)

	case MutateSignal:
		it, reason := target(head, a.ID)
		if reason != "" {
			d.Meta.NoEffect = reason
			return d
		}
		d.Removed = []string{it.ID}
		it.Weight = a.Weight
		d.Added = []Item{it}
		d.Notes = fmt.Sprintf("reweighted %s to %.2f", it.ID, a.Weight)

	case BackdateSignal:
		it, reason := target(head, a.ID)
		if reason != "" {
			d.Meta.NoEffect = reason
			return d
		}
		if a.Days <= 0 {
			d.Meta.NoEffect = "backdate by zero days"
			return d
		}
		d.Removed = []string{it.ID}
		it.CreatedAt = it.CreatedAt.Add(-time.Duration(a.Days) * 24 * time.Hour)
		d.Added = []Item{it}
		d.Notes = fmt.Sprintf("backdated %s by %d days", it.ID, a.Days)

	case DeleteSignal:
		it, reason := target(head, a.ID)
		if reason != "" {
			d.Meta.NoEffect = reason
			return d
		}
		d.Removed = []string{it.ID}
		d.Notes = fmt.Sprintf("deleted %s", it.ID)

	case ApplyChaos:
		preset, ok := chaosPresets[a.Preset]
		if !ok {
			d.Meta.NoEffect = fmt.Sprintf("unknown chaos preset %q", a.Preset)
			return d
		}
		d.Meta.Label = a.Preset
		preset.apply(head, &d)

	case AddItem:
		it := a.Item
		if it.ID == "" {
			it.ID = newItemID(head, 0)
		}
		if _, exists := head.Item(it.ID); exists {
			d.Meta.NoEffect = fmt.Sprintf("item %s already exists", it.ID)
			return d
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = head.Timestamp
		}
		d.Added = []Item{it}
		d.Notes = fmt.Sprintf("added %s", it.ID)

	case RemoveItem:
		if _, ok := head.Item(a.ID); !ok {
			d.Meta.NoEffect = fmt.Sprintf("item %s not found", a.ID)
			return d
		}
		d.Removed = []string{a.ID}
		d.Notes = fmt.Sprintf("removed %s", a.ID)

	case SetThreshold:
		v := clamp(a.Value)
		if v == head.Threshold {
			d.Meta.NoEffect = fmt.Sprintf("threshold already %.2f", v)
			return d
		}
		d.ThresholdOverride = &v
		d.Notes = fmt.Sprintf("threshold %.2f -> %.2f", head.Threshold, v)

	case ReplayScenario:
		replay(head, a, &d)

	case SaveSnapshot:
		d.Meta.Label = a.Label
		d.Notes = "checkpoint"
		if a.Label != "" {
			d.Notes = "checkpoint " + a.Label
		}

	default:
		d.Meta.NoEffect = fmt.Sprintf("unsupported action %T", a)
	}
	return d
}

// newItemID is unique per timeline: the next snapshot's sequence number
// plus the position within the delta.
func newItemID(head Snapshot, i int) string {
	return fmt.Sprintf("sig-%d-%d", head.Seq+1, i)
}

// target resolves an explicit id or the newest item.
func target(head Snapshot, id string) (Item, string) {
	if len(head.Items) == 0 {
		return Item{}, "no signals on the timeline"
	}
	if id == "" {
		return head.Items[len(head.Items)-1], ""
	}
	it, ok := head.Item(id)
	if !ok {
		return Item{}, fmt.Sprintf("signal %s not found", id)
	}
	return it, ""
}

// replay folds the sub-actions on a scratch timeline and emits the net
// difference as one delta.
func replay(head Snapshot, a ReplayScenario, d *Delta) {
	if len(a.Actions) == 0 {
		d.Meta.NoEffect = "empty scenario"
		return
	}
	scratch := head.clone()
	var threshold *float64
	for _, sub := range a.Actions {
		sd := ActionToDelta(scratch, sub)
		if sd.ThresholdOverride != nil {
			threshold = sd.ThresholdOverride
		}
		scratch = ApplyDelta(scratch, sd)
	}

	final := make(map[string]Item, len(scratch.Items))
	for _, it := range scratch.Items {
		final[it.ID] = it
	}
	for _, it := range head.Items {
		if f, ok := final[it.ID]; !ok || f != it {
			d.Removed = append(d.Removed, it.ID)
		}
	}
	for _, it := range scratch.Items {
		if prev, ok := head.Item(it.ID); !ok || prev != it {
			// Scratch ids count from head.Seq; re-key so they stay unique
			// on the real timeline.
			if !ok {
				it.ID = fmt.Sprintf("%s-r%d", it.ID, head.Seq+1)
			}
			d.Added = append(d.Added, it)
		}
	}
	d.ThresholdOverride = threshold
	d.Meta.Label = a.Name
	d.Notes = fmt.Sprintf("replayed %d action(s)", len(a.Actions))
	if len(d.Added) == 0 && len(d.Removed) == 0 && threshold == nil {
		d.Meta.NoEffect = "scenario produced no net change"
	}
}

// #endregion to-delta
