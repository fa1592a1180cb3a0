package multiverse

import (
	"fmt"
	"sort"
	"time"
)

type chaosPreset struct {
	description string
	apply       func(head Snapshot, d *Delta)
}

var chaosPresets = map[string]chaosPreset{
	"fraud_burst": {
		description: "three fraud signals land at once",
		apply: func(head Snapshot, d *Delta) {
			for i := 0; i < 3; i++ {
				d.Added = append(d.Added, Item{
					ID: newItemID(head, i), Kind: KindFraud, Weight: 1, Source: "chaos", CreatedAt: head.Timestamp,
				})
			}
			d.Notes = "fraud burst: 3 fraud signals"
		},
	},
	"reference_flood": {
		description: "ten low-weight references from distinct sources",
		apply: func(head Snapshot, d *Delta) {
			for i := 0; i < 10; i++ {
				d.Added = append(d.Added, Item{
					ID: newItemID(head, i), Kind: KindReference, Weight: 0.3,
					Source: fmt.Sprintf("flood-%d", i), CreatedAt: head.Timestamp,
				})
			}
			d.Notes = "reference flood: 10 references"
		},
	},
	"verification_drought": {
		description: "every verification signal disappears",
		apply: func(head Snapshot, d *Delta) {
			for _, it := range head.Items {
				if it.Kind == KindVerification {
					d.Removed = append(d.Removed, it.ID)
				}
			}
			if len(d.Removed) == 0 {
				d.Meta.NoEffect = "no verification signals to remove"
				return
			}
			d.Notes = fmt.Sprintf("verification drought: removed %d", len(d.Removed))
		},
	},
	"decay_shock": {
		description: "every signal ages by 120 days",
		apply: func(head Snapshot, d *Delta) {
			if len(head.Items) == 0 {
				d.Meta.NoEffect = "no signals to age"
				return
			}
			for _, it := range head.Items {
				d.Removed = append(d.Removed, it.ID)
				it.CreatedAt = it.CreatedAt.Add(-120 * 24 * time.Hour)
				d.Added = append(d.Added, it)
			}
			d.Notes = fmt.Sprintf("decay shock: aged %d signals", len(head.Items))
		},
	},
}

// ChaosPresets lists preset names with a short description, sorted by name.
func ChaosPresets() [][2]string {
	out := make([][2]string, 0, len(chaosPresets))
	for name, p := range chaosPresets {
		out = append(out, [2]string{name, p.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
