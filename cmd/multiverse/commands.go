package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/multiverse"
)

// #region parse

// parseAction maps one REPL line onto a simulation action. ok is false for
// lines that are not simulation actions (universe management, help).
func parseAction(fields []string) (a multiverse.SimulationAction, ok bool, err error) {
	if len(fields) == 0 {
		return nil, false, nil
	}
	args := fields[1:]
	switch fields[0] {
	case "inject":
		if len(args) < 1 {
			return nil, true, fmt.Errorf("usage: inject <kind> [weight] [source] [note...]")
		}
		kind, err := parseKind(args[0])
		if err != nil {
			return nil, true, err
		}
		in := multiverse.InjectSignal{Kind: kind, Weight: 1}
		if len(args) > 1 {
			if in.Weight, err = strconv.ParseFloat(args[1], 64); err != nil {
				return nil, true, fmt.Errorf("weight: %w", err)
			}
		}
		if len(args) > 2 {
			in.Source = args[2]
		}
		if len(args) > 3 {
			in.Note = strings.Join(args[3:], " ")
		}
		return in, true, nil

	case "mutate":
		if len(args) != 2 {
			return nil, true, fmt.Errorf("usage: mutate <id|-> <weight>")
		}
		w, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, true, fmt.Errorf("weight: %w", err)
		}
		return multiverse.MutateSignal{ID: newest(args[0]), Weight: w}, true, nil

	case "backdate":
		if len(args) != 2 {
			return nil, true, fmt.Errorf("usage: backdate <id|-> <days>")
		}
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, true, fmt.Errorf("days: %w", err)
		}
		return multiverse.BackdateSignal{ID: newest(args[0]), Days: days}, true, nil

	case "delete":
		id := ""
		if len(args) > 0 {
			id = newest(args[0])
		}
		return multiverse.DeleteSignal{ID: id}, true, nil

	case "chaos":
		if len(args) != 1 {
			return nil, true, fmt.Errorf("usage: chaos <preset>")
		}
		return multiverse.ApplyChaos{Preset: args[0]}, true, nil

	case "add":
		if len(args) < 2 {
			return nil, true, fmt.Errorf("usage: add <kind> <id> [weight] [source]")
		}
		kind, err := parseKind(args[0])
		if err != nil {
			return nil, true, err
		}
		item := multiverse.Item{ID: args[1], Kind: kind, Weight: 1}
		if len(args) > 2 {
			if item.Weight, err = strconv.ParseFloat(args[2], 64); err != nil {
				return nil, true, fmt.Errorf("weight: %w", err)
			}
		}
		if len(args) > 3 {
			item.Source = args[3]
		}
		return multiverse.AddItem{Item: item}, true, nil

	case "remove":
		if len(args) != 1 {
			return nil, true, fmt.Errorf("usage: remove <id>")
		}
		return multiverse.RemoveItem{ID: args[0]}, true, nil

	case "threshold":
		if len(args) != 1 {
			return nil, true, fmt.Errorf("usage: threshold <value>")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, true, fmt.Errorf("threshold: %w", err)
		}
		return multiverse.SetThreshold{Value: v}, true, nil

	case "save":
		return multiverse.SaveSnapshot{Label: strings.Join(args, " ")}, true, nil

	case "replay":
		// replay <name> <preset>...: folds chaos presets into one delta
		if len(args) < 2 {
			return nil, true, fmt.Errorf("usage: replay <name> <preset> [preset...]")
		}
		rs := multiverse.ReplayScenario{Name: args[0]}
		for _, p := range args[1:] {
			rs.Actions = append(rs.Actions, multiverse.ApplyChaos{Preset: p})
		}
		return rs, true, nil
	}
	return nil, false, nil
}

func parseKind(s string) (multiverse.ItemKind, error) {
	switch k := multiverse.ItemKind(s); k {
	case multiverse.KindVerification, multiverse.KindReference, multiverse.KindDispute, multiverse.KindFraud:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q (verification|reference|dispute|fraud)", s)
}

// newest maps "-" to the empty id, which targets the newest signal.
func newest(id string) string {
	if id == "-" {
		return ""
	}
	return id
}

// #endregion parse

// #region render

func formatSnapshot(s multiverse.Snapshot) string {
	pass := "below"
	if s.Passing() {
		pass = "passing"
	}
	line := fmt.Sprintf("#%d trust=%.2f confidence=%.2f network=%.2f threshold=%.2f (%s) items=%d",
		s.Seq, s.TrustScore, s.ConfidenceScore, s.NetworkStrength, s.Threshold, pass, len(s.Items))
	if s.Meta != nil {
		if s.Meta.Action != "" {
			line += " action=" + s.Meta.Action
		}
		if s.Meta.Label != "" {
			line += fmt.Sprintf(" label=%q", s.Meta.Label)
		}
		if s.Meta.NoEffect != "" {
			line += fmt.Sprintf(" [no effect: %s]", s.Meta.NoEffect)
		}
	}
	return line
}

func formatItem(it multiverse.Item, now time.Time) string {
	age := int(now.Sub(it.CreatedAt).Hours() / 24)
	return fmt.Sprintf("  %-16s %-13s w=%.2f age=%dd %s %s", it.ID, it.Kind, it.Weight, age, it.Source, it.Note)
}

// #endregion render
