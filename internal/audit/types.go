package audit

import (
	"context"
	"time"
)

// #region system-event
// SystemEvent is the system-level audit record written once per executed step.
type SystemEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	ScenarioID string         `json:"scenario_id"`
	RunID      string         `json:"run_id"`
	StepID     string         `json:"step_id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id"`
	ActorRef   string         `json:"actor_ref"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Flags      []string       `json:"flags,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// HasFlag reports whether the event carries flag.
func (e SystemEvent) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Event types.
const (
	TypeStepExecuted = "scenario.step.executed"
	TypeStepFailed   = "scenario.step.failed"
	TypeStepSkipped  = "scenario.step.skipped"
)

// #endregion system-event

// #region timeline-entry
// TimelineEntry is the user-visible record of a user-facing action. OwnerID
// is either the impersonated actor or the operator driving the run.
type TimelineEntry struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// #endregion timeline-entry

// #region interfaces
// Reader reads system events back for invariant evaluation.
type Reader interface {
	SystemEvents(ctx context.Context, scenarioID string) ([]SystemEvent, error)
}

// Sink is the dual audit destination.
type Sink interface {
	Reader
	WriteSystem(ctx context.Context, e SystemEvent) error
	WriteTimeline(ctx context.Context, e TimelineEntry) error
}

// CountFlag counts events carrying flag.
func CountFlag(events []SystemEvent, flag string) int {
	n := 0
	for _, e := range events {
		if e.HasFlag(flag) {
			n++
		}
	}
	return n
}

// #endregion interfaces
