package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySink keeps audit records in process.
type MemorySink struct {
	mu       sync.Mutex
	system   []SystemEvent
	timeline []TimelineEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) WriteSystem(_ context.Context, e SystemEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Flags = append([]string(nil), e.Flags...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = append(m.system, e)
	return nil
}

func (m *MemorySink) WriteTimeline(_ context.Context, e TimelineEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeline = append(m.timeline, e)
	return nil
}

// SystemEvents returns the scenario's events in write order. An empty
// scenarioID returns all events.
func (m *MemorySink) SystemEvents(_ context.Context, scenarioID string) ([]SystemEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SystemEvent
	for _, e := range m.system {
		if scenarioID == "" || e.ScenarioID == scenarioID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Timeline returns the entries owned by ownerID, or all when empty.
func (m *MemorySink) Timeline(ownerID string) []TimelineEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TimelineEntry
	for _, e := range m.timeline {
		if ownerID == "" || e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}
