package multiverse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/fingerprint"
	"github.com/google/uuid"
)

var (
	ErrUniverseNotFound = errors.New("universe not found")
	ErrNoActiveUniverse = errors.New("no active universe")
)

// #region universe
// Universe is a named branch. ParentID is nil for roots.
type Universe struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	ParentID *string    `json:"parent_id,omitempty"`
	Timeline []Snapshot `json:"timeline"`
}

// Head returns the newest snapshot.
func (u Universe) Head() Snapshot {
	return u.Timeline[len(u.Timeline)-1]
}

func (u *Universe) clone() Universe {
	c := Universe{ID: u.ID, Name: u.Name, Timeline: make([]Snapshot, len(u.Timeline))}
	if u.ParentID != nil {
		p := *u.ParentID
		c.ParentID = &p
	}
	for i, s := range u.Timeline {
		c.Timeline[i] = s.clone()
	}
	return c
}

// #endregion universe

// #region multiverse
// Multiverse owns a set of universes and the active selection. Every read
// returns deep copies; callers never share timeline storage.
type Multiverse struct {
	mu        sync.Mutex
	universes map[string]*Universe
	order     []string
	active    string
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Multiverse.
type Option func(*Multiverse)

// WithClock fixes the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Multiverse) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Multiverse) { m.log = l }
}

func New(opts ...Option) *Multiverse {
	m := &Multiverse{
		universes: map[string]*Universe{},
		now:       func() time.Time { return time.Now().UTC() },
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "multiverse")
	return m
}

// CreateUniverse seeds a branch from initial, or from a genesis snapshot
// when initial is empty. The first universe becomes active.
func (m *Multiverse) CreateUniverse(name string, parentID *string, initial []Snapshot) Universe {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &Universe{ID: uuid.New().String(), Name: name}
	if parentID != nil {
		p := *parentID
		u.ParentID = &p
	}
	if len(initial) == 0 {
		u.Timeline = []Snapshot{Genesis(m.now())}
	} else {
		u.Timeline = make([]Snapshot, len(initial))
		for i, s := range initial {
			u.Timeline[i] = s.clone()
		}
	}
	m.add(u)
	m.log.Info("universe created", "id", u.ID, "name", name, "snapshots", len(u.Timeline))
	return u.clone()
}

func (m *Multiverse) add(u *Universe) {
	m.universes[u.ID] = u
	m.order = append(m.order, u.ID)
	if m.active == "" {
		m.active = u.ID
	}
}

// Fork deep-copies the active universe under a new id, links it to its
// parent and activates it.
func (m *Multiverse) Fork() (Universe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.universes[m.active]
	if !ok {
		return Universe{}, ErrNoActiveUniverse
	}
	u := src.clone()
	parent := src.ID
	u.ID, u.Name, u.ParentID = uuid.New().String(), src.Name+" (fork)", &parent
	m.add(&u)
	m.active = u.ID
	m.log.Info("universe forked", "id", u.ID, "parent", parent)
	return u.clone(), nil
}

// Merge replaces target's timeline with a deep copy of source's.
func (m *Multiverse) Merge(targetID, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.universes[targetID]
	if !ok {
		return fmt.Errorf("merge target %s: %w", targetID, ErrUniverseNotFound)
	}
	source, ok := m.universes[sourceID]
	if !ok {
		return fmt.Errorf("merge source %s: %w", sourceID, ErrUniverseNotFound)
	}
	target.Timeline = source.clone().Timeline
	m.log.Info("universe merged", "target", targetID, "source", sourceID, "snapshots", len(target.Timeline))
	return nil
}

// Destroy removes a universe. Destroying the active one activates the
// earliest remaining universe, or none.
func (m *Multiverse) Destroy(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.universes[id]; !ok {
		return fmt.Errorf("destroy %s: %w", id, ErrUniverseNotFound)
	}
	delete(m.universes, id)
	m.order = slices.DeleteFunc(m.order, func(o string) bool { return o == id })
	if m.active == id {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
	m.log.Info("universe destroyed", "id", id, "active", m.active)
	return nil
}

func (m *Multiverse) Activate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.universes[id]; !ok {
		return fmt.Errorf("activate %s: %w", id, ErrUniverseNotFound)
	}
	m.active = id
	return nil
}

// Active returns a copy of the active universe.
func (m *Multiverse) Active() (Universe, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.universes[m.active]
	if !ok {
		return Universe{}, false
	}
	return u.clone(), true
}

func (m *Multiverse) Universe(id string) (Universe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.universes[id]
	if !ok {
		return Universe{}, fmt.Errorf("universe %s: %w", id, ErrUniverseNotFound)
	}
	return u.clone(), nil
}

// List returns copies in creation order.
func (m *Multiverse) List() []Universe {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Universe, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.universes[id].clone())
	}
	return out
}

// #endregion multiverse

// #region executor
// Result reports one committed action.
type Result struct {
	OK       bool     `json:"ok"`
	Snapshot Snapshot `json:"snapshot"`
	NoEffect string   `json:"no_effect,omitempty"`
}

// ExecuteAction converts a against the active head and commits it. Every
// action appends exactly one snapshot.
func (m *Multiverse) ExecuteAction(a SimulationAction) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.universes[m.active]
	if !ok {
		return Result{}, ErrNoActiveUniverse
	}
	head := u.Head()
	head.Timestamp = m.now()
	s := m.commit(u, ActionToDelta(head, a))
	return Result{OK: true, Snapshot: s, NoEffect: s.Meta.NoEffect}, nil
}

// CommitDelta applies d to the active head and appends the result. A zero
// d.At is stamped with the current time.
func (m *Multiverse) CommitDelta(d Delta) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.universes[m.active]
	if !ok {
		return Snapshot{}, ErrNoActiveUniverse
	}
	if d.At.IsZero() {
		d.At = m.now()
	}
	return m.commit(u, d), nil
}

func (m *Multiverse) commit(u *Universe, d Delta) Snapshot {
	next := ApplyDelta(u.Head(), d)
	u.Timeline = append(u.Timeline, next)
	if next.Meta.NoEffect != "" {
		m.log.Debug("delta committed without effect",
			"universe", u.ID, "action", next.Meta.Action, "reason", next.Meta.NoEffect)
	}
	return next.clone()
}

// #endregion executor

// #region export
type exportFile struct {
	Active    string     `json:"active"`
	Universes []Universe `json:"universes"`
	// Digest covers the universes array and is checked on import.
	Digest string `json:"digest"`
}

// Export writes every universe and the active selection as JSON.
func (m *Multiverse) Export(w io.Writer) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	f := exportFile{Active: active, Universes: m.List()}
	digest, err := fingerprint.Of(f.Universes)
	if err != nil {
		return fmt.Errorf("export digest: %w", err)
	}
	f.Digest = digest
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// Import replaces all universes with the contents of r.
func (m *Multiverse) Import(r io.Reader) error {
	var f exportFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	digest, err := fingerprint.Of(f.Universes)
	if err != nil {
		return fmt.Errorf("import digest: %w", err)
	}
	if f.Digest != "" && digest != f.Digest {
		return fmt.Errorf("import: digest mismatch, have %s want %s", digest, f.Digest)
	}
	for _, u := range f.Universes {
		if len(u.Timeline) == 0 {
			return fmt.Errorf("import: universe %s has an empty timeline", u.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.universes = map[string]*Universe{}
	m.order = nil
	m.active = ""
	for i := range f.Universes {
		u := f.Universes[i]
		m.add(&u)
	}
	if _, ok := m.universes[f.Active]; ok {
		m.active = f.Active
	}
	m.log.Info("multiverse imported", "universes", len(m.order), "active", m.active)
	return nil
}

// #endregion export
