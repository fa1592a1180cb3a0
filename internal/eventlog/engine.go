package eventlog

import (
	"fmt"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/fingerprint"
	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// #region engine
// Engine owns the append-only log. Current state is a cache derived by
// folding the log and is rebuilt whenever it is invalidated. Not safe for
// concurrent use.
type Engine struct {
	version *semver.Version
	log     []Record
	cached  *trust.State
	now     func() time.Time
}

// NewEngine returns an engine with an empty log.
func NewEngine() *Engine {
	return &Engine{
		version: semver.MustParse(EngineVersion),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch reduces the current state, appends a record and returns it.
func (e *Engine) Dispatch(actingUser *string, a trust.Action) (Record, error) {
	kind, payload, err := trust.Encode(a)
	if err != nil {
		return Record{}, fmt.Errorf("dispatch: %w", err)
	}
	next := trust.Reduce(e.State(), a)

	pf, err := fingerprint.Bytes(payload)
	if err != nil {
		return Record{}, fmt.Errorf("payload fingerprint: %w", err)
	}
	sf, err := fingerprint.Of(next)
	if err != nil {
		return Record{}, fmt.Errorf("state fingerprint: %w", err)
	}

	rec := Record{
		ID:                 uuid.New().String(),
		EngineVersion:      e.version.String(),
		ActingUser:         copyUser(actingUser),
		ActionType:         kind,
		Payload:            payload,
		PayloadFingerprint: pf,
		StateFingerprint:   sf,
		Timestamp:          e.now(),
	}
	e.log = append(e.log, rec)
	e.cached = &next
	return rec, nil
}

// State returns the current state, replaying the full log if the cache is
// invalid.
func (e *Engine) State() trust.State {
	if e.cached == nil {
		s, err := e.Replay(0)
		if err != nil {
			// Hydrate rejects undecodable logs, so this only happens on a
			// corrupted in-memory log.
			s = trust.Initial()
		}
		e.cached = &s
	}
	return *e.cached
}

// Log returns a copy of the records.
func (e *Engine) Log() []Record {
	return append([]Record(nil), e.log...)
}

// Len is the number of records in the log.
func (e *Engine) Len() int {
	return len(e.log)
}

// Hydrate replaces the log with records after checking version
// compatibility and decodability, then rebuilds state by full replay.
func (e *Engine) Hydrate(records []Record) error {
	for i, r := range records {
		if err := e.compatible(r.EngineVersion); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := r.Action(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	prev := e.log
	e.log = append([]Record(nil), records...)
	s, err := e.Replay(0)
	if err != nil {
		e.log = prev
		e.invalidate()
		return fmt.Errorf("hydrate: %w", err)
	}
	e.cached = &s
	return nil
}

// Replay folds Reduce from the initial state over log[from:].
func (e *Engine) Replay(from int) (trust.State, error) {
	if from < 0 || from > len(e.log) {
		return trust.State{}, fmt.Errorf("replay from %d: out of range [0,%d]", from, len(e.log))
	}
	s := trust.Initial()
	for i, r := range e.log[from:] {
		a, err := r.Action()
		if err != nil {
			return trust.State{}, fmt.Errorf("replay record %d: %w", from+i, err)
		}
		s = trust.Reduce(s, a)
	}
	return s, nil
}

// Reset clears the log and the cache.
func (e *Engine) Reset() {
	e.log = nil
	e.invalidate()
}

func (e *Engine) invalidate() {
	e.cached = nil
}

func (e *Engine) compatible(v string) error {
	rv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIncompatibleVersion, v, err)
	}
	if rv.Major() != e.version.Major() || rv.GreaterThan(e.version) {
		return fmt.Errorf("%w: record %s, engine %s", ErrIncompatibleVersion, rv, e.version)
	}
	return nil
}

func copyUser(u *string) *string {
	if u == nil {
		return nil
	}
	v := *u
	return &v
}

// #endregion engine

// #region verify
// Verify re-folds records from the initial state and compares each
// recomputed state fingerprint with the recorded one.
func Verify(records []Record) Report {
	rep := Report{Status: StatusComplete, DivergedAt: -1}
	s := trust.Initial()
	for i, r := range records {
		a, err := r.Action()
		if err != nil {
			rep.Status, rep.DivergedAt, rep.Error = StatusFailed, i, err.Error()
			return rep
		}
		pf, err := fingerprint.Bytes(r.Payload)
		if err != nil {
			rep.Status, rep.DivergedAt, rep.Error = StatusFailed, i, err.Error()
			return rep
		}
		if pf != r.PayloadFingerprint {
			rep.Status, rep.DivergedAt = StatusDiverged, i
			rep.Expected, rep.Actual = r.PayloadFingerprint, pf
			rep.Error = "payload fingerprint mismatch"
			return rep
		}
		s = trust.Reduce(s, a)
		sf, err := fingerprint.Of(s)
		if err != nil {
			rep.Status, rep.DivergedAt, rep.Error = StatusFailed, i, err.Error()
			return rep
		}
		if sf != r.StateFingerprint {
			rep.Status, rep.DivergedAt = StatusDiverged, i
			rep.Expected, rep.Actual = r.StateFingerprint, sf
			rep.Error = "state fingerprint mismatch"
			return rep
		}
		rep.Steps++
	}
	return rep
}

// #endregion verify
