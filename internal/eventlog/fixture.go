package eventlog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Blackthor84/WorkVouch-sub000/internal/fingerprint"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description              string   `json:"description"`
	Stream                   string   `json:"stream"`
	Records                  []Record `json:"records"`
	ExpectedStateFingerprint string   `json:"expected_state_fingerprint"`
}

// FixtureResult is the outcome of replaying a fixture.
type FixtureResult struct {
	Report           Report
	StateFingerprint string
	Matches          bool
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture serializes a fixture as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// NewFixture captures an engine's log and final state fingerprint.
func NewFixture(description, stream string, e *Engine) (*Fixture, error) {
	fp, err := fingerprint.Of(e.State())
	if err != nil {
		return nil, fmt.Errorf("fingerprint state: %w", err)
	}
	return &Fixture{
		Description:              description,
		Stream:                   stream,
		Records:                  e.Log(),
		ExpectedStateFingerprint: fp,
	}, nil
}

// #endregion fixture-loader

// #region fixture-run

// Run verifies the fixture's records and compares the hydrated state with
// the expected fingerprint.
func (f *Fixture) Run() (FixtureResult, error) {
	res := FixtureResult{Report: Verify(f.Records)}
	e := NewEngine()
	if err := e.Hydrate(f.Records); err != nil {
		return res, fmt.Errorf("hydrate fixture: %w", err)
	}
	fp, err := fingerprint.Of(e.State())
	if err != nil {
		return res, fmt.Errorf("fingerprint state: %w", err)
	}
	res.StateFingerprint = fp
	res.Matches = res.Report.Status == StatusComplete && fp == f.ExpectedStateFingerprint
	return res, nil
}

// #endregion fixture-run
