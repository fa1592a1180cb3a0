package eventlog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
)

// EngineVersion is stamped on every record this build appends.
const EngineVersion = "1.4.0"

// ErrIncompatibleVersion is returned by Hydrate when a record was written by
// an engine with a different major version or a newer release.
var ErrIncompatibleVersion = errors.New("incompatible engine version")

// #region record
// Record is one append-only entry of the action log.
type Record struct {
	ID                 string          `json:"id"`
	EngineVersion      string          `json:"engine_version"`
	ActingUser         *string         `json:"acting_user"`
	ActionType         trust.Kind      `json:"action_type"`
	Payload            json.RawMessage `json:"payload"`
	PayloadFingerprint string          `json:"payload_fingerprint"`
	StateFingerprint   string          `json:"state_fingerprint"`
	Timestamp          time.Time       `json:"timestamp"`
}

// Action decodes the record's payload back into its action variant.
func (r Record) Action() (trust.Action, error) {
	return trust.Decode(r.ActionType, r.Payload)
}

// #endregion record

// #region report
// Status of a verification pass.
type Status string

const (
	StatusComplete Status = "COMPLETE"
	StatusDiverged Status = "DIVERGED"
	StatusFailed   Status = "FAILED"
)

// Report is the outcome of re-folding a log and comparing fingerprints.
type Report struct {
	Status     Status `json:"status"`
	Steps      int    `json:"steps"`
	DivergedAt int    `json:"diverged_at"` // -1 unless diverged or failed
	Expected   string `json:"expected,omitempty"`
	Actual     string `json:"actual,omitempty"`
	Error      string `json:"error,omitempty"`
}

// #endregion report
