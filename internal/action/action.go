package action

import (
	"context"
	"fmt"
	"net/http"
)

// Names of the handler set the scenario engine drives.
const (
	SubmitReference = "submit_reference"
	Recalculate     = "recalculate"
	FlagAbuse       = "flag_abuse"
	FileDispute     = "file_dispute"
	ResolveDispute  = "resolve_dispute"
)

// Flags a handler may raise on its result. They are copied onto the
// step's system audit event.
const (
	FlagAbuseSignal         = "abuse_flag"
	FlagRateLimited         = "rate_limited"
	FlagReciprocalReference = "reciprocal_reference"
	FlagValidationError     = "validation_error"
)

// #region exec-context
// ExecContext identifies the run, step and impersonated actor a handler
// call executes under. It is passed explicitly on every call.
type ExecContext struct {
	RunID      string
	SandboxID  string
	ScenarioID string
	Mode       string // "safe" | "real"
	ActorRef   string
	ActorID    string
	StepID     string
	SafeMode   bool
}

// #endregion exec-context

// #region result
// Result is the uniform handler outcome. A rejected action is data, not an
// error.
type Result struct {
	OK     bool           `json:"ok"`
	Value  map[string]any `json:"result,omitempty"`
	Status int            `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
	Flags  []string       `json:"flags,omitempty"`
}

// Success wraps a handler value.
func Success(value map[string]any) Result {
	return Result{OK: true, Value: value, Status: http.StatusOK}
}

// Failure reports a rejected action.
func Failure(status int, format string, args ...any) Result {
	return Result{OK: false, Status: status, Error: fmt.Sprintf(format, args...)}
}

// WithFlags returns r with flags appended.
func (r Result) WithFlags(flags ...string) Result {
	r.Flags = append(append([]string(nil), r.Flags...), flags...)
	return r
}

// HasFlag reports whether the result carries flag.
func (r Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// #endregion result

// Handler performs one named action.
type Handler func(ctx context.Context, params map[string]any, ec ExecContext) Result
