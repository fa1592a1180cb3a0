package scenario

import (
	"errors"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/invariant"
)

// ErrInvalidDocument wraps every parse and validation failure.
var ErrInvalidDocument = errors.New("invalid scenario document")

// Mode selects whether real_only steps run.
type Mode string

const (
	ModeSafe Mode = "safe"
	ModeReal Mode = "real"
)

// Assertion types.
const (
	AssertReputationDeltaBounded = "reputation_delta_bounded"
	AssertAbuseSignalsTriggered  = "abuse_signals_triggered"
	AssertTrustStabilizes        = "trust_stabilizes"
	AssertNoLinearBoost          = "no_linear_boost"
	AssertExpression             = "expression"
)

// SkippedRealOnly is the result value of a real_only step in safe mode.
const SkippedRealOnly = "real_only_in_safe_mode"

// #region document
// Doc is one SDL document.
type Doc struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	Mode       Mode        `json:"mode" yaml:"mode"`
	Actors     []Actor     `json:"actors" yaml:"actors"`
	Steps      []Step      `json:"steps" yaml:"steps"`
	Assertions []Assertion `json:"assertions,omitempty" yaml:"assertions,omitempty"`
}

// Actor declares a symbolic reference. ID is the name steps use in "as"
// and in {{ref}} placeholders.
type Actor struct {
	ID   string `json:"id" yaml:"id"`
	Role string `json:"role" yaml:"role"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Step is one action performed as one actor.
type Step struct {
	ID       string         `json:"id" yaml:"id"`
	Action   string         `json:"action" yaml:"action"`
	As       string         `json:"as" yaml:"as"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Expect   *Expect        `json:"expect,omitempty" yaml:"expect,omitempty"`
	RealOnly bool           `json:"real_only,omitempty" yaml:"real_only,omitempty"`
}

// Expect overrides the default "handler succeeded" check. Only declared
// fields are compared.
type Expect struct {
	OK            *bool  `json:"ok,omitempty" yaml:"ok,omitempty"`
	Status        int    `json:"status,omitempty" yaml:"status,omitempty"`
	ErrorContains string `json:"error_contains,omitempty" yaml:"error_contains,omitempty"`
}

// Assertion is a post-run check. Which fields apply depends on Type.
type Assertion struct {
	Type                string   `json:"type" yaml:"type"`
	Name                string   `json:"name,omitempty" yaml:"name,omitempty"`
	Actor               string   `json:"actor,omitempty" yaml:"actor,omitempty"`
	Actors              []string `json:"actors,omitempty" yaml:"actors,omitempty"`
	MaxIncrease         *float64 `json:"max_increase,omitempty" yaml:"max_increase,omitempty"`
	MaxDecrease         *float64 `json:"max_decrease,omitempty" yaml:"max_decrease,omitempty"`
	MinCount            int      `json:"min_count,omitempty" yaml:"min_count,omitempty"`
	WindowSteps         int      `json:"window_steps,omitempty" yaml:"window_steps,omitempty"`
	MaxOscillation      float64  `json:"max_oscillation,omitempty" yaml:"max_oscillation,omitempty"`
	MaxCombinedIncrease float64  `json:"max_combined_increase,omitempty" yaml:"max_combined_increase,omitempty"`
	Expr                string   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// #endregion document

// #region results
// StepResult is the outcome of one step. OK requires both handler success
// and matching expectations.
type StepResult struct {
	Index    int            `json:"index"`
	StepID   string         `json:"step_id"`
	Action   string         `json:"action"`
	ActorRef string         `json:"actor_ref"`
	ActorID  string         `json:"actor_id,omitempty"`
	OK       bool           `json:"ok"`
	Skipped  bool           `json:"skipped,omitempty"`
	Result   action.Result  `json:"result"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AssertionResult is the outcome of one assertion.
type AssertionResult struct {
	Type    string  `json:"type"`
	Name    string  `json:"name,omitempty"`
	Passed  bool    `json:"passed"`
	Message string  `json:"message,omitempty"`
	Actual  float64 `json:"actual"`
}

// RunResult is always complete, including for halted runs.
type RunResult struct {
	ScenarioID string               `json:"scenario_id"`
	RunID      string               `json:"run_id"`
	SandboxID  string               `json:"sandbox_id"`
	Steps      []StepResult         `json:"steps"`
	Assertions []AssertionResult    `json:"assertions"`
	Series     []invariant.Snapshot `json:"series,omitempty"`
	Passed     bool                 `json:"passed"`
	Partial    bool                 `json:"partial,omitempty"`
	FailedStep int                  `json:"failed_step"`
}

// #endregion results
