package trust

// #region action
// Kind is the wire name of an action variant, stored in the event log.
type Kind string

const (
	KindTick                  Kind = "tick"
	KindFastForward           Kind = "fast_forward"
	KindFreeze                Kind = "freeze"
	KindResume                Kind = "resume"
	KindRunScenario           Kind = "run_scenario"
	KindTriggerFraud          Kind = "trigger_fraud"
	KindAddVerification       Kind = "add_verification"
	KindConnectPeer           Kind = "connect_peer"
	KindDisconnectPeer        Kind = "disconnect_peer"
	KindEmployerReview        Kind = "employer_review"
	KindFlagInconsistency     Kind = "flag_inconsistency"
	KindRetractEmployerReview Kind = "retract_employer_review"
	KindEmployerAbusePattern  Kind = "employer_abuse_pattern"
	KindSetEmployerMode       Kind = "set_employer_mode"
	KindSetIndustry           Kind = "set_industry"
	KindSetThreshold          Kind = "set_threshold"
	KindSetView               Kind = "set_view"
	KindSetActorMode          Kind = "set_actor_mode"
	KindReset                 Kind = "reset"
)

// Action is the closed set of inputs Reduce accepts. The unexported marker
// keeps variants inside this package.
type Action interface {
	Kind() Kind
	isAction()
}

// Kinds lists every action variant in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindTick, KindFastForward, KindFreeze, KindResume, KindRunScenario,
		KindTriggerFraud, KindAddVerification, KindConnectPeer, KindDisconnectPeer,
		KindEmployerReview, KindFlagInconsistency, KindRetractEmployerReview,
		KindEmployerAbusePattern, KindSetEmployerMode, KindSetIndustry,
		KindSetThreshold, KindSetView, KindSetActorMode, KindReset,
	}
}

// #endregion action

// #region time-actions
// Tick advances the simulated clock by Days, applying decay per day.
type Tick struct {
	Days int `json:"days"`
}

// FastForward is Tick plus one summarising ledger entry.
type FastForward struct {
	Days int `json:"days"`
}

// Freeze stops the clock.
type Freeze struct{}

// Resume restarts the clock.
type Resume struct{}

func (Tick) Kind() Kind        { return KindTick }
func (FastForward) Kind() Kind { return KindFastForward }
func (Freeze) Kind() Kind      { return KindFreeze }
func (Resume) Kind() Kind      { return KindResume }

func (Tick) isAction()        {}
func (FastForward) isAction() {}
func (Freeze) isAction()      {}
func (Resume) isAction()      {}

// #endregion time-actions

// #region scenario-actions
// EventSpec describes an event a scenario appends.
type EventSpec struct {
	Type   EventType `json:"type"`
	Detail string    `json:"detail,omitempty"`
}

// RunScenario moves trust toward AfterTrust, scaled by industry weight and
// network stability, and sets ProfileStrength directly.
type RunScenario struct {
	ActorID         string      `json:"actor_id,omitempty"`
	Label           string      `json:"label,omitempty"`
	AfterTrust      float64     `json:"after_trust"`
	ProfileStrength float64     `json:"profile_strength"`
	Events          []EventSpec `json:"events,omitempty"`
}

// TriggerFraud applies the fraud penalty and peer contagion.
type TriggerFraud struct {
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AddVerification records a verification event, which resets decay.
type AddVerification struct {
	Source string `json:"source,omitempty"`
}

// ConnectPeer creates or replaces the edge ActorID -> PeerID.
type ConnectPeer struct {
	ActorID  string  `json:"actor_id,omitempty"`
	PeerID   string  `json:"peer_id"`
	Strength float64 `json:"strength"`
}

// DisconnectPeer removes the edge ActorID -> PeerID.
type DisconnectPeer struct {
	ActorID string `json:"actor_id,omitempty"`
	PeerID  string `json:"peer_id"`
}

func (RunScenario) Kind() Kind     { return KindRunScenario }
func (TriggerFraud) Kind() Kind    { return KindTriggerFraud }
func (AddVerification) Kind() Kind { return KindAddVerification }
func (ConnectPeer) Kind() Kind     { return KindConnectPeer }
func (DisconnectPeer) Kind() Kind  { return KindDisconnectPeer }

func (RunScenario) isAction()     {}
func (TriggerFraud) isAction()    {}
func (AddVerification) isAction() {}
func (ConnectPeer) isAction()     {}
func (DisconnectPeer) isAction()  {}

// #endregion scenario-actions

// #region employer-actions
// EmployerReview is a positive or negative review; employer mode only.
type EmployerReview struct {
	Positive bool   `json:"positive"`
	Reason   string `json:"reason,omitempty"`
}

type FlagInconsistency struct {
	Reason string `json:"reason,omitempty"`
}

type RetractEmployerReview struct {
	Reason string `json:"reason,omitempty"`
}

type EmployerAbusePattern struct {
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason,omitempty"`
}

func (EmployerReview) Kind() Kind        { return KindEmployerReview }
func (FlagInconsistency) Kind() Kind     { return KindFlagInconsistency }
func (RetractEmployerReview) Kind() Kind { return KindRetractEmployerReview }
func (EmployerAbusePattern) Kind() Kind  { return KindEmployerAbusePattern }

func (EmployerReview) isAction()        {}
func (FlagInconsistency) isAction()     {}
func (RetractEmployerReview) isAction() {}
func (EmployerAbusePattern) isAction()  {}

// #endregion employer-actions

// #region settings-actions
type SetEmployerMode struct {
	Mode EmployerMode `json:"mode"`
}

type SetIndustry struct {
	Industry string `json:"industry"`
}

// SetThreshold overrides the employer-mode threshold. Zero clears it.
type SetThreshold struct {
	Value float64 `json:"value"`
}

type SetView struct {
	View View `json:"view"`
}

type SetActorMode struct {
	Mode ActorMode `json:"mode"`
}

// Reset returns to Initial.
type Reset struct{}

func (SetEmployerMode) Kind() Kind { return KindSetEmployerMode }
func (SetIndustry) Kind() Kind     { return KindSetIndustry }
func (SetThreshold) Kind() Kind    { return KindSetThreshold }
func (SetView) Kind() Kind         { return KindSetView }
func (SetActorMode) Kind() Kind    { return KindSetActorMode }
func (Reset) Kind() Kind           { return KindReset }

func (SetEmployerMode) isAction() {}
func (SetIndustry) isAction()     {}
func (SetThreshold) isAction()    {}
func (SetView) isAction()         {}
func (SetActorMode) isAction()    {}
func (Reset) isAction()           {}

// #endregion settings-actions
