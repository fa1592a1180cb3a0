package trust

// #region event-type
// EventType classifies a day-stamped domain event in the trust state.
type EventType string

const (
	EventVerification   EventType = "verification"
	EventReference      EventType = "reference"
	EventDispute        EventType = "dispute"
	EventFraud          EventType = "fraud"
	EventEmployerReview EventType = "employer_review"
	EventInconsistency  EventType = "inconsistency_flag"
	EventRetraction     EventType = "retraction"
	EventAbusePattern   EventType = "abuse_pattern"
)

// #endregion event-type

// #region modes

// EmployerMode selects the decision threshold applied by employers.
type EmployerMode string

const (
	ModeLenient  EmployerMode = "lenient"
	ModeStandard EmployerMode = "standard"
	ModeStrict   EmployerMode = "strict"
)

// ActorMode is the role the state is currently being driven as.
type ActorMode string

const (
	ActorWorker   ActorMode = "worker"
	ActorEmployer ActorMode = "employer"
)

// View is a presentation hint carried in state so replays restore it.
type View string

const (
	ViewSummary  View = "summary"
	ViewDetailed View = "detailed"
	ViewAudit    View = "audit"
)

// Severity grades an employer abuse pattern.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// #endregion modes

// #region records

// Event is a typed, day-stamped domain event.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Day    int       `json:"day"`
	Actor  string    `json:"actor,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// LedgerSnapshot is the small state snapshot attached to each ledger entry.
type LedgerSnapshot struct {
	Trust      float64 `json:"trust"`
	Profile    float64 `json:"profile"`
	Confidence float64 `json:"confidence"`
}

// LedgerEntry is a human-auditable delta record. It is a domain audit
// trail, not a replay source.
type LedgerEntry struct {
	ID       string         `json:"id"`
	Day      int            `json:"day"`
	Action   string         `json:"action"`
	Actor    string         `json:"actor"`
	Delta    float64        `json:"delta"`
	Snapshot LedgerSnapshot `json:"snapshot"`
	Reason   string         `json:"reason,omitempty"`
}

// PeerEdge is one weighted link in the peer graph.
type PeerEdge struct {
	PeerID   string  `json:"peer_id"`
	Strength float64 `json:"strength"` // [0, 1]
}

// #endregion records

// #region state

// State is the trust aggregate. Every value after Initial is produced by
// Reduce; callers must treat it as immutable.
type State struct {
	Subject         string                `json:"subject"`
	TrustScore      float64               `json:"trust_score"`
	ProfileStrength float64               `json:"profile_strength"`
	ConfidenceScore float64               `json:"confidence_score"`
	Events          []Event               `json:"events"`
	Ledger          []LedgerEntry         `json:"ledger"`
	CurrentDay      int                   `json:"current_day"`
	PeerGraph       map[string][]PeerEdge `json:"peer_graph"`
	EmployerMode    EmployerMode          `json:"employer_mode"`
	Industry        string                `json:"industry"`
	Threshold       float64               `json:"threshold"` // 0 = derived from EmployerMode
	View            View                  `json:"view"`
	ActorMode       ActorMode             `json:"actor_mode"`
	TimeFrozen      bool                  `json:"time_frozen"`
	Seq             int                   `json:"seq"`
}

// DefaultSubject is the primary actor id of the initial state.
const DefaultSubject = "self"

// Initial returns the fixed initial state every log is replayed from.
func Initial() State {
	return State{
		Subject:         DefaultSubject,
		TrustScore:      50,
		ProfileStrength: 40,
		ConfidenceScore: 0,
		Events:          []Event{},
		Ledger:          []LedgerEntry{},
		CurrentDay:      0,
		PeerGraph:       map[string][]PeerEdge{},
		EmployerMode:    ModeStandard,
		Industry:        IndustryGeneral,
		View:            ViewSummary,
		ActorMode:       ActorWorker,
	}
}

// clone deep-copies the owned collections so a reduction never aliases
// the previous value.
func (s State) clone() State {
	next := s
	next.Events = append([]Event(nil), s.Events...)
	next.Ledger = append([]LedgerEntry(nil), s.Ledger...)
	next.PeerGraph = make(map[string][]PeerEdge, len(s.PeerGraph))
	for k, edges := range s.PeerGraph {
		next.PeerGraph[k] = append([]PeerEdge(nil), edges...)
	}
	if next.Events == nil {
		next.Events = []Event{}
	}
	if next.Ledger == nil {
		next.Ledger = []LedgerEntry{}
	}
	return next
}

// EffectiveThreshold returns the explicit threshold override or the
// employer-mode default.
func (s State) EffectiveThreshold() float64 {
	if s.Threshold > 0 {
		return s.Threshold
	}
	return ModeThreshold(s.EmployerMode)
}

// Peers returns a copy of the actor's peer edges.
func (s State) Peers(actorID string) []PeerEdge {
	return append([]PeerEdge(nil), s.PeerGraph[actorID]...)
}

// #endregion state
