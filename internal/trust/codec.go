package trust

import (
	"encoding/json"
	"fmt"
)

// #region encode
// Encode serializes an action to its kind and JSON payload for the event log.
func Encode(a Action) (Kind, []byte, error) {
	if a == nil {
		return "", nil, fmt.Errorf("encode action: nil action")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	return a.Kind(), payload, nil
}

// #endregion encode

// #region decode
// Decode rebuilds an action from a stored kind and payload.
func Decode(kind Kind, payload []byte) (Action, error) {
	var a Action
	switch kind {
	case KindTick:
		a = decodeInto[Tick](payload)
	case KindFastForward:
		a = decodeInto[FastForward](payload)
	case KindFreeze:
		a = decodeInto[Freeze](payload)
	case KindResume:
		a = decodeInto[Resume](payload)
	case KindRunScenario:
		a = decodeInto[RunScenario](payload)
	case KindTriggerFraud:
		a = decodeInto[TriggerFraud](payload)
	case KindAddVerification:
		a = decodeInto[AddVerification](payload)
	case KindConnectPeer:
		a = decodeInto[ConnectPeer](payload)
	case KindDisconnectPeer:
		a = decodeInto[DisconnectPeer](payload)
	case KindEmployerReview:
		a = decodeInto[EmployerReview](payload)
	case KindFlagInconsistency:
		a = decodeInto[FlagInconsistency](payload)
	case KindRetractEmployerReview:
		a = decodeInto[RetractEmployerReview](payload)
	case KindEmployerAbusePattern:
		a = decodeInto[EmployerAbusePattern](payload)
	case KindSetEmployerMode:
		a = decodeInto[SetEmployerMode](payload)
	case KindSetIndustry:
		a = decodeInto[SetIndustry](payload)
	case KindSetThreshold:
		a = decodeInto[SetThreshold](payload)
	case KindSetView:
		a = decodeInto[SetView](payload)
	case KindSetActorMode:
		a = decodeInto[SetActorMode](payload)
	case KindReset:
		a = decodeInto[Reset](payload)
	default:
		return nil, fmt.Errorf("decode action: unknown kind %q", kind)
	}
	if d, ok := a.(decodeFailure); ok {
		return nil, fmt.Errorf("decode %s: %w", kind, d.err)
	}
	return a, nil
}

// decodeFailure carries an unmarshal error through the variant switch.
type decodeFailure struct{ err error }

func (decodeFailure) Kind() Kind { return "" }
func (decodeFailure) isAction()  {}

type variant interface {
	Tick | FastForward | Freeze | Resume | RunScenario | TriggerFraud |
		AddVerification | ConnectPeer | DisconnectPeer | EmployerReview |
		FlagInconsistency | RetractEmployerReview | EmployerAbusePattern |
		SetEmployerMode | SetIndustry | SetThreshold | SetView | SetActorMode | Reset
}

func decodeInto[T variant](payload []byte) Action {
	var v T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &v); err != nil {
			return decodeFailure{err: err}
		}
	}
	return any(v).(Action)
}

// #endregion decode
