package domain

import "fmt"

// Outcome is the state a proposal moves to after an accepted action.
type Outcome struct {
	Status        Status
	AwaitingParty *Role
}

// Decide applies the proposal lifecycle table. It never mutates anything: the
// caller applies the returned Outcome, or reports the error and keeps the
// record as it was.
func Decide(from Status, awaiting *Role, actor Role, action Action) (Outcome, error) {
	reject := &TransitionError{From: from, Action: action, Role: actor, Awaited: awaiting}
	switch action {
	case ActionCancel:
		if actor != RoleProposer {
			return Outcome{}, &ForbiddenError{Reason: fmt.Sprintf("%s cannot cancel a proposal", actor)}
		}
	case ActionExpire:
		if actor != RoleSystem {
			return Outcome{}, &ForbiddenError{Reason: "only the system can expire a proposal"}
		}
	case ActionAccept, ActionDecline, ActionNegotiate:
		if actor == RoleSystem {
			return Outcome{}, &ForbiddenError{Reason: fmt.Sprintf("system cannot %s a proposal", action)}
		}
	default:
		return Outcome{}, fmt.Errorf("unhandled action %q", string(action))
	}
	if from.Terminal() {
		return Outcome{}, reject
	}

	switch action {
	case ActionCancel:
		return Outcome{Status: StatusCancelled}, nil
	case ActionExpire:
		return Outcome{Status: StatusExpired}, nil
	}

	switch from {
	case StatusAwaitingRecipient:
		switch action {
		case ActionAccept:
			if actor == RoleRecipient {
				return Outcome{Status: StatusAccepted}, nil
			}
		case ActionDecline:
			if actor == RoleRecipient {
				return Outcome{Status: StatusDeclined}, nil
			}
		case ActionNegotiate:
			return Outcome{Status: StatusUnderNegotiation, AwaitingParty: actor.Opposite().Ptr()}, nil
		}
	case StatusUnderNegotiation:
		if awaiting == nil || *awaiting != actor {
			return Outcome{}, reject
		}
		switch action {
		case ActionAccept:
			return Outcome{Status: StatusAccepted}, nil
		case ActionDecline:
			return Outcome{Status: StatusDeclined}, nil
		case ActionNegotiate:
			return Outcome{Status: StatusUnderNegotiation, AwaitingParty: actor.Opposite().Ptr()}, nil
		}
	}
	return Outcome{}, reject
}

// Permitted lists the actions role may take on a proposal in the given state.
func Permitted(from Status, awaiting *Role, role Role) []Action {
	var out []Action
	for _, a := range []Action{ActionAccept, ActionDecline, ActionNegotiate, ActionCancel} {
		if _, err := Decide(from, awaiting, role, a); err == nil {
			out = append(out, a)
		}
	}
	return out
}
