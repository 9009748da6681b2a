package domain

import "fmt"

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusAwaitingRecipient Status = "awaiting_recipient"
	StatusUnderNegotiation  Status = "under_negotiation"
	StatusAccepted          Status = "accepted"
	StatusDeclined          Status = "declined"
	StatusCancelled         Status = "cancelled"
	StatusExpired           Status = "expired"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusAwaitingRecipient,
		StatusUnderNegotiation,
		StatusAccepted,
		StatusDeclined,
		StatusCancelled,
		StatusExpired,
	}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown proposal status %q", s)
}

// Terminal reports whether no further action is accepted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusAwaitingRecipient, StatusUnderNegotiation:
		return false
	case StatusAccepted, StatusDeclined, StatusCancelled, StatusExpired:
		return true
	}
	panic(fmt.Sprintf("unhandled proposal status %q", string(s)))
}

// Role is the fixed relation of a party to a proposal.
type Role string

const (
	RoleProposer  Role = "proposer"
	RoleRecipient Role = "recipient"
	// RoleSystem authors passive transitions such as expiry.
	RoleSystem Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleProposer, RoleRecipient, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Opposite returns the other participant role. System has no opposite.
func (r Role) Opposite() Role {
	switch r {
	case RoleProposer:
		return RoleRecipient
	case RoleRecipient:
		return RoleProposer
	case RoleSystem:
		return ""
	}
	panic(fmt.Sprintf("unhandled role %q", string(r)))
}

// Participant reports whether r is one of the two proposal parties.
func (r Role) Participant() bool {
	return r == RoleProposer || r == RoleRecipient
}

func (r Role) Ptr() *Role {
	return &r
}

// Action is a lifecycle command applied to a proposal.
type Action string

const (
	ActionAccept    Action = "accept"
	ActionDecline   Action = "decline"
	ActionCancel    Action = "cancel"
	ActionNegotiate Action = "negotiate"
	ActionExpire    Action = "expire"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAccept, ActionDecline, ActionCancel, ActionNegotiate, ActionExpire:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// MessageKind classifies thread entries.
type MessageKind string

const (
	MessageKindAction MessageKind = "action"
	MessageKindChat   MessageKind = "chat"
	MessageKindSystem MessageKind = "system"
)

// Tab is a listing filter for a user's proposals.
type Tab string

const (
	TabAll         Tab = "all"
	TabSent        Tab = "sent"
	TabReceived    Tab = "received"
	TabAwaiting    Tab = "awaiting"
	TabNegotiating Tab = "negotiating"
	TabAccepted    Tab = "accepted"
	TabDeclined    Tab = "declined"
)

func Tabs() []Tab {
	return []Tab{TabAll, TabSent, TabReceived, TabAwaiting, TabNegotiating, TabAccepted, TabDeclined}
}

// ParseTab maps a query value to a Tab. Empty means all.
func ParseTab(s string) (Tab, error) {
	if s == "" {
		return TabAll, nil
	}
	for _, t := range Tabs() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", NewValidationError("tab", fmt.Sprintf("unknown tab %q", s))
}

// Match reports whether p belongs under tab t for userID.
func (t Tab) Match(p Proposal, userID string) bool {
	switch t {
	case TabAll:
		return true
	case TabSent:
		return p.ProposerID == userID
	case TabReceived:
		return p.RecipientID == userID
	case TabAwaiting:
		return p.Status == StatusAwaitingRecipient || p.AwaitingParty != nil
	case TabNegotiating:
		return p.Status == StatusUnderNegotiation
	case TabAccepted:
		return p.Status == StatusAccepted
	case TabDeclined:
		return p.Status == StatusDeclined || p.Status == StatusCancelled
	}
	panic(fmt.Sprintf("unhandled tab %q", string(t)))
}
