package server

import (
	"encoding/json"

	"partnerline/internal/domain"
	"partnerline/internal/engine"
)

// Request payloads

type CreateProposalRequest struct {
	ID          string                 `json:"id,omitempty"`
	RecipientID string                 `json:"recipient_id"`
	Title       string                 `json:"title"`
	Summary     string                 `json:"summary,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Content     domain.ProposalContent `json:"content"`
}

type ActionRequest struct {
	Note string `json:"note,omitempty"`
}

type NegotiateRequest struct {
	Summary string                 `json:"summary,omitempty"`
	Content domain.ProposalContent `json:"content"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type ReportRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

type PreviewRequest struct {
	ProposerName string                 `json:"proposer_name,omitempty"`
	Content      domain.ProposalContent `json:"content"`
}

type UpsertBusinessRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Location string `json:"location,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type ProposalResponse struct {
	domain.Proposal
	// Role is the viewer's role; system for moderators.
	Role             domain.Role     `json:"role"`
	PermittedActions []domain.Action `json:"permitted_actions"`
}

type ProposalListResponse struct {
	Items []domain.ProposalListItem `json:"items"`
}

type CountsResponse struct {
	Tabs   map[string]int `json:"tabs"`
	Unread int            `json:"unread"`
}

type RevisionsResponse struct {
	Items []domain.Revision `json:"items"`
}

type ReportsResponse struct {
	Items []domain.Report `json:"items"`
}

type BlocksResponse struct {
	Items []domain.Block `json:"items"`
}

type BusinessesResponse struct {
	Items []domain.Business `json:"items"`
}

type ExpireResponse = engine.ExpireResult

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID   string   `json:"actor_id"`
	ActorName string   `json:"actor_name,omitempty"`
	Source    string   `json:"source"`
	Roles     []string `json:"roles"`
	Moderator bool     `json:"moderator"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func proposalResponse(p domain.Proposal, role domain.Role) ProposalResponse {
	if p.Messages == nil {
		p.Messages = []domain.ProposalMessage{}
	}
	permitted := []domain.Action{}
	if role.Participant() {
		permitted = append(permitted, domain.Permitted(p.Status, p.AwaitingParty, role)...)
	}
	return ProposalResponse{Proposal: p, Role: role, PermittedActions: permitted}
}

func countsResponse(c domain.Counts) CountsResponse {
	out := CountsResponse{Tabs: make(map[string]int, len(c.Tabs)), Unread: c.Unread}
	for tab, n := range c.Tabs {
		out.Tabs[string(tab)] = n
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	out := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
	}
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		out.Payload = json.RawMessage(evt.Payload)
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
