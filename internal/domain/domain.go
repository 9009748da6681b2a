package domain

type Proposal struct {
	ID                 string            `json:"id"`
	ProposerID         string            `json:"proposer_id"`
	RecipientID        string            `json:"recipient_id"`
	ProposerName       string            `json:"proposer_name"`
	RecipientName      string            `json:"recipient_name"`
	Title              string            `json:"title"`
	Summary            string            `json:"summary"`
	Content            ProposalContent   `json:"content"`
	Status             Status            `json:"status" enum:"awaiting_recipient,under_negotiation,accepted,declined,cancelled,expired"`
	AwaitingParty      *Role             `json:"awaiting_party" enum:"proposer,recipient"`
	Messages           []ProposalMessage `json:"messages"`
	UnreadForProposer  bool              `json:"unread_for_proposer"`
	UnreadForRecipient bool              `json:"unread_for_recipient"`
	Version            int64             `json:"version"`
	Revision           int               `json:"revision"`
	CreatedAt          string            `json:"created_at" format:"date-time"`
	UpdatedAt          string            `json:"updated_at" format:"date-time"`
}

// RoleOf returns the role businessID holds on p, or false when it is not a party.
func (p Proposal) RoleOf(businessID string) (Role, bool) {
	switch businessID {
	case "":
		return "", false
	case p.ProposerID:
		return RoleProposer, true
	case p.RecipientID:
		return RoleRecipient, true
	}
	return "", false
}

// Counterparty returns the id and denormalized name of the party opposite role.
func (p Proposal) Counterparty(role Role) (string, string) {
	if role == RoleProposer {
		return p.RecipientID, p.RecipientName
	}
	return p.ProposerID, p.ProposerName
}

func (p Proposal) Unread(role Role) bool {
	switch role {
	case RoleProposer:
		return p.UnreadForProposer
	case RoleRecipient:
		return p.UnreadForRecipient
	}
	return false
}

// MarkUnread flags the thread unread for everyone except the actor.
// System-authored changes flag both parties.
func (p *Proposal) MarkUnread(actor Role) {
	switch actor {
	case RoleProposer:
		p.UnreadForRecipient = true
	case RoleRecipient:
		p.UnreadForProposer = true
	default:
		p.UnreadForProposer = true
		p.UnreadForRecipient = true
	}
}

// Apply moves p to the outcome of an accepted transition and bumps its version.
func (p *Proposal) Apply(out Outcome, actor Role, at string) {
	p.Status = out.Status
	p.AwaitingParty = out.AwaitingParty
	p.MarkUnread(actor)
	p.UpdatedAt = at
	p.Version++
}

type ProposalMessage struct {
	ID         string      `json:"id"`
	ProposalID string      `json:"proposal_id"`
	Seq        int         `json:"seq"`
	Kind       MessageKind `json:"kind" enum:"action,chat,system"`
	SenderID   string      `json:"sender_id,omitempty"`
	SenderRole Role        `json:"sender_role" enum:"proposer,recipient,system"`
	SenderName string      `json:"sender_name"`
	Content    string      `json:"content"`
	CreatedAt  string      `json:"created_at" format:"date-time"`
}

type ProposalListItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	PartnerID     string `json:"partner_id"`
	PartnerName   string `json:"partner_name"`
	Summary       string `json:"summary"`
	Status        Status `json:"status"`
	AwaitingParty *Role  `json:"awaiting_party"`
	Role          Role   `json:"role"`
	Unread        bool   `json:"unread"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

// ListItem projects p for the viewer holding role.
func (p Proposal) ListItem(role Role) ProposalListItem {
	partnerID, partnerName := p.Counterparty(role)
	return ProposalListItem{
		ID:            p.ID,
		Title:         p.Title,
		PartnerID:     partnerID,
		PartnerName:   partnerName,
		Summary:       p.Summary,
		Status:        p.Status,
		AwaitingParty: p.AwaitingParty,
		Role:          role,
		Unread:        p.Unread(role),
		UpdatedAt:     p.UpdatedAt,
	}
}

type Counts struct {
	Tabs   map[Tab]int `json:"tabs"`
	Unread int         `json:"unread"`
}

type Report struct {
	ID           string `json:"id"`
	ProposalID   string `json:"proposal_id"`
	ReporterID   string `json:"reporter_id"`
	ReporterName string `json:"reporter_name"`
	Reason       string `json:"reason"`
	Details      string `json:"details,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Block struct {
	BlockerID  string `json:"blocker_id"`
	BlockedID  string `json:"blocked_id"`
	ProposalID string `json:"proposal_id,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Business struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Industry  string `json:"industry,omitempty"`
	Location  string `json:"location,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Revision struct {
	ProposalID      string          `json:"proposal_id"`
	Revision        int             `json:"revision"`
	AuthorID        string          `json:"author_id"`
	AuthorRole      Role            `json:"author_role"`
	Content         ProposalContent `json:"content"`
	ChangedSections []Section       `json:"changed_sections"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
