package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"partnerline/internal/domain"
	"partnerline/internal/engine/auth"
	"partnerline/internal/events"
	"partnerline/internal/repo"
)

// CreateOptions are parameters for submitting a new proposal.
type CreateOptions struct {
	ID string
	// ActorID is the submitting business. ProposerID defaults to it and may
	// not differ from it.
	ActorID     string
	ProposerID  string
	RecipientID string
	Title       string
	Summary     string
	Content     domain.ProposalContent
	Message     string
}

func (e Engine) Create(ctx context.Context, opts CreateOptions) (domain.Proposal, error) {
	if err := requireActor(opts.ActorID); err != nil {
		return domain.Proposal{}, err
	}
	if opts.ProposerID == "" {
		opts.ProposerID = opts.ActorID
	}
	if opts.ProposerID != opts.ActorID {
		return domain.Proposal{}, &domain.ForbiddenError{ActorID: opts.ActorID, Reason: "cannot submit on behalf of " + opts.ProposerID}
	}
	opts.Title = strings.TrimSpace(opts.Title)
	var problems []domain.FieldError
	if opts.Title == "" {
		problems = append(problems, domain.FieldError{Field: "title", Message: "required"})
	}
	switch opts.RecipientID {
	case "":
		problems = append(problems, domain.FieldError{Field: "recipient_id", Message: "required"})
	case opts.ProposerID:
		problems = append(problems, domain.FieldError{Field: "recipient_id", Message: "cannot propose to yourself"})
	}
	if pid := opts.Content.PartnerSelection.PartnerID; pid != "" && pid != opts.RecipientID {
		problems = append(problems, domain.FieldError{Field: "content.partner_selection.partner_id", Message: "must match recipient_id"})
	}

	// Directory and block checks win over content problems once both parties are named.
	var proposer, recipient domain.Business
	if opts.RecipientID != "" && opts.RecipientID != opts.ProposerID {
		var err error
		if proposer, err = e.business(ctx, opts.ProposerID); err != nil {
			return domain.Proposal{}, err
		}
		if recipient, err = e.business(ctx, opts.RecipientID); err != nil {
			return domain.Proposal{}, err
		}
		blocked, err := e.Repo.Blocked(ctx, nil, proposer.ID, recipient.ID)
		if err != nil {
			return domain.Proposal{}, storeErr("check blocks", err)
		}
		if blocked {
			return domain.Proposal{}, &domain.ForbiddenError{ActorID: opts.ActorID, Reason: "cannot propose to a blocked business"}
		}
	}
	if err := domain.Validate(opts.Content, e.Config.DomainCatalog()); err != nil {
		problems = append(problems, err.(*domain.ValidationError).Errors...)
	}
	if len(problems) > 0 {
		return domain.Proposal{}, &domain.ValidationError{Errors: problems}
	}

	now := e.timestamp()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	summary := strings.TrimSpace(opts.Summary)
	if summary == "" {
		summary = opts.Content.Outline.Summary
	}
	if summary == "" {
		summary = domain.OutlineSummary(proposer.Name, recipient.Name, opts.Content.Outline.FocusTitle)
	}
	p := domain.Proposal{
		ID:                 id,
		ProposerID:         proposer.ID,
		RecipientID:        recipient.ID,
		ProposerName:       proposer.Name,
		RecipientName:      recipient.Name,
		Title:              opts.Title,
		Summary:            summary,
		Content:            opts.Content,
		Status:             domain.StatusAwaitingRecipient,
		UnreadForRecipient: true,
		Version:            1,
		Revision:           1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	body := strings.TrimSpace(opts.Message)
	if body == "" {
		body = e.Config.Messages.Create
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProposal(ctx, tx, p); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Proposal{}, &domain.ValidationError{Errors: []domain.FieldError{{Field: "id", Message: "already exists"}}}
		}
		return domain.Proposal{}, storeErr("insert proposal", err)
	}
	msg, err := e.Repo.AppendMessage(ctx, tx, domain.ProposalMessage{
		ID:         ulid.Make().String(),
		ProposalID: p.ID,
		Kind:       domain.MessageKindAction,
		SenderID:   proposer.ID,
		SenderRole: domain.RoleProposer,
		SenderName: proposer.Name,
		Content:    body,
		CreatedAt:  now,
	})
	if err != nil {
		return domain.Proposal{}, storeErr("append message", err)
	}
	if err := e.Repo.InsertRevision(ctx, tx, domain.Revision{
		ProposalID:      p.ID,
		Revision:        1,
		AuthorID:        proposer.ID,
		AuthorRole:      domain.RoleProposer,
		Content:         p.Content,
		ChangedSections: domain.Diff(domain.ProposalContent{}, p.Content),
		CreatedAt:       now,
	}); err != nil {
		return domain.Proposal{}, storeErr("insert revision", err)
	}
	if err := e.appendEvent(ctx, tx, events.ProposalCreated, "proposal", p.ID, opts.ActorID, events.EventPayload{
		"status":       p.Status,
		"proposer_id":  p.ProposerID,
		"recipient_id": p.RecipientID,
		"version":      p.Version,
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Proposal{}, err
	}
	p.Messages = []domain.ProposalMessage{msg}
	e.logger().Info("proposal created",
		zap.String("proposal_id", p.ID),
		zap.String("actor_id", opts.ActorID),
		zap.String("recipient_id", p.RecipientID))
	return p, nil
}

// Get returns the proposal detail with its thread and clears the viewer's
// unread flag. Moderators may read any proposal; their view clears nothing.
func (e Engine) Get(ctx context.Context, actorID, id string) (domain.Proposal, error) {
	if err := requireActor(actorID); err != nil {
		return domain.Proposal{}, err
	}
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, storeErr("load proposal", err)
	}
	role, err := e.viewerRole(ctx, p, actorID)
	if err != nil {
		return domain.Proposal{}, err
	}
	msgs, err := e.Repo.ListMessages(ctx, p.ID)
	if err != nil {
		return domain.Proposal{}, storeErr("load messages", err)
	}
	p.Messages = msgs
	if role.Participant() && p.Unread(role) {
		cleared, err := e.Repo.ClearUnread(ctx, p.ID, role, p.Version)
		if err != nil {
			return domain.Proposal{}, storeErr("clear unread", err)
		}
		if cleared {
			switch role {
			case domain.RoleProposer:
				p.UnreadForProposer = false
			case domain.RoleRecipient:
				p.UnreadForRecipient = false
			}
		}
	}
	return p, nil
}

// viewerRole returns the participant role of actorID, or RoleSystem for the
// system actor and non-participating moderators.
func (e Engine) viewerRole(ctx context.Context, p domain.Proposal, actorID string) (domain.Role, error) {
	role, err := auth.ParticipantRole(p, actorID)
	if err == nil {
		return role, nil
	}
	if actorID == SystemActor {
		return domain.RoleSystem, nil
	}
	ok, aerr := e.Auth.ActorHasRole(ctx, actorID, auth.Moderator)
	if aerr != nil {
		return "", aerr
	}
	if ok {
		return domain.RoleSystem, nil
	}
	return "", err
}

// ListOptions filter a business's proposals.
type ListOptions struct {
	UserID         string
	Tab            domain.Tab
	Search         string
	IncludeBlocked bool
	Limit          int
}

// List returns the viewer's proposals, most recently updated first.
func (e Engine) List(ctx context.Context, opts ListOptions) ([]domain.ProposalListItem, error) {
	if err := requireActor(opts.UserID); err != nil {
		return nil, err
	}
	if opts.Tab == "" {
		opts.Tab = domain.TabAll
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = e.Config.Listing.DefaultLimit
	}
	if maxLimit := e.Config.Listing.MaxLimit; maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	rows, err := e.Repo.ListForUser(ctx, repo.ProposalFilter{UserID: opts.UserID, Tab: opts.Tab, IncludeBlocked: opts.IncludeBlocked})
	if err != nil {
		return nil, storeErr("list proposals", err)
	}
	needle := strings.ToLower(strings.TrimSpace(opts.Search))
	items := []domain.ProposalListItem{}
	for _, p := range rows {
		role, ok := p.RoleOf(opts.UserID)
		if !ok || !opts.Tab.Match(p, opts.UserID) {
			continue
		}
		item := p.ListItem(role)
		if needle != "" && !strings.Contains(strings.ToLower(item.Title), needle) && !strings.Contains(strings.ToLower(item.PartnerName), needle) {
			continue
		}
		items = append(items, item)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

// Counts returns per-tab totals and the number of unread proposals for the
// dashboard. Blocked counterparties are excluded like in List.
func (e Engine) Counts(ctx context.Context, userID string) (domain.Counts, error) {
	if err := requireActor(userID); err != nil {
		return domain.Counts{}, err
	}
	rows, err := e.Repo.ListForUser(ctx, repo.ProposalFilter{UserID: userID, Tab: domain.TabAll})
	if err != nil {
		return domain.Counts{}, storeErr("list proposals", err)
	}
	out := domain.Counts{Tabs: map[domain.Tab]int{}}
	for _, t := range domain.Tabs() {
		out.Tabs[t] = 0
	}
	for _, p := range rows {
		role, ok := p.RoleOf(userID)
		if !ok {
			continue
		}
		for _, t := range domain.Tabs() {
			if t.Match(p, userID) {
				out.Tabs[t]++
			}
		}
		if p.Unread(role) {
			out.Unread++
		}
	}
	return out, nil
}

// ListRevisions returns the content history of a proposal.
func (e Engine) ListRevisions(ctx context.Context, actorID, id string) ([]domain.Revision, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return nil, storeErr("load proposal", err)
	}
	if _, err := e.viewerRole(ctx, p, actorID); err != nil {
		return nil, err
	}
	revs, err := e.Repo.ListRevisions(ctx, id)
	if err != nil {
		return nil, storeErr("list revisions", err)
	}
	return revs, nil
}

// Preview computes builder-derived values for an unsaved content draft.
func (e Engine) Preview(c domain.ProposalContent, proposerName string) domain.ContentPreview {
	out := domain.Preview(c, e.Config.DomainCatalog())
	out.OutlineSummary = domain.OutlineSummary(proposerName, c.PartnerSelection.PartnerName, c.Outline.FocusTitle)
	return out
}
