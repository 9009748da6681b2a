package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"partnerline/internal/config"
	"partnerline/internal/domain"
	"partnerline/internal/engine/auth"
	"partnerline/internal/events"
)

// change is what a mutation writes next to the updated proposal row.
type change struct {
	event    string
	payload  events.EventPayload
	message  *domain.ProposalMessage
	revision *domain.Revision
}

// mutate serializes a write to one proposal. The proposal is read once
// without the lock; once the lock is held it is re-read inside the
// transaction, and any version movement since the first read (or mismatch
// with expected, when non-zero) is a Conflict. apply edits p in place and
// must leave it untouched when it returns an error.
func (e Engine) mutate(ctx context.Context, id, actorID string, expected int64, apply func(tx *sql.Tx, p *domain.Proposal) (change, error)) (domain.Proposal, error) {
	seen, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, storeErr("load proposal", err)
	}
	if expected > 0 && seen.Version != expected {
		return domain.Proposal{}, fmt.Errorf("proposal %s is at version %d, not %d: %w", id, seen.Version, expected, domain.ErrConflict)
	}

	unlock := e.lock(id)
	defer unlock()

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProposalTx(ctx, tx, id)
	if err != nil {
		return domain.Proposal{}, storeErr("load proposal", err)
	}
	if p.Version != seen.Version {
		return domain.Proposal{}, fmt.Errorf("proposal %s was updated concurrently: %w", id, domain.ErrConflict)
	}
	prev := p
	ch, err := apply(tx, &p)
	if err != nil {
		e.logger().Debug("proposal change rejected",
			zap.String("proposal_id", id),
			zap.String("actor_id", actorID),
			zap.String("status", string(prev.Status)),
			zap.Error(err))
		return domain.Proposal{}, err
	}
	if err := e.Repo.UpdateProposal(ctx, tx, p, prev.Version); err != nil {
		return domain.Proposal{}, storeErr("update proposal", err)
	}
	if ch.message != nil {
		ch.message.ID = ulid.Make().String()
		ch.message.ProposalID = p.ID
		ch.message.CreatedAt = p.UpdatedAt
		if _, err := e.Repo.AppendMessage(ctx, tx, *ch.message); err != nil {
			return domain.Proposal{}, storeErr("append message", err)
		}
	}
	if ch.revision != nil {
		ch.revision.ProposalID = p.ID
		ch.revision.Revision = p.Revision
		ch.revision.CreatedAt = p.UpdatedAt
		if err := e.Repo.InsertRevision(ctx, tx, *ch.revision); err != nil {
			return domain.Proposal{}, storeErr("insert revision", err)
		}
	}
	if ch.payload == nil {
		ch.payload = events.EventPayload{}
	}
	ch.payload["from"] = prev.Status
	ch.payload["to"] = p.Status
	ch.payload["version"] = p.Version
	if p.AwaitingParty != nil {
		ch.payload["awaiting_party"] = *p.AwaitingParty
	}
	if err := e.appendEvent(ctx, tx, ch.event, "proposal", p.ID, actorID, ch.payload); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Proposal{}, err
	}

	msgs, err := e.Repo.ListMessages(ctx, p.ID)
	if err != nil {
		return domain.Proposal{}, storeErr("load messages", err)
	}
	p.Messages = msgs
	if prev.Status != p.Status || ch.event == events.ProposalNegotiated {
		e.logger().Info("proposal transition",
			zap.String("proposal_id", p.ID),
			zap.String("event", ch.event),
			zap.String("actor_id", actorID),
			zap.String("from", string(prev.Status)),
			zap.String("to", string(p.Status)),
			zap.Int64("version", p.Version))
	}
	return p, nil
}

// ActOptions carry an accept, decline or cancel.
type ActOptions struct {
	ProposalID string
	ActorID    string
	ActorName  string
	Action     domain.Action
	Note       string
	// ExpectedVersion, when non-zero, must equal the stored version.
	ExpectedVersion int64
}

var actionEvents = map[domain.Action]string{
	domain.ActionAccept:    events.ProposalAccepted,
	domain.ActionDecline:   events.ProposalDeclined,
	domain.ActionCancel:    events.ProposalCancelled,
	domain.ActionNegotiate: events.ProposalNegotiated,
	domain.ActionExpire:    events.ProposalExpired,
}

// Act applies accept, decline or cancel and returns the updated detail.
func (e Engine) Act(ctx context.Context, opts ActOptions) (domain.Proposal, error) {
	if err := requireActor(opts.ActorID); err != nil {
		return domain.Proposal{}, err
	}
	switch opts.Action {
	case domain.ActionAccept, domain.ActionDecline, domain.ActionCancel:
	case domain.ActionNegotiate:
		return domain.Proposal{}, domain.NewValidationError("action", "negotiate requires content; use Negotiate")
	case domain.ActionExpire:
		return domain.Proposal{}, domain.NewValidationError("action", "expire is a system action; use Expire")
	default:
		return domain.Proposal{}, domain.NewValidationError("action", fmt.Sprintf("unknown action %q", opts.Action))
	}
	return e.mutate(ctx, opts.ProposalID, opts.ActorID, opts.ExpectedVersion, func(_ *sql.Tx, p *domain.Proposal) (change, error) {
		role, err := auth.ParticipantRole(*p, opts.ActorID)
		if err != nil {
			return change{}, err
		}
		out, err := domain.Decide(p.Status, p.AwaitingParty, role, opts.Action)
		if err != nil {
			return change{}, err
		}
		p.Apply(out, role, e.timestamp())
		note := strings.TrimSpace(opts.Note)
		return change{
			event:   actionEvents[opts.Action],
			payload: events.EventPayload{"role": role, "note": note},
			message: e.actionMessage(*p, role, opts.ActorID, opts.ActorName, note, opts.Action),
		}, nil
	})
}

func (e Engine) actionMessage(p domain.Proposal, role domain.Role, actorID, actorName, note string, action domain.Action) *domain.ProposalMessage {
	content := note
	if content == "" {
		content = e.Config.Messages.Phrase(action)
	}
	name := strings.TrimSpace(actorName)
	if name == "" {
		name = partyName(p, role)
	}
	return &domain.ProposalMessage{
		Kind:       domain.MessageKindAction,
		SenderID:   actorID,
		SenderRole: role,
		SenderName: name,
		Content:    content,
	}
}

func partyName(p domain.Proposal, role domain.Role) string {
	switch role {
	case domain.RoleProposer:
		return p.ProposerName
	case domain.RoleRecipient:
		return p.RecipientName
	}
	return systemName
}

// NegotiateOptions submit a revised content during negotiation.
type NegotiateOptions struct {
	ProposalID      string
	ActorID         string
	ActorName       string
	Content         domain.ProposalContent
	Summary         string
	ExpectedVersion int64
}

// Negotiate replaces the content wholesale and hands the turn to the other party.
func (e Engine) Negotiate(ctx context.Context, opts NegotiateOptions) (domain.Proposal, error) {
	if err := requireActor(opts.ActorID); err != nil {
		return domain.Proposal{}, err
	}
	return e.mutate(ctx, opts.ProposalID, opts.ActorID, opts.ExpectedVersion, func(_ *sql.Tx, p *domain.Proposal) (change, error) {
		role, err := auth.ParticipantRole(*p, opts.ActorID)
		if err != nil {
			return change{}, err
		}
		out, err := domain.Decide(p.Status, p.AwaitingParty, role, domain.ActionNegotiate)
		if err != nil {
			return change{}, err
		}
		if err := domain.Validate(opts.Content, e.Config.DomainCatalog()); err != nil {
			return change{}, err
		}
		partnerChanged := opts.Content.PartnerSelection.PartnerID != p.Content.PartnerSelection.PartnerID
		if partnerChanged && e.Config.Negotiation.PartnerChange == config.PartnerChangeReject {
			return change{}, domain.NewValidationError("content.partner_selection.partner_id", "the partner of an existing proposal cannot change")
		}
		sections := domain.Diff(p.Content, opts.Content)
		p.Content = opts.Content
		p.Revision++
		p.Apply(out, role, e.timestamp())

		msg := e.actionMessage(*p, role, opts.ActorID, opts.ActorName, strings.TrimSpace(opts.Summary), domain.ActionNegotiate)
		return change{
			event: events.ProposalNegotiated,
			payload: events.EventPayload{
				"role":                      role,
				"revision":                  p.Revision,
				"changed_sections":          sections,
				"partner_selection_changed": partnerChanged,
			},
			message:  msg,
			revision: &domain.Revision{AuthorID: opts.ActorID, AuthorRole: role, Content: opts.Content, ChangedSections: sections},
		}, nil
	})
}

// MessageOptions post a free-text chat entry to the thread.
type MessageOptions struct {
	ProposalID      string
	ActorID         string
	ActorName       string
	Content         string
	ExpectedVersion int64
}

// SendMessage appends a chat message. It bumps version and updated_at and
// flags the other party unread, but never changes status. Either party
// having blocked the other makes it Forbidden.
func (e Engine) SendMessage(ctx context.Context, opts MessageOptions) (domain.Proposal, error) {
	if err := requireActor(opts.ActorID); err != nil {
		return domain.Proposal{}, err
	}
	body := strings.TrimSpace(opts.Content)
	if body == "" {
		return domain.Proposal{}, domain.NewValidationError("content", "required")
	}
	return e.mutate(ctx, opts.ProposalID, opts.ActorID, opts.ExpectedVersion, func(tx *sql.Tx, p *domain.Proposal) (change, error) {
		role, err := auth.ParticipantRole(*p, opts.ActorID)
		if err != nil {
			return change{}, err
		}
		other, _ := p.Counterparty(role)
		blocked, err := e.Repo.Blocked(ctx, tx, opts.ActorID, other)
		if err != nil {
			return change{}, storeErr("check blocks", err)
		}
		if blocked {
			return change{}, &domain.ForbiddenError{ActorID: opts.ActorID, Reason: "cannot message a blocked business"}
		}
		p.MarkUnread(role)
		p.UpdatedAt = e.timestamp()
		p.Version++
		name := strings.TrimSpace(opts.ActorName)
		if name == "" {
			name = partyName(*p, role)
		}
		return change{
			event:   events.ProposalMessage,
			payload: events.EventPayload{"role": role},
			message: &domain.ProposalMessage{
				Kind:       domain.MessageKindChat,
				SenderID:   opts.ActorID,
				SenderRole: role,
				SenderName: name,
				Content:    body,
			},
		}, nil
	})
}

// Expire moves an open proposal to expired. actorID must be SystemActor or
// a moderator.
func (e Engine) Expire(ctx context.Context, actorID, id string) (domain.Proposal, error) {
	if err := e.requireSystem(ctx, actorID); err != nil {
		return domain.Proposal{}, err
	}
	return e.expire(ctx, actorID, id, 0)
}

func (e Engine) requireSystem(ctx context.Context, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	if actorID == SystemActor {
		return nil
	}
	return e.Auth.RequireModerator(ctx, actorID)
}

func (e Engine) expire(ctx context.Context, actorID, id string, expected int64) (domain.Proposal, error) {
	return e.mutate(ctx, id, actorID, expected, func(_ *sql.Tx, p *domain.Proposal) (change, error) {
		out, err := domain.Decide(p.Status, p.AwaitingParty, domain.RoleSystem, domain.ActionExpire)
		if err != nil {
			return change{}, err
		}
		p.Apply(out, domain.RoleSystem, e.timestamp())
		return change{
			event: events.ProposalExpired,
			message: &domain.ProposalMessage{
				Kind:       domain.MessageKindSystem,
				SenderID:   actorID,
				SenderRole: domain.RoleSystem,
				SenderName: systemName,
				Content:    e.Config.Messages.Expire,
			},
		}, nil
	})
}

// ExpireResult reports a sweep.
type ExpireResult struct {
	Cutoff  string   `json:"cutoff,omitempty"`
	Expired []string `json:"expired"`
	Skipped []string `json:"skipped"`
}

// ExpireDue expires every open proposal idle longer than
// proposals.expire_after. Proposals that moved while the sweep ran are
// skipped. A zero expire_after disables the sweep.
func (e Engine) ExpireDue(ctx context.Context, actorID string) (ExpireResult, error) {
	res := ExpireResult{Expired: []string{}, Skipped: []string{}}
	if err := e.requireSystem(ctx, actorID); err != nil {
		return res, err
	}
	after := e.Config.Proposals.ExpireAfter
	if after <= 0 {
		return res, nil
	}
	res.Cutoff = e.now().Add(-after).UTC().Format(time.RFC3339)
	idle, err := e.Repo.ListIdleSince(ctx, res.Cutoff)
	if err != nil {
		return res, storeErr("list idle proposals", err)
	}
	for _, p := range idle {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := e.expire(ctx, actorID, p.ID, p.Version); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition) {
				res.Skipped = append(res.Skipped, p.ID)
				continue
			}
			return res, err
		}
		res.Expired = append(res.Expired, p.ID)
	}
	e.logger().Info("expiry sweep", zap.String("cutoff", res.Cutoff), zap.Int("expired", len(res.Expired)), zap.Int("skipped", len(res.Skipped)))
	return res, nil
}
