package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"partnerline/internal/domain"
	"partnerline/internal/engine/auth"
	"partnerline/internal/events"
)

type ReportOptions struct {
	ProposalID string
	ActorID    string
	ActorName  string
	Reason     string
	Details    string
}

// Report files a moderation record against a proposal. The proposal itself is
// not modified, and repeated reports are all kept.
func (e Engine) Report(ctx context.Context, opts ReportOptions) (domain.Report, error) {
	if err := requireActor(opts.ActorID); err != nil {
		return domain.Report{}, err
	}
	p, err := e.Repo.GetProposal(ctx, opts.ProposalID)
	if err != nil {
		return domain.Report{}, storeErr("load proposal", err)
	}
	role, err := auth.ParticipantRole(p, opts.ActorID)
	if err != nil {
		return domain.Report{}, err
	}
	reason := strings.TrimSpace(opts.Reason)
	if reason == "" {
		return domain.Report{}, domain.NewValidationError("reason", "required")
	}
	name := strings.TrimSpace(opts.ActorName)
	if name == "" {
		name = partyName(p, role)
	}
	rep := domain.Report{
		ID:           uuid.NewString(),
		ProposalID:   p.ID,
		ReporterID:   opts.ActorID,
		ReporterName: name,
		Reason:       reason,
		Details:      strings.TrimSpace(opts.Details),
		CreatedAt:    e.timestamp(),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return domain.Report{}, storeErr("insert report", err)
	}
	if err := e.appendEvent(ctx, tx, events.ProposalReported, "proposal", p.ID, opts.ActorID, events.EventPayload{
		"report_id": rep.ID,
		"reason":    rep.Reason,
	}); err != nil {
		return domain.Report{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Report{}, err
	}
	e.logger().Info("proposal reported", zap.String("proposal_id", p.ID), zap.String("report_id", rep.ID), zap.String("actor_id", opts.ActorID))
	return rep, nil
}

// ListReports returns every report to moderators and only their own
// reports to participants, whatever the proposal status.
func (e Engine) ListReports(ctx context.Context, actorID, proposalID string) ([]domain.Report, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, storeErr("load proposal", err)
	}
	role, err := e.viewerRole(ctx, p, actorID)
	if err != nil {
		return nil, err
	}
	reporter := actorID
	if role == domain.RoleSystem {
		reporter = ""
	}
	reps, err := e.Repo.ListReports(ctx, p.ID, reporter)
	if err != nil {
		return nil, storeErr("list reports", err)
	}
	return reps, nil
}

// Block records actor → counterparty using the proposal to resolve the
// counterparty. Blocking twice keeps the first record.
func (e Engine) Block(ctx context.Context, actorID, proposalID string) (domain.Block, error) {
	if err := requireActor(actorID); err != nil {
		return domain.Block{}, err
	}
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.Block{}, storeErr("load proposal", err)
	}
	role, err := auth.ParticipantRole(p, actorID)
	if err != nil {
		return domain.Block{}, err
	}
	other, _ := p.Counterparty(role)
	b := domain.Block{BlockerID: actorID, BlockedID: other, ProposalID: p.ID, CreatedAt: e.timestamp()}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Block{}, err
	}
	defer tx.Rollback()
	created, err := e.Repo.InsertBlock(ctx, tx, b)
	if err != nil {
		return domain.Block{}, storeErr("insert block", err)
	}
	if created {
		if err := e.appendEvent(ctx, tx, events.BusinessBlocked, "business", other, actorID, events.EventPayload{"proposal_id": p.ID}); err != nil {
			return domain.Block{}, err
		}
	}
	if err := e.commit(tx); err != nil {
		return domain.Block{}, err
	}
	if !created {
		blocks, err := e.Repo.ListBlocks(ctx, actorID)
		if err != nil {
			return domain.Block{}, storeErr("list blocks", err)
		}
		for _, existing := range blocks {
			if existing.BlockedID == other {
				return existing, nil
			}
		}
	}
	e.logger().Info("business blocked", zap.String("actor_id", actorID), zap.String("blocked_id", other), zap.String("proposal_id", p.ID))
	return b, nil
}

// Unblock removes actor → blockedID.
func (e Engine) Unblock(ctx context.Context, actorID, blockedID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	removed, err := e.Repo.DeleteBlock(ctx, tx, actorID, blockedID)
	if err != nil {
		return storeErr("delete block", err)
	}
	if !removed {
		return fmt.Errorf("block on %s: %w", blockedID, domain.ErrNotFound)
	}
	if err := e.appendEvent(ctx, tx, events.BusinessUnblocked, "business", blockedID, actorID, nil); err != nil {
		return err
	}
	return e.commit(tx)
}

func (e Engine) ListBlocks(ctx context.Context, actorID string) ([]domain.Block, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	blocks, err := e.Repo.ListBlocks(ctx, actorID)
	if err != nil {
		return nil, storeErr("list blocks", err)
	}
	return blocks, nil
}
