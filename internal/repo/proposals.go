package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"partnerline/internal/domain"
)

var proposalColumns = []string{
	"id", "proposer_id", "recipient_id", "proposer_name", "recipient_name", "title", "summary",
	"content_json", "status", "awaiting_party", "unread_for_proposer", "unread_for_recipient",
	"version", "revision", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var (
		p          domain.Proposal
		content    string
		status     string
		awaiting   sql.NullString
		unreadProp int
		unreadRecp int
	)
	if err := row.Scan(&p.ID, &p.ProposerID, &p.RecipientID, &p.ProposerName, &p.RecipientName, &p.Title, &p.Summary,
		&content, &status, &awaiting, &unreadProp, &unreadRecp, &p.Version, &p.Revision, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Proposal{}, notFound(err)
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Proposal{}, err
	}
	p.Status = st
	if awaiting.Valid {
		role, err := domain.ParseRole(awaiting.String)
		if err != nil {
			return domain.Proposal{}, err
		}
		p.AwaitingParty = &role
	}
	p.UnreadForProposer = unreadProp != 0
	p.UnreadForRecipient = unreadRecp != 0
	if err := json.Unmarshal([]byte(content), &p.Content); err != nil {
		return domain.Proposal{}, fmt.Errorf("decode proposal %s content: %w", p.ID, err)
	}
	return p, nil
}

func (r Repo) InsertProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	content, err := json.Marshal(p.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	query, args, err := builder.Insert("proposals").Columns(proposalColumns...).Values(
		p.ID, p.ProposerID, p.RecipientID, p.ProposerName, p.RecipientName, p.Title, p.Summary,
		string(content), string(p.Status), nullableRole(p.AwaitingParty), boolInt(p.UnreadForProposer), boolInt(p.UnreadForRecipient),
		p.Version, p.Revision, p.CreatedAt, p.UpdatedAt,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return r.GetProposalTx(ctx, nil, id)
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	query, args, err := builder.Select(proposalColumns...).From("proposals").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Proposal{}, err
	}
	return scanProposal(r.q(tx).QueryRowContext(ctx, query, args...))
}

// UpdateProposal writes p if the stored version still equals expected.
// A lost race returns domain.ErrConflict.
func (r Repo) UpdateProposal(ctx context.Context, tx *sql.Tx, p domain.Proposal, expected int64) error {
	content, err := json.Marshal(p.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	query, args, err := builder.Update("proposals").
		Set("summary", p.Summary).
		Set("content_json", string(content)).
		Set("status", string(p.Status)).
		Set("awaiting_party", nullableRole(p.AwaitingParty)).
		Set("unread_for_proposer", boolInt(p.UnreadForProposer)).
		Set("unread_for_recipient", boolInt(p.UnreadForRecipient)).
		Set("version", p.Version).
		Set("revision", p.Revision).
		Set("updated_at", p.UpdatedAt).
		Where(sq.Eq{"id": p.ID, "version": expected}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	if _, err := r.GetProposalTx(ctx, tx, p.ID); err != nil {
		return err
	}
	return fmt.Errorf("proposal %s changed since version %d: %w", p.ID, expected, domain.ErrConflict)
}

// ClearUnread resets the viewer's unread flag without touching version or
// updated_at. It reports false when the row moved past version meanwhile.
func (r Repo) ClearUnread(ctx context.Context, id string, role domain.Role, version int64) (bool, error) {
	var column string
	switch role {
	case domain.RoleProposer:
		column = "unread_for_proposer"
	case domain.RoleRecipient:
		column = "unread_for_recipient"
	default:
		return false, fmt.Errorf("no unread flag for role %q", role)
	}
	query, args, err := builder.Update("proposals").Set(column, 0).Where(sq.Eq{"id": id, "version": version}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("clear unread: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// ProposalFilter narrows ListForUser. Tab is pushed down to SQL; free text
// search is left to the caller because it matches the viewer-relative
// partner name.
type ProposalFilter struct {
	UserID         string
	Tab            domain.Tab
	IncludeBlocked bool
}

func (r Repo) ListForUser(ctx context.Context, f ProposalFilter) ([]domain.Proposal, error) {
	if f.UserID == "" {
		return nil, errors.New("user id required")
	}
	qb := builder.Select(proposalColumns...).From("proposals").
		Where(sq.Or{sq.Eq{"proposer_id": f.UserID}, sq.Eq{"recipient_id": f.UserID}}).
		OrderBy("updated_at DESC", "id DESC")
	qb = tabWhere(qb, f.Tab, f.UserID)
	if !f.IncludeBlocked {
		qb = qb.Where(sq.Expr(`NOT EXISTS (SELECT 1 FROM blocks b WHERE b.blocker_id = ?
AND b.blocked_id = CASE WHEN proposals.proposer_id = ? THEN proposals.recipient_id ELSE proposals.proposer_id END)`, f.UserID, f.UserID))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryProposals(ctx, query, args...)
}

func tabWhere(qb sq.SelectBuilder, tab domain.Tab, userID string) sq.SelectBuilder {
	switch tab {
	case domain.TabAll, "":
		return qb
	case domain.TabSent:
		return qb.Where(sq.Eq{"proposer_id": userID})
	case domain.TabReceived:
		return qb.Where(sq.Eq{"recipient_id": userID})
	case domain.TabAwaiting:
		return qb.Where(sq.Or{sq.Eq{"status": string(domain.StatusAwaitingRecipient)}, sq.NotEq{"awaiting_party": nil}})
	case domain.TabNegotiating:
		return qb.Where(sq.Eq{"status": string(domain.StatusUnderNegotiation)})
	case domain.TabAccepted:
		return qb.Where(sq.Eq{"status": string(domain.StatusAccepted)})
	case domain.TabDeclined:
		return qb.Where(sq.Eq{"status": []string{string(domain.StatusDeclined), string(domain.StatusCancelled)}})
	}
	panic(fmt.Sprintf("unhandled tab %q", string(tab)))
}

// ListIdleSince returns non-terminal proposals last updated before cutoff.
func (r Repo) ListIdleSince(ctx context.Context, cutoff string) ([]domain.Proposal, error) {
	query, args, err := builder.Select(proposalColumns...).From("proposals").
		Where(sq.Eq{"status": []string{string(domain.StatusAwaitingRecipient), string(domain.StatusUnderNegotiation)}}).
		Where(sq.Lt{"updated_at": cutoff}).
		OrderBy("updated_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.queryProposals(ctx, query, args...)
}

func (r Repo) queryProposals(ctx context.Context, query string, args ...any) ([]domain.Proposal, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
