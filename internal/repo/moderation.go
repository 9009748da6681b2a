package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"partnerline/internal/domain"
)

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	query, args, err := builder.Insert("reports").
		Columns("id", "proposal_id", "reporter_id", "reporter_name", "reason", "details", "created_at").
		Values(rep.ID, rep.ProposalID, rep.ReporterID, rep.ReporterName, rep.Reason, nullable(rep.Details), rep.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListReports returns reports on a proposal, oldest first. A non-empty
// reporterID limits the result to that reporter.
func (r Repo) ListReports(ctx context.Context, proposalID, reporterID string) ([]domain.Report, error) {
	qb := builder.Select("id", "proposal_id", "reporter_id", "reporter_name", "reason", "COALESCE(details,'')", "created_at").
		From("reports").
		Where(sq.Eq{"proposal_id": proposalID}).
		OrderBy("created_at ASC", "id ASC")
	if reporterID != "" {
		qb = qb.Where(sq.Eq{"reporter_id": reporterID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Report{}
	for rows.Next() {
		var rep domain.Report
		if err := rows.Scan(&rep.ID, &rep.ProposalID, &rep.ReporterID, &rep.ReporterName, &rep.Reason, &rep.Details, &rep.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

// InsertBlock records blocker → blocked. It reports false when the pair was
// already blocked; the original row is kept.
func (r Repo) InsertBlock(ctx context.Context, tx *sql.Tx, b domain.Block) (bool, error) {
	query, args, err := builder.Insert("blocks").
		Options("OR IGNORE").
		Columns("blocker_id", "blocked_id", "proposal_id", "created_at").
		Values(b.BlockerID, b.BlockedID, nullable(b.ProposalID), b.CreatedAt).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert block: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

func (r Repo) DeleteBlock(ctx context.Context, tx *sql.Tx, blockerID, blockedID string) (bool, error) {
	query, args, err := builder.Delete("blocks").Where(sq.Eq{"blocker_id": blockerID, "blocked_id": blockedID}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete block: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// Blocked reports whether either business has blocked the other.
func (r Repo) Blocked(ctx context.Context, tx *sql.Tx, a, b string) (bool, error) {
	query, args, err := builder.Select("COUNT(1)").From("blocks").Where(sq.Or{
		sq.Eq{"blocker_id": a, "blocked_id": b},
		sq.Eq{"blocker_id": b, "blocked_id": a},
	}).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := r.q(tx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ListBlocks(ctx context.Context, blockerID string) ([]domain.Block, error) {
	query, args, err := builder.Select("blocker_id", "blocked_id", "COALESCE(proposal_id,'')", "created_at").
		From("blocks").
		Where(sq.Eq{"blocker_id": blockerID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Block{}
	for rows.Next() {
		var b domain.Block
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &b.ProposalID, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
