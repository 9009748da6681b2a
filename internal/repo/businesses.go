package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"partnerline/internal/domain"
)

var businessColumns = []string{"id", "name", "COALESCE(industry,'')", "COALESCE(location,'')", "created_at", "updated_at"}

func scanBusiness(row rowScanner) (domain.Business, error) {
	var b domain.Business
	if err := row.Scan(&b.ID, &b.Name, &b.Industry, &b.Location, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.Business{}, notFound(err)
	}
	return b, nil
}

// GetBusiness looks up a directory entry.
func (r Repo) GetBusiness(ctx context.Context, id string) (domain.Business, error) {
	query, args, err := builder.Select(businessColumns...).From("businesses").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Business{}, err
	}
	return scanBusiness(r.DB.QueryRowContext(ctx, query, args...))
}

// UpsertBusiness inserts or updates b, keeping the original created_at.
func (r Repo) UpsertBusiness(ctx context.Context, tx *sql.Tx, b domain.Business) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO businesses(id,name,industry,location,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, industry=excluded.industry, location=excluded.location, updated_at=excluded.updated_at`,
		b.ID, b.Name, nullable(b.Industry), nullable(b.Location), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert business: %w", err)
	}
	return nil
}

// BusinessFilter narrows directory discovery. ViewerID, when set, removes
// the viewer and every business the viewer has blocked.
type BusinessFilter struct {
	ViewerID string
	Industry string
	Location string
	Query    string
	Limit    int
}

func (r Repo) ListBusinesses(ctx context.Context, f BusinessFilter) ([]domain.Business, error) {
	qb := builder.Select(businessColumns...).From("businesses").OrderBy("name ASC", "id ASC")
	if f.ViewerID != "" {
		qb = qb.Where(sq.NotEq{"id": f.ViewerID}).
			Where(sq.Expr(`id NOT IN (SELECT blocked_id FROM blocks WHERE blocker_id = ?)`, f.ViewerID))
	}
	if f.Industry != "" {
		qb = qb.Where(sq.Eq{"industry": f.Industry})
	}
	if f.Location != "" {
		qb = qb.Where(sq.Eq{"location": f.Location})
	}
	if f.Query != "" {
		qb = qb.Where(sq.Like{"name": "%" + f.Query + "%"})
	}
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
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
	res := []domain.Business{}
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
