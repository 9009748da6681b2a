package repo

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Role names granted through actor_roles.
const (
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, actorID, role, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role, created_at) VALUES (?,?,?)`, actorID, role, now)
	if err != nil {
		return fmt.Errorf("assign role %s: %w", role, err)
	}
	return nil
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID, role string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role=?`, actorID, role)
	if err != nil {
		return fmt.Errorf("revoke role %s: %w", role, err)
	}
	return nil
}

func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	query, args, err := builder.Select("role").From("actor_roles").Where(sq.Eq{"actor_id": actorID}).OrderBy("role").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
