package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"partnerline/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case key.ActorID == "":
		return errors.New("actor_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	case key.CreatedAt == "":
		return errors.New("created_at required")
	}
	query, args, err := builder.Insert("api_keys").
		Columns("id", "actor_id", "name", "key_hash", "created_at").
		Values(key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.q(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

var apiKeyColumns = []string{"id", "actor_id", "COALESCE(name,'')", "key_hash", "created_at"}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	query, args, err := builder.Select(apiKeyColumns...).From("api_keys").Where(sq.Eq{"key_hash": hash}).Limit(1).ToSql()
	if err != nil {
		return domain.APIKey{}, err
	}
	var key domain.APIKey
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
		return domain.APIKey{}, notFound(err)
	}
	return key, nil
}

// ListAPIKeys returns API keys, optionally filtered by actor ID.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	qb := builder.Select(apiKeyColumns...).From("api_keys").OrderBy("created_at DESC", "id DESC")
	if actorID != "" {
		qb = qb.Where(sq.Eq{"actor_id": actorID})
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
	keys := []domain.APIKey{}
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteAPIKey deletes an API key by ID.
func (r Repo) DeleteAPIKey(ctx context.Context, tx *sql.Tx, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
