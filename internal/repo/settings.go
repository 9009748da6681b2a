package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"partnerline/internal/config"
)

const configKey = "config"

// UpsertConfig validates cfg and stores it as the workspace configuration.
func (r Repo) UpsertConfig(ctx context.Context, tx *sql.Tx, cfg *config.Config, now string) error {
	if cfg == nil {
		return errors.New("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO settings(key,value_json,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at`, configKey, string(payload), now)
	if err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}

// GetConfig returns the stored configuration or ErrNotFound.
func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	if err := r.DB.QueryRowContext(ctx, `SELECT value_json FROM settings WHERE key=?`, configKey).Scan(&payload); err != nil {
		return nil, notFound(err)
	}
	cfg := config.Default()
	if err := json.Unmarshal([]byte(payload), cfg); err != nil {
		return nil, fmt.Errorf("decode stored config: %w", err)
	}
	return cfg, cfg.Validate()
}
