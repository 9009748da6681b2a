package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"partnerline/internal/config"
	"partnerline/internal/repo"
)

// Source names where the active configuration came from.
type Source string

const (
	SourceFile    Source = "file"
	SourceStored  Source = "stored"
	SourceDefault Source = "default"
)

// ResolveConfig picks the active configuration: a partnerline.yml in the
// workspace wins, then the copy stored in the database, then the built-in
// defaults, which are seeded into the database on first use.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, Source, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, "", fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if fileCfg != nil {
		return fileCfg, SourceFile, nil
	}
	stored, err := r.GetConfig(ctx)
	if err == nil {
		return stored, SourceStored, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, "", err
	}
	seed := config.Default()
	if err := r.UpsertConfig(ctx, nil, seed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, "", fmt.Errorf("seed config: %w", err)
	}
	return seed, SourceDefault, nil
}
