package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"partnerline/internal/config"
	"partnerline/internal/domain"
	"partnerline/internal/events"
	"partnerline/internal/repo"
)

// apiKeyPrefix marks issued partnerline keys.
const apiKeyPrefix = "plk_"

// GrantRole gives actorID a global role. Callers are trusted local operators.
func (e Engine) GrantRole(ctx context.Context, operatorID, actorID, role string) error {
	if strings.TrimSpace(actorID) == "" || strings.TrimSpace(role) == "" {
		return domain.NewValidationError("role", "actor and role are required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AssignRole(ctx, tx, actorID, role, e.timestamp()); err != nil {
		return storeErr("assign role", err)
	}
	if err := e.appendEvent(ctx, tx, events.RoleGranted, "actor", actorID, operatorOrSystem(operatorID), events.EventPayload{"role": role}); err != nil {
		return err
	}
	return e.commit(tx)
}

func (e Engine) RevokeRole(ctx context.Context, operatorID, actorID, role string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, actorID, role); err != nil {
		return storeErr("revoke role", err)
	}
	if err := e.appendEvent(ctx, tx, events.RoleRevoked, "actor", actorID, operatorOrSystem(operatorID), events.EventPayload{"role": role}); err != nil {
		return err
	}
	return e.commit(tx)
}

// CreateAPIKey issues a key for actorID. The plaintext key is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if err := requireActor(actorID); err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, storeErr("insert api key", err)
	}
	if err := e.appendEvent(ctx, tx, events.APIKeyCreated, "api_key", key.ID, actorID, events.EventPayload{"name": key.Name}); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := e.commit(tx); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return nil, storeErr("list api keys", err)
	}
	return keys, nil
}

func (e Engine) DeleteAPIKey(ctx context.Context, operatorID, id string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return storeErr("delete api key", err)
	}
	if err := e.appendEvent(ctx, tx, events.APIKeyDeleted, "api_key", id, operatorOrSystem(operatorID), nil); err != nil {
		return err
	}
	return e.commit(tx)
}

// ImportConfig validates cfg and stores it as the workspace configuration.
// The running engine keeps its current configuration.
func (e Engine) ImportConfig(ctx context.Context, operatorID string, cfg *config.Config) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertConfig(ctx, tx, cfg, e.timestamp()); err != nil {
		return fmt.Errorf("import config: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.ConfigImported, "config", "", operatorOrSystem(operatorID), nil); err != nil {
		return err
	}
	return e.commit(tx)
}

func operatorOrSystem(id string) string {
	if id == "" {
		return SystemActor
	}
	return id
}
