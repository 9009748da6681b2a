package engine

import (
	"context"
	"errors"
	"strings"

	"partnerline/internal/domain"
	"partnerline/internal/engine/auth"
	"partnerline/internal/events"
	"partnerline/internal/repo"
)

func (e Engine) GetBusiness(ctx context.Context, id string) (domain.Business, error) {
	return e.business(ctx, id)
}

// ListBusinesses is partner discovery: the viewer and businesses the viewer
// blocked are left out.
func (e Engine) ListBusinesses(ctx context.Context, viewerID string, f repo.BusinessFilter) ([]domain.Business, error) {
	f.ViewerID = viewerID
	if f.Limit <= 0 {
		f.Limit = e.Config.Listing.DefaultLimit
	}
	if maxLimit := e.Config.Listing.MaxLimit; maxLimit > 0 && f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	res, err := e.Repo.ListBusinesses(ctx, f)
	if err != nil {
		return nil, storeErr("list businesses", err)
	}
	return res, nil
}

// UpsertBusiness creates or updates a directory entry. A business may edit
// its own listing; moderators may edit any. Names stored on existing
// proposals are not refreshed.
func (e Engine) UpsertBusiness(ctx context.Context, actorID string, b domain.Business) (domain.Business, error) {
	if err := requireActor(actorID); err != nil {
		return domain.Business{}, err
	}
	b.ID = strings.TrimSpace(b.ID)
	b.Name = strings.TrimSpace(b.Name)
	var problems []domain.FieldError
	switch b.ID {
	case "":
		problems = append(problems, domain.FieldError{Field: "id", Message: "required"})
	case SystemActor:
		problems = append(problems, domain.FieldError{Field: "id", Message: "reserved"})
	}
	if b.Name == "" {
		problems = append(problems, domain.FieldError{Field: "name", Message: "required"})
	}
	if len(problems) > 0 {
		return domain.Business{}, &domain.ValidationError{Errors: problems}
	}
	if actorID != b.ID && actorID != SystemActor {
		if err := e.Auth.RequireModerator(ctx, actorID); err != nil {
			return domain.Business{}, err
		}
	}
	now := e.timestamp()
	b.CreatedAt, b.UpdatedAt = now, now
	if existing, err := e.Repo.GetBusiness(ctx, b.ID); err == nil {
		b.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Business{}, storeErr("load business", err)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Business{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertBusiness(ctx, tx, b); err != nil {
		return domain.Business{}, storeErr("upsert business", err)
	}
	if err := e.appendEvent(ctx, tx, events.BusinessUpserted, "business", b.ID, actorID, events.EventPayload{"name": b.Name}); err != nil {
		return domain.Business{}, err
	}
	if err := e.commit(tx); err != nil {
		return domain.Business{}, err
	}
	return b, nil
}

// ListEvents returns the action log to moderators.
func (e Engine) ListEvents(ctx context.Context, actorID string, f repo.EventFilter) ([]domain.Event, error) {
	if err := e.requireSystem(ctx, actorID); err != nil {
		return nil, err
	}
	evts, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return evts, nil
}

// Roles returns the roles held by actorID.
func (e Engine) Roles(ctx context.Context, actorID string) ([]string, error) {
	return e.Auth.ActorRoles(ctx, actorID)
}

// IsModerator reports whether actorID holds the moderator role.
func (e Engine) IsModerator(ctx context.Context, actorID string) (bool, error) {
	return e.Auth.ActorHasRole(ctx, actorID, auth.Moderator)
}
