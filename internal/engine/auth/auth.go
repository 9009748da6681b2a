package auth

import (
	"context"
	"slices"

	"partnerline/internal/domain"
	"partnerline/internal/repo"
)

// Moderator is the role allowed to read every report, expire proposals and
// browse the event log.
const Moderator = repo.RoleModerator

// Service resolves what an actor may do. Roles come from actor_roles plus the
// moderators listed in configuration.
type Service struct {
	Repo       repo.Repo
	Moderators []string
}

func (s Service) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	roles, err := s.Repo.ActorRoles(ctx, actorID)
	if err != nil {
		return nil, domain.Unavailable("load roles", err)
	}
	if slices.Contains(s.Moderators, actorID) && !slices.Contains(roles, Moderator) {
		roles = append(roles, Moderator)
		slices.Sort(roles)
	}
	return roles, nil
}

func (s Service) ActorHasRole(ctx context.Context, actorID, role string) (bool, error) {
	if actorID == "" {
		return false, nil
	}
	roles, err := s.ActorRoles(ctx, actorID)
	if err != nil {
		return false, err
	}
	return slices.Contains(roles, role) || slices.Contains(roles, repo.RoleAdmin), nil
}

// RequireModerator returns a ForbiddenError unless actorID moderates.
func (s Service) RequireModerator(ctx context.Context, actorID string) error {
	ok, err := s.ActorHasRole(ctx, actorID, Moderator)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.ForbiddenError{ActorID: actorID, Reason: "requires the moderator role"}
	}
	return nil
}

// ParticipantRole returns actorID's role on p or a ForbiddenError.
func ParticipantRole(p domain.Proposal, actorID string) (domain.Role, error) {
	role, ok := p.RoleOf(actorID)
	if !ok {
		return "", &domain.ForbiddenError{ActorID: actorID, Reason: "is not a participant of proposal " + p.ID}
	}
	return role, nil
}
