package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/events"
)

// Authorizer is the capability-check surface the other engines consume.
type Authorizer interface {
	IsOwner(ctx context.Context, who uuid.UUID) (bool, error)
	IsAdministrator(ctx context.Context, who uuid.UUID) (bool, error)
	IsCertifiedProvider(ctx context.Context, who uuid.UUID) (bool, error)
	IsCertifiedInstitution(ctx context.Context, who uuid.UUID) (bool, error)
	// IsPrivileged reports whether who is the owner, an administrator, a
	// certified provider, or a certified institution.
	IsPrivileged(ctx context.Context, who uuid.UUID) (bool, error)
}

type Service struct {
	repo  Repository
	sink  events.Sink
	clock clock.Clock
}

func NewService(repo Repository, sink events.Sink, clk clock.Clock) *Service {
	return &Service{repo: repo, sink: sink, clock: clk}
}

// Bootstrap records the owner identity. The owner is immutable: a second
// call with any identity fails.
func (s *Service) Bootstrap(ctx context.Context, owner uuid.UUID) error {
	if owner == uuid.Nil {
		return validationError("owner identity is required", textCodeInvalidRole)
	}
	set, err := s.repo.SetOwner(ctx, owner)
	if err != nil {
		return err
	}
	if !set {
		return stateError("owner is already set", textCodeOwnerSet)
	}
	return s.sink.Record(ctx, events.Event{
		EntityType: "registry",
		EntityID:   "owner",
		Action:     "bootstrapped",
		Actor:      owner,
		Timestamp:  s.clock.Now(),
	})
}

// AddRole grants a role. Owner-or-administrator only; granting a role an
// identity already holds is a no-op (no event is recorded).
func (s *Service) AddRole(ctx context.Context, caller, identity uuid.UUID, role Role) error {
	if !role.Valid() {
		return validationError("unknown role: "+string(role), textCodeInvalidRole)
	}
	if identity == uuid.Nil {
		return validationError("identity is required", textCodeInvalidRole)
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}

	added, err := s.repo.AddRole(ctx, Membership{
		Identity: identity,
		Role:     role,
		AddedBy:  caller,
		AddedAt:  s.clock.Now(),
	})
	if err != nil || !added {
		return err
	}
	return s.sink.Record(ctx, events.Event{
		EntityType: "registry",
		EntityID:   identity.String(),
		Action:     "role_added",
		Actor:      caller,
		Timestamp:  s.clock.Now(),
		Metadata:   map[string]string{"role": string(role)},
	})
}

// RemoveRole revokes a role. Owner-or-administrator only. The owner's own
// implicit privilege cannot be removed; it is not a membership.
func (s *Service) RemoveRole(ctx context.Context, caller, identity uuid.UUID, role Role) error {
	if !role.Valid() {
		return validationError("unknown role: "+string(role), textCodeInvalidRole)
	}
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	owner, err := s.repo.Owner(ctx)
	if err != nil {
		return err
	}
	if identity == owner {
		return stateError("the owner's privilege is implicit and cannot be removed", textCodeOwnerRole)
	}

	removed, err := s.repo.RemoveRole(ctx, identity, role)
	if err != nil || !removed {
		return err
	}
	return s.sink.Record(ctx, events.Event{
		EntityType: "registry",
		EntityID:   identity.String(),
		Action:     "role_removed",
		Actor:      caller,
		Timestamp:  s.clock.Now(),
		Metadata:   map[string]string{"role": string(role)},
	})
}

func (s *Service) ListMembers(ctx context.Context, role Role) ([]Membership, error) {
	if !role.Valid() {
		return nil, validationError("unknown role: "+string(role), textCodeInvalidRole)
	}
	return s.repo.ListByRole(ctx, role)
}

func (s *Service) IsOwner(ctx context.Context, who uuid.UUID) (bool, error) {
	owner, err := s.repo.Owner(ctx)
	if err != nil {
		return false, err
	}
	return owner != uuid.Nil && owner == who, nil
}

func (s *Service) IsAdministrator(ctx context.Context, who uuid.UUID) (bool, error) {
	return s.repo.HasRole(ctx, who, RoleAdministrator)
}

func (s *Service) IsCertifiedProvider(ctx context.Context, who uuid.UUID) (bool, error) {
	return s.repo.HasRole(ctx, who, RoleCertifiedProvider)
}

func (s *Service) IsCertifiedInstitution(ctx context.Context, who uuid.UUID) (bool, error) {
	return s.repo.HasRole(ctx, who, RoleCertifiedInstitution)
}

func (s *Service) IsPrivileged(ctx context.Context, who uuid.UUID) (bool, error) {
	if ok, err := s.IsOwner(ctx, who); ok || err != nil {
		return ok, err
	}
	for _, role := range []Role{RoleAdministrator, RoleCertifiedProvider, RoleCertifiedInstitution} {
		if ok, err := s.repo.HasRole(ctx, who, role); ok || err != nil {
			return ok, err
		}
	}
	return false, nil
}

func (s *Service) requireAdmin(ctx context.Context, caller uuid.UUID) error {
	if ok, err := s.IsOwner(ctx, caller); err != nil {
		return err
	} else if ok {
		return nil
	}
	if ok, err := s.IsAdministrator(ctx, caller); err != nil {
		return err
	} else if ok {
		return nil
	}
	return authzError("caller must be the owner or an administrator")
}
