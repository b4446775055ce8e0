package registry

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores the owner identity and role memberships.
type Repository interface {
	// SetOwner stores the owner once. Returns false when an owner is
	// already recorded (the stored owner is left untouched).
	SetOwner(ctx context.Context, owner uuid.UUID) (bool, error)
	// Owner returns the stored owner, or uuid.Nil when not bootstrapped.
	Owner(ctx context.Context) (uuid.UUID, error)

	// AddRole records a membership. Returns false when the membership
	// already existed (idempotent no-op).
	AddRole(ctx context.Context, m Membership) (bool, error)
	// RemoveRole deletes a membership. Returns false when it did not exist.
	RemoveRole(ctx context.Context, identity uuid.UUID, role Role) (bool, error)
	HasRole(ctx context.Context, identity uuid.UUID, role Role) (bool, error)
	ListByRole(ctx context.Context, role Role) ([]Membership, error)
}
