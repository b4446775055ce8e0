package vault

import (
	"context"

	"github.com/google/uuid"
)

// Lookups return (nil, nil) when the row does not exist; the service layer
// owns the not-found error.
type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Record, int, error)
}

type GrantRepository interface {
	// Upsert writes the grant, replacing any prior grant for the same
	// (record, grantee) pair. Last write wins.
	Upsert(ctx context.Context, g *Grant) error
	Get(ctx context.Context, recordID, grantee uuid.UUID) (*Grant, error)
	Deactivate(ctx context.Context, recordID, grantee uuid.UUID) (bool, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Grant, error)
}
