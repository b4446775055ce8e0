package consent

import (
	"context"

	"github.com/google/uuid"
)

// Lookups return (nil, nil) when the row does not exist; the service layer
// owns the not-found error.
type AgreementRepository interface {
	Create(ctx context.Context, a *Agreement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agreement, error)
	Update(ctx context.Context, a *Agreement) error
	ListByPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*Agreement, int, error)
	ListByProvider(ctx context.Context, provider uuid.UUID, limit, offset int) ([]*Agreement, int, error)
}

type SubGrantRepository interface {
	// Upsert writes the sub-grant, replacing any prior grant for the same
	// (consent, requester, data type) key. CompensationPaid is preserved
	// across replacement.
	Upsert(ctx context.Context, g *SubGrant) error
	Get(ctx context.Context, consentID, requester uuid.UUID, dataType string) (*SubGrant, error)
	Deactivate(ctx context.Context, consentID, requester uuid.UUID, dataType string) (bool, error)
	// AddCompensation accumulates amount onto the sub-grant's running total.
	AddCompensation(ctx context.Context, consentID, requester uuid.UUID, dataType string, amount int64) error
	ListByConsent(ctx context.Context, consentID uuid.UUID) ([]*SubGrant, error)
}
