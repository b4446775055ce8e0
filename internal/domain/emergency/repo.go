package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lookups return (nil, nil) when the row does not exist; the service layer
// owns the not-found error.
type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	// GetActiveByPatient returns the patient's single active profile.
	GetActiveByPatient(ctx context.Context, patient uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type AccessRecordRepository interface {
	// Upsert writes the record, replacing any prior record for the same
	// (patient, requester) pair.
	Upsert(ctx context.Context, r *AccessRecord) error
	Get(ctx context.Context, patient, requester uuid.UUID) (*AccessRecord, error)
	Deactivate(ctx context.Context, patient, requester uuid.UUID) (bool, error)
}

type RequestRepository interface {
	// Create assigns the next sequential identifier and sets it on r.
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id int64) (*Request, error)
	// MarkApproved stamps the request approved with its expiry.
	MarkApproved(ctx context.Context, id int64, expiresAt time.Time) error
	ListByPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*Request, int, error)
}
