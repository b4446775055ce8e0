package research

import (
	"context"

	"github.com/google/uuid"
)

// Lookups return (nil, nil) when the row does not exist; the service layer
// owns the not-found error.
type StudyRepository interface {
	Create(ctx context.Context, s *Study) error
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
	Update(ctx context.Context, s *Study) error
	// ReserveSeat atomically claims one participant slot, incrementing the
	// counter. Reports false when the study is already at capacity, which
	// keeps the capacity bound under concurrent joins.
	ReserveSeat(ctx context.Context, id uuid.UUID) (bool, error)
	// ReleaseSeat returns one claimed slot.
	ReleaseSeat(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Study, int, error)
}

type ParticipantRepository interface {
	// Upsert writes the membership, replacing any prior row for the same
	// (study, identity) key. Contribution counters are preserved across
	// replacement.
	Upsert(ctx context.Context, p *Participant) error
	Get(ctx context.Context, studyID, identity uuid.UUID) (*Participant, error)
	Deactivate(ctx context.Context, studyID, identity uuid.UUID) (bool, error)
	// IncrementContributions bumps the incremental contribution counter.
	IncrementContributions(ctx context.Context, studyID, identity uuid.UUID) error
	// AddCompensation accumulates earned compensation at payout.
	AddCompensation(ctx context.Context, studyID, identity uuid.UUID, amount int64) error
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Participant, error)
}

type ContributionRepository interface {
	Create(ctx context.Context, c *Contribution) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contribution, error)
	// MarkValidated flips validated false to true; reports false when the
	// contribution was already validated.
	MarkValidated(ctx context.Context, id uuid.UUID) (bool, error)
	ListByStudy(ctx context.Context, studyID uuid.UUID, limit, offset int) ([]*Contribution, int, error)
}
