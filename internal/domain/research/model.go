// Package research is the research enrollment engine: study lifecycle,
// participant enrollment with per-data-type consent, contribution submission,
// and investigator-validated compensation payout.
package research

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a study.
type State string

const (
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// Study is one research study. ParticipantCount is maintained incrementally
// at join and leave; it is never recomputed by scanning participants.
type Study struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Investigator     uuid.UUID `db:"investigator" json:"investigator"`
	DataTypes        []string  `db:"data_types" json:"data_types"`
	UnitCompensation int64     `db:"unit_compensation" json:"unit_compensation"`
	Capacity         int       `db:"capacity" json:"capacity"`
	ParticipantCount int       `db:"participant_count" json:"participant_count"`
	StartAt          time.Time `db:"start_at" json:"start_at"`
	EndAt            time.Time `db:"end_at" json:"end_at"`
	State            State     `db:"state" json:"state"`
	PauseReason      string    `db:"pause_reason" json:"pause_reason,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Permits reports whether every requested data type is within the study's
// scope.
func (s *Study) Permits(dataTypes []string) bool {
	allowed := make(map[string]bool, len(s.DataTypes))
	for _, dt := range s.DataTypes {
		allowed[dt] = true
	}
	for _, dt := range dataTypes {
		if !allowed[dt] {
			return false
		}
	}
	return true
}

// InWindow reports whether now falls within the contribution window.
func (s *Study) InWindow(now time.Time) bool {
	return !now.Before(s.StartAt) && !now.After(s.EndAt)
}

// Participant is one identity's membership in one study. Leaving a study
// clears IsActive but preserves the counters; re-joining overwrites JoinedAt
// and the consent set in place.
type Participant struct {
	StudyID            uuid.UUID `db:"study_id" json:"study_id"`
	Identity           uuid.UUID `db:"identity" json:"identity"`
	JoinedAt           time.Time `db:"joined_at" json:"joined_at"`
	DataTypeConsents   []string  `db:"data_type_consents" json:"data_type_consents"`
	ContributionCount  int       `db:"contribution_count" json:"contribution_count"`
	CompensationEarned int64     `db:"compensation_earned" json:"compensation_earned"`
	IsActive           bool      `db:"is_active" json:"is_active"`
}

// Consents reports whether the participant holds consent for dataType.
func (p *Participant) Consents(dataType string) bool {
	for _, dt := range p.DataTypeConsents {
		if dt == dataType {
			return true
		}
	}
	return false
}

// Contribution is a unit of submitted research data. Validated flips false
// to true exactly once, at payout.
type Contribution struct {
	ID            uuid.UUID `db:"id" json:"id"`
	StudyID       uuid.UUID `db:"study_id" json:"study_id"`
	Participant   uuid.UUID `db:"participant" json:"participant"`
	DataType      string    `db:"data_type" json:"data_type"`
	ContentRef    string    `db:"content_ref" json:"content_ref"`
	Value         int64     `db:"value" json:"value"`
	ContributedAt time.Time `db:"contributed_at" json:"contributed_at"`
	Validated     bool      `db:"validated" json:"validated"`
}
