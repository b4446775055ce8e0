package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/db"
	"github.com/mediledger/nexus/internal/platform/events"
	"github.com/mediledger/nexus/internal/platform/payment"
)

type Service struct {
	studies       StudyRepository
	participants  ParticipantRepository
	contributions ContributionRepository
	transferor    payment.Transferor
	sink          events.Sink
	clock         clock.Clock
	tx            db.TxRunner
}

func NewService(studies StudyRepository, participants ParticipantRepository, contributions ContributionRepository, transferor payment.Transferor, sink events.Sink, clk clock.Clock, tx db.TxRunner) *Service {
	return &Service{
		studies:       studies,
		participants:  participants,
		contributions: contributions,
		transferor:    transferor,
		sink:          sink,
		clock:         clk,
		tx:            tx,
	}
}

// CreateStudy opens a new study with the caller as investigator. The
// contribution window starts immediately and runs durationWeeks weeks.
func (s *Service) CreateStudy(ctx context.Context, caller uuid.UUID, dataTypes []string, unitCompensation int64, capacity int, durationWeeks int) (uuid.UUID, error) {
	if len(dataTypes) == 0 {
		return uuid.Nil, validationError("at least one data type is required", textCodeEmptyDataTypes)
	}
	for _, dt := range dataTypes {
		if dt == "" {
			return uuid.Nil, validationError("data types must be non-empty", textCodeEmptyDataTypes)
		}
	}
	if unitCompensation <= 0 {
		return uuid.Nil, validationError("unit compensation must be positive", textCodeZeroCompensation)
	}
	if capacity <= 0 {
		return uuid.Nil, validationError("capacity must be positive", textCodeZeroCapacity)
	}
	if durationWeeks <= 0 {
		return uuid.Nil, validationError("duration must be positive", textCodeZeroDuration)
	}

	now := s.clock.Now()
	study := &Study{
		ID:               uuid.New(),
		Investigator:     caller,
		DataTypes:        dataTypes,
		UnitCompensation: unitCompensation,
		Capacity:         capacity,
		StartAt:          now,
		EndAt:            now.Add(time.Duration(durationWeeks) * 7 * 24 * time.Hour),
		State:            StateActive,
		CreatedAt:        now,
	}

	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.studies.Create(ctx, study); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   study.ID.String(),
			Action:     "created",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"capacity": fmt.Sprintf("%d", capacity)},
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return study.ID, nil
}

// JoinStudy enrolls the caller with a per-data-type consent set. The
// enrollment and the counter bump commit together, so the capacity check
// holds under concurrent joins.
func (s *Service) JoinStudy(ctx context.Context, caller, studyID uuid.UUID, dataTypeConsents []string) error {
	if len(dataTypeConsents) == 0 {
		return validationError("at least one data type consent is required", textCodeEmptyDataTypes)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		study, err := s.getStudy(ctx, studyID)
		if err != nil {
			return err
		}
		if study.State != StateActive {
			return stateError("study is not accepting participants", textCodeStudyNotActive)
		}
		if study.ParticipantCount >= study.Capacity {
			return stateError("study is at capacity", textCodeStudyFull)
		}
		if !study.Permits(dataTypeConsents) {
			return validationError("a requested data type is outside the study's scope", textCodeDataTypeNotPermitted)
		}

		prev, err := s.participants.Get(ctx, studyID, caller)
		if err != nil {
			return err
		}
		if prev != nil && prev.IsActive {
			return stateError("caller is already an active participant", textCodeAlreadyParticipant)
		}

		// The counter read above is only a fast path; the reservation is
		// what holds the bound when two joins race for the last slot.
		claimed, err := s.studies.ReserveSeat(ctx, studyID)
		if err != nil {
			return err
		}
		if !claimed {
			return stateError("study is at capacity", textCodeStudyFull)
		}
		if err := s.participants.Upsert(ctx, &Participant{
			StudyID:          studyID,
			Identity:         caller,
			JoinedAt:         now,
			DataTypeConsents: dataTypeConsents,
			IsActive:         true,
		}); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "participant_joined",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// LeaveStudy deactivates the caller's membership and decrements the count.
// Contribution history and earned compensation stay in place.
func (s *Service) LeaveStudy(ctx context.Context, caller, studyID uuid.UUID) error {
	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if _, err := s.getStudy(ctx, studyID); err != nil {
			return err
		}
		left, err := s.participants.Deactivate(ctx, studyID, caller)
		if err != nil {
			return err
		}
		if !left {
			return stateError("caller is not an active participant", textCodeNotParticipant)
		}
		if err := s.studies.ReleaseSeat(ctx, studyID); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "participant_left",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// ContributeData submits one unit of research data. Requires active
// membership with consent for the data type, an Active study, and the clock
// inside the contribution window. Payment happens later, at validation.
func (s *Service) ContributeData(ctx context.Context, caller, studyID uuid.UUID, dataType, contentRef string, value int64) (uuid.UUID, error) {
	if contentRef == "" {
		return uuid.Nil, validationError("content reference is required", textCodeEmptyDataTypes)
	}
	if value <= 0 {
		return uuid.Nil, validationError("contribution value must be positive", textCodeZeroCompensation)
	}

	now := s.clock.Now()
	contribution := &Contribution{
		ID:            uuid.New(),
		StudyID:       studyID,
		Participant:   caller,
		DataType:      dataType,
		ContentRef:    contentRef,
		Value:         value,
		ContributedAt: now,
	}

	// State, window and membership are checked inside the transaction so a
	// concurrent leave or pause cannot slip between check and insert.
	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		study, err := s.getStudy(ctx, studyID)
		if err != nil {
			return err
		}
		if study.State != StateActive {
			return stateError("study is not active", textCodeStudyNotActive)
		}
		if !study.InWindow(now) {
			return stateError("outside the study's contribution window", textCodeOutOfWindow)
		}

		p, err := s.participants.Get(ctx, studyID, caller)
		if err != nil {
			return err
		}
		if p == nil || !p.IsActive {
			return authzError("caller is not an active participant", textCodeNotParticipant)
		}
		if !p.Consents(dataType) {
			return authzError("no consent for data type: "+dataType, textCodeNoConsent)
		}

		if err := s.contributions.Create(ctx, contribution); err != nil {
			return err
		}
		if err := s.participants.IncrementContributions(ctx, studyID, caller); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "data_contributed",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"contribution": contribution.ID.String(),
				"data_type":    dataType,
			},
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return contribution.ID, nil
}

// ValidateAndPayContribution marks a contribution validated and settles it
// in one unit. Investigator-only; a contribution pays out exactly once, and
// the attached amount must cover unitCompensation x value. The full amount
// is transferred, overpayment included.
func (s *Service) ValidateAndPayContribution(ctx context.Context, caller, studyID, contributionID uuid.UUID, amount int64) error {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return err
	}
	if study.Investigator != caller {
		return authzError("only the investigator may validate contributions", textCodeNotInvestigator)
	}

	contribution, err := s.contributions.GetByID(ctx, contributionID)
	if err != nil {
		return err
	}
	if contribution == nil || contribution.StudyID != studyID {
		return notFoundError("contribution not found in study", textCodeContributionNotFound)
	}
	if contribution.Validated {
		return stateError("contribution has already been validated", textCodeAlreadyValidated)
	}

	required := study.UnitCompensation * contribution.Value
	if amount < required {
		return paymentError(fmt.Sprintf("attached amount %d below required %d", amount, required), textCodeInsufficientPayment)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		validated, err := s.contributions.MarkValidated(ctx, contributionID)
		if err != nil {
			return err
		}
		if !validated {
			return stateError("contribution has already been validated", textCodeAlreadyValidated)
		}
		if err := s.transferor.Transfer(ctx, contribution.Participant, amount); err != nil {
			return paymentError("transfer failed: "+err.Error(), textCodeInsufficientPayment)
		}
		if err := s.participants.AddCompensation(ctx, studyID, contribution.Participant, amount); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "contribution_validated",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"contribution": contributionID.String(),
				"amount":       fmt.Sprintf("%d", amount),
			},
		})
	})
}

// CompleteStudy closes a study at or after its end. Terminal, and only
// reachable from Active; a paused study must resume first.
func (s *Service) CompleteStudy(ctx context.Context, caller, studyID uuid.UUID) error {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return err
	}
	if study.Investigator != caller {
		return authzError("only the investigator may complete the study", textCodeNotInvestigator)
	}
	if study.State != StateActive {
		return stateError("only an active study can be completed", textCodeStudyNotActive)
	}

	now := s.clock.Now()
	if now.Before(study.EndAt) {
		return stateError("study has not reached its end", textCodeNotYetEnded)
	}

	study.State = StateCompleted
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.studies.Update(ctx, study); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "completed",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// PauseStudy suspends enrollment and contribution.
func (s *Service) PauseStudy(ctx context.Context, caller, studyID uuid.UUID, reason string) error {
	if reason == "" {
		return validationError("a pause reason is required", textCodeEmptyReason)
	}
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return err
	}
	if study.Investigator != caller {
		return authzError("only the investigator may pause the study", textCodeNotInvestigator)
	}
	switch study.State {
	case StatePaused:
		return stateError("study is already paused", textCodeAlreadyPaused)
	case StateCompleted:
		return stateError("study has completed", textCodeCompleted)
	}

	now := s.clock.Now()
	study.State = StatePaused
	study.PauseReason = reason
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.studies.Update(ctx, study); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "paused",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"reason": reason},
		})
	})
}

// ResumeStudy returns a paused study to Active.
func (s *Service) ResumeStudy(ctx context.Context, caller, studyID uuid.UUID) error {
	study, err := s.getStudy(ctx, studyID)
	if err != nil {
		return err
	}
	if study.Investigator != caller {
		return authzError("only the investigator may resume the study", textCodeNotInvestigator)
	}
	if study.State != StatePaused {
		return stateError("study is not paused", textCodeNotPaused)
	}

	now := s.clock.Now()
	study.State = StateActive
	study.PauseReason = ""
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.studies.Update(ctx, study); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "study",
			EntityID:   studyID.String(),
			Action:     "resumed",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

func (s *Service) GetStudy(ctx context.Context, id uuid.UUID) (*Study, error) {
	return s.getStudy(ctx, id)
}

func (s *Service) ListStudies(ctx context.Context, limit, offset int) ([]*Study, int, error) {
	return s.studies.List(ctx, limit, offset)
}

func (s *Service) ListParticipants(ctx context.Context, studyID uuid.UUID) ([]*Participant, error) {
	if _, err := s.getStudy(ctx, studyID); err != nil {
		return nil, err
	}
	return s.participants.ListByStudy(ctx, studyID)
}

func (s *Service) ListContributions(ctx context.Context, studyID uuid.UUID, limit, offset int) ([]*Contribution, int, error) {
	if _, err := s.getStudy(ctx, studyID); err != nil {
		return nil, 0, err
	}
	return s.contributions.ListByStudy(ctx, studyID, limit, offset)
}

func (s *Service) getStudy(ctx context.Context, id uuid.UUID) (*Study, error) {
	study, err := s.studies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, notFoundError("study not found", textCodeStudyNotFound)
	}
	return study, nil
}
