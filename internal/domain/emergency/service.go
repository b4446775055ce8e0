package emergency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediledger/nexus/internal/domain/registry"
	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/db"
	"github.com/mediledger/nexus/internal/platform/events"
	"github.com/mediledger/nexus/internal/platform/notification"
)

type Service struct {
	profiles   ProfileRepository
	records    AccessRecordRepository
	requests   RequestRepository
	authz      registry.Authorizer
	dispatcher *notification.Dispatcher
	sink       events.Sink
	clock      clock.Clock
	tx         db.TxRunner
}

func NewService(profiles ProfileRepository, records AccessRecordRepository, requests RequestRepository, authz registry.Authorizer, dispatcher *notification.Dispatcher, sink events.Sink, clk clock.Clock, tx db.TxRunner) *Service {
	return &Service{
		profiles:   profiles,
		records:    records,
		requests:   requests,
		authz:      authz,
		dispatcher: dispatcher,
		sink:       sink,
		clock:      clk,
		tx:         tx,
	}
}

// CreateEmergencyProfile registers the caller's profile. At most one active
// profile per patient.
func (s *Service) CreateEmergencyProfile(ctx context.Context, caller uuid.UUID, p Profile) (uuid.UUID, error) {
	if p.BloodType == "" {
		return uuid.Nil, validationError("blood type is required", textCodeEmptyField)
	}
	if p.EmergencyContact == "" {
		return uuid.Nil, validationError("an emergency contact is required", textCodeEmptyField)
	}

	existing, err := s.profiles.GetActiveByPatient(ctx, caller)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return uuid.Nil, stateError("patient already has an active profile", textCodeProfileExists)
	}

	now := s.clock.Now()
	p.ID = uuid.New()
	p.Patient = caller
	p.IsActive = true
	p.CreatedAt = now
	p.LastUpdated = now

	err = s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.profiles.Create(ctx, &p); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "emergency_profile",
			EntityID:   p.ID.String(),
			Action:     "created",
			Actor:      caller,
			Timestamp:  now,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// UpdateEmergencyProfile replaces the medical fields of the caller's active
// profile.
func (s *Service) UpdateEmergencyProfile(ctx context.Context, caller uuid.UUID, p Profile) error {
	existing, err := s.profiles.GetActiveByPatient(ctx, caller)
	if err != nil {
		return err
	}
	if existing == nil {
		return notFoundError("no active profile for caller", textCodeProfileNotFound)
	}

	now := s.clock.Now()
	if p.BloodType != "" {
		existing.BloodType = p.BloodType
	}
	if p.Allergies != nil {
		existing.Allergies = p.Allergies
	}
	if p.Medications != nil {
		existing.Medications = p.Medications
	}
	if p.Conditions != nil {
		existing.Conditions = p.Conditions
	}
	if p.EmergencyContact != "" {
		existing.EmergencyContact = p.EmergencyContact
	}
	if p.InsuranceRef != "" {
		existing.InsuranceRef = p.InsuranceRef
	}
	existing.LastUpdated = now

	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.profiles.Update(ctx, existing); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "emergency_profile",
			EntityID:   existing.ID.String(),
			Action:     "updated",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// GetProfile returns a patient's active profile.
func (s *Service) GetProfile(ctx context.Context, patient uuid.UUID) (*Profile, error) {
	p, err := s.profiles.GetActiveByPatient(ctx, patient)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFoundError("no active profile for patient", textCodeProfileNotFound)
	}
	return p, nil
}

// DeactivateProfile retires the caller's active profile. Terminal for that
// profile; a fresh one may be created afterwards.
func (s *Service) DeactivateProfile(ctx context.Context, caller uuid.UUID) error {
	existing, err := s.profiles.GetActiveByPatient(ctx, caller)
	if err != nil {
		return err
	}
	if existing == nil {
		return notFoundError("no active profile for caller", textCodeProfileNotFound)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.profiles.Deactivate(ctx, existing.ID); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "emergency_profile",
			EntityID:   existing.ID.String(),
			Action:     "deactivated",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// RequestEmergencyAccess files an urgency-scored request. Urgency at or
// above the auto-approval threshold, or a certified provider caller, grants
// access immediately; anything else stays pending for manual review.
func (s *Service) RequestEmergencyAccess(ctx context.Context, caller, patient uuid.UUID, emergencyType, location string, urgency int) (int64, error) {
	if urgency < MinUrgency || urgency > MaxUrgency {
		return 0, validationError(fmt.Sprintf("urgency %d outside [%d,%d]", urgency, MinUrgency, MaxUrgency), textCodeInvalidUrgency)
	}
	if emergencyType == "" {
		return 0, validationError("emergency type is required", textCodeEmptyField)
	}

	privileged, err := s.authz.IsPrivileged(ctx, caller)
	if err != nil {
		return 0, err
	}
	if !privileged {
		return 0, authzError("caller must hold a privileged role", textCodeNotPrivileged)
	}

	profile, err := s.profiles.GetActiveByPatient(ctx, patient)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		return 0, validationError("patient has no active emergency profile", textCodeNoProfile)
	}

	certified, err := s.authz.IsCertifiedProvider(ctx, caller)
	if err != nil {
		return 0, err
	}
	autoApprove := urgency >= autoApproveUrgency || certified

	now := s.clock.Now()
	req := &Request{
		Patient:       patient,
		Requester:     caller,
		EmergencyType: emergencyType,
		Location:      location,
		UrgencyLevel:  urgency,
		RequestedAt:   now,
	}

	err = s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, req); err != nil {
			return err
		}
		if err := s.sink.Record(ctx, events.Event{
			EntityType: "emergency_request",
			EntityID:   fmt.Sprintf("%d", req.ID),
			Action:     "requested",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"patient": patient.String(),
				"urgency": fmt.Sprintf("%d", urgency),
			},
		}); err != nil {
			return err
		}
		if !autoApprove {
			return nil
		}
		return s.approve(ctx, req, caller, now)
	})
	if err != nil {
		return 0, err
	}

	if autoApprove && urgency >= autoApproveUrgency {
		s.notifyContact(profile, req)
	}
	return req.ID, nil
}

// GrantEmergencyAccess manually approves a still-pending request. Usable by
// the patient, an administrator, or a certified provider.
func (s *Service) GrantEmergencyAccess(ctx context.Context, caller uuid.UUID, requestID int64) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return notFoundError("emergency request not found", textCodeRequestNotFound)
	}
	if err := s.requireOverrideRole(ctx, caller, req.Patient); err != nil {
		return err
	}
	if req.Approved {
		return stateError("request has already been approved", textCodeAlreadyApproved)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		return s.approve(ctx, req, caller, now)
	})
}

// approve writes the access record and stamps the request, both keyed to the
// same expiry. Runs inside the caller's transaction.
func (s *Service) approve(ctx context.Context, req *Request, actor uuid.UUID, now time.Time) error {
	expires := now.Add(GrantDuration(req.UrgencyLevel))
	if err := s.records.Upsert(ctx, &AccessRecord{
		Patient:       req.Patient,
		Requester:     req.Requester,
		EmergencyType: req.EmergencyType,
		Location:      req.Location,
		UrgencyLevel:  req.UrgencyLevel,
		RequestedAt:   req.RequestedAt,
		ExpiresAt:     expires,
		IsActive:      true,
	}); err != nil {
		return err
	}
	if err := s.requests.MarkApproved(ctx, req.ID, expires); err != nil {
		return err
	}
	req.Approved = true
	req.ExpiresAt = &expires
	return s.sink.Record(ctx, events.Event{
		EntityType: "emergency_request",
		EntityID:   fmt.Sprintf("%d", req.ID),
		Action:     "approved",
		Actor:      actor,
		Timestamp:  now,
		Metadata: map[string]string{
			"requester": req.Requester.String(),
			"urgency":   fmt.Sprintf("%d", req.UrgencyLevel),
		},
	})
}

// RevokeEmergencyAccess deactivates the live record for (patient, requester).
func (s *Service) RevokeEmergencyAccess(ctx context.Context, caller, patient, requester uuid.UUID) error {
	if err := s.requireOverrideRole(ctx, caller, patient); err != nil {
		return err
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		revoked, err := s.records.Deactivate(ctx, patient, requester)
		if err != nil {
			return err
		}
		if !revoked {
			return notFoundError("no active emergency access record", textCodeNoActiveRecord)
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "emergency_access",
			EntityID:   patient.String(),
			Action:     "revoked",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"requester": requester.String()},
		})
	})
}

// CheckEmergencyAccess computes the current decision for (patient,
// requester). Pure read; expiry is evaluated against the clock on each call.
func (s *Service) CheckEmergencyAccess(ctx context.Context, patient, requester uuid.UUID) (Decision, error) {
	rec, err := s.records.Get(ctx, patient, requester)
	if err != nil {
		return Decision{}, err
	}
	if rec == nil {
		return Decision{}, nil
	}
	return Decision{
		HasAccess:     rec.HasAccess(s.clock.Now()),
		EmergencyType: rec.EmergencyType,
		ExpiresAt:     &rec.ExpiresAt,
		UrgencyLevel:  rec.UrgencyLevel,
	}, nil
}

func (s *Service) GetRequest(ctx context.Context, id int64) (*Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, notFoundError("emergency request not found", textCodeRequestNotFound)
	}
	return req, nil
}

func (s *Service) ListRequestsByPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*Request, int, error) {
	return s.requests.ListByPatient(ctx, patient, limit, offset)
}

// requireOverrideRole admits the patient, an administrator, or a certified
// provider.
func (s *Service) requireOverrideRole(ctx context.Context, caller, patient uuid.UUID) error {
	if caller == patient {
		return nil
	}
	admin, err := s.authz.IsAdministrator(ctx, caller)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}
	certified, err := s.authz.IsCertifiedProvider(ctx, caller)
	if err != nil {
		return err
	}
	if certified {
		return nil
	}
	return authzError("caller may not manage this patient's emergency access", textCodeNotAuthorized)
}

// notifyContact fires the emergency-contact notification after the grant has
// committed. Fire and forget.
func (s *Service) notifyContact(profile *Profile, req *Request) {
	if s.dispatcher == nil || profile.EmergencyContact == "" {
		return
	}
	s.dispatcher.Dispatch(profile.EmergencyContact,
		"Emergency access granted",
		fmt.Sprintf("Emergency access to the patient's records was granted (%s, urgency %d).", req.EmergencyType, req.UrgencyLevel),
		map[string]string{
			"patient":   req.Patient.String(),
			"requester": req.Requester.String(),
		})
}
