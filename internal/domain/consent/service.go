package consent

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
	agreements AgreementRepository
	subGrants  SubGrantRepository
	transferor payment.Transferor
	sink       events.Sink
	clock      clock.Clock
	tx         db.TxRunner
}

func NewService(agreements AgreementRepository, subGrants SubGrantRepository, transferor payment.Transferor, sink events.Sink, clk clock.Clock, tx db.TxRunner) *Service {
	return &Service{
		agreements: agreements,
		subGrants:  subGrants,
		transferor: transferor,
		sink:       sink,
		clock:      clk,
		tx:         tx,
	}
}

// CreateConsent records a new agreement in the Created state. The caller
// becomes the patient; activation is a separate step.
func (s *Service) CreateConsent(ctx context.Context, caller, provider uuid.UUID, dataTypes []string, durationHours, rateUnit int64, purpose, privacyLevel string, autoRenewal bool) (uuid.UUID, error) {
	if len(dataTypes) == 0 {
		return uuid.Nil, validationError("at least one data type is required", textCodeEmptyDataTypes)
	}
	for _, dt := range dataTypes {
		if dt == "" {
			return uuid.Nil, validationError("data types must be non-empty", textCodeEmptyDataTypes)
		}
	}
	if provider == uuid.Nil || provider == caller {
		return uuid.Nil, validationError("provider must be a distinct identity", textCodeInvalidProvider)
	}
	if durationHours <= 0 {
		return uuid.Nil, validationError("duration must be positive", textCodeZeroDuration)
	}
	if rateUnit < 0 {
		return uuid.Nil, validationError("rate unit must be non-negative", textCodeZeroDuration)
	}

	now := s.clock.Now()
	a := &Agreement{
		ID:            uuid.New(),
		Patient:       caller,
		Provider:      provider,
		DataTypes:     dataTypes,
		DurationHours: durationHours,
		RateUnit:      rateUnit,
		Purpose:       purpose,
		PrivacyLevel:  privacyLevel,
		AutoRenewal:   autoRenewal,
		State:         StateCreated,
		CreatedAt:     now,
	}

	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.agreements.Create(ctx, a); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   a.ID.String(),
			Action:     "created",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"provider": provider.String()},
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return a.ID, nil
}

// ActivateConsent moves a Created agreement to Active and starts the expiry
// window. An agreement that has lapsed can only come back through
// AutoRenewConsent.
func (s *Service) ActivateConsent(ctx context.Context, caller, consentID uuid.UUID) error {
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Patient != caller {
		return authzError("only the patient may activate", textCodeNotPatient)
	}

	now := s.clock.Now()
	switch a.EffectiveState(now) {
	case StateActive:
		return stateError("agreement is already active", textCodeAlreadyActive)
	case StateRevoked:
		return stateError("agreement has been revoked", textCodeAlreadyRevoked)
	case StateExpired:
		return stateError("agreement has expired, renew instead", textCodeExpired)
	}

	expires := now.Add(time.Duration(a.DurationHours) * time.Hour)
	a.State = StateActive
	a.ActivatedAt = &now
	a.ExpiresAt = &expires

	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.agreements.Update(ctx, a); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   consentID.String(),
			Action:     "activated",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// AutoRenewConsent is the only path from Expired back to Active. Requires
// auto-renewal on the agreement and the expiry to have passed; the new window
// starts at the renewal instant.
func (s *Service) AutoRenewConsent(ctx context.Context, caller, consentID uuid.UUID) error {
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Patient != caller {
		return authzError("only the patient may renew", textCodeNotPatient)
	}
	if !a.AutoRenewal {
		return stateError("agreement does not permit auto-renewal", textCodeRenewalDisabled)
	}

	now := s.clock.Now()
	switch a.EffectiveState(now) {
	case StateRevoked:
		return stateError("agreement has been revoked", textCodeAlreadyRevoked)
	case StateCreated:
		return stateError("agreement has never been activated", textCodeNotActive)
	case StateActive:
		return stateError("agreement has not yet expired", textCodeNotExpired)
	}

	expires := now.Add(time.Duration(a.DurationHours) * time.Hour)
	a.State = StateActive
	a.ActivatedAt = &now
	a.ExpiresAt = &expires

	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.agreements.Update(ctx, a); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   consentID.String(),
			Action:     "renewed",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// RevokeConsent terminates an Active agreement. Irreversible.
func (s *Service) RevokeConsent(ctx context.Context, caller, consentID uuid.UUID, reason string) error {
	if reason == "" {
		return validationError("a revocation reason is required", textCodeEmptyReason)
	}
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Patient != caller {
		return authzError("only the patient may revoke", textCodeNotPatient)
	}

	now := s.clock.Now()
	switch a.EffectiveState(now) {
	case StateRevoked:
		return stateError("agreement is already revoked", textCodeAlreadyRevoked)
	case StateCreated, StateExpired:
		return stateError("only an active agreement can be revoked", textCodeNotActive)
	}

	a.State = StateRevoked
	a.RevocationReason = reason

	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.agreements.Update(ctx, a); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   consentID.String(),
			Action:     "revoked",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"reason": reason},
		})
	})
}

// GrantDataAccess issues a third-party sub-grant for one data type under an
// active agreement. Provider-only.
func (s *Service) GrantDataAccess(ctx context.Context, caller, consentID, requester uuid.UUID, dataType string) error {
	if requester == uuid.Nil {
		return validationError("requester identity is required", textCodeInvalidProvider)
	}
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Provider != caller {
		return authzError("only the provider may grant data access", textCodeNotProvider)
	}
	if !a.Permits(dataType) {
		return validationError("data type is outside the agreement's scope: "+dataType, textCodeDataTypeNotPermitted)
	}

	now := s.clock.Now()
	if a.EffectiveState(now) != StateActive {
		return stateError("agreement is not active", textCodeNotActive)
	}

	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.subGrants.Upsert(ctx, &SubGrant{
			ConsentID: consentID,
			Requester: requester,
			DataType:  dataType,
			GrantedAt: now,
			IsActive:  true,
		}); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   consentID.String(),
			Action:     "data_access_granted",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"requester": requester.String(),
				"data_type": dataType,
			},
		})
	})
}

// RevokeDataAccess deactivates a sub-grant. Provider-only.
func (s *Service) RevokeDataAccess(ctx context.Context, caller, consentID, requester uuid.UUID, dataType string) error {
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Provider != caller {
		return authzError("only the provider may revoke data access", textCodeNotProvider)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		revoked, err := s.subGrants.Deactivate(ctx, consentID, requester, dataType)
		if err != nil {
			return err
		}
		if !revoked {
			return notFoundError("no active sub-grant for requester and data type", textCodeSubGrantNotFound)
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   consentID.String(),
			Action:     "data_access_revoked",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"requester": requester.String(),
				"data_type": dataType,
			},
		})
	})
}

// PayCompensation settles the provider's metered access for one data type.
// The attached amount must cover rateUnit x accessHours; the full amount is
// transferred to the patient exactly once, overpayment included. The
// transfer and the sub-grant accumulation commit as one unit.
func (s *Service) PayCompensation(ctx context.Context, caller, consentID uuid.UUID, dataType string, accessHours, amount int64) error {
	if accessHours <= 0 {
		return validationError("access hours must be positive", textCodeZeroDuration)
	}
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return err
	}
	if a.Provider != caller {
		return authzError("only the provider may pay compensation", textCodeNotProvider)
	}
	if !a.Permits(dataType) {
		return validationError("data type is outside the agreement's scope: "+dataType, textCodeDataTypeNotPermitted)
	}

	now := s.clock.Now()
	if a.EffectiveState(now) != StateActive {
		return stateError("agreement is not active", textCodeNotActive)
	}

	required := a.RateUnit * accessHours
	if amount < required {
		return paymentError(fmt.Sprintf("attached amount %d below required %d", amount, required), textCodeInsufficientPayment)
	}

	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.transferor.Transfer(ctx, a.Patient, amount); err != nil {
			return paymentError("transfer failed: "+err.Error(), textCodeInsufficientPayment)
		}
		// The provider's own metered access is tracked as a sub-grant row.
		g, err := s.subGrants.Get(ctx, consentID, caller, dataType)
		if err != nil {
			return err
		}
		if g == nil {
			if err := s.subGrants.Upsert(ctx, &SubGrant{
				ConsentID: consentID,
				Requester: caller,
				DataType:  dataType,
				GrantedAt: now,
				IsActive:  true,
			}); err != nil {
				return err
			}
		}
		if err := s.subGrants.AddCompensation(ctx, consentID, caller, dataType, amount); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "consent",
			EntityID:   consentID.String(),
			Action:     "compensation_paid",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"data_type": dataType,
				"amount":    fmt.Sprintf("%d", amount),
			},
		})
	})
}

// CheckDataAccess computes whether requester may read dataType under the
// agreement. Pure read: an active sub-grant only satisfies access while the
// agreement itself is effectively active.
func (s *Service) CheckDataAccess(ctx context.Context, consentID, requester uuid.UUID, dataType string) (DataDecision, error) {
	a, err := s.getAgreement(ctx, consentID)
	if err != nil {
		return DataDecision{}, err
	}
	g, err := s.subGrants.Get(ctx, consentID, requester, dataType)
	if err != nil {
		return DataDecision{}, err
	}
	if g == nil || !g.IsActive {
		return DataDecision{}, nil
	}
	now := s.clock.Now()
	return DataDecision{
		HasAccess: a.EffectiveState(now) == StateActive,
		ExpiresAt: a.ExpiresAt,
	}, nil
}

// GetConsent returns the agreement with its lazily resolved state.
func (s *Service) GetConsent(ctx context.Context, id uuid.UUID) (*Agreement, error) {
	a, err := s.getAgreement(ctx, id)
	if err != nil {
		return nil, err
	}
	a.State = a.EffectiveState(s.clock.Now())
	return a, nil
}

func (s *Service) ListConsentsByPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*Agreement, int, error) {
	items, total, err := s.agreements.ListByPatient(ctx, patient, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.resolveStates(items)
	return items, total, nil
}

func (s *Service) ListConsentsByProvider(ctx context.Context, provider uuid.UUID, limit, offset int) ([]*Agreement, int, error) {
	items, total, err := s.agreements.ListByProvider(ctx, provider, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	s.resolveStates(items)
	return items, total, nil
}

func (s *Service) ListSubGrants(ctx context.Context, consentID uuid.UUID) ([]*SubGrant, error) {
	if _, err := s.getAgreement(ctx, consentID); err != nil {
		return nil, err
	}
	return s.subGrants.ListByConsent(ctx, consentID)
}

func (s *Service) resolveStates(items []*Agreement) {
	now := s.clock.Now()
	for _, a := range items {
		a.State = a.EffectiveState(now)
	}
}

func (s *Service) getAgreement(ctx context.Context, id uuid.UUID) (*Agreement, error) {
	a, err := s.agreements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, notFoundError("consent agreement not found", textCodeConsentNotFound)
	}
	return a, nil
}
