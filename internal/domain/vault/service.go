package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediledger/nexus/internal/domain/registry"
	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/db"
	"github.com/mediledger/nexus/internal/platform/events"
)

// emergencyGrantDuration is the fixed lifetime of an emergency read grant.
const emergencyGrantDuration = 24 * time.Hour

type Service struct {
	records RecordRepository
	grants  GrantRepository
	authz   registry.Authorizer
	sink    events.Sink
	clock   clock.Clock
	tx      db.TxRunner
}

func NewService(records RecordRepository, grants GrantRepository, authz registry.Authorizer, sink events.Sink, clk clock.Clock, tx db.TxRunner) *Service {
	return &Service{records: records, grants: grants, authz: authz, sink: sink, clock: clk, tx: tx}
}

// CreateRecord registers a record reference and gives the owner an implicit
// admin grant with no expiry. Both writes commit together.
func (s *Service) CreateRecord(ctx context.Context, caller uuid.UUID, recordType, contentRef, digest string) (uuid.UUID, error) {
	if !registeredTypes[recordType] {
		return uuid.Nil, validationError("record type not registered: "+recordType, textCodeUnsupportedType)
	}
	if contentRef == "" {
		return uuid.Nil, validationError("content reference is required", textCodeEmptyField)
	}
	if digest == "" {
		return uuid.Nil, validationError("integrity digest is required", textCodeEmptyField)
	}
	if caller == uuid.Nil {
		return uuid.Nil, authzError("caller identity is required", textCodeNotOwner)
	}

	now := s.clock.Now()
	rec := &Record{
		ID:              uuid.New(),
		Owner:           caller,
		RecordType:      recordType,
		ContentRef:      contentRef,
		IntegrityDigest: digest,
		IsActive:        true,
		CreatedAt:       now,
	}

	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, rec); err != nil {
			return err
		}
		if err := s.grants.Upsert(ctx, &Grant{
			RecordID:  rec.ID,
			Grantee:   caller,
			Level:     LevelAdmin,
			GrantedAt: now,
			IsActive:  true,
		}); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "record",
			EntityID:   rec.ID.String(),
			Action:     "created",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"record_type": recordType},
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// GrantAccess issues a time-bound grant. Owner-only; a prior grant to the
// same grantee is replaced (last write wins).
func (s *Service) GrantAccess(ctx context.Context, caller, recordID, grantee uuid.UUID, level AccessLevel, durationHours int64) error {
	if !level.Valid() {
		return validationError("invalid access level: "+string(level), textCodeInvalidLevel)
	}
	if durationHours <= 0 {
		return validationError("duration must be positive", textCodeEmptyField)
	}
	if grantee == uuid.Nil {
		return validationError("grantee identity is required", textCodeEmptyField)
	}

	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return authzError("only the record owner may grant access", textCodeNotOwner)
	}
	if grantee == rec.Owner {
		return stateError("the owner holds an implicit non-expiring grant", textCodeOwnerGrant)
	}
	if !rec.IsActive {
		return stateError("record is deactivated", textCodeRecordInactive)
	}

	now := s.clock.Now()
	expires := now.Add(time.Duration(durationHours) * time.Hour)
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.grants.Upsert(ctx, &Grant{
			RecordID:  recordID,
			Grantee:   grantee,
			Level:     level,
			GrantedAt: now,
			ExpiresAt: &expires,
			IsActive:  true,
		}); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "record",
			EntityID:   recordID.String(),
			Action:     "access_granted",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"grantee": grantee.String(),
				"level":   string(level),
				"hours":   fmt.Sprintf("%d", durationHours),
			},
		})
	})
}

// RevokeAccess deactivates a grantee's grant. Owner-only; the owner's own
// grant cannot be revoked.
func (s *Service) RevokeAccess(ctx context.Context, caller, recordID, grantee uuid.UUID) error {
	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return authzError("only the record owner may revoke access", textCodeNotOwner)
	}
	if grantee == rec.Owner {
		return stateError("the owner's grant cannot be revoked", textCodeCannotRevokeOwner)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		revoked, err := s.grants.Deactivate(ctx, recordID, grantee)
		if err != nil {
			return err
		}
		if !revoked {
			return notFoundError("no grant for grantee", textCodeGrantNotFound)
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "record",
			EntityID:   recordID.String(),
			Action:     "access_revoked",
			Actor:      caller,
			Timestamp:  now,
			Metadata:   map[string]string{"grantee": grantee.String()},
		})
	})
}

// GrantEmergencyAccess issues the fixed 24-hour read grant available to
// privileged responders.
func (s *Service) GrantEmergencyAccess(ctx context.Context, caller, recordID, requester uuid.UUID, emergencyType string) error {
	if requester == uuid.Nil {
		return validationError("requester identity is required", textCodeEmptyField)
	}
	privileged, err := s.authz.IsPrivileged(ctx, caller)
	if err != nil {
		return err
	}
	if !privileged {
		return authzError("caller must hold a privileged role", textCodeNotPrivileged)
	}

	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if !rec.IsActive {
		return stateError("record is deactivated", textCodeRecordInactive)
	}

	now := s.clock.Now()
	expires := now.Add(emergencyGrantDuration)
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.grants.Upsert(ctx, &Grant{
			RecordID:    recordID,
			Grantee:     requester,
			Level:       LevelRead,
			GrantedAt:   now,
			ExpiresAt:   &expires,
			IsEmergency: true,
			IsActive:    true,
		}); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "record",
			EntityID:   recordID.String(),
			Action:     "emergency_access_granted",
			Actor:      caller,
			Timestamp:  now,
			Metadata: map[string]string{
				"requester":      requester.String(),
				"emergency_type": emergencyType,
			},
		})
	})
}

// DeactivateRecord retires a record. Terminal: there is no reactivation.
func (s *Service) DeactivateRecord(ctx context.Context, caller, recordID uuid.UUID) error {
	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return authzError("only the record owner may deactivate", textCodeNotOwner)
	}
	if !rec.IsActive {
		return stateError("record is already deactivated", textCodeRecordInactive)
	}

	now := s.clock.Now()
	return s.tx.RunTx(ctx, func(ctx context.Context) error {
		if err := s.records.Deactivate(ctx, recordID); err != nil {
			return err
		}
		return s.sink.Record(ctx, events.Event{
			EntityType: "record",
			EntityID:   recordID.String(),
			Action:     "deactivated",
			Actor:      caller,
			Timestamp:  now,
		})
	})
}

// CheckAccess computes the caller-visible access decision. Pure read: the
// result is derived from the stored grant and the clock, never cached. The
// stored expiry is echoed back even after it has passed.
func (s *Service) CheckAccess(ctx context.Context, recordID, who uuid.UUID) (Decision, error) {
	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return Decision{}, err
	}
	if who == rec.Owner {
		return Decision{HasAccess: true, Level: LevelAdmin}, nil
	}

	g, err := s.grants.Get(ctx, recordID, who)
	if err != nil {
		return Decision{}, err
	}
	if g == nil {
		return Decision{}, nil
	}
	return Decision{
		HasAccess: g.HasAccess(s.clock.Now()),
		Level:     g.Level,
		ExpiresAt: g.ExpiresAt,
	}, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.getRecord(ctx, id)
}

func (s *Service) ListRecordsByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.records.ListByOwner(ctx, owner, limit, offset)
}

func (s *Service) ListGrants(ctx context.Context, recordID uuid.UUID) ([]*Grant, error) {
	if _, err := s.getRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return s.grants.ListByRecord(ctx, recordID)
}

func (s *Service) getRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFoundError("record not found", textCodeRecordNotFound)
	}
	return rec, nil
}
