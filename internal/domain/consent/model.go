// Package consent is the consent ledger: patient-initiated, provider-scoped
// agreements with data-type scoping, activation, expiry, auto-renewal,
// sub-grants to third parties, and compensation settlement.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a consent agreement.
type State string

const (
	StateCreated State = "created"
	StateActive  State = "active"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// Agreement is one patient-provider consent agreement. The stored state may
// lag the wall clock: an Active agreement whose ExpiresAt has passed is
// Expired on every read. Use EffectiveState, not State, for decisions.
type Agreement struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Patient          uuid.UUID  `db:"patient" json:"patient"`
	Provider         uuid.UUID  `db:"provider" json:"provider"`
	DataTypes        []string   `db:"data_types" json:"data_types"`
	DurationHours    int64      `db:"duration_hours" json:"duration_hours"`
	RateUnit         int64      `db:"rate_unit" json:"rate_unit"`
	Purpose          string     `db:"purpose" json:"purpose"`
	PrivacyLevel     string     `db:"privacy_level" json:"privacy_level"`
	AutoRenewal      bool       `db:"auto_renewal" json:"auto_renewal"`
	State            State      `db:"state" json:"state"`
	RevocationReason string     `db:"revocation_reason" json:"revocation_reason,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ActivatedAt      *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// EffectiveState resolves lazy expiry: a stored Active agreement past its
// expiry reports Expired without a write.
func (a *Agreement) EffectiveState(now time.Time) State {
	if a.State == StateActive && a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return StateExpired
	}
	return a.State
}

// Permits reports whether dataType is within the agreement's scope.
func (a *Agreement) Permits(dataType string) bool {
	for _, dt := range a.DataTypes {
		if dt == dataType {
			return true
		}
	}
	return false
}

// SubGrant is a third-party data access grant under an agreement, keyed by
// (consent, requester, data type). CompensationPaid accumulates settled
// payments for this data type.
type SubGrant struct {
	ConsentID        uuid.UUID `db:"consent_id" json:"consent_id"`
	Requester        uuid.UUID `db:"requester" json:"requester"`
	DataType         string    `db:"data_type" json:"data_type"`
	GrantedAt        time.Time `db:"granted_at" json:"granted_at"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CompensationPaid int64     `db:"compensation_paid" json:"compensation_paid"`
}

// DataDecision is the result of a sub-grant access check.
type DataDecision struct {
	HasAccess bool       `json:"has_access"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
