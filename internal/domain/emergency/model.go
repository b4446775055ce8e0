// Package emergency is the escalation engine: patient emergency profiles,
// urgency-scored access requests, automatic approval above an urgency
// threshold, and manual override paths.
package emergency

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinUrgency = 1
	MaxUrgency = 5

	// autoApproveUrgency is the threshold at or above which a request is
	// granted without manual review.
	autoApproveUrgency = 4

	// hoursPerUrgency scales grant duration: levels 1-5 map to 6h through 30h.
	hoursPerUrgency = 6 * time.Hour
)

// GrantDuration is the access window for a given urgency level.
func GrantDuration(urgency int) time.Duration {
	return time.Duration(urgency) * hoursPerUrgency
}

// Profile is a patient's emergency profile. At most one active profile per
// patient; deactivation is terminal but a fresh profile may be created after.
type Profile struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Patient          uuid.UUID `db:"patient" json:"patient"`
	BloodType        string    `db:"blood_type" json:"blood_type"`
	Allergies        []string  `db:"allergies" json:"allergies"`
	Medications      []string  `db:"medications" json:"medications"`
	Conditions       []string  `db:"conditions" json:"conditions"`
	EmergencyContact string    `db:"emergency_contact" json:"emergency_contact"`
	InsuranceRef     string    `db:"insurance_ref" json:"insurance_ref"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	LastUpdated      time.Time `db:"last_updated" json:"last_updated"`
}

// AccessRecord is the live grant for one (patient, requester) pair. A new
// grant overwrites the prior one.
type AccessRecord struct {
	Patient       uuid.UUID `db:"patient" json:"patient"`
	Requester     uuid.UUID `db:"requester" json:"requester"`
	EmergencyType string    `db:"emergency_type" json:"emergency_type"`
	Location      string    `db:"location" json:"location"`
	UrgencyLevel  int       `db:"urgency_level" json:"urgency_level"`
	RequestedAt   time.Time `db:"requested_at" json:"requested_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	IsActive      bool      `db:"is_active" json:"is_active"`
}

// HasAccess reports whether the record satisfies access at instant now.
func (r *AccessRecord) HasAccess(now time.Time) bool {
	return r.IsActive && now.Before(r.ExpiresAt)
}

// Request is one emergency access request. Identifiers are sequential;
// approval is terminal (the resulting AccessRecord can be revoked, the
// request itself is never un-approved).
type Request struct {
	ID            int64      `db:"id" json:"id"`
	Patient       uuid.UUID  `db:"patient" json:"patient"`
	Requester     uuid.UUID  `db:"requester" json:"requester"`
	EmergencyType string     `db:"emergency_type" json:"emergency_type"`
	Location      string     `db:"location" json:"location"`
	UrgencyLevel  int        `db:"urgency_level" json:"urgency_level"`
	RequestedAt   time.Time  `db:"requested_at" json:"requested_at"`
	Approved      bool       `db:"approved" json:"approved"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// Decision is the result of an emergency access check.
type Decision struct {
	HasAccess     bool       `json:"has_access"`
	EmergencyType string     `json:"emergency_type,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	UrgencyLevel  int        `json:"urgency_level,omitempty"`
}
