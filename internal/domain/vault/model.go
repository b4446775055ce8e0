// Package vault is the access registry: per-record, per-grantee time-bound
// permissions over protected health records. The record payload itself lives
// off-core; the registry stores only the opaque content reference and its
// integrity digest.
package vault

import (
	"time"

	"github.com/google/uuid"
)

// AccessLevel is the permission tier of a grant.
type AccessLevel string

const (
	LevelRead  AccessLevel = "read"
	LevelWrite AccessLevel = "write"
	LevelAdmin AccessLevel = "admin"
)

func (l AccessLevel) Valid() bool {
	switch l {
	case LevelRead, LevelWrite, LevelAdmin:
		return true
	}
	return false
}

// registeredTypes are the record types accepted by CreateRecord.
var registeredTypes = map[string]bool{
	"general":       true,
	"lab_result":    true,
	"imaging":       true,
	"prescription":  true,
	"vaccination":   true,
	"clinical_note": true,
	"genomic":       true,
	"vital_signs":   true,
}

// Record is a protected health record reference.
type Record struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Owner           uuid.UUID `db:"owner" json:"owner"`
	RecordType      string    `db:"record_type" json:"record_type"`
	ContentRef      string    `db:"content_ref" json:"content_ref"`
	IntegrityDigest string    `db:"integrity_digest" json:"integrity_digest"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Grant is one grantee's permission on one record. The owner's grant carries
// a nil ExpiresAt and never expires.
type Grant struct {
	RecordID    uuid.UUID   `db:"record_id" json:"record_id"`
	Grantee     uuid.UUID   `db:"grantee" json:"grantee"`
	Level       AccessLevel `db:"level" json:"level"`
	GrantedAt   time.Time   `db:"granted_at" json:"granted_at"`
	ExpiresAt   *time.Time  `db:"expires_at" json:"expires_at,omitempty"`
	IsEmergency bool        `db:"is_emergency" json:"is_emergency"`
	IsActive    bool        `db:"is_active" json:"is_active"`
}

// HasAccess reports whether the grant satisfies access at instant now.
// A nil ExpiresAt never expires.
func (g *Grant) HasAccess(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

// Decision is the result of an access check. ExpiresAt echoes the stored
// expiry even when access has lapsed.
type Decision struct {
	HasAccess bool        `json:"has_access"`
	Level     AccessLevel `json:"level,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}
