// Package registry is the authorization registry: the single place that
// knows the owner identity and the privileged role sets every other engine
// consults before a privileged mutation.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// Role is a privileged role tracked by the registry.
type Role string

const (
	RoleAdministrator        Role = "administrator"
	RoleCertifiedProvider    Role = "certified_provider"
	RoleCertifiedInstitution Role = "certified_institution"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleCertifiedProvider, RoleCertifiedInstitution:
		return true
	}
	return false
}

// Membership is one identity holding one role.
type Membership struct {
	Identity uuid.UUID `db:"identity" json:"identity"`
	Role     Role      `db:"role" json:"role"`
	AddedBy  uuid.UUID `db:"added_by" json:"added_by"`
	AddedAt  time.Time `db:"added_at" json:"added_at"`
}
