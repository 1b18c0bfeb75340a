package identity

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Well-known role codes. Roles are data, but these codes carry meaning for
// the governance core itself.
const (
	RoleAdmin     = "ADMIN"
	RoleClinician = "CLINICIAN"
	RoleNurse     = "NURSE"
	RoleFrontDesk = "FRONT_DESK"
)

// Permission codes follow domain.resource.action.
const (
	PermEncounterSignOff = "clinical.encounter.sign_off"
	PermPlanManage       = "operations.plan.manage"
	PermRoleAdminister   = "identity.role.administer"
)

// User is the identity-store view of a staff member. Credential state lives
// outside this core.
type User struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Role owns a set of permission codes via the role_permission join.
type Role struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Permission is an opaque capability code, immutable once created.
type Permission struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RoleAssignment links a user to a role for a validity window. Rows are never
// deleted: revocation sets RevokedAt and IsActive=false, and the row stays
// behind as an audit fact.
type RoleAssignment struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	UserID     uuid.UUID  `db:"user_id" json:"user_id"`
	RoleID     uuid.UUID  `db:"role_id" json:"role_id"`
	ValidFrom  time.Time  `db:"valid_from" json:"valid_from"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy  *uuid.UUID `db:"revoked_by" json:"revoked_by,omitempty"`
	GrantedBy  uuid.UUID  `db:"granted_by" json:"granted_by"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// EffectiveAt reports whether the assignment grants its role at asOf. The
// upper bound is strictly exclusive: an assignment expiring exactly at asOf
// is no longer effective.
func (a *RoleAssignment) EffectiveAt(asOf time.Time) bool {
	if !a.IsActive || a.RevokedAt != nil {
		return false
	}
	if a.ValidFrom.After(asOf) {
		return false
	}
	if a.ValidUntil != nil && !a.ValidUntil.After(asOf) {
		return false
	}
	return true
}

// AssignmentWithRole pairs an assignment with the role it grants, so the
// resolver can drop assignments whose role has been deactivated without a
// second round trip.
type AssignmentWithRole struct {
	RoleAssignment
	RoleCode   string `db:"role_code" json:"role_code"`
	RoleActive bool   `db:"role_active" json:"role_active"`
}

// Grant is the effective role and permission set for one user at one
// instant. It is recomputed per request, never cached across requests,
// because validity windows can lapse mid-session.
type Grant struct {
	UserID      uuid.UUID `json:"user_id"`
	AsOf        time.Time `json:"as_of"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`

	roleSet map[string]bool
	permSet map[string]bool
}

func newGrant(userID uuid.UUID, asOf time.Time, roles, perms map[string]bool) *Grant {
	return &Grant{
		UserID:      userID,
		AsOf:        asOf,
		Roles:       sortedKeys(roles),
		Permissions: sortedKeys(perms),
		roleSet:     roles,
		permSet:     perms,
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasRole reports whether the grant includes the role code.
func (g *Grant) HasRole(code string) bool {
	if g.roleSet != nil {
		return g.roleSet[code]
	}
	for _, r := range g.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// HasPermission reports whether the grant includes the permission code.
func (g *Grant) HasPermission(code string) bool {
	if g.permSet != nil {
		return g.permSet[code]
	}
	for _, p := range g.Permissions {
		if p == code {
			return true
		}
	}
	return false
}
