package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEffectiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	cases := []struct {
		name string
		a    RoleAssignment
		want bool
	}{
		{"open ended active", RoleAssignment{IsActive: true, ValidFrom: before}, true},
		{"within window", RoleAssignment{IsActive: true, ValidFrom: before, ValidUntil: &after}, true},
		{"expires exactly now", RoleAssignment{IsActive: true, ValidFrom: before, ValidUntil: &now}, false},
		{"not yet valid", RoleAssignment{IsActive: true, ValidFrom: after}, false},
		{"valid from exactly now", RoleAssignment{IsActive: true, ValidFrom: now}, true},
		{"inactive", RoleAssignment{IsActive: false, ValidFrom: before}, false},
		{"revoked", RoleAssignment{IsActive: true, ValidFrom: before, RevokedAt: &before}, false},
		{"revoked but still flagged active", RoleAssignment{IsActive: true, ValidFrom: before, RevokedAt: &before}, false},
		{"expired", RoleAssignment{IsActive: true, ValidFrom: before.Add(-time.Hour), ValidUntil: &before}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.EffectiveAt(now); got != tc.want {
				t.Errorf("EffectiveAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGrant_HasRoleAndPermission(t *testing.T) {
	g := newGrant(uuid.New(), time.Now(),
		map[string]bool{RoleClinician: true},
		map[string]bool{PermEncounterSignOff: true},
	)

	if !g.HasRole(RoleClinician) {
		t.Error("expected CLINICIAN role")
	}
	if g.HasRole(RoleAdmin) {
		t.Error("did not expect ADMIN role")
	}
	if !g.HasPermission(PermEncounterSignOff) {
		t.Error("expected sign-off permission")
	}
	if g.HasPermission(PermRoleAdminister) {
		t.Error("did not expect administer permission")
	}
}

func TestGrant_SliceFallback(t *testing.T) {
	// A Grant decoded from JSON has no internal sets.
	g := Grant{Roles: []string{RoleNurse}, Permissions: []string{PermPlanManage}}
	if !g.HasRole(RoleNurse) || !g.HasPermission(PermPlanManage) {
		t.Error("slice fallback lookup failed")
	}
	if g.HasRole(RoleAdmin) {
		t.Error("unexpected role match")
	}
}
