package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/platform/errs"
)

// Resolver computes the effective role and permission set a user holds at a
// specific instant, from time-bounded, revocable role assignments.
type Resolver struct {
	repo   Repository
	events *audit.Recorder
	log    zerolog.Logger
}

func NewResolver(repo Repository, events *audit.Recorder, log zerolog.Logger) *Resolver {
	return &Resolver{repo: repo, events: events, log: log}
}

// EffectivePermissions resolves the grant for userID at asOf (zero means
// now). An unknown user yields an empty grant, not an error: authorization
// fails closed. Results are computed fresh on every call; a validity window
// can lapse mid-session and must take effect immediately.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID uuid.UUID, asOf time.Time) (*Grant, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	assignments, err := r.repo.ListAssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	roles := make(map[string]bool)
	var roleIDs []uuid.UUID
	seenRole := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		if !a.EffectiveAt(asOf) || !a.RoleActive {
			continue
		}
		roles[a.RoleCode] = true
		if !seenRole[a.RoleID] {
			seenRole[a.RoleID] = true
			roleIDs = append(roleIDs, a.RoleID)
		}
	}

	perms := make(map[string]bool)
	if len(roleIDs) > 0 {
		permissions, err := r.repo.ListPermissionsForRoles(ctx, roleIDs)
		if err != nil {
			return nil, err
		}
		for _, p := range permissions {
			perms[p.Code] = true
		}
	}

	return newGrant(userID, asOf, roles, perms), nil
}

// HasRole reports whether the user holds the role right now.
func (r *Resolver) HasRole(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	g, err := r.EffectivePermissions(ctx, userID, time.Time{})
	if err != nil {
		return false, err
	}
	return g.HasRole(code), nil
}

// HasPermission reports whether the user holds the permission right now.
func (r *Resolver) HasPermission(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	g, err := r.EffectivePermissions(ctx, userID, time.Time{})
	if err != nil {
		return false, err
	}
	return g.HasPermission(code), nil
}

// GrantRole creates a new assignment of roleCode to userID. validUntil may
// be nil for an open-ended grant.
func (r *Resolver) GrantRole(ctx context.Context, userID uuid.UUID, roleCode string, validFrom time.Time, validUntil *time.Time, grantedBy uuid.UUID) (*RoleAssignment, error) {
	if userID == uuid.Nil {
		return nil, errs.Validation("user id is required")
	}
	if roleCode == "" {
		return nil, errs.Validation("role code is required")
	}
	if validFrom.IsZero() {
		validFrom = time.Now().UTC()
	}
	if validUntil != nil && !validUntil.After(validFrom) {
		return nil, errs.Validation("valid_until must be after valid_from")
	}

	user, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, errs.Validation("user %s is inactive", userID)
	}
	role, err := r.repo.GetRoleByCode(ctx, roleCode)
	if err != nil {
		return nil, err
	}
	if !role.Active {
		return nil, errs.Validation("role %s is inactive", roleCode)
	}

	a := &RoleAssignment{
		UserID:     userID,
		RoleID:     role.ID,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		IsActive:   true,
		GrantedBy:  grantedBy,
	}
	if err := r.repo.CreateAssignment(ctx, a); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"assignment_id": a.ID.String(),
		"role_code":     role.Code,
		"valid_from":    a.ValidFrom,
	}
	if a.ValidUntil != nil {
		payload["valid_until"] = *a.ValidUntil
	}
	if _, err := r.events.Record(ctx, audit.Entry{
		EventType:     audit.EventRoleGranted,
		Domain:        "identity",
		AggregateID:   userID,
		AggregateType: "user",
		Payload:       payload,
		ActorID:       grantedBy,
	}); err != nil {
		r.log.Error().Err(err).Str("assignment_id", a.ID.String()).Msg("failed to record grant event")
	}
	return a, nil
}

// RevokeAssignment terminates an assignment. Revocation is one-way and
// append-only: the row survives with revoked_at set. A second revocation is
// a Conflict, not a no-op, so callers learn they acted on stale state.
func (r *Resolver) RevokeAssignment(ctx context.Context, assignmentID uuid.UUID, revokedBy uuid.UUID) error {
	a, err := r.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	if err := r.repo.MarkRevoked(ctx, assignmentID, revokedBy, time.Now().UTC()); err != nil {
		return err
	}

	if _, err := r.events.Record(ctx, audit.Entry{
		EventType:     audit.EventRoleRevoked,
		Domain:        "identity",
		AggregateID:   a.UserID,
		AggregateType: "user",
		Payload: map[string]interface{}{
			"assignment_id": assignmentID.String(),
			"role_id":       a.RoleID.String(),
		},
		ActorID: revokedBy,
	}); err != nil {
		r.log.Error().Err(err).Str("assignment_id", assignmentID.String()).Msg("failed to record revoke event")
	}
	return nil
}

// Roles lists all roles known to the system.
func (r *Resolver) Roles(ctx context.Context) ([]*Role, error) {
	return r.repo.ListRoles(ctx)
}
