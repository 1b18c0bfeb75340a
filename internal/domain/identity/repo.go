package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)
	GetRoleByCode(ctx context.Context, code string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)

	// ListAssignmentsForUser returns every assignment the user has ever
	// held, joined with the role it grants. Effectiveness filtering happens
	// in the resolver so the strict validity rules live in one place.
	ListAssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]*AssignmentWithRole, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*RoleAssignment, error)
	CreateAssignment(ctx context.Context, a *RoleAssignment) error

	// MarkRevoked sets revoked_at and is_active=false on an assignment that
	// is not yet revoked. Returns Conflict if another caller revoked it
	// first (conditional update, zero rows affected).
	MarkRevoked(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, at time.Time) error

	ListPermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]*Permission, error)
}
