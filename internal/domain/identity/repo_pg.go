package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinops/clinops/internal/platform/db"
	"github.com/clinops/clinops/internal/platform/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *RepoPG) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, display_name, active, created_at, updated_at
		FROM app_user WHERE id = $1`, id).
		Scan(&u.ID, &u.DisplayName, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("user %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Code, &role.Name, &role.Active, &role.CreatedAt)
	return &role, err
}

func (r *RepoPG) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, err := scanRole(r.conn(ctx).QueryRow(ctx, `
		SELECT id, code, name, active, created_at FROM role WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("role %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

func (r *RepoPG) GetRoleByCode(ctx context.Context, code string) (*Role, error) {
	role, err := scanRole(r.conn(ctx).QueryRow(ctx, `
		SELECT id, code, name, active, created_at FROM role WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("role %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get role by code: %w", err)
	}
	return role, nil
}

func (r *RepoPG) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, code, name, active, created_at FROM role ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

const assignmentCols = `a.id, a.user_id, a.role_id, a.valid_from, a.valid_until,
	a.is_active, a.revoked_at, a.revoked_by, a.granted_by, a.created_at`

func (r *RepoPG) ListAssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]*AssignmentWithRole, error) {
	q := fmt.Sprintf(`
		SELECT %s, r.code AS role_code, r.active AS role_active
		FROM role_assignment a
		JOIN role r ON r.id = a.role_id
		WHERE a.user_id = $1
		ORDER BY a.created_at`, assignmentCols)

	rows, err := r.conn(ctx).Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var items []*AssignmentWithRole
	for rows.Next() {
		var a AssignmentWithRole
		err := rows.Scan(
			&a.ID, &a.UserID, &a.RoleID, &a.ValidFrom, &a.ValidUntil,
			&a.IsActive, &a.RevokedAt, &a.RevokedBy, &a.GrantedBy, &a.CreatedAt,
			&a.RoleCode, &a.RoleActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *RepoPG) GetAssignment(ctx context.Context, id uuid.UUID) (*RoleAssignment, error) {
	var a RoleAssignment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, role_id, valid_from, valid_until,
			is_active, revoked_at, revoked_by, granted_by, created_at
		FROM role_assignment WHERE id = $1`, id).
		Scan(&a.ID, &a.UserID, &a.RoleID, &a.ValidFrom, &a.ValidUntil,
			&a.IsActive, &a.RevokedAt, &a.RevokedBy, &a.GrantedBy, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("role assignment %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

func (r *RepoPG) CreateAssignment(ctx context.Context, a *RoleAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO role_assignment (id, user_id, role_id, valid_from, valid_until,
			is_active, granted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.RoleID, a.ValidFrom, a.ValidUntil,
		a.IsActive, a.GrantedBy, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// MarkRevoked is a conditional update: only a live assignment can be
// revoked, so two racing revocations resolve to one winner.
func (r *RepoPG) MarkRevoked(ctx context.Context, id uuid.UUID, revokedBy uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE role_assignment
		SET is_active = false, revoked_at = $2, revoked_by = $3
		WHERE id = $1 AND revoked_at IS NULL`,
		id, at, revokedBy,
	)
	if err != nil {
		return fmt.Errorf("revoke assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAssignment(ctx, id); err != nil {
			return err
		}
		return errs.Conflict("role assignment %s is already revoked", id)
	}
	return nil
}

func (r *RepoPG) ListPermissionsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]*Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT p.id, p.code, p.description, p.created_at
		FROM permission p
		JOIN role_permission rp ON rp.permission_id = p.id
		WHERE rp.role_id = ANY($1)
		ORDER BY p.code`, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, &p)
	}
	return perms, rows.Err()
}
