package patientaccess

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

const patientCols = `id, mrn, display_name, department_id, active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.DisplayName, &p.DepartmentID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	q := fmt.Sprintf("SELECT %s FROM patient WHERE id = $1", patientCols)
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("patient %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *RepoPG) HasActiveCareRelationship(ctx context.Context, patientID, clinicianID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM care_relationship
			WHERE patient_id = $1 AND clinician_id = $2
			  AND started_at <= now() AND ended_at IS NULL
		)`, patientID, clinicianID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check care relationship: %w", err)
	}
	return exists, nil
}

func (r *RepoPG) SharesServicingDepartment(ctx context.Context, patientID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM patient p
			JOIN department_membership dm ON dm.department_id = p.department_id
			WHERE p.id = $1 AND dm.user_id = $2 AND dm.ended_at IS NULL
		)`, patientID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check department: %w", err)
	}
	return exists, nil
}

func (r *RepoPG) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, mrn, display_name, department_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.MRN, p.DisplayName, p.DepartmentID, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *RepoPG) CreateRelationship(ctx context.Context, rel *CareRelationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	if rel.StartedAt.IsZero() {
		rel.StartedAt = time.Now().UTC()
	}
	rel.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO care_relationship (id, patient_id, clinician_id, kind, started_at, ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rel.ID, rel.PatientID, rel.ClinicianID, rel.Kind, rel.StartedAt, rel.EndedAt, rel.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert care relationship: %w", err)
	}
	return nil
}

func (r *RepoPG) EndRelationship(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE care_relationship SET ended_at = now()
		WHERE id = $1 AND ended_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("end care relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("active care relationship %s not found", id)
	}
	return nil
}

func (r *RepoPG) ListRelationshipsForPatient(ctx context.Context, patientID uuid.UUID) ([]*CareRelationship, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, clinician_id, kind, started_at, ended_at, created_at
		FROM care_relationship
		WHERE patient_id = $1
		ORDER BY started_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list care relationships: %w", err)
	}
	defer rows.Close()

	var out []*CareRelationship
	for rows.Next() {
		var rel CareRelationship
		if err := rows.Scan(&rel.ID, &rel.PatientID, &rel.ClinicianID, &rel.Kind, &rel.StartedAt, &rel.EndedAt, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan care relationship: %w", err)
		}
		out = append(out, &rel)
	}
	return out, rows.Err()
}
