package scheduling

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

const apptCols = `id, patient_id, clinician_id, status, starts_at, ends_at, reason, version, created_by, updated_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ClinicianID, &a.Status, &a.StartsAt, &a.EndsAt,
		&a.Reason, &a.Version, &a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *RepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = StatusBooked
	a.Version = 1
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, clinician_id, status, starts_at, ends_at, reason, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.PatientID, a.ClinicianID, a.Status, a.StartsAt, a.EndsAt, a.Reason, a.Version, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	q := fmt.Sprintf("SELECT %s FROM appointment WHERE id = $1", apptCols)
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *RepoPG) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM appointment WHERE patient_id = $1", patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM appointment WHERE patient_id = $1 ORDER BY starts_at DESC LIMIT $2 OFFSET $3", apptCols)
	rows, err := r.conn(ctx).Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *RepoPG) HasBookedForPatient(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment WHERE patient_id = $1 AND status = $2
		)`, patientID, StatusBooked).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check booked appointment: %w", err)
	}
	return exists, nil
}

func (r *RepoPG) GetForTransition(ctx context.Context, id uuid.UUID) (string, int, error) {
	var status string
	var version int
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT status, version FROM appointment WHERE id = $1", id).Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, errs.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return "", 0, fmt.Errorf("get appointment for transition: %w", err)
	}
	return status, version, nil
}

func (r *RepoPG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to string, version int, updatedBy uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET status = $1, version = version + 1, updated_by = $2, updated_at = now()
		WHERE id = $3 AND status = $4 AND version = $5`,
		to, updatedBy, id, from, version)
	if err != nil {
		return fmt.Errorf("transition appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, _, err := r.GetForTransition(ctx, id); err != nil {
			return err
		}
		return errs.Conflict("appointment %s was modified concurrently", id)
	}
	return nil
}
