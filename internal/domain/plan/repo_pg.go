package plan

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

const planCols = `id, patient_id, title, description, status, due_at, version, created_by, updated_by, created_at, updated_at`

func scanPlan(row pgx.Row) (*FollowUpPlan, error) {
	var p FollowUpPlan
	err := row.Scan(&p.ID, &p.PatientID, &p.Title, &p.Description, &p.Status, &p.DueAt,
		&p.Version, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoPG) Create(ctx context.Context, p *FollowUpPlan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = StatusPending
	p.Version = 1
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO follow_up_plan (id, patient_id, title, description, status, due_at, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.PatientID, p.Title, p.Description, p.Status, p.DueAt, p.Version, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert follow-up plan: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FollowUpPlan, error) {
	q := fmt.Sprintf("SELECT %s FROM follow_up_plan WHERE id = $1", planCols)
	p, err := scanPlan(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("follow-up plan %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get follow-up plan: %w", err)
	}
	return p, nil
}

func (r *RepoPG) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FollowUpPlan, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM follow_up_plan WHERE patient_id = $1", patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count follow-up plans: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM follow_up_plan WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", planCols)
	rows, err := r.conn(ctx).Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list follow-up plans: %w", err)
	}
	defer rows.Close()

	var out []*FollowUpPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan follow-up plan: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *RepoPG) GetForTransition(ctx context.Context, id uuid.UUID) (string, int, error) {
	var status string
	var version int
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT status, version FROM follow_up_plan WHERE id = $1", id).Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, errs.NotFound("follow-up plan %s not found", id)
	}
	if err != nil {
		return "", 0, fmt.Errorf("get follow-up plan for transition: %w", err)
	}
	return status, version, nil
}

func (r *RepoPG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to string, version int, updatedBy uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE follow_up_plan
		SET status = $1, version = version + 1, updated_by = $2, updated_at = now()
		WHERE id = $3 AND status = $4 AND version = $5`,
		to, updatedBy, id, from, version)
	if err != nil {
		return fmt.Errorf("transition follow-up plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, _, err := r.GetForTransition(ctx, id); err != nil {
			return err
		}
		return errs.Conflict("follow-up plan %s was modified concurrently", id)
	}
	return nil
}
