package clinical

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

const encounterCols = `id, patient_id, clinician_id, reason, locked, locked_by, locked_at, created_at, updated_at`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.PatientID, &e.ClinicianID, &e.Reason, &e.Locked, &e.LockedBy, &e.LockedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RepoPG) CreateEncounter(ctx context.Context, e *Encounter) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO encounter (id, patient_id, clinician_id, reason, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, false, $5, $6)`,
		e.ID, e.PatientID, e.ClinicianID, e.Reason, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (r *RepoPG) GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	q := fmt.Sprintf("SELECT %s FROM encounter WHERE id = $1", encounterCols)
	e, err := scanEncounter(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("encounter %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get encounter: %w", err)
	}
	return e, nil
}

func (r *RepoPG) ListEncountersForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM encounter WHERE patient_id = $1", patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count encounters: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM encounter WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", encounterCols)
	rows, err := r.conn(ctx).Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var out []*Encounter
	for rows.Next() {
		e, err := scanEncounter(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan encounter: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// LockEncounter flips the lock flag only when it is still down. Losing the
// race leaves the winner's locked_by and locked_at untouched.
func (r *RepoPG) LockEncounter(ctx context.Context, id, lockedBy uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE encounter
		SET locked = true, locked_by = $1, locked_at = $2, updated_at = $2
		WHERE id = $3 AND locked = false`,
		lockedBy, at, id)
	if err != nil {
		return fmt.Errorf("lock encounter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetEncounter(ctx, id); err != nil {
			return err
		}
		return errs.Conflict("encounter %s is already locked", id)
	}
	return nil
}

const observationCols = `id, encounter_id, patient_id, code, display, value, unit, effective_at, recorded_by, amends_id, amend_reason, created_at`

func scanObservation(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.EncounterID, &o.PatientID, &o.Code, &o.Display, &o.Value, &o.Unit,
		&o.EffectiveAt, &o.RecordedBy, &o.AmendsID, &o.AmendReason, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *RepoPG) InsertObservation(ctx context.Context, o *Observation) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	if o.EffectiveAt.IsZero() {
		o.EffectiveAt = o.CreatedAt
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO observation (id, encounter_id, patient_id, code, display, value, unit, effective_at, recorded_by, amends_id, amend_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.EncounterID, o.PatientID, o.Code, o.Display, o.Value, o.Unit,
		o.EffectiveAt, o.RecordedBy, o.AmendsID, o.AmendReason, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (r *RepoPG) GetObservation(ctx context.Context, id uuid.UUID) (*Observation, error) {
	q := fmt.Sprintf("SELECT %s FROM observation WHERE id = $1", observationCols)
	o, err := scanObservation(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("observation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return o, nil
}

func (r *RepoPG) ListObservationsForEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Observation, error) {
	q := fmt.Sprintf("SELECT %s FROM observation WHERE encounter_id = $1 ORDER BY created_at", observationCols)
	rows, err := r.conn(ctx).Query(ctx, q, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Chain returns the full amendment chain containing observationID, oldest
// first. It walks up to the chain's root, then collects every descendant.
func (r *RepoPG) Chain(ctx context.Context, observationID uuid.UUID) ([]*Observation, error) {
	q := fmt.Sprintf(`
		WITH RECURSIVE up AS (
			SELECT %s FROM observation WHERE id = $1
			UNION ALL
			SELECT %s FROM observation o JOIN up ON o.id = up.amends_id
		), root AS (
			SELECT id FROM up WHERE amends_id IS NULL
		), down AS (
			SELECT %s FROM observation WHERE id = (SELECT id FROM root)
			UNION ALL
			SELECT %s FROM observation o JOIN down ON o.amends_id = down.id
		)
		SELECT * FROM down ORDER BY created_at`,
		observationCols,
		prefixCols("o"),
		observationCols,
		prefixCols("o"))

	rows, err := r.conn(ctx).Query(ctx, q, observationID)
	if err != nil {
		return nil, fmt.Errorf("observation chain: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errs.NotFound("observation %s not found", observationID)
	}
	return out, nil
}

func prefixCols(alias string) string {
	return alias + ".id, " + alias + ".encounter_id, " + alias + ".patient_id, " + alias + ".code, " +
		alias + ".display, " + alias + ".value, " + alias + ".unit, " + alias + ".effective_at, " +
		alias + ".recorded_by, " + alias + ".amends_id, " + alias + ".amend_reason, " + alias + ".created_at"
}
