package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists encounters and observations. Observations have no
// update or delete; Lock is the only encounter mutation and must be a
// conditional set on locked = false.
type Repository interface {
	CreateEncounter(ctx context.Context, e *Encounter) error
	GetEncounter(ctx context.Context, id uuid.UUID) (*Encounter, error)
	ListEncountersForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Encounter, int, error)
	LockEncounter(ctx context.Context, id, lockedBy uuid.UUID, at time.Time) error

	InsertObservation(ctx context.Context, o *Observation) error
	GetObservation(ctx context.Context, id uuid.UUID) (*Observation, error)
	ListObservationsForEncounter(ctx context.Context, encounterID uuid.UUID) ([]*Observation, error)
	Chain(ctx context.Context, observationID uuid.UUID) ([]*Observation, error)
}
