package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists appointments. It also satisfies lifecycle.VersionedStore
// so the guard can move appointments through their table.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	HasBookedForPatient(ctx context.Context, patientID uuid.UUID) (bool, error)

	GetForTransition(ctx context.Context, id uuid.UUID) (status string, version int, err error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to string, version int, updatedBy uuid.UUID) error
}
