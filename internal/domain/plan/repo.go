package plan

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists follow-up plans and satisfies lifecycle.VersionedStore.
type Repository interface {
	Create(ctx context.Context, p *FollowUpPlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*FollowUpPlan, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FollowUpPlan, int, error)

	GetForTransition(ctx context.Context, id uuid.UUID) (status string, version int, err error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to string, version int, updatedBy uuid.UUID) error
}
