package patientaccess

import (
	"context"

	"github.com/google/uuid"
)

// Repository answers the relationship questions the validator asks. Each
// query is narrow: the validator short-circuits, so most calls never reach
// the later checks.
type Repository interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	HasActiveCareRelationship(ctx context.Context, patientID, clinicianID uuid.UUID) (bool, error)
	SharesServicingDepartment(ctx context.Context, patientID, userID uuid.UUID) (bool, error)

	CreatePatient(ctx context.Context, p *Patient) error
	CreateRelationship(ctx context.Context, rel *CareRelationship) error
	EndRelationship(ctx context.Context, id uuid.UUID) error
	ListRelationshipsForPatient(ctx context.Context, patientID uuid.UUID) ([]*CareRelationship, error)
}
