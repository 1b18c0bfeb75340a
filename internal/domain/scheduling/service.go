package scheduling

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/lifecycle"
	"github.com/clinops/clinops/internal/platform/errs"
)

// AccessGate is the patient-access check every read and write goes through.
type AccessGate interface {
	RequireAccess(ctx context.Context, patientID, userID uuid.UUID) error
}

type Service struct {
	repo   Repository
	access AccessGate
	guard  *lifecycle.Guard
	log    zerolog.Logger
}

func NewService(repo Repository, access AccessGate, guard *lifecycle.Guard, log zerolog.Logger) *Service {
	return &Service{repo: repo, access: access, guard: guard, log: log}
}

func (s *Service) Book(ctx context.Context, a *Appointment, callerID uuid.UUID) (*Appointment, error) {
	if a.PatientID == uuid.Nil {
		return nil, errs.Validation("patient_id is required")
	}
	if a.StartsAt.IsZero() {
		return nil, errs.Validation("starts_at is required")
	}
	if a.EndsAt != nil && !a.EndsAt.After(a.StartsAt) {
		return nil, errs.Validation("ends_at must be after starts_at")
	}
	if err := s.access.RequireAccess(ctx, a.PatientID, callerID); err != nil {
		return nil, err
	}
	a.CreatedBy = callerID
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, callerID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, a.PatientID, callerID); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, callerID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if err := s.access.RequireAccess(ctx, patientID, callerID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListForPatient(ctx, patientID, limit, offset)
}

// Transition moves an appointment through its table via the guard.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, from, to string, version int, callerID uuid.UUID) (*lifecycle.Result, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, a.PatientID, callerID); err != nil {
		return nil, err
	}
	return s.guard.Transition(ctx, lifecycle.Request{
		Entity: EntityName, ID: id, From: from, To: to,
		CallerID: callerID, Version: version,
	})
}

// HasBookedForPatient reports whether the patient has a live appointment.
// The follow-up plan machine consults this before PENDING -> SCHEDULED.
func (s *Service) HasBookedForPatient(ctx context.Context, patientID uuid.UUID) (bool, error) {
	return s.repo.HasBookedForPatient(ctx, patientID)
}
