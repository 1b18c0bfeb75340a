package plan

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

// AppointmentSource answers whether the patient holds a live appointment,
// the precondition for moving a plan to SCHEDULED.
type AppointmentSource interface {
	HasBookedForPatient(ctx context.Context, patientID uuid.UUID) (bool, error)
}

type Service struct {
	repo         Repository
	access       AccessGate
	appointments AppointmentSource
	guard        *lifecycle.Guard
	log          zerolog.Logger
}

func NewService(repo Repository, access AccessGate, appointments AppointmentSource, guard *lifecycle.Guard, log zerolog.Logger) *Service {
	return &Service{repo: repo, access: access, appointments: appointments, guard: guard, log: log}
}

func (s *Service) Create(ctx context.Context, p *FollowUpPlan, callerID uuid.UUID) (*FollowUpPlan, error) {
	if p.PatientID == uuid.Nil {
		return nil, errs.Validation("patient_id is required")
	}
	if p.Title == "" {
		return nil, errs.Validation("title is required")
	}
	if err := s.access.RequireAccess(ctx, p.PatientID, callerID); err != nil {
		return nil, err
	}
	p.CreatedBy = callerID
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, callerID uuid.UUID) (*FollowUpPlan, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, p.PatientID, callerID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, callerID uuid.UUID, limit, offset int) ([]*FollowUpPlan, int, error) {
	if err := s.access.RequireAccess(ctx, patientID, callerID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListForPatient(ctx, patientID, limit, offset)
}

// Transition moves a plan along its table. SCHEDULED has an extra
// precondition checked before the guard runs: the patient must hold a
// booked appointment to schedule against.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, from, to string, version int, callerID uuid.UUID) (*lifecycle.Result, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, p.PatientID, callerID); err != nil {
		return nil, err
	}

	if to == StatusScheduled {
		booked, err := s.appointments.HasBookedForPatient(ctx, p.PatientID)
		if err != nil {
			return nil, err
		}
		if !booked {
			return nil, errs.InvalidTransition("plan %s cannot be scheduled: patient has no booked appointment", id)
		}
	}

	return s.guard.Transition(ctx, lifecycle.Request{
		Entity: EntityName, ID: id, From: from, To: to,
		CallerID: callerID, Version: version,
	})
}
