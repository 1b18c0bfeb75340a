package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/platform/errs"
)

// AccessGate is the patient-access check every read and write goes through.
type AccessGate interface {
	RequireAccess(ctx context.Context, patientID, userID uuid.UUID) error
}

// PermChecker is the slice of identity.Resolver the ledger needs.
type PermChecker interface {
	HasPermission(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// TxRunner runs fn inside a transaction carried in the context it passes
// down, so a ledger write and its audit event commit or roll back together.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo   Repository
	access AccessGate
	perms  PermChecker
	events *audit.Recorder
	tx     TxRunner
	log    zerolog.Logger
}

func NewService(repo Repository, access AccessGate, perms PermChecker, events *audit.Recorder, tx TxRunner, log zerolog.Logger) *Service {
	return &Service{repo: repo, access: access, perms: perms, events: events, tx: tx, log: log}
}

func (s *Service) CreateEncounter(ctx context.Context, e *Encounter, callerID uuid.UUID) (*Encounter, error) {
	if e.PatientID == uuid.Nil {
		return nil, errs.Validation("patient_id is required")
	}
	if err := s.access.RequireAccess(ctx, e.PatientID, callerID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateEncounter(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) GetEncounter(ctx context.Context, id uuid.UUID, callerID uuid.UUID) (*Encounter, error) {
	e, err := s.repo.GetEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, e.PatientID, callerID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) ListEncountersForPatient(ctx context.Context, patientID, callerID uuid.UUID, limit, offset int) ([]*Encounter, int, error) {
	if err := s.access.RequireAccess(ctx, patientID, callerID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListEncountersForPatient(ctx, patientID, limit, offset)
}

// Record appends a first-time observation. A locked encounter accepts none:
// the refusal is a state rule, not a permission matter, so even a sign-off
// holder cannot record against a locked encounter.
func (s *Service) Record(ctx context.Context, encounterID uuid.UUID, o *Observation, callerID uuid.UUID) (*Observation, error) {
	if o.Code == "" {
		return nil, errs.Validation("code is required")
	}
	if o.Value == "" {
		return nil, errs.Validation("value is required")
	}

	e, err := s.repo.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, e.PatientID, callerID); err != nil {
		return nil, err
	}
	if e.Locked {
		return nil, errs.InvalidTransition("encounter %s is locked and accepts no new observations", encounterID)
	}

	o.EncounterID = e.ID
	o.PatientID = e.PatientID
	o.RecordedBy = callerID
	o.AmendsID = nil
	o.AmendReason = ""

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertObservation(ctx, o); err != nil {
			return err
		}
		_, err := s.events.Record(ctx, audit.Entry{
			EventType:     audit.EventObservationAdded,
			Domain:        "clinical",
			AggregateID:   e.ID,
			AggregateType: "encounter",
			Payload: map[string]interface{}{
				"observation_id": o.ID.String(),
				"code":           o.Code,
			},
			ActorID: callerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Amend appends a correction linked to an existing observation. The original
// row is never touched. On a locked encounter amendment stays open as the
// forensic correction path, but only to holders of the sign-off permission.
func (s *Service) Amend(ctx context.Context, observationID uuid.UUID, newValue, reason string, callerID uuid.UUID) (*Observation, error) {
	if reason == "" {
		return nil, errs.Validation("amendment reason is required")
	}
	if newValue == "" {
		return nil, errs.Validation("value is required")
	}

	orig, err := s.repo.GetObservation(ctx, observationID)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.GetEncounter(ctx, orig.EncounterID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, e.PatientID, callerID); err != nil {
		return nil, err
	}

	if e.Locked {
		ok, err := s.perms.HasPermission(ctx, callerID, identity.PermEncounterSignOff)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.Forbidden("amending a locked encounter requires the sign-off permission")
		}
	}

	amendID := orig.ID
	amendment := &Observation{
		EncounterID: orig.EncounterID,
		PatientID:   orig.PatientID,
		Code:        orig.Code,
		Display:     orig.Display,
		Value:       newValue,
		Unit:        orig.Unit,
		RecordedBy:  callerID,
		AmendsID:    &amendID,
		AmendReason: reason,
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertObservation(ctx, amendment); err != nil {
			return err
		}
		// Amendment without an audit trail is not a valid code path; the
		// event commits with the row or not at all.
		_, err := s.events.Record(ctx, audit.Entry{
			EventType:     audit.EventObservationAmended,
			Domain:        "clinical",
			AggregateID:   e.ID,
			AggregateType: "encounter",
			Payload: map[string]interface{}{
				"observation_id": amendment.ID.String(),
				"amends_id":      orig.ID.String(),
				"reason":         reason,
				"locked":         e.Locked,
			},
			ActorID: callerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return amendment, nil
}

// Lock freezes an encounter against first-time recording. The flip is a
// conditional set on locked = false; the loser of a lock race gets Conflict
// and the winner's locked_by and locked_at stand.
func (s *Service) Lock(ctx context.Context, encounterID uuid.UUID, callerID uuid.UUID) (*Encounter, error) {
	e, err := s.repo.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, e.PatientID, callerID); err != nil {
		return nil, err
	}

	ok, err := s.perms.HasPermission(ctx, callerID, identity.PermEncounterSignOff)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Forbidden("locking an encounter requires the sign-off permission")
	}

	now := time.Now().UTC()
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockEncounter(ctx, encounterID, callerID, now); err != nil {
			return err
		}
		_, err := s.events.Record(ctx, audit.Entry{
			EventType:     audit.EventEncounterLocked,
			Domain:        "clinical",
			AggregateID:   encounterID,
			AggregateType: "encounter",
			Payload:       map[string]interface{}{"locked_by": callerID.String()},
			ActorID:       callerID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetEncounter(ctx, encounterID)
}

// Chain returns the amendment chain containing the observation, oldest
// first.
func (s *Service) Chain(ctx context.Context, observationID uuid.UUID, callerID uuid.UUID) ([]*Observation, error) {
	o, err := s.repo.GetObservation(ctx, observationID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, o.PatientID, callerID); err != nil {
		return nil, err
	}
	return s.repo.Chain(ctx, observationID)
}

// Observations lists an encounter's ledger entries in recording order.
func (s *Service) Observations(ctx context.Context, encounterID uuid.UUID, callerID uuid.UUID) ([]*Observation, error) {
	e, err := s.repo.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, e.PatientID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListObservationsForEncounter(ctx, encounterID)
}
