package patientaccess

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/platform/breakglass"
	"github.com/clinops/clinops/internal/platform/errs"
	"github.com/clinops/clinops/internal/platform/obs"
)

// RoleChecker is the slice of identity.Resolver the validator needs.
type RoleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// OverrideStore is the slice of breakglass.Store the validator needs.
type OverrideStore interface {
	Active(ctx context.Context, patientID, userID uuid.UUID) (*breakglass.Grant, error)
}

// Validator evaluates the access rules in a fixed order and stops at the
// first rule that admits the caller:
//
//	admin role, live break-glass grant, active care relationship,
//	shared servicing department.
//
// Anything that falls through is denied, counted, and audited.
type Validator struct {
	repo      Repository
	roles     RoleChecker
	overrides OverrideStore
	events    *audit.Recorder
	log       zerolog.Logger
}

func NewValidator(repo Repository, roles RoleChecker, overrides OverrideStore, events *audit.Recorder, log zerolog.Logger) *Validator {
	return &Validator{repo: repo, roles: roles, overrides: overrides, events: events, log: log}
}

// Check returns the rule that admits userID to patientID, or DecisionDenied.
// A missing patient is NotFound, never a silent deny, so callers can tell
// "no such record" from "no grant".
func (v *Validator) Check(ctx context.Context, patientID, userID uuid.UUID) (Decision, error) {
	if _, err := v.repo.GetPatient(ctx, patientID); err != nil {
		return DecisionDenied, err
	}

	isAdmin, err := v.roles.HasRole(ctx, userID, identity.RoleAdmin)
	if err != nil {
		return DecisionDenied, err
	}
	if isAdmin {
		return DecisionAdmin, nil
	}

	if v.overrides != nil {
		grant, err := v.overrides.Active(ctx, patientID, userID)
		if err != nil {
			return DecisionDenied, err
		}
		if grant != nil {
			v.recordOverrideUse(ctx, grant)
			return DecisionBreakGlass, nil
		}
	}

	assigned, err := v.repo.HasActiveCareRelationship(ctx, patientID, userID)
	if err != nil {
		return DecisionDenied, err
	}
	if assigned {
		return DecisionRelationship, nil
	}

	shared, err := v.repo.SharesServicingDepartment(ctx, patientID, userID)
	if err != nil {
		return DecisionDenied, err
	}
	if shared {
		return DecisionDepartment, nil
	}

	v.recordDenial(ctx, patientID, userID)
	return DecisionDenied, nil
}

// CanAccessPatient reports whether userID may reach patientID.
func (v *Validator) CanAccessPatient(ctx context.Context, patientID, userID uuid.UUID) (bool, error) {
	d, err := v.Check(ctx, patientID, userID)
	if err != nil {
		return false, err
	}
	return d != DecisionDenied, nil
}

// RequireAccess is the guard form: a denial comes back as Forbidden so the
// caller can return it straight to the transport layer.
func (v *Validator) RequireAccess(ctx context.Context, patientID, userID uuid.UUID) error {
	d, err := v.Check(ctx, patientID, userID)
	if err != nil {
		return err
	}
	if d == DecisionDenied {
		return errs.Forbidden("no access to patient %s", patientID)
	}
	return nil
}

// Every use of an emergency override leaves an audit event, not just the
// grant itself.
func (v *Validator) recordOverrideUse(ctx context.Context, grant *breakglass.Grant) {
	if _, err := v.events.Record(ctx, audit.Entry{
		EventType:     audit.EventBreakGlassUsed,
		Domain:        "patientaccess",
		AggregateID:   grant.PatientID,
		AggregateType: "patient",
		Payload: map[string]interface{}{
			"user_id":    grant.UserID.String(),
			"granted_by": grant.GrantedBy.String(),
			"reason":     grant.Reason,
			"expires_at": grant.ExpiresAt,
		},
		ActorID: grant.UserID,
	}); err != nil {
		v.log.Error().Err(err).Str("patient_id", grant.PatientID.String()).Msg("failed to record break-glass use")
	}
}

func (v *Validator) recordDenial(ctx context.Context, patientID, userID uuid.UUID) {
	obs.AccessDenials.WithLabelValues("no_grant").Inc()
	if _, err := v.events.Record(ctx, audit.Entry{
		EventType:     audit.EventAccessDenied,
		Domain:        "patientaccess",
		AggregateID:   patientID,
		AggregateType: "patient",
		Payload: map[string]interface{}{
			"user_id": userID.String(),
		},
		ActorID: userID,
	}); err != nil {
		v.log.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to record access denial")
	}
	v.log.Warn().
		Str("patient_id", patientID.String()).
		Str("user_id", userID.String()).
		Msg("patient access denied")
}
