// Package clinical holds encounters and their observation ledger. The ledger
// is append-only: an observation's stored value never changes after insert,
// and corrections arrive as new rows linked to the row they amend.
package clinical

import (
	"time"

	"github.com/google/uuid"
)

// Encounter is a care episode. Locked is a one-way business-rule flag: once
// set, the encounter accepts no further first-time observations. LockedBy
// and LockedAt always name the first successful locker.
type Encounter struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	ClinicianID *uuid.UUID `db:"clinician_id" json:"clinician_id,omitempty"`
	Reason      string     `db:"reason" json:"reason"`
	Locked      bool       `db:"locked" json:"locked"`
	LockedBy    *uuid.UUID `db:"locked_by" json:"locked_by,omitempty"`
	LockedAt    *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Observation is one immutable ledger entry. AmendsID links a correction to
// the entry it corrects; AmendReason is required on corrections and empty on
// first-time recordings.
type Observation struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EncounterID uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Code        string     `db:"code" json:"code"`
	Display     string     `db:"display" json:"display"`
	Value       string     `db:"value" json:"value"`
	Unit        string     `db:"unit" json:"unit"`
	EffectiveAt time.Time  `db:"effective_at" json:"effective_at"`
	RecordedBy  uuid.UUID  `db:"recorded_by" json:"recorded_by"`
	AmendsID    *uuid.UUID `db:"amends_id" json:"amends_id,omitempty"`
	AmendReason string     `db:"amend_reason" json:"amend_reason,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// IsAmendment reports whether the observation corrects an earlier one.
func (o *Observation) IsAmendment() bool { return o.AmendsID != nil }
