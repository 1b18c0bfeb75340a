// Package patientaccess decides whether a staff member may reach a patient's
// record. Every path to "yes" is explicit; anything else is a denial, and
// denials are counted and audited.
package patientaccess

import (
	"time"

	"github.com/google/uuid"
)

// Decision names the rule that admitted the caller. It lands in logs and in
// the access-denied audit trail.
type Decision string

const (
	DecisionAdmin        Decision = "admin_role"
	DecisionBreakGlass   Decision = "break_glass"
	DecisionRelationship Decision = "care_relationship"
	DecisionDepartment   Decision = "shared_department"
	DecisionDenied       Decision = "denied"
)

// Patient is the access-control view of a patient: identity plus the
// department currently servicing them. Demographics live elsewhere.
type Patient struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MRN          string     `db:"mrn" json:"mrn"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// CareRelationship assigns a clinician to a patient. Rows are never deleted;
// ending the relationship sets EndedAt.
type CareRelationship struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	ClinicianID uuid.UUID  `db:"clinician_id" json:"clinician_id"`
	Kind        string     `db:"kind" json:"kind"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	EndedAt     *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// DepartmentMembership places a staff member in a department.
type DepartmentMembership struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	DepartmentID uuid.UUID  `db:"department_id" json:"department_id"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	EndedAt      *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}
