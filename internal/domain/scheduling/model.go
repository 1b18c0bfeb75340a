// Package scheduling manages appointments. The lifecycle is deliberately
// small; outside booking, an appointment's main role is as the precondition
// for moving a follow-up plan to SCHEDULED.
package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinops/clinops/internal/domain/lifecycle"
)

// Appointment statuses. FULFILLED and CANCELLED are terminal.
const (
	StatusBooked    = "BOOKED"
	StatusFulfilled = "FULFILLED"
	StatusCancelled = "CANCELLED"
)

// EntityName registers the appointment with the lifecycle guard.
const EntityName = "appointment"

// Transitions declares the appointment status machine.
func Transitions() lifecycle.Table {
	return lifecycle.NewTable(EntityName, map[string][]string{
		StatusBooked: {StatusFulfilled, StatusCancelled},
	})
}

type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	ClinicianID *uuid.UUID `db:"clinician_id" json:"clinician_id,omitempty"`
	Status      string     `db:"status" json:"status"`
	StartsAt    time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt      *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	Reason      string     `db:"reason" json:"reason"`
	Version     int        `db:"version" json:"version"`
	CreatedBy   uuid.UUID  `db:"created_by" json:"created_by"`
	UpdatedBy   *uuid.UUID `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
