// Package plan manages follow-up plans, the reference lifecycle entity. A
// plan moves PENDING -> SCHEDULED -> COMPLETED, with CANCELLED reachable
// from both live statuses, and it carries the version counter the guard
// checks on every move.
package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinops/clinops/internal/domain/lifecycle"
)

// Follow-up plan statuses. COMPLETED and CANCELLED are terminal.
const (
	StatusPending   = "PENDING"
	StatusScheduled = "SCHEDULED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// EntityName registers the plan with the lifecycle guard.
const EntityName = "follow_up_plan"

// Transitions declares the plan status machine.
func Transitions() lifecycle.Table {
	return lifecycle.NewTable(EntityName, map[string][]string{
		StatusPending:   {StatusScheduled, StatusCancelled},
		StatusScheduled: {StatusCompleted, StatusCancelled},
	})
}

type FollowUpPlan struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Status      string     `db:"status" json:"status"`
	DueAt       *time.Time `db:"due_at" json:"due_at,omitempty"`
	Version     int        `db:"version" json:"version"`
	CreatedBy   uuid.UUID  `db:"created_by" json:"created_by"`
	UpdatedBy   *uuid.UUID `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
