package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event types recorded by the governance core. Other modules may record
// their own types; these are the ones this repository emits itself.
const (
	EventRoleGranted        = "identity.role.granted"
	EventRoleRevoked        = "identity.role.revoked"
	EventAccessDenied       = "access.patient.denied"
	EventBreakGlassGranted  = "access.break_glass.granted"
	EventBreakGlassUsed     = "access.break_glass.used"
	EventStatusTransition   = "lifecycle.status.transitioned"
	EventOverrideUsed       = "lifecycle.override.used"
	EventObservationAdded   = "clinical.observation.recorded"
	EventObservationAmended = "clinical.observation.amended"
	EventEncounterLocked    = "clinical.encounter.locked"
)

// DomainEvent is one immutable fact in the forensic ledger. Rows are
// write-once: there is no update or delete path anywhere in this package.
type DomainEvent struct {
	ID            string                 `db:"id" json:"id"`
	EventType     string                 `db:"event_type" json:"event_type"`
	Domain        string                 `db:"domain" json:"domain"`
	AggregateID   uuid.UUID              `db:"aggregate_id" json:"aggregate_id"`
	AggregateType string                 `db:"aggregate_type" json:"aggregate_type"`
	Payload       map[string]interface{} `db:"payload" json:"payload"`
	CorrelationID string                 `db:"correlation_id" json:"correlation_id"`
	CausationID   string                 `db:"causation_id" json:"causation_id"`
	SessionID     string                 `db:"session_id" json:"session_id"`
	RequestID     string                 `db:"request_id" json:"request_id"`
	ActorID       uuid.UUID              `db:"actor_id" json:"actor_id"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}

// Entry is the caller-supplied part of an event. The recorder fills the id,
// correlation bundle, and timestamp.
type Entry struct {
	EventType     string
	Domain        string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       map[string]interface{}
	ActorID       uuid.UUID
}
