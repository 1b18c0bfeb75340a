package audit

import (
	"context"

	"github.com/google/uuid"
)

// SearchParams filters event queries. Zero values mean "no filter".
type SearchParams struct {
	EventType     string
	Domain        string
	AggregateID   uuid.UUID
	ActorID       uuid.UUID
	CorrelationID string
}

// Repository persists domain events. There is no update or delete: the event
// table is the system's forensic ledger.
type Repository interface {
	Insert(ctx context.Context, evt *DomainEvent) error
	GetByID(ctx context.Context, id string) (*DomainEvent, error)
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*DomainEvent, int, error)
}
