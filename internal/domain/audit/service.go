package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/platform/correlation"
	"github.com/clinops/clinops/internal/platform/errs"
	"github.com/clinops/clinops/internal/platform/obs"
)

// Publisher fans a recorded event out to an external stream. Implementations
// must tolerate being called after the event is already durable in Postgres.
type Publisher interface {
	Publish(ctx context.Context, evt *DomainEvent) error
}

// Recorder appends immutable domain events tagged with the active
// correlation bundle.
type Recorder struct {
	repo      Repository
	publisher Publisher
	log       zerolog.Logger
}

func NewRecorder(repo Repository, log zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, log: log}
}

// SetPublisher attaches an optional outbound stream (may be nil).
func (r *Recorder) SetPublisher(p Publisher) {
	r.publisher = p
}

// Record appends one event. The id, correlation bundle, and timestamp are
// filled here so callers only describe the fact itself. Postgres is the
// system of record: a publish failure is logged, never surfaced.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*DomainEvent, error) {
	if entry.EventType == "" {
		return nil, errs.Validation("event type is required")
	}
	if entry.Domain == "" {
		return nil, errs.Validation("event domain is required")
	}

	cc := correlation.FromContext(ctx)
	evt := &DomainEvent{
		ID:            correlation.NewID(),
		EventType:     entry.EventType,
		Domain:        entry.Domain,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Payload:       entry.Payload,
		CorrelationID: cc.CorrelationID,
		CausationID:   cc.CausationID,
		SessionID:     cc.SessionID,
		RequestID:     cc.RequestID,
		ActorID:       entry.ActorID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.repo.Insert(ctx, evt); err != nil {
		return nil, err
	}
	obs.DomainEventsRecorded.WithLabelValues(evt.Domain, evt.EventType).Inc()

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.log.Error().Err(err).
				Str("event_id", evt.ID).
				Str("event_type", evt.EventType).
				Msg("event publish failed")
		}
	}
	return evt, nil
}

// Get returns one event by id.
func (r *Recorder) Get(ctx context.Context, id string) (*DomainEvent, error) {
	return r.repo.GetByID(ctx, id)
}

// Search queries the ledger.
func (r *Recorder) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*DomainEvent, int, error) {
	return r.repo.Search(ctx, params, limit, offset)
}
