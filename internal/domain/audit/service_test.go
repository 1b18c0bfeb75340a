package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/platform/correlation"
	"github.com/clinops/clinops/internal/platform/errs"
)

type mockRepo struct {
	events []*DomainEvent
}

func (m *mockRepo) Insert(_ context.Context, evt *DomainEvent) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*DomainEvent, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errs.NotFound("event %s", id)
}

func (m *mockRepo) Search(_ context.Context, _ SearchParams, _, _ int) ([]*DomainEvent, int, error) {
	return m.events, len(m.events), nil
}

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(_ context.Context, _ *DomainEvent) error {
	p.calls++
	return errors.New("broker unreachable")
}

func TestRecordStampsCorrelation(t *testing.T) {
	repo := &mockRepo{}
	rec := NewRecorder(repo, zerolog.Nop())

	cc := correlation.Context{
		CorrelationID: "corr-1",
		CausationID:   "cause-1",
		SessionID:     "sess-1",
		RequestID:     "req-1",
	}
	ctx := correlation.With(context.Background(), cc)

	actor := uuid.New()
	evt, err := rec.Record(ctx, Entry{
		EventType:     EventStatusTransition,
		Domain:        "lifecycle",
		AggregateID:   uuid.New(),
		AggregateType: "follow_up_plan",
		Payload:       map[string]interface{}{"from": "PENDING", "to": "SCHEDULED"},
		ActorID:       actor,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if evt.ID == "" {
		t.Error("event must get an id")
	}
	if evt.CorrelationID != "corr-1" || evt.CausationID != "cause-1" ||
		evt.SessionID != "sess-1" || evt.RequestID != "req-1" {
		t.Errorf("correlation bundle not stamped: %+v", evt)
	}
	if evt.CreatedAt.IsZero() {
		t.Error("event must be timestamped")
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(repo.events))
	}
}

func TestRecordValidatesTypeAndDomain(t *testing.T) {
	rec := NewRecorder(&mockRepo{}, zerolog.Nop())

	_, err := rec.Record(context.Background(), Entry{Domain: "lifecycle"})
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("missing type: expected Validation, got %v", err)
	}
	_, err = rec.Record(context.Background(), Entry{EventType: EventStatusTransition})
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("missing domain: expected Validation, got %v", err)
	}
}

func TestPublishFailureDoesNotFailRecord(t *testing.T) {
	repo := &mockRepo{}
	rec := NewRecorder(repo, zerolog.Nop())
	pub := &failingPublisher{}
	rec.SetPublisher(pub)

	evt, err := rec.Record(context.Background(), Entry{
		EventType: EventRoleGranted,
		Domain:    "identity",
	})
	if err != nil {
		t.Fatalf("record must succeed despite publish failure, got %v", err)
	}
	if pub.calls != 1 {
		t.Errorf("expected one publish attempt, got %d", pub.calls)
	}
	if len(repo.events) != 1 || repo.events[0].ID != evt.ID {
		t.Error("event must be durable in the repository")
	}
}

func TestRecordIDsAreSortable(t *testing.T) {
	repo := &mockRepo{}
	rec := NewRecorder(repo, zerolog.Nop())

	var prev string
	for i := 0; i < 50; i++ {
		evt, err := rec.Record(context.Background(), Entry{
			EventType: EventObservationAdded,
			Domain:    "clinical",
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if prev != "" && evt.ID <= prev {
			t.Fatalf("ids must be monotonic: %s then %s", prev, evt.ID)
		}
		prev = evt.ID
	}
}
