package clinical

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/platform/errs"
)

type mockRepo struct {
	mu           sync.Mutex
	encounters   map[uuid.UUID]*Encounter
	observations map[uuid.UUID]*Observation
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		encounters:   make(map[uuid.UUID]*Encounter),
		observations: make(map[uuid.UUID]*Observation),
	}
}

func (m *mockRepo) CreateEncounter(_ context.Context, e *Encounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.encounters[e.ID] = e
	return nil
}

func (m *mockRepo) GetEncounter(_ context.Context, id uuid.UUID) (*Encounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.encounters[id]
	if !ok {
		return nil, errs.NotFound("encounter %s not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) ListEncountersForPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Encounter, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Encounter
	for _, e := range m.encounters {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) LockEncounter(_ context.Context, id, lockedBy uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.encounters[id]
	if !ok {
		return errs.NotFound("encounter %s not found", id)
	}
	if e.Locked {
		return errs.Conflict("encounter %s is already locked", id)
	}
	e.Locked = true
	e.LockedBy = &lockedBy
	e.LockedAt = &at
	return nil
}

func (m *mockRepo) InsertObservation(_ context.Context, o *Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	cp := *o
	m.observations[o.ID] = &cp
	return nil
}

func (m *mockRepo) GetObservation(_ context.Context, id uuid.UUID) (*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.observations[id]
	if !ok {
		return nil, errs.NotFound("observation %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) ListObservationsForEncounter(_ context.Context, encounterID uuid.UUID) ([]*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Observation
	for _, o := range m.observations {
		if o.EncounterID == encounterID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) Chain(_ context.Context, observationID uuid.UUID) ([]*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.observations[observationID]
	if !ok {
		return nil, errs.NotFound("observation %s not found", observationID)
	}
	for root.AmendsID != nil {
		root = m.observations[*root.AmendsID]
	}
	out := []*Observation{root}
	cur := root
	for {
		var next *Observation
		for _, o := range m.observations {
			if o.AmendsID != nil && *o.AmendsID == cur.ID {
				next = o
				break
			}
		}
		if next == nil {
			break
		}
		cp := *next
		out = append(out, &cp)
		cur = next
	}
	return out, nil
}

type allowAllAccess struct{}

func (allowAllAccess) RequireAccess(_ context.Context, _, _ uuid.UUID) error { return nil }

type mockPerms struct {
	signOff map[uuid.UUID]bool
}

func (m *mockPerms) HasPermission(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	if code == identity.PermEncounterSignOff {
		return m.signOff[userID], nil
	}
	return false, nil
}

type mockEventRepo struct {
	mu     sync.Mutex
	events []*audit.DomainEvent
}

func (m *mockEventRepo) Insert(_ context.Context, evt *audit.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*audit.DomainEvent, error) {
	return nil, errs.NotFound("event %s", id)
}

func (m *mockEventRepo) Search(_ context.Context, _ audit.SearchParams, _, _ int) ([]*audit.DomainEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events, len(m.events), nil
}

func (m *mockEventRepo) byType(eventType string) []*audit.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*audit.DomainEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	repo   *mockRepo
	perms  *mockPerms
	events *mockEventRepo
	svc    *Service
}

func newFixture() *fixture {
	repo := newMockRepo()
	perms := &mockPerms{signOff: make(map[uuid.UUID]bool)}
	events := &mockEventRepo{}
	svc := NewService(repo, allowAllAccess{}, perms, audit.NewRecorder(events, zerolog.Nop()), passthroughTx, zerolog.Nop())
	return &fixture{repo: repo, perms: perms, events: events, svc: svc}
}

func (f *fixture) newEncounter(t *testing.T) *Encounter {
	t.Helper()
	e, err := f.svc.CreateEncounter(context.Background(), &Encounter{
		PatientID: uuid.New(),
		Reason:    "annual physical",
	}, uuid.New())
	if err != nil {
		t.Fatalf("create encounter: %v", err)
	}
	return e
}

func (f *fixture) record(t *testing.T, encounterID uuid.UUID, value string) *Observation {
	t.Helper()
	o, err := f.svc.Record(context.Background(), encounterID, &Observation{
		Code: "8310-5", Display: "Body temperature", Value: value, Unit: "Cel",
	}, uuid.New())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return o
}

func TestRecord(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	o := f.record(t, e.ID, "37.2")

	if o.EncounterID != e.ID || o.PatientID != e.PatientID {
		t.Errorf("observation not bound to encounter: %+v", o)
	}
	if o.IsAmendment() {
		t.Error("first-time recording must not be an amendment")
	}
	if len(f.events.byType(audit.EventObservationAdded)) != 1 {
		t.Error("recording must emit an event")
	}
}

func TestRecordValidation(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)

	_, err := f.svc.Record(context.Background(), e.ID, &Observation{Value: "37.2"}, uuid.New())
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("missing code: expected Validation, got %v", err)
	}
	_, err = f.svc.Record(context.Background(), e.ID, &Observation{Code: "8310-5"}, uuid.New())
	if errs.KindOf(err) != errs.KindValidation {
		t.Errorf("missing value: expected Validation, got %v", err)
	}
}

func TestRecordOnLockedEncounterRejected(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	signer := uuid.New()
	f.perms.signOff[signer] = true
	if _, err := f.svc.Lock(context.Background(), e.ID, signer); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := f.svc.Record(context.Background(), e.ID, &Observation{
		Code: "8310-5", Value: "38.1",
	}, signer)
	if errs.KindOf(err) != errs.KindInvalidTransition {
		t.Fatalf("expected InvalidTransition on locked encounter, got %v", err)
	}
}

func TestAmendNeverTouchesOriginal(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	orig := f.record(t, e.ID, "39.7")
	amender := uuid.New()

	amendment, err := f.svc.Amend(context.Background(), orig.ID, "37.9", "transcription error", amender)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amendment.AmendsID == nil || *amendment.AmendsID != orig.ID {
		t.Errorf("amendment must point at the original, got %+v", amendment)
	}
	if amendment.Value != "37.9" || amendment.AmendReason != "transcription error" {
		t.Errorf("unexpected amendment: %+v", amendment)
	}

	// The original row is unchanged.
	got, err := f.svc.Chain(context.Background(), orig.ID, amender)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(got))
	}
	if got[0].ID != orig.ID || got[0].Value != "39.7" {
		t.Errorf("original must keep its value, got %+v", got[0])
	}

	reread, _ := f.repo.GetObservation(context.Background(), orig.ID)
	if reread.Value != "39.7" || reread.AmendReason != "" {
		t.Errorf("original row mutated: %+v", reread)
	}
}

func TestAmendRequiresReason(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	orig := f.record(t, e.ID, "120/80")

	_, err := f.svc.Amend(context.Background(), orig.ID, "118/79", "", uuid.New())
	if errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected Validation for empty reason, got %v", err)
	}
}

func TestAmendAlwaysEmitsEvent(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	orig := f.record(t, e.ID, "98")

	amendment, err := f.svc.Amend(context.Background(), orig.ID, "97", "recalibrated device", uuid.New())
	if err != nil {
		t.Fatalf("amend: %v", err)
	}

	events := f.events.byType(audit.EventObservationAmended)
	if len(events) != 1 {
		t.Fatalf("expected 1 amendment event, got %d", len(events))
	}
	p := events[0].Payload
	if p["amends_id"] != orig.ID.String() || p["observation_id"] != amendment.ID.String() {
		t.Errorf("event must carry both ids, got %v", p)
	}
	if p["reason"] != "recalibrated device" {
		t.Errorf("event must carry the reason, got %v", p)
	}
}

func TestAmendOnLockedEncounterNeedsSignOff(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	orig := f.record(t, e.ID, "39.7")

	signer := uuid.New()
	f.perms.signOff[signer] = true
	if _, err := f.svc.Lock(context.Background(), e.ID, signer); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Without sign-off the locked chain is frozen.
	_, err := f.svc.Amend(context.Background(), orig.ID, "37.9", "typo", uuid.New())
	if !errs.IsForbidden(err) {
		t.Fatalf("expected Forbidden for non-signer, got %v", err)
	}

	// A sign-off holder can still file a forensic correction.
	amendment, err := f.svc.Amend(context.Background(), orig.ID, "37.9", "post sign-off correction", signer)
	if err != nil {
		t.Fatalf("amend as signer: %v", err)
	}
	if amendment.AmendsID == nil || *amendment.AmendsID != orig.ID {
		t.Errorf("unexpected amendment: %+v", amendment)
	}
}

func TestLockTwiceKeepsFirstLocker(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	first, second := uuid.New(), uuid.New()
	f.perms.signOff[first] = true
	f.perms.signOff[second] = true

	locked, err := f.svc.Lock(context.Background(), e.ID, first)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if !locked.Locked || locked.LockedBy == nil || *locked.LockedBy != first {
		t.Fatalf("unexpected lock state: %+v", locked)
	}
	firstAt := *locked.LockedAt

	_, err = f.svc.Lock(context.Background(), e.ID, second)
	if !errs.IsConflict(err) {
		t.Fatalf("expected Conflict on second lock, got %v", err)
	}

	after, _ := f.svc.GetEncounter(context.Background(), e.ID, second)
	if *after.LockedBy != first || !after.LockedAt.Equal(firstAt) {
		t.Errorf("second lock must not overwrite the first locker, got %+v", after)
	}

	if len(f.events.byType(audit.EventEncounterLocked)) != 1 {
		t.Error("only the winning lock emits an event")
	}
}

func TestLockRequiresSignOff(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)

	_, err := f.svc.Lock(context.Background(), e.ID, uuid.New())
	if !errs.IsForbidden(err) {
		t.Fatalf("expected Forbidden without sign-off, got %v", err)
	}
}

func TestChainOrdering(t *testing.T) {
	f := newFixture()
	e := f.newEncounter(t)
	orig := f.record(t, e.ID, "v1")
	caller := uuid.New()

	a1, err := f.svc.Amend(context.Background(), orig.ID, "v2", "first correction", caller)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	a2, err := f.svc.Amend(context.Background(), a1.ID, "v3", "second correction", caller)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}

	// Asking for any link returns the whole chain, oldest first.
	for _, id := range []uuid.UUID{orig.ID, a1.ID, a2.ID} {
		chain, err := f.svc.Chain(context.Background(), id, caller)
		if err != nil {
			t.Fatalf("chain(%s): %v", id, err)
		}
		if len(chain) != 3 {
			t.Fatalf("expected chain of 3, got %d", len(chain))
		}
		if chain[0].ID != orig.ID || chain[1].ID != a1.ID || chain[2].ID != a2.ID {
			t.Errorf("chain out of order: %v -> %v -> %v", chain[0].ID, chain[1].ID, chain[2].ID)
		}
	}
}
