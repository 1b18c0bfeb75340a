package patientaccess

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/platform/breakglass"
	"github.com/clinops/clinops/internal/platform/errs"
)

type mockRepo struct {
	patients      map[uuid.UUID]*Patient
	relationships map[uuid.UUID]map[uuid.UUID]bool // patient -> clinician
	departments   map[uuid.UUID]map[uuid.UUID]bool // patient -> user

	relationshipQueries int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients:      make(map[uuid.UUID]*Patient),
		relationships: make(map[uuid.UUID]map[uuid.UUID]bool),
		departments:   make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *mockRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, errs.NotFound("patient %s not found", id)
	}
	return p, nil
}

func (m *mockRepo) HasActiveCareRelationship(_ context.Context, patientID, clinicianID uuid.UUID) (bool, error) {
	m.relationshipQueries++
	return m.relationships[patientID][clinicianID], nil
}

func (m *mockRepo) SharesServicingDepartment(_ context.Context, patientID, userID uuid.UUID) (bool, error) {
	return m.departments[patientID][userID], nil
}

func (m *mockRepo) CreatePatient(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) CreateRelationship(_ context.Context, rel *CareRelationship) error {
	if m.relationships[rel.PatientID] == nil {
		m.relationships[rel.PatientID] = make(map[uuid.UUID]bool)
	}
	m.relationships[rel.PatientID][rel.ClinicianID] = true
	return nil
}

func (m *mockRepo) EndRelationship(_ context.Context, _ uuid.UUID) error { return nil }

func (m *mockRepo) ListRelationshipsForPatient(_ context.Context, _ uuid.UUID) ([]*CareRelationship, error) {
	return nil, nil
}

type mockRoles struct {
	admins map[uuid.UUID]bool
}

func (m *mockRoles) HasRole(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	if code == identity.RoleAdmin {
		return m.admins[userID], nil
	}
	return false, nil
}

type mockEventRepo struct {
	events []*audit.DomainEvent
}

func (m *mockEventRepo) Insert(_ context.Context, evt *audit.DomainEvent) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*audit.DomainEvent, error) {
	return nil, errs.NotFound("event %s", id)
}

func (m *mockEventRepo) Search(_ context.Context, _ audit.SearchParams, _, _ int) ([]*audit.DomainEvent, int, error) {
	return m.events, len(m.events), nil
}

func (m *mockEventRepo) byType(eventType string) []*audit.DomainEvent {
	var out []*audit.DomainEvent
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	repo      *mockRepo
	roles     *mockRoles
	events    *mockEventRepo
	overrides *breakglass.Store
	validator *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMockRepo()
	roles := &mockRoles{admins: make(map[uuid.UUID]bool)}
	events := &mockEventRepo{}
	overrides := breakglass.NewStore(client, time.Hour)
	recorder := audit.NewRecorder(events, zerolog.Nop())

	return &fixture{
		repo:      repo,
		roles:     roles,
		events:    events,
		overrides: overrides,
		validator: NewValidator(repo, roles, overrides, recorder, zerolog.Nop()),
	}
}

func (f *fixture) addPatient() uuid.UUID {
	id := uuid.New()
	f.repo.patients[id] = &Patient{ID: id, MRN: "MRN-1", DisplayName: "pt", Active: true}
	return id
}

func TestCheck_MissingPatientIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.validator.Check(context.Background(), uuid.New(), uuid.New())
	if !errs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCheck_AdminShortCircuits(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	admin := uuid.New()
	f.roles.admins[admin] = true

	d, err := f.validator.Check(context.Background(), patient, admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != DecisionAdmin {
		t.Errorf("expected admin decision, got %s", d)
	}
	if f.repo.relationshipQueries != 0 {
		t.Error("admin check must not reach the relationship query")
	}
}

func TestCheck_BreakGlassAdmitsAndAuditsUse(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	user := uuid.New()

	if _, err := f.overrides.Grant(context.Background(), patient, user, uuid.New(), "night shift emergency"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	d, err := f.validator.Check(context.Background(), patient, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != DecisionBreakGlass {
		t.Errorf("expected break-glass decision, got %s", d)
	}

	used := f.events.byType(audit.EventBreakGlassUsed)
	if len(used) != 1 {
		t.Fatalf("expected 1 break-glass-used event, got %d", len(used))
	}
	if used[0].AggregateID != patient || used[0].ActorID != user {
		t.Errorf("unexpected event: %+v", used[0])
	}
}

func TestCheck_CareRelationshipAdmits(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	clinician := uuid.New()
	f.repo.relationships[patient] = map[uuid.UUID]bool{clinician: true}

	d, err := f.validator.Check(context.Background(), patient, clinician)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != DecisionRelationship {
		t.Errorf("expected relationship decision, got %s", d)
	}
}

func TestCheck_SharedDepartmentAdmits(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	nurse := uuid.New()
	f.repo.departments[patient] = map[uuid.UUID]bool{nurse: true}

	d, err := f.validator.Check(context.Background(), patient, nurse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != DecisionDepartment {
		t.Errorf("expected department decision, got %s", d)
	}
}

func TestCheck_DenialIsAudited(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	stranger := uuid.New()

	d, err := f.validator.Check(context.Background(), patient, stranger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != DecisionDenied {
		t.Errorf("expected denial, got %s", d)
	}

	denied := f.events.byType(audit.EventAccessDenied)
	if len(denied) != 1 {
		t.Fatalf("expected 1 access-denied event, got %d", len(denied))
	}
	if denied[0].AggregateID != patient {
		t.Errorf("unexpected event: %+v", denied[0])
	}
}

func TestRequireAccess(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	clinician := uuid.New()
	f.repo.relationships[patient] = map[uuid.UUID]bool{clinician: true}

	if err := f.validator.RequireAccess(context.Background(), patient, clinician); err != nil {
		t.Errorf("expected access, got %v", err)
	}

	err := f.validator.RequireAccess(context.Background(), patient, uuid.New())
	if !errs.IsForbidden(err) {
		t.Errorf("expected Forbidden, got %v", err)
	}
}

func TestCanAccessPatient_ExpiredOverrideDenies(t *testing.T) {
	f := newFixture(t)
	patient := f.addPatient()
	user := uuid.New()

	// No grant, no relationship, no department: denied.
	ok, err := f.validator.CanAccessPatient(context.Background(), patient, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected denial without any grant")
	}
}
