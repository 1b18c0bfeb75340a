package lifecycle

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinops/clinops/internal/domain/audit"
	"github.com/clinops/clinops/internal/domain/identity"
	"github.com/clinops/clinops/internal/platform/errs"
	"github.com/clinops/clinops/internal/platform/obs"
)

// VersionedStore is implemented by each repository whose entity the guard
// governs. CompareAndSetStatus must be a conditional update on both the
// current status and the current version; zero rows affected on an existing
// row means the caller lost the race. The winning write stamps updatedBy on
// the row, so the acting user is recorded on the entity as well as in the
// event ledger.
type VersionedStore interface {
	GetForTransition(ctx context.Context, id uuid.UUID) (status string, version int, err error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to string, version int, updatedBy uuid.UUID) error
}

// TxRunner runs fn inside a transaction carried in the context it passes
// down. The status write and the event append share that transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// RoleChecker is the slice of identity.Resolver the guard needs for the
// admin override.
type RoleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// Request asks the guard to move one entity along one edge. From and
// Version are the caller's view of current state; if either is stale the
// transition is refused with Conflict.
type Request struct {
	Entity   string
	ID       uuid.UUID
	From     string
	To       string
	CallerID uuid.UUID
	Version  int
}

// Result reports a committed transition.
type Result struct {
	Entity     string    `json:"entity"`
	ID         uuid.UUID `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	NewVersion int       `json:"new_version"`
	Override   bool      `json:"override"`
	EventID    string    `json:"event_id"`
}

type registration struct {
	table Table
	store VersionedStore
}

// Guard holds the registered tables and applies transitions. The admin
// override skips the table check only; the version check holds for everyone,
// because an override that stomps a concurrent write would corrupt state
// rather than correct it.
type Guard struct {
	entities map[string]registration
	roles    RoleChecker
	events   *audit.Recorder
	tx       TxRunner
	log      zerolog.Logger
}

func NewGuard(roles RoleChecker, events *audit.Recorder, tx TxRunner, log zerolog.Logger) *Guard {
	return &Guard{
		entities: make(map[string]registration),
		roles:    roles,
		events:   events,
		tx:       tx,
		log:      log,
	}
}

// Register binds an entity name to its transition table and store. Called
// once per entity at wiring time.
func (g *Guard) Register(table Table, store VersionedStore) {
	g.entities[table.Entity] = registration{table: table, store: store}
}

// Tables returns the registered transition tables, for the introspection
// endpoint.
func (g *Guard) Tables() []Table {
	out := make([]Table, 0, len(g.entities))
	for _, reg := range g.entities {
		out = append(out, reg.table)
	}
	return out
}

// Transition applies one status change, or refuses it. On success the new
// status, the version bump, and the audit event are committed atomically.
func (g *Guard) Transition(ctx context.Context, req Request) (*Result, error) {
	reg, ok := g.entities[req.Entity]
	if !ok {
		return nil, errs.Validation("unknown entity type %q", req.Entity)
	}
	if req.To == "" {
		return nil, errs.Validation("target status is required")
	}
	if !reg.table.Knows(req.To) {
		return nil, errs.InvalidTransition("%s has no status %q", req.Entity, req.To)
	}

	var res *Result
	err := g.tx(ctx, func(ctx context.Context) error {
		current, version, err := reg.store.GetForTransition(ctx, req.ID)
		if err != nil {
			return err
		}

		if req.From != "" && req.From != current {
			obs.VersionConflicts.WithLabelValues(req.Entity).Inc()
			return errs.Conflict("%s %s is %s, not %s", req.Entity, req.ID, current, req.From)
		}
		if req.Version != version {
			obs.VersionConflicts.WithLabelValues(req.Entity).Inc()
			return errs.Conflict("%s %s is at version %d, not %d", req.Entity, req.ID, version, req.Version)
		}
		// An edge the table does not declare is only passable for admins,
		// and the pass is recorded as an override. The call shape is the
		// same either way; the caller's role decides the outcome.
		override := false
		if !reg.table.Allowed(current, req.To) {
			isAdmin, err := g.roles.HasRole(ctx, req.CallerID, identity.RoleAdmin)
			if err != nil {
				return err
			}
			if !isAdmin {
				obs.InvalidTransitions.WithLabelValues(req.Entity).Inc()
				if reg.table.IsTerminal(current) {
					return errs.InvalidTransition("%s %s is %s, which is terminal", req.Entity, req.ID, current)
				}
				return errs.InvalidTransition("%s cannot move from %s to %s", req.Entity, current, req.To)
			}
			override = true
		}

		if err := reg.store.CompareAndSetStatus(ctx, req.ID, current, req.To, version, req.CallerID); err != nil {
			if errs.IsConflict(err) {
				obs.VersionConflicts.WithLabelValues(req.Entity).Inc()
			}
			return err
		}

		eventType := audit.EventStatusTransition
		if override {
			obs.Overrides.WithLabelValues(req.Entity).Inc()
			eventType = audit.EventOverrideUsed
		}
		evt, err := g.events.Record(ctx, audit.Entry{
			EventType:     eventType,
			Domain:        "lifecycle",
			AggregateID:   req.ID,
			AggregateType: req.Entity,
			Payload: map[string]interface{}{
				"from":     current,
				"to":       req.To,
				"version":  version + 1,
				"override": override,
			},
			ActorID: req.CallerID,
		})
		if err != nil {
			return err
		}

		res = &Result{
			Entity:     req.Entity,
			ID:         req.ID,
			From:       current,
			To:         req.To,
			NewVersion: version + 1,
			Override:   override,
			EventID:    evt.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := g.log.Info()
	if res.Override {
		log = g.log.Warn()
	}
	log.
		Str("entity", req.Entity).
		Str("id", req.ID.String()).
		Str("from", res.From).
		Str("to", res.To).
		Bool("override", res.Override).
		Msg("status transition committed")
	return res, nil
}
