package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinops/clinops/internal/platform/db"
	"github.com/clinops/clinops/internal/platform/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const eventCols = `id, event_type, domain, aggregate_id, aggregate_type, payload,
	correlation_id, causation_id, session_id, request_id, actor_id, created_at`

func scanEvent(row pgx.Row) (*DomainEvent, error) {
	var e DomainEvent
	var payload []byte
	err := row.Scan(
		&e.ID, &e.EventType, &e.Domain, &e.AggregateID, &e.AggregateType, &payload,
		&e.CorrelationID, &e.CausationID, &e.SessionID, &e.RequestID, &e.ActorID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
	}
	return &e, nil
}

func (r *RepoPG) Insert(ctx context.Context, evt *DomainEvent) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO domain_event (id, event_type, domain, aggregate_id, aggregate_type, payload,
			correlation_id, causation_id, session_id, request_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		evt.ID, evt.EventType, evt.Domain, evt.AggregateID, evt.AggregateType, payload,
		evt.CorrelationID, evt.CausationID, evt.SessionID, evt.RequestID, evt.ActorID, evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert domain event: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id string) (*DomainEvent, error) {
	q := fmt.Sprintf("SELECT %s FROM domain_event WHERE id = $1", eventCols)
	evt, err := scanEvent(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("event %s", id)
	}
	return evt, err
}

func (r *RepoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*DomainEvent, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if params.EventType != "" {
		where = append(where, fmt.Sprintf("event_type = $%d", idx))
		args = append(args, params.EventType)
		idx++
	}
	if params.Domain != "" {
		where = append(where, fmt.Sprintf("domain = $%d", idx))
		args = append(args, params.Domain)
		idx++
	}
	if params.AggregateID != uuid.Nil {
		where = append(where, fmt.Sprintf("aggregate_id = $%d", idx))
		args = append(args, params.AggregateID)
		idx++
	}
	if params.ActorID != uuid.Nil {
		where = append(where, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, params.ActorID)
		idx++
	}
	if params.CorrelationID != "" {
		where = append(where, fmt.Sprintf("correlation_id = $%d", idx))
		args = append(args, params.CorrelationID)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM domain_event %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count domain events: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM domain_event %s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		eventCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search domain events: %w", err)
	}
	defer rows.Close()

	var items []*DomainEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
