// Package breakglass holds time-boxed emergency access overrides in Redis.
// A grant lets a named user reach a named patient's record until the key
// expires; Redis TTL is the single source of truth for expiry, so a crashed
// server never leaves a stale override behind.
package breakglass

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinops/clinops/internal/platform/errs"
)

// Grant is one emergency override: user -> patient, bounded by ExpiresAt.
type Grant struct {
	PatientID uuid.UUID `json:"patient_id"`
	UserID    uuid.UUID `json:"user_id"`
	GrantedBy uuid.UUID `json:"granted_by"`
	Reason    string    `json:"reason"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store reads and writes grants. It performs no authorization and no
// auditing itself; callers do both.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// TTL returns the configured grant lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

func grantKey(patientID, userID uuid.UUID) string {
	return fmt.Sprintf("breakglass:%s:%s", patientID, userID)
}

// Grant records an override for the store's TTL. A second grant while one is
// still live is a Conflict: the first grant's window stands.
func (s *Store) Grant(ctx context.Context, patientID, userID, grantedBy uuid.UUID, reason string) (*Grant, error) {
	if reason == "" {
		return nil, errs.Validation("break-glass reason is required")
	}

	now := time.Now().UTC()
	g := &Grant{
		PatientID: patientID,
		UserID:    userID,
		GrantedBy: grantedBy,
		Reason:    reason,
		GrantedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	payload, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}

	created, err := s.client.SetNX(ctx, grantKey(patientID, userID), payload, s.ttl).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "break-glass grant")
	}
	if !created {
		return nil, errs.Conflict("an active break-glass grant already exists for this user and patient")
	}
	return g, nil
}

// Active returns the live grant for the pair, or nil when none exists. An
// expired key has already been evicted by Redis, so absence is the only
// expiry signal.
func (s *Store) Active(ctx context.Context, patientID, userID uuid.UUID) (*Grant, error) {
	raw, err := s.client.Get(ctx, grantKey(patientID, userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "break-glass lookup")
	}
	var g Grant
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "break-glass decode")
	}
	return &g, nil
}

// Revoke removes a grant before its TTL lapses. Revoking an absent grant is
// a no-op.
func (s *Store) Revoke(ctx context.Context, patientID, userID uuid.UUID) error {
	return s.client.Del(ctx, grantKey(patientID, userID)).Err()
}

// ListForPatient scans the live grants covering one patient.
func (s *Store) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Grant, error) {
	var out []*Grant
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("breakglass:%s:*", patientID), 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindUnknown, err, "break-glass scan")
		}
		var g Grant
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, errs.Wrap(errs.KindUnknown, err, "break-glass decode")
		}
		out = append(out, &g)
	}
	if err := iter.Err(); err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "break-glass scan")
	}
	return out, nil
}
