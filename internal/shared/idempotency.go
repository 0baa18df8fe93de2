package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyHeader carries the client-chosen key of a retried mutation.
const IdempotencyHeader = "Idempotency-Key"

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert claims key within module. A key already claimed yields ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, s.now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	return err
}

// Delete releases a key so a failed request can be retried.
func (s *IdempotencyStore) Delete(ctx context.Context, key, module string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND module = $2`, key, module)
	return err
}
