package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyTable map[string]bool

func (k keyTable) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	key := args[0].(string) + "/" + args[1].(string)
	switch sql[:6] {
	case "INSERT":
		if k[key] {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		}
		k[key] = true
	case "DELETE":
		delete(k, key)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func TestIdempotencyStore(t *testing.T) {
	store := NewIdempotencyStore(keyTable{})
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "abc", "tenants"))
	assert.ErrorIs(t, store.CheckAndInsert(ctx, "abc", "tenants"), ErrIdempotencyConflict)
	require.NoError(t, store.CheckAndInsert(ctx, "abc", "assets"))

	require.NoError(t, store.Delete(ctx, "abc", "tenants"))
	require.NoError(t, store.CheckAndInsert(ctx, "abc", "tenants"))

	assert.Error(t, store.CheckAndInsert(ctx, "", "tenants"))
	var nilStore *IdempotencyStore
	assert.False(t, errors.Is(nilStore.Delete(ctx, "abc", "tenants"), ErrIdempotencyConflict))
}
