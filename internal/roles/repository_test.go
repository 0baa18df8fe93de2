package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoDatabase = errors.New("no database")

// recordingPool captures the options of every transaction it is asked to begin.
type recordingPool struct {
	opts []pgx.TxOptions
}

func (p *recordingPool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.opts = append(p.opts, opts)
	return nil, errNoDatabase
}

func (p *recordingPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNoDatabase
}

func (p *recordingPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestWithTxUsesReadCommitted(t *testing.T) {
	pool := &recordingPool{}
	repo := NewRepository(pool)

	called := false
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, errNoDatabase)
	assert.False(t, called)
	require.Len(t, pool.opts, 1)
	assert.Equal(t, pgx.ReadCommitted, pool.opts[0].IsoLevel,
		"repeatable read would let a writer blocked on the role lock delete from a stale snapshot")
}
