package datastore

import (
	"context"
	"errors"
	"maps"

	"github.com/jackc/pgx/v5"

	"github.com/rentora/rentora/internal/platform/db"
)

// TxRunner runs fn with an Executor whose operations commit or roll back together.
type TxRunner interface {
	InTx(ctx context.Context, fn func(context.Context, Executor) error) error
}

// ErrNoTransactions is returned when the underlying executor cannot open a transaction.
var ErrNoTransactions = errors.New("datastore: executor does not support transactions")

// InTx runs fn in a transaction of the wrapped executor. The executor handed to fn is
// guarded with the same policy.
func (g *Guard) InTx(ctx context.Context, fn func(context.Context, Executor) error) error {
	runner, ok := g.next.(TxRunner)
	if !ok {
		return ErrNoTransactions
	}
	return runner.InTx(ctx, func(ctx context.Context, inner Executor) error {
		return fn(ctx, g.With(inner))
	})
}

// InTx opens a read-committed transaction on the pool. Nested calls on a handle that is
// already a transaction fail with ErrNoTransactions.
func (p *Postgres) InTx(ctx context.Context, fn func(context.Context, Executor) error) error {
	beginner, ok := p.db.(db.TxBeginner)
	if !ok {
		return ErrNoTransactions
	}
	return db.WithTxOptions(ctx, beginner, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, p.WithDB(tx))
	})
}

// InTx restores every table when fn fails. It does not isolate concurrent callers.
func (m *Memory) InTx(ctx context.Context, fn func(context.Context, Executor) error) error {
	m.mu.Lock()
	saved := make(map[Entity][]Record, len(m.rows))
	for e, rows := range m.rows {
		copied := make([]Record, len(rows))
		for i, r := range rows {
			copied[i] = maps.Clone(r)
		}
		saved[e] = copied
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.rows = saved
		m.mu.Unlock()
		return err
	}
	return nil
}
