package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes fn within a transaction using the RepeatableRead isolation level. The
// transaction is rolled back when fn returns an error.
func WithTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	return WithTxOptions(ctx, db, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithTxOptions is WithTx with explicit transaction options.
func WithTxOptions(ctx context.Context, db TxBeginner, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
