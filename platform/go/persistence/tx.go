package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxTxKey struct{}

func withPgxTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, pgxTxKey{}, tx)
}

func pgxTxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(pgxTxKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// runInTx executes fn inside a transaction carried on the context. When ctx already carries one, fn
// joins it and the outermost call decides commit or rollback.
func runInTx(ctx context.Context, db txBeginner, fn func(ctx context.Context) error) error {
	if _, ok := pgxTxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translatePgError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(withPgxTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
