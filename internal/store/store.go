// Package store owns the Postgres pool wrapper and schema used by every repository.
package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// TxBeginner abstracts transaction creation so services and tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB begins every transaction at the configured isolation level.
type DB struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

func New(pool *pgxpool.Pool, iso pgx.TxIsoLevel) *DB {
	return &DB{pool: pool, opts: pgx.TxOptions{IsoLevel: iso}}
}

var _ TxBeginner = (*DB)(nil)

func (d *DB) Begin(ctx context.Context) (pgx.Tx, error) {
	return d.pool.BeginTx(ctx, d.opts)
}

// Migrate applies the idempotent application schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside one transaction. Any error from fn rolls back; a nil
// return commits.
func WithTx(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
