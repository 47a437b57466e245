package storetest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errUnsupported = errors.New("storetest: raw SQL is not supported")

// Tx satisfies pgx.Tx. It holds the store lock from Begin until Commit or Rollback,
// so transactions against one Memory are fully serialized.
type Tx struct {
	m        *Memory
	snapshot *state
	done     bool
}

var _ pgx.Tx = (*Tx)(nil)

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("storetest: nested transactions are not supported")
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if err := t.m.takeCommitFailure(); err != nil {
		t.m.st = t.snapshot
		t.m.mu.Unlock()
		return err
	}
	t.m.commits++
	t.m.mu.Unlock()
	return nil
}

// Rollback restores the state captured at Begin. It is a no-op after Commit.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.m.st = t.snapshot
	t.m.rollbacks++
	t.m.mu.Unlock()
	return nil
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errUnsupported
}
func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errUnsupported }
func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errUnsupported
}
func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errUnsupported
}
func (t *Tx) Conn() *pgx.Conn { return nil }
