package tenancytest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is a pgx.Tx that records statements. Methods it does not override panic via the nil embedded interface.
type Tx struct {
	pgx.Tx

	mu         sync.Mutex
	Statements []string
	Args       [][]any
	Committed  bool
	RolledBack bool
	ExecErr    error
	CommitErr  error
	// CommitCtxErr is the state of the context Commit was called with.
	CommitCtxErr error
	Savepoints   []*Tx
	// Rows answers QueryRow; nil yields pgx.ErrNoRows.
	Rows func(sql string, args ...any) pgx.Row
}

func (t *Tx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Statements = append(t.Statements, sql)
	t.Args = append(t.Args, args)
	return pgconn.NewCommandTag("SELECT 1"), t.ExecErr
}

func (t *Tx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.mu.Lock()
	t.Statements = append(t.Statements, sql)
	t.Args = append(t.Args, args)
	rows := t.Rows
	t.mu.Unlock()
	if rows == nil {
		return errRow{pgx.ErrNoRows}
	}
	return rows(sql, args...)
}

// Begin opens a savepoint. It shares the parent's Rows and ExecErr.
func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sp := &Tx{Rows: t.Rows, ExecErr: t.ExecErr}
	t.Savepoints = append(t.Savepoints, sp)
	return sp, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Committed || t.RolledBack {
		return pgx.ErrTxClosed
	}
	t.CommitCtxErr = ctx.Err()
	t.Committed = true
	return t.CommitErr
}

func (t *Tx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Committed || t.RolledBack {
		return pgx.ErrTxClosed
	}
	t.RolledBack = true
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// Beginner hands out recording transactions.
type Beginner struct {
	mu       sync.Mutex
	attempts int
	Txs      []*Tx
	Err      error
	// NewTx customises each transaction before it is returned.
	NewTx func(*Tx)
}

// Begin returns a new Tx, or Err.
func (b *Beginner) Begin(context.Context) (pgx.Tx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.Err != nil {
		return nil, b.Err
	}
	tx := &Tx{}
	if b.NewTx != nil {
		b.NewTx(tx)
	}
	b.Txs = append(b.Txs, tx)
	return tx, nil
}

// Calls returns how many times Begin was called, including failed attempts.
func (b *Beginner) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// ErrDown simulates an unreachable database.
var ErrDown = errors.New("connection refused")

// Row answers Scan with fixed values, assigned positionally. Nil values leave the destination untouched.
type Row []any

func (r Row) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("tenancytest: scan %d values into %d destinations", len(r), len(dest))
	}
	for i, v := range r {
		if v == nil {
			continue
		}
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}
