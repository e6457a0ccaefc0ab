// Package drivertest provides an in-memory driver.PostgresPool for exercising
// transaction handling without a database.
package drivertest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"goflare.io/issuance/driver"
)

var _ driver.PostgresPool = (*Pool)(nil)

// Pool hands out Tx values and records how each one ended. Methods other than
// Begin, BeginTx, Ping and Close panic.
type Pool struct {
	driver.PostgresPool

	mu       sync.Mutex
	txs      []*Tx
	options  []pgx.TxOptions
	deadline []bool

	// BeginErr is returned by BeginTx when set.
	BeginErr error
	// CommitErrs are returned by successive commits; nil entries commit normally.
	CommitErrs []error
	PingErr    error
}

func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.BeginTx(ctx, pgx.TxOptions{})
}

func (p *Pool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}

	var commitErr error
	if n := len(p.txs); n < len(p.CommitErrs) {
		commitErr = p.CommitErrs[n]
	}
	_, hasDeadline := ctx.Deadline()

	tx := &Tx{commitErr: commitErr}
	p.txs = append(p.txs, tx)
	p.options = append(p.options, opts)
	p.deadline = append(p.deadline, hasDeadline)
	return tx, nil
}

func (p *Pool) Ping(context.Context) error { return p.PingErr }

func (p *Pool) Close() {}

// Txs returns every transaction begun so far, in order.
func (p *Pool) Txs() []*Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Tx(nil), p.txs...)
}

// Options returns the options each transaction was begun with.
func (p *Pool) Options() []pgx.TxOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pgx.TxOptions(nil), p.options...)
}

// HadDeadlines reports, per transaction, whether its context carried a deadline.
func (p *Pool) HadDeadlines() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.deadline...)
}

// Tx records whether it was committed or rolled back. Query methods panic; repositories
// under test are expected to be fakes that ignore the tx.
type Tx struct {
	pgx.Tx

	mu         sync.Mutex
	commitErr  error
	closed     bool
	committed  bool
	rolledBack bool
}

func (t *Tx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if t.commitErr != nil {
		t.rolledBack = true
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.rolledBack = true
	return nil
}

func (t *Tx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

func (t *Tx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}
