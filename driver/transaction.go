package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	// SQLSTATE codes the store layer cares about.
	UniqueViolation      = "23505"
	SerializationFailure = "40001"
	DeadlockDetected     = "40P01"

	defaultTxTimeout  = 3 * time.Second
	defaultTxAttempts = 3
)

type TransactionManager struct {
	conn     PostgresPool
	logger   *zap.Logger
	timeout  time.Duration
	attempts int
}

type TxOption func(*TransactionManager)

// WithTimeout bounds every transaction, including retries.
func WithTimeout(d time.Duration) TxOption {
	return func(tm *TransactionManager) {
		if d > 0 {
			tm.timeout = d
		}
	}
}

// WithAttempts sets how many times a serialization failure is retried.
func WithAttempts(n int) TxOption {
	return func(tm *TransactionManager) {
		if n > 0 {
			tm.attempts = n
		}
	}
}

func NewTransactionManager(conn PostgresPool, logger *zap.Logger, opts ...TxOption) *TransactionManager {
	tm := &TransactionManager{
		conn:     conn,
		logger:   logger.Named("tx"),
		timeout:  defaultTxTimeout,
		attempts: defaultTxAttempts,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// ExecuteTransaction runs fn in a REPEATABLE READ transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, panics included. Serialization failures are retried.
func (tm *TransactionManager) ExecuteTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return tm.execute(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// ExecuteReadOnly runs fn in a read-only READ COMMITTED transaction.
func (tm *TransactionManager) ExecuteReadOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return tm.execute(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, fn)
}

func (tm *TransactionManager) execute(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, tm.timeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= tm.attempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, tm.conn, opts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		tm.logger.Debug("retrying transaction",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", tm.attempts, err)
}

// PgErrorCode returns the SQLSTATE of err, or "" when err is not a Postgres error.
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return PgErrorCode(err) == UniqueViolation
}

func IsRetryable(err error) bool {
	switch PgErrorCode(err) {
	case SerializationFailure, DeadlockDetected:
		return true
	}
	return false
}
