package driver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"goflare.io/issuance/driver"
	"goflare.io/issuance/driver/drivertest"
)

func newManager(t *testing.T, pool *drivertest.Pool, opts ...driver.TxOption) *driver.TransactionManager {
	t.Helper()
	return driver.NewTransactionManager(pool, zaptest.NewLogger(t), opts...)
}

func TestExecuteTransactionCommits(t *testing.T) {
	pool := &drivertest.Pool{}
	tm := newManager(t, pool)

	calls := 0
	err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	txs := pool.Txs()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Committed())
	assert.False(t, txs[0].RolledBack())
	assert.Equal(t, pgx.RepeatableRead, pool.Options()[0].IsoLevel)
	assert.Equal(t, []bool{true}, pool.HadDeadlines())
}

func TestExecuteTransactionRollsBackOnError(t *testing.T) {
	pool := &drivertest.Pool{}
	tm := newManager(t, pool)
	boom := errors.New("boom")

	err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	txs := pool.Txs()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].RolledBack())
	assert.False(t, txs[0].Committed())
}

func TestExecuteTransactionRollsBackOnPanic(t *testing.T) {
	pool := &drivertest.Pool{}
	tm := newManager(t, pool)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error { panic("kaboom") })
	})

	txs := pool.Txs()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].RolledBack())
	assert.False(t, txs[0].Committed())
}

func TestExecuteTransactionRetriesSerializationFailures(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"serialization failure", driver.SerializationFailure},
		{"deadlock", driver.DeadlockDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := &drivertest.Pool{}
			tm := newManager(t, pool, driver.WithAttempts(3))

			calls := 0
			err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error {
				calls++
				if calls < 3 {
					return &pgconn.PgError{Code: tt.code}
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 3, calls)

			txs := pool.Txs()
			require.Len(t, txs, 3)
			assert.True(t, txs[0].RolledBack())
			assert.True(t, txs[1].RolledBack())
			assert.True(t, txs[2].Committed())
		})
	}
}

func TestExecuteTransactionGivesUpAfterAttempts(t *testing.T) {
	pool := &drivertest.Pool{}
	tm := newManager(t, pool, driver.WithAttempts(4))

	calls := 0
	err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error {
		calls++
		return &pgconn.PgError{Code: driver.SerializationFailure}
	})
	require.Error(t, err)
	assert.True(t, driver.IsRetryable(err))
	assert.Equal(t, 4, calls)
	assert.Len(t, pool.Txs(), 4)
}

func TestExecuteTransactionRetriesFailedCommit(t *testing.T) {
	pool := &drivertest.Pool{CommitErrs: []error{&pgconn.PgError{Code: driver.SerializationFailure}}}
	tm := newManager(t, pool)

	calls := 0
	err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	txs := pool.Txs()
	require.Len(t, txs, 2)
	assert.False(t, txs[0].Committed())
	assert.True(t, txs[1].Committed())
}

func TestExecuteTransactionDoesNotRetryOtherErrors(t *testing.T) {
	pool := &drivertest.Pool{}
	tm := newManager(t, pool, driver.WithAttempts(5))

	unique := &pgconn.PgError{Code: driver.UniqueViolation}
	calls := 0
	err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error {
		calls++
		return unique
	})
	assert.ErrorIs(t, err, unique)
	assert.Equal(t, 1, calls)
}

func TestExecuteTransactionBeginFailure(t *testing.T) {
	refused := errors.New("connection refused")
	pool := &drivertest.Pool{BeginErr: refused}
	tm := newManager(t, pool)

	err := tm.ExecuteTransaction(context.Background(), func(pgx.Tx) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	assert.ErrorIs(t, err, refused)
}

func TestExecuteReadOnly(t *testing.T) {
	pool := &drivertest.Pool{}
	tm := newManager(t, pool, driver.WithTimeout(time.Second))

	require.NoError(t, tm.ExecuteReadOnly(context.Background(), func(pgx.Tx) error { return nil }))

	opts := pool.Options()
	require.Len(t, opts, 1)
	assert.Equal(t, pgx.ReadOnly, opts[0].AccessMode)
	assert.Equal(t, pgx.ReadCommitted, opts[0].IsoLevel)
}
