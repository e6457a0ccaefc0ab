package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultMaxConns       = 20
	defaultMinConns       = 2
	defaultMaxConnLife    = time.Hour
)

// PostgresPool is the subset of *pgxpool.Pool the repositories and transaction manager use.
type PostgresPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB holds the connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ConnectSQL creates the pgx pool and pings it once so a bad DSN fails at startup
// rather than on the first allocation.
func ConnectSQL(dsn string, opts ...PoolOptions) (*DB, error) {

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	poolConfig.MinConns = defaultMinConns
	poolConfig.MaxConnLifetime = defaultMaxConnLife
	if len(opts) > 0 {
		if opts[0].MaxConns > 0 {
			poolConfig.MaxConns = opts[0].MaxConns
		}
		if opts[0].MinConns > 0 {
			poolConfig.MinConns = opts[0].MinConns
		}
		if opts[0].MaxConnLifetime > 0 {
			poolConfig.MaxConnLifetime = opts[0].MaxConnLifetime
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &DB{Pool: pool}, nil
}
