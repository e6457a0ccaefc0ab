package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

const migrationsDir = "sql"

// Files returns the embedded migration files.
func Files() (fs.FS, error) {
	return fs.Sub(embedded, migrationsDir)
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(databaseURL string, logger *zap.Logger) error {
	return run(databaseURL, logger, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// Down reverts the last applied migration.
func Down(databaseURL string, logger *zap.Logger) error {
	return run(databaseURL, logger, func(m *migrate.Migrate) error {
		return m.Steps(-1)
	})
}

func run(databaseURL string, logger *zap.Logger, step func(*migrate.Migrate) error) error {
	if databaseURL == "" {
		return errors.New("migration database url is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sub, err := Files()
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err = step(migrator); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("schema has no migrations applied")
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		logger.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
