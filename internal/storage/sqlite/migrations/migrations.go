package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/stepbridge/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded execution history schema to a SQLite database.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "storage.SQLiteMigrator"}),
	}, nil
}

// Up applies all the pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "apply migrations", func(inst *migrate.Migrate) error { return inst.Up() })
}

// Down reverts all the migrations.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "revert migrations", func(inst *migrate.Migrate) error { return inst.Down() })
}

// Version returns the current schema version, zero when no migration has been applied.
func (m *Migrator) Version(ctx context.Context) (version uint, dirty bool, err error) {
	err = m.run(ctx, "read migrations version", func(inst *migrate.Migrate) error {
		version, dirty, err = inst.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		return err
	})
	return version, dirty, err
}

func (m *Migrator) run(ctx context.Context, action string, f func(inst *migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not load migrations: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Errorf("could not close migrations source: %s", err)
		}
	}()

	// The driver only wraps the connection pool, closing it would close the pool.
	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not create migration instance: %w", err)
	}

	err = f(inst)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not %s: %w", action, err)
	}

	m.logger.Debugf("Done: %s", action)
	return nil
}
