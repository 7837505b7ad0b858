package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/stepbridge/internal/log"
	"github.com/slok/stepbridge/internal/model"
	"github.com/slok/stepbridge/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db       *sql.DB
	migrator *migrations.Migrator
	logger   log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	// Parallel steps record at the same time, wait for the lock instead of failing.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, migrator: migrator, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// CreateExecution stores a new execution record.
func (r *Repository) CreateExecution(ctx context.Context, e model.ExecutionRecord) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid execution: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, step_id, backend,
			command, working_dir,
			exit_code, completed,
			error_kind, error,
			started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.ID,
		e.StepID,
		e.Backend,
		e.Command,
		e.WorkingDir,
		e.ExitCode,
		e.Completed,
		e.ErrorKind,
		e.Error,
		e.StartedAt.UnixMilli(),
		e.FinishedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: executions.") {
			return fmt.Errorf("execution %s: %w", e.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert execution: %w", err)
	}

	r.logger.Debugf("Created execution in repository: %s", e.ID)
	return nil
}

const selectExecutions = `
	SELECT
		id, step_id, backend,
		command, working_dir,
		exit_code, completed,
		error_kind, error,
		started_at, finished_at
	FROM executions
`

// GetExecution retrieves an execution record by ID.
func (r *Repository) GetExecution(ctx context.Context, id string) (*model.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, selectExecutions+` WHERE id = ?`, id)
	e, err := scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query execution: %w", err)
	}

	return &e, nil
}

// ListExecutions returns the execution records, newest first.
func (r *Repository) ListExecutions(ctx context.Context, opts model.ExecutionListOpts) ([]model.ExecutionRecord, error) {
	query := selectExecutions
	var args []any
	if opts.StepID != "" {
		query += ` WHERE step_id = ?`
		args = append(args, opts.StepID)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query executions: %w", err)
	}
	defer rows.Close()

	executions := []model.ExecutionRecord{}
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		executions = append(executions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return executions, nil
}

// Check reports the state of the history database.
func (r *Repository) Check(ctx context.Context) []model.CheckResult {
	if err := r.db.PingContext(ctx); err != nil {
		return []model.CheckResult{{ID: "history_db", Message: fmt.Sprintf("History database not reachable: %s", err), Status: model.CheckStatusError}}
	}

	version, dirty, err := r.migrator.Version(ctx)
	switch {
	case err != nil:
		return []model.CheckResult{{ID: "history_db", Message: fmt.Sprintf("Could not read history schema version: %s", err), Status: model.CheckStatusError}}
	case dirty:
		return []model.CheckResult{{ID: "history_db", Message: fmt.Sprintf("History schema version %d is dirty", version), Status: model.CheckStatusWarning}}
	}

	return []model.CheckResult{{ID: "history_db", Message: fmt.Sprintf("History database ready (schema version %d)", version), Status: model.CheckStatusOK}}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (model.ExecutionRecord, error) {
	var e model.ExecutionRecord
	var startedAt, finishedAt int64

	err := s.Scan(
		&e.ID,
		&e.StepID,
		&e.Backend,
		&e.Command,
		&e.WorkingDir,
		&e.ExitCode,
		&e.Completed,
		&e.ErrorKind,
		&e.Error,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return model.ExecutionRecord{}, err
	}

	e.StartedAt = timeFromUnixMilli(startedAt)
	e.FinishedAt = timeFromUnixMilli(finishedAt)

	return e, nil
}

func timeFromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
