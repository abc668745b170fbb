package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/cascade/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps run history in SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path, now: time.Now}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	memory := s.path == ":memory:" || strings.Contains(s.path, "mode=memory")

	dsn := s.path
	if !memory {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", s.path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// CreateRun inserts a run row.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT INTO runs (id, target, status, options, started_at, completed_at, duration_ms, executed, fresh, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Target,
		run.Status,
		run.Options,
		run.StartedAt,
		run.CompletedAt,
		run.DurationMS,
		run.Executed,
		run.Fresh,
		run.Failed,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun records the final status and counters of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *RunRecord) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, duration_ms = ?, executed = ?, fresh = ?, failed = ?, error = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		run.Status,
		run.CompletedAt,
		run.DurationMS,
		run.Executed,
		run.Fresh,
		run.Failed,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, target, status, options, started_at, completed_at, duration_ms, executed, fresh, failed, error
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	query := `
		SELECT id, target, status, options, started_at, completed_at, duration_ms, executed, fresh, failed, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// RecordNode appends a node execution row.
func (s *SQLiteStore) RecordNode(ctx context.Context, node *NodeExecution) error {
	query := `
		INSERT INTO node_executions (run_id, workflow, state, reason, executed, fingerprint, output_path, duration_ms, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		node.RunID,
		node.Workflow,
		node.State,
		node.Reason,
		node.Executed,
		node.Fingerprint,
		node.OutputPath,
		node.DurationMS,
		node.Error,
		node.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record node execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	node.ID = id

	return nil
}

// ListNodeExecutions returns the node rows of a run in recording order.
func (s *SQLiteStore) ListNodeExecutions(ctx context.Context, runID string) ([]*NodeExecution, error) {
	query := `
		SELECT id, run_id, workflow, state, reason, executed, fingerprint, output_path, duration_ms, error, recorded_at
		FROM node_executions
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node executions: %w", err)
	}
	defer rows.Close()

	nodes := []*NodeExecution{}
	for rows.Next() {
		n := &NodeExecution{}
		err := rows.Scan(
			&n.ID,
			&n.RunID,
			&n.Workflow,
			&n.State,
			&n.Reason,
			&n.Executed,
			&n.Fingerprint,
			&n.OutputPath,
			&n.DurationMS,
			&n.Error,
			&n.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}
		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return nodes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	run := &RunRecord{}
	err := row.Scan(
		&run.ID,
		&run.Target,
		&run.Status,
		&run.Options,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMS,
		&run.Executed,
		&run.Fresh,
		&run.Failed,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunStarted implements engine.RunRecorder.
func (s *SQLiteStore) RunStarted(ctx context.Context, run *engine.RunResult) error {
	options, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("failed to encode run options: %w", err)
	}
	return s.CreateRun(ctx, &RunRecord{
		ID:        run.RunID,
		Target:    run.Target,
		Status:    string(run.Status),
		Options:   string(options),
		StartedAt: run.StartedAt.UTC(),
	})
}

// NodeFinished implements engine.RunRecorder.
func (s *SQLiteStore) NodeFinished(ctx context.Context, runID string, node *engine.NodeResult) error {
	return s.RecordNode(ctx, &NodeExecution{
		RunID:       runID,
		Workflow:    node.Workflow,
		State:       string(node.State),
		Reason:      nullable(node.Reason),
		Executed:    node.Executed,
		Fingerprint: nullable(node.Fingerprint),
		OutputPath:  nullable(node.OutputPath),
		DurationMS:  node.Duration.Milliseconds(),
		Error:       nullable(node.Error),
		RecordedAt:  s.now().UTC(),
	})
}

// RunFinished implements engine.RunRecorder.
func (s *SQLiteStore) RunFinished(ctx context.Context, run *engine.RunResult) error {
	completed := run.CompletedAt.UTC()
	return s.FinishRun(ctx, &RunRecord{
		ID:          run.RunID,
		Status:      string(run.Status),
		CompletedAt: &completed,
		DurationMS:  run.Duration.Milliseconds(),
		Executed:    run.Summary.Executed,
		Fresh:       run.Summary.Fresh,
		Failed:      run.Summary.Failed,
		Error:       nullable(run.Error),
	})
}
