// Package warehouse owns the embedded SQLite database holding staging,
// dimension, history, fact, report and metadata relations.
package warehouse

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

//go:embed schema.sql
var schemaSQL string

//go:embed staging.sql
var stagingSQL string

// DefaultPath is used when Open receives an empty path.
const DefaultPath = "database.db"

const busyTimeoutMillis = 5000

var sqlOpen = sql.Open

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store wraps the warehouse database handle. A single connection is kept
// open so that every phase observes one writer.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Option customises Open.
type Option func(*Store)

// WithLogger attaches a logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for read-only helpers and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates every durable relation that does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ExecScript(ctx, "migrate", schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ResetStaging drops and recreates the STG_* relations.
func (s *Store) ResetStaging(ctx context.Context) error {
	return s.ExecScript(ctx, "reset-staging", stagingSQL)
}

// ExecScript runs every statement of script inside a single transaction.
func (s *Store) ExecScript(ctx context.Context, phase, script string) error {
	stmts := SplitStatements(script)
	return s.RunInTransaction(ctx, phase, func(tx *sql.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, Classify(err, phase))
			}
		}
		return nil
	})
}

// RunInTransaction executes fn in one transaction. Any error, or a panic,
// rolls back every write made by fn; errors come back as *PhaseError.
func (s *Store) RunInTransaction(ctx context.Context, phase string, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PhaseError{Phase: phase, Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if retErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", zap.String("phase", phase), zap.Error(rbErr))
			}
			s.logger.Debug("phase rolled back", zap.String("phase", phase), zap.Error(retErr))
		}
	}()
	if err := fn(tx); err != nil {
		return &PhaseError{Phase: phase, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &PhaseError{Phase: phase, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// TableExists reports whether a table or view called name exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	return TableExists(ctx, s.db, name)
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	if err := ValidateIdent(table); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableExists reports whether q can see a table or view called name.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", name, err)
	}
	return n > 0, nil
}

// ValidateIdent rejects anything that is not a plain SQL identifier. Table
// and column names are interpolated into generated statements.
func ValidateIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}
