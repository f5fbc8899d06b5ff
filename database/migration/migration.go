// Package migration applies versioned schema changes to the Postgres database
// and records them in the migration_history table.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const name = "github.com/freekieb7/jet/database/migration"

var logger = otelslog.NewLogger(name)

var (
	ErrDuplicateVersion = errors.New("migration: duplicate version")
	ErrUnknownVersion   = errors.New("migration: applied version is not registered")
)

// Migration is a single schema change. Versions are ordered lexically, so
// they are usually prefixed with a sortable number.
type Migration interface {
	Version() string
	Description() string
	Up(ctx context.Context) (string, []any)
	Down(ctx context.Context) (string, []any)
}

type Registry struct {
	mu         sync.RWMutex
	migrations []Migration
}

var defaultRegistry = &Registry{}

// Register adds m to the package registry. It is meant to be called from init.
func Register(m Migration) error {
	return defaultRegistry.Register(m)
}

func (r *Registry) Register(m Migration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.Version() == "" || m.Version() == (historyMigration{}).Version() {
		return fmt.Errorf("migration: reserved or empty version %q", m.Version())
	}
	for _, existing := range r.migrations {
		if existing.Version() == m.Version() {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, m.Version())
		}
	}
	r.migrations = append(r.migrations, m)
	return nil
}

// Migrations returns the registered migrations sorted by version.
func (r *Registry) Migrations() []Migration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := slices.Clone(r.migrations)
	slices.SortFunc(sorted, func(a, b Migration) int {
		return strings.Compare(a.Version(), b.Version())
	})
	return sorted
}

type Migrator struct {
	db       *sqlx.DB
	registry *Registry
}

// NewMigrator returns a migrator over registry, or over the package registry
// when registry is nil.
func NewMigrator(db *sqlx.DB, registry *Registry) *Migrator {
	if registry == nil {
		registry = defaultRegistry
	}
	return &Migrator{
		db:       db,
		registry: registry,
	}
}

// Up applies every registered migration that is not yet in the history, in
// one transaction, and returns the versions it applied.
func (migrator *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := migrator.ensureHistory(ctx); err != nil {
		return nil, err
	}

	var done []string
	if err := migrator.db.SelectContext(ctx, &done, `SELECT version FROM migration_history`); err != nil {
		return nil, fmt.Errorf("migration: read history: %w", err)
	}

	var pending []Migration
	for _, migration := range migrator.registry.Migrations() {
		if !slices.Contains(done, migration.Version()) {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	transaction, err := migrator.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(transaction)

	applied := make([]string, 0, len(pending))
	for _, migration := range pending {
		query, arguments := migration.Up(ctx)
		if _, err := transaction.ExecContext(ctx, query, arguments...); err != nil {
			return nil, fmt.Errorf("migration: up %s: %w", migration.Version(), err)
		}
		if _, err := transaction.ExecContext(ctx,
			`INSERT INTO migration_history (version, description, performed_at) VALUES ($1, $2, $3)`,
			migration.Version(), migration.Description(), time.Now().UTC(),
		); err != nil {
			return nil, fmt.Errorf("migration: record %s: %w", migration.Version(), err)
		}
		applied = append(applied, migration.Version())
	}

	if err := transaction.Commit(); err != nil {
		return nil, err
	}
	for _, version := range applied {
		logger.InfoContext(ctx, "migration applied", "version", version)
	}
	return applied, nil
}

// Down reverts the most recently applied migration and returns its version,
// or "" when nothing was applied.
func (migrator *Migrator) Down(ctx context.Context) (string, error) {
	if err := migrator.ensureHistory(ctx); err != nil {
		return "", err
	}

	current, err := migrator.CurrentVersion(ctx)
	if err != nil || current == "" {
		return "", err
	}

	idx := slices.IndexFunc(migrator.registry.Migrations(), func(m Migration) bool {
		return m.Version() == current
	})
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownVersion, current)
	}
	migration := migrator.registry.Migrations()[idx]

	transaction, err := migrator.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer rollback(transaction)

	query, arguments := migration.Down(ctx)
	if _, err := transaction.ExecContext(ctx, query, arguments...); err != nil {
		return "", fmt.Errorf("migration: down %s: %w", current, err)
	}
	if _, err := transaction.ExecContext(ctx, `DELETE FROM migration_history WHERE version = $1`, current); err != nil {
		return "", fmt.Errorf("migration: forget %s: %w", current, err)
	}
	if err := transaction.Commit(); err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "migration reverted", "version", current)
	return current, nil
}

// CurrentVersion returns the last applied version, or "" when the history is
// empty.
func (migrator *Migrator) CurrentVersion(ctx context.Context) (string, error) {
	var currentVersion string
	err := migrator.db.GetContext(ctx, &currentVersion,
		`SELECT version FROM migration_history ORDER BY performed_at DESC, version DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("migration: current version: %w", err)
	}
	return currentVersion, nil
}

func (migrator *Migrator) ensureHistory(ctx context.Context) error {
	query, arguments := historyMigration{}.Up(ctx)
	if _, err := migrator.db.ExecContext(ctx, query, arguments...); err != nil {
		return fmt.Errorf("migration: create history: %w", err)
	}
	return nil
}

func rollback(transaction *sqlx.Tx) {
	if err := transaction.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Error("rollback failed", "error", err)
	}
}
