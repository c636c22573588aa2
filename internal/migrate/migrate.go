package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

const defaultMigrationsTable = "schema_migrations"

// Migration is one versioned schema step. Applies reports whether the
// change is still missing from the live schema; a migration whose change is
// already present is recorded without executing its statements.
type Migration struct {
	Version    int
	Name       string
	Applies    func(ctx context.Context, db *sql.DB) (bool, error)
	Statements []string
}

// Manager applies migrations in version order and keeps a bookkeeping table.
type Manager struct {
	db              *sql.DB
	migrations      []Migration
	migrationsTable string
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithMigrations replaces the built-in migration list.
func WithMigrations(migrations []Migration) Option {
	return func(m *Manager) {
		m.migrations = migrations
	}
}

func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		migrations:      Migrations(),
		migrationsTable: defaultMigrationsTable,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every pending migration. Any failure stops the run.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for _, mig := range m.migrations {
		if mig.Version <= last {
			return fmt.Errorf("migration %d (%s) is out of order", mig.Version, mig.Name)
		}
		last = mig.Version
		if applied[mig.Version] {
			continue
		}

		needed := true
		if mig.Applies != nil {
			needed, err = mig.Applies(ctx, m.db)
			if err != nil {
				return fmt.Errorf("check migration %d (%s): %w", mig.Version, mig.Name, err)
			}
		}
		if needed {
			if err := m.exec(ctx, mig); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
			}
			log.Printf("Applied migration %d (%s)", mig.Version, mig.Name)
		}
		if err := m.record(ctx, mig); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the applied versions in order.
func (m *Manager) Status(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT version FROM %s ORDER BY version`, m.migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (m *Manager) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, m.migrationsTable)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

func (m *Manager) applied(ctx context.Context) (map[int]bool, error) {
	versions, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}

func (m *Manager) exec(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range mig.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, mig Migration) error {
	_, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (version, name) VALUES ($1, $2)`, m.migrationsTable),
		mig.Version, mig.Name)
	return err
}
