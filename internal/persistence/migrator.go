package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Migrator runs SQL migration files in order.
// Compatible with golang-migrate file naming: {version}_{name}.up.sql / .down.sql
type Migrator struct {
	db            *sql.DB
	migrationsDir string
	logger        zerolog.Logger
}

// MigrationStatus is one migration file and whether it has been applied.
type MigrationStatus struct {
	Version   string
	Filename  string
	Applied   bool
	AppliedAt time.Time
}

func NewMigrator(db *sql.DB, migrationsDir string, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, migrationsDir: migrationsDir, logger: logger}
}

// Up applies all pending up-migrations in order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return 0, fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("get applied versions: %w", err)
	}

	files, err := m.listMigrationFiles(".up.sql")
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	count := 0
	for _, f := range files {
		version := extractVersion(f)
		if _, ok := applied[version]; ok {
			continue
		}
		m.logger.Info().Str("file", f).Msg("applying migration")
		if err := m.apply(ctx, f, version); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// apply runs one up-migration and records it in the same transaction.
func (m *Migrator) apply(ctx context.Context, file, version string) error {
	content, err := os.ReadFile(filepath.Join(m.migrationsDir, file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	return m.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
			version, file,
		); err != nil {
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		return nil
	})
}

func (m *Migrator) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Down rolls back the last applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return err
	}

	// Get the latest applied version
	var version, filename string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &filename)
	if errors.Is(err, sql.ErrNoRows) {
		m.logger.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get latest migration: %w", err)
	}

	// Find corresponding down file
	downFile := strings.Replace(filename, ".up.sql", ".down.sql", 1)
	content, err := os.ReadFile(filepath.Join(m.migrationsDir, downFile))
	if err != nil {
		return fmt.Errorf("read down migration %s: %w", downFile, err)
	}

	err = m.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec down migration %s: %w", downFile, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM public.schema_migrations WHERE version = $1`, version,
		); err != nil {
			return fmt.Errorf("remove migration record %s: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info().Str("file", downFile).Msg("rolled back migration")
	return nil
}

// Status lists every up-migration file with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return nil, err
	}

	appliedAt, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	files, err := m.listMigrationFiles(".up.sql")
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		version := extractVersion(f)
		at, ok := appliedAt[version]
		statuses = append(statuses, MigrationStatus{
			Version:   version,
			Filename:  f,
			Applied:   ok,
			AppliedAt: at,
		})
	}
	return statuses, nil
}

func (m *Migrator) ensureMigrationTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// appliedVersions maps each applied version to when it ran.
func (m *Migrator) appliedVersions(ctx context.Context) (map[string]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version, applied_at FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			v  string
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		applied[v] = at
	}
	return applied, rows.Err()
}

func (m *Migrator) listMigrationFiles(suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}

// extractVersion returns the numeric prefix from a migration filename.
// e.g. "000001_spark.up.sql" -> "000001"
func extractVersion(filename string) string {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) > 0 {
		return parts[0]
	}
	return filename
}
