// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is a single schema migration step.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrator applies embedded SQL migrations to the database.
type Migrator struct {
	pool       *pgxpool.Pool
	migrations []Migration
}

// NewMigrator loads the embedded migration files and returns a migrator
// bound to the given pool.
func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	return &Migrator{pool: pool, migrations: migrations}, nil
}

// migrationAdvisoryLockID guards against concurrent migration runs from
// multiple instances.
const migrationAdvisoryLockID = 471208936

// MigrateUp applies all pending migrations in version order.
func (m *Migrator) MigrateUp(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationAdvisoryLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer func() {
		// Released on disconnect regardless.
		_, _ = m.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationAdvisoryLockID)
	}()

	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}
		log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", migration.Version, err)
		}
		applied++
	}

	log.Info("migrations up to date", zap.Int("applied", applied))
	return nil
}

// MigrateDown rolls back the given number of applied migrations, newest
// first.
func (m *Migrator) MigrateDown(ctx context.Context, steps int) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	rolled := 0
	for i := len(m.migrations) - 1; i >= 0 && rolled < steps; i-- {
		migration := m.migrations[i]
		if migration.Version > current {
			continue
		}
		log.Info("rolling back migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))
		if err := m.rollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("rollback of migration %d: %w", migration.Version, err)
		}
		rolled++
	}
	return nil
}

// CurrentVersion returns the highest applied migration version, or zero
// when none have run.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading current migration version: %w", err)
	}
	return version, nil
}

// PendingMigrations returns migrations not yet applied.
func (m *Migrator) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, migration := range m.migrations {
		if migration.Version > current {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			description TEXT
		)
	`)
	return err
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("executing migration SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		migration.Version, migration.Description,
	); err != nil {
		return fmt.Errorf("recording migration version: %w", err)
	}
	return tx.Commit(ctx)
}

func (m *Migrator) rollbackMigration(ctx context.Context, migration Migration) error {
	if migration.DownSQL == "" {
		return fmt.Errorf("no down migration for version %d", migration.Version)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
		return fmt.Errorf("executing rollback SQL: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM schema_migrations WHERE version = $1", migration.Version,
	); err != nil {
		return fmt.Errorf("removing migration version: %w", err)
	}
	return tx.Commit(ctx)
}

// loadMigrations pairs NNNNNN_description.up.sql and .down.sql files from
// the embedded filesystem.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	upFiles := make(map[int]string)
	downFiles := make(map[int]string)
	descriptions := make(map[int]string)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading migration file %s: %w", name, err)
		}

		switch {
		case strings.HasSuffix(parts[1], ".up.sql"):
			descriptions[version] = strings.TrimSuffix(parts[1], ".up.sql")
			upFiles[version] = string(content)
		case strings.HasSuffix(parts[1], ".down.sql"):
			downFiles[version] = string(content)
		}
	}

	var versions []int
	for v := range upFiles {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	migrations := make([]Migration, 0, len(versions))
	for _, v := range versions {
		migrations = append(migrations, Migration{
			Version:     v,
			Description: descriptions[v],
			UpSQL:       upFiles[v],
			DownSQL:     downFiles[v],
		})
	}
	return migrations, nil
}
