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
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robuttal/robuttal/pkg/storage/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
			return m.MigrateUp(ctx)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
			return m.MigrateDown(ctx, migrateSteps)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
			version, err := m.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			pending, err := m.PendingMigrations(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Current version: %d\n", version)
			if len(pending) == 0 {
				fmt.Println("No pending migrations")
				return nil
			}
			fmt.Println("Pending:")
			for _, p := range pending {
				fmt.Printf("  %d: %s\n", p.Version, p.Description)
			}
			return nil
		})
	},
}

func withMigrator(ctx context.Context, fn func(context.Context, *postgres.Migrator) error) error {
	_, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := postgres.NewMigrator(store.Pool())
	if err != nil {
		return err
	}
	return fn(ctx, m)
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
