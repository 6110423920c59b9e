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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/llm"
	"github.com/robuttal/robuttal/pkg/scheduler"
	"github.com/robuttal/robuttal/pkg/storage/postgres"
)

// shutdownGracePeriod is how long a running debate gets to finish after a
// termination signal before the process exits anyway.
const shutdownGracePeriod = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the debate scheduler until interrupted",
	Long: `Applies pending schema migrations, then starts the cron engine: one
debate per configured slot, with watchdog sweeps that recover debates
stuck in judging.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	migrator, err := postgres.NewMigrator(store.Pool())
	if err != nil {
		return err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	s := scheduler.New(store, llm.NewResolver(cfg.APIKeys), cfg)
	if err := s.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received, stopping scheduler")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}
