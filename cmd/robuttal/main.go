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

	"github.com/spf13/cobra"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/config"
	"github.com/robuttal/robuttal/pkg/storage/postgres"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "robuttal",
	Short: "Scheduled adversarial debates between language models",
	Long: `Robuttal runs structured debates between language models on a daily
schedule: two debaters argue a topic through fixed phases, a judge scores
the transcript, an auditor grades the judge's work, and Elo ratings track
who argues best over time.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(debateCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// openStore loads configuration and connects to the database. The caller
// owns the returned store and must Close it.
func openStore(ctx context.Context) (*config.Config, *postgres.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, store, nil
}

func main() {
	defer func() { _ = log.Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
