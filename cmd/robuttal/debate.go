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
	"github.com/spf13/cobra"

	"github.com/robuttal/robuttal/pkg/llm"
	"github.com/robuttal/robuttal/pkg/scheduler"
)

var debateCmd = &cobra.Command{
	Use:   "debate",
	Short: "Debate operations",
}

var debateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single debate immediately, outside the schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		p := scheduler.NewPipeline(store, llm.NewResolver(cfg.APIKeys), cfg)
		return p.RunSingleDebate(ctx)
	},
}

var debateRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover debates stuck in judging, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		s := scheduler.New(store, llm.NewResolver(cfg.APIKeys), cfg)
		return s.RecoverStuckDebates(ctx)
	},
}

func init() {
	debateCmd.AddCommand(debateRunCmd)
	debateCmd.AddCommand(debateRecoverCmd)
}
