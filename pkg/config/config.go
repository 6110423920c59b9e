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
// Package config loads process-wide configuration from environment
// variables, an optional .env file, and an optional YAML config file.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SlotTime is one daily scheduling slot in UTC.
type SlotTime struct {
	Hour   int
	Minute int
}

// DefaultSlots is the production schedule: six debates per day.
var DefaultSlots = []SlotTime{
	{11, 0}, {14, 0}, {17, 0}, {20, 0}, {23, 0}, {2, 0},
}

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	DatabaseURL string

	// APIKeys maps provider tags to API keys. Providers without a key are
	// unusable; their models are skipped by selection validation at call
	// time, not here.
	APIKeys map[string]string

	TopicSelectionMode string // "hybrid", "user_only", "backlog_only"
	Slots              []SlotTime

	MinUserVotes             int
	MatchupCooldownDays      int
	MaxContentFilterRestarts int
	StuckThresholdMinutes    int
	JudgeTimeoutSeconds      int
	EloKFactor               int
}

// Load reads configuration. A .env file in the working directory is loaded
// first if present; real environment variables win over .env entries.
// cfgFile optionally names a YAML file mirroring the same keys.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ROBUTTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.url", "postgres://localhost/robuttal")
	v.SetDefault("topics.selection_mode", "hybrid")
	v.SetDefault("debate.slots", []string{"11:00", "14:00", "17:00", "20:00", "23:00", "02:00"})
	v.SetDefault("debate.min_user_votes", 5)
	v.SetDefault("debate.matchup_cooldown_days", 7)
	v.SetDefault("debate.max_content_filter_restarts", 3)
	v.SetDefault("debate.stuck_threshold_minutes", 5)
	v.SetDefault("debate.judge_timeout_seconds", 120)
	v.SetDefault("debate.elo_k", 32)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	slots, err := parseSlots(v.GetStringSlice("debate.slots"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: v.GetString("database.url"),
		APIKeys: map[string]string{
			"anthropic": v.GetString("providers.anthropic.api_key"),
			"openai":    v.GetString("providers.openai.api_key"),
			"google":    v.GetString("providers.google.api_key"),
			"mistral":   v.GetString("providers.mistral.api_key"),
			"xai":       v.GetString("providers.xai.api_key"),
			"deepseek":  v.GetString("providers.deepseek.api_key"),
		},
		TopicSelectionMode:       v.GetString("topics.selection_mode"),
		Slots:                    slots,
		MinUserVotes:             v.GetInt("debate.min_user_votes"),
		MatchupCooldownDays:      v.GetInt("debate.matchup_cooldown_days"),
		MaxContentFilterRestarts: v.GetInt("debate.max_content_filter_restarts"),
		StuckThresholdMinutes:    v.GetInt("debate.stuck_threshold_minutes"),
		JudgeTimeoutSeconds:      v.GetInt("debate.judge_timeout_seconds"),
		EloKFactor:               v.GetInt("debate.elo_k"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TopicSelectionMode {
	case "hybrid", "user_only", "backlog_only":
	default:
		return fmt.Errorf("invalid topic selection mode %q", c.TopicSelectionMode)
	}
	if len(c.Slots) == 0 {
		return fmt.Errorf("at least one debate slot is required")
	}
	if c.MaxContentFilterRestarts < 0 {
		return fmt.Errorf("max_content_filter_restarts must be non-negative")
	}
	return nil
}

// parseSlots converts "HH:MM" strings into slot times.
func parseSlots(raw []string) ([]SlotTime, error) {
	slots := make([]SlotTime, 0, len(raw))
	for _, s := range raw {
		var h, m int
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return nil, fmt.Errorf("invalid slot time %q: %w", s, err)
		}
		if h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid slot time %q", s)
		}
		slots = append(slots, SlotTime{Hour: h, Minute: m})
	}
	return slots, nil
}
