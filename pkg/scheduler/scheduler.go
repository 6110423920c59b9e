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
// Package scheduler runs debates on the daily slot schedule and recovers
// debates that stall mid-judgment.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/config"
	"github.com/robuttal/robuttal/pkg/elo"
	"github.com/robuttal/robuttal/pkg/llm"
	"github.com/robuttal/robuttal/pkg/storage"
)

// watchdogDelayMinutes is how long after each slot the watchdog sweeps,
// enough for a healthy debate to clear judging on its own.
const watchdogDelayMinutes = 5

// watchdogSafetyNetSpec sweeps continuously so a debate stuck between
// slots does not wait for the next one.
const watchdogSafetyNetSpec = "*/10 * * * *"

// Scheduler owns the cron engine. Each configured slot gets a debate job
// and a trailing watchdog sweep; a ten-minute safety net sweep runs on
// top of those.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	store    storage.Store
	resolve  llm.Resolver
	rater    elo.Rater
	cfg      *config.Config
}

// New returns a Scheduler. Slots are interpreted in UTC.
func New(store storage.Store, resolve llm.Resolver, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		pipeline: NewPipeline(store, resolve, cfg),
		store:    store,
		resolve:  resolve,
		rater:    elo.NewRater(cfg.EloKFactor),
		cfg:      cfg,
	}
}

// Pipeline exposes the debate pipeline for manual triggering.
func (s *Scheduler) Pipeline() *Pipeline {
	return s.pipeline
}

// Start registers the slot and watchdog jobs and starts the cron engine.
func (s *Scheduler) Start() error {
	for _, slot := range s.cfg.Slots {
		slot := slot
		if _, err := s.cron.AddFunc(slotSpec(slot), func() { s.runScheduledDebate(slot) }); err != nil {
			return fmt.Errorf("registering debate slot %02d:%02d: %w", slot.Hour, slot.Minute, err)
		}
		if _, err := s.cron.AddFunc(watchdogSpec(slot), s.runWatchdog); err != nil {
			return fmt.Errorf("registering watchdog for slot %02d:%02d: %w", slot.Hour, slot.Minute, err)
		}
	}
	if _, err := s.cron.AddFunc(watchdogSafetyNetSpec, s.runWatchdog); err != nil {
		return fmt.Errorf("registering watchdog safety net: %w", err)
	}

	s.cron.Start()
	log.Info("scheduler started",
		zap.Int("slots", len(s.cfg.Slots)),
		zap.String("selection_mode", s.cfg.TopicSelectionMode))
	return nil
}

// Stop halts the cron engine and waits for running jobs to finish or the
// context to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
		log.Info("scheduler stopped")
	case <-ctx.Done():
		log.Warn("scheduler shutdown timed out, a debate may still be running")
	}
}

func (s *Scheduler) runScheduledDebate(slot config.SlotTime) {
	log.Info("debate slot fired",
		zap.Int("hour", slot.Hour),
		zap.Int("minute", slot.Minute))
	if err := s.pipeline.RunSingleDebate(context.Background()); err != nil {
		log.Error("scheduled debate failed", zap.Error(err))
	}
}

func (s *Scheduler) runWatchdog() {
	if err := s.RecoverStuckDebates(context.Background()); err != nil {
		log.Error("watchdog sweep failed", zap.Error(err))
	}
}

// slotSpec renders a slot as a five-field cron expression.
func slotSpec(slot config.SlotTime) string {
	return fmt.Sprintf("%d %d * * *", slot.Minute, slot.Hour)
}

// watchdogSpec renders the sweep that trails a slot, carrying across the
// hour and day boundaries.
func watchdogSpec(slot config.SlotTime) string {
	minute := slot.Minute + watchdogDelayMinutes
	hour := slot.Hour
	if minute >= 60 {
		minute -= 60
		hour = (hour + 1) % 24
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}
