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
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/judge"
	"github.com/robuttal/robuttal/pkg/llm"
)

// maxWatchdogRecoveryAttempts caps how often the watchdog retries a stuck
// debate in one sweep before abandoning it until the next.
const maxWatchdogRecoveryAttempts = 2

// RecoverStuckDebates finds debates stalled in judging past the stuck
// threshold and drives each through the rest of the completion pipeline.
// A debate that cannot be recovered is left for the next sweep.
func (s *Scheduler) RecoverStuckDebates(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.StuckThresholdMinutes) * time.Minute)
	stuck, err := s.store.StuckJudgingDebates(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("finding stuck debates: %w", err)
	}
	for _, d := range stuck {
		log.Warn("recovering stuck debate", zap.String("debate_id", d.ID.String()))
		if err := s.recoverStuckDebate(ctx, d.ID); err != nil {
			log.Error("abandoning stuck debate until next sweep",
				zap.String("debate_id", d.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// recoverStuckDebate replays the completion pipeline. Judgment is skipped
// when scores already exist, and the Elo guard makes replays idempotent. A
// timed-out call gets one retry with a replacement auditor before the
// debate is abandoned.
func (s *Scheduler) recoverStuckDebate(ctx context.Context, debateID uuid.UUID) error {
	excused := make(map[uuid.UUID]bool)
	var records []debate.ExcuseRecord
	var lastErr error

	for attempt := 0; attempt < maxWatchdogRecoveryAttempts; attempt++ {
		d, err := s.store.GetDebate(ctx, debateID)
		if err != nil {
			return fmt.Errorf("loading stuck debate: %w", err)
		}

		svc := judge.New(s.store, s.resolve, time.Duration(s.cfg.JudgeTimeoutSeconds)*time.Second)
		var runErr error
		if d.ProScore == nil || d.ConScore == nil {
			_, runErr = svc.JudgeDebate(ctx, debateID)
		}
		if runErr == nil {
			_, runErr = svc.AuditJudge(ctx, debateID)
		}
		if runErr == nil {
			if err := s.rater.Apply(ctx, s.store, debateID); err != nil {
				return err
			}
			if err := s.completeTopic(ctx, d.TopicID); err != nil {
				return err
			}
			s.mergeExcuses(ctx, debateID, append(records, svc.Excuses()...))
			log.Info("stuck debate recovered", zap.String("debate_id", debateID.String()))
			return nil
		}
		lastErr = runErr

		var te *llm.TimeoutError
		if !errors.As(runErr, &te) || attempt+1 >= maxWatchdogRecoveryAttempts {
			return runErr
		}

		// A timed-out recovery usually means the auditor seat is the
		// problem; the judgment, once persisted, survives replays.
		auditor, err := s.store.GetModel(ctx, d.AuditorID)
		if err != nil {
			return fmt.Errorf("loading auditor: %w", err)
		}
		replacement, err := s.replacementAuditor(ctx, d, excused)
		if err != nil {
			return err
		}
		if replacement == nil {
			return runErr
		}

		excused[auditor.ID] = true
		if err := s.store.IncrementTimesExcused(ctx, auditor.ID); err != nil {
			return fmt.Errorf("recording excuse for %s: %w", auditor.Name, err)
		}
		records = append(records, debate.ExcuseRecord{
			ModelID:              auditor.ID.String(),
			ModelName:            auditor.Name,
			ReplacementModelID:   replacement.ID.String(),
			ReplacementModelName: replacement.Name,
			Role:                 debate.RoleAuditor,
			Provider:             auditor.Provider,
			ErrorMessage:         runErr.Error(),
			Attempt:              attempt + 1,
			Reason:               "timeout",
		})

		d.AuditorID = replacement.ID
		if err := s.store.UpdateDebate(ctx, d); err != nil {
			return fmt.Errorf("seating replacement auditor: %w", err)
		}
		log.Warn("replaced auditor for recovery retry",
			zap.String("debate_id", debateID.String()),
			zap.String("excused", auditor.Name),
			zap.String("replacement", replacement.Name))
	}
	return lastErr
}

// replacementAuditor picks the highest-rated active model that holds no
// seat in the debate and has not already been excused from it.
func (s *Scheduler) replacementAuditor(ctx context.Context, d *debate.Debate, excused map[uuid.UUID]bool) (*debate.Model, error) {
	exclude := []uuid.UUID{d.JudgeID, d.DebaterProID, d.DebaterConID, d.AuditorID}
	for id := range excused {
		exclude = append(exclude, id)
	}
	models, err := s.store.ListActiveModels(ctx, exclude)
	if err != nil {
		return nil, fmt.Errorf("finding replacement auditor: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0], nil
}

// completeTopic marks the debate's topic debated unless a previous
// recovery pass already did.
func (s *Scheduler) completeTopic(ctx context.Context, topicID uuid.UUID) error {
	t, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return fmt.Errorf("loading topic: %w", err)
	}
	if t.Status == debate.TopicStatusDebated {
		return nil
	}
	if err := s.store.MarkTopicDebated(ctx, topicID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking topic debated: %w", err)
	}
	return nil
}

// mergeExcuses appends recovery excuse records to the debate metadata.
// Failure to persist them is logged, not fatal: the debate itself is
// already complete.
func (s *Scheduler) mergeExcuses(ctx context.Context, debateID uuid.UUID, records []debate.ExcuseRecord) {
	if len(records) == 0 {
		return
	}
	d, err := s.store.GetDebate(ctx, debateID)
	if err != nil {
		log.Error("failed to load debate for excuse records", zap.Error(err))
		return
	}
	if d.AnalysisMetadata == nil {
		d.AnalysisMetadata = &debate.AnalysisMetadata{}
	}
	d.AnalysisMetadata.ContentFilterExcuses = append(d.AnalysisMetadata.ContentFilterExcuses, records...)
	if err := s.store.UpdateDebate(ctx, d); err != nil {
		log.Error("failed to store recovery excuse records", zap.Error(err))
	}
}
