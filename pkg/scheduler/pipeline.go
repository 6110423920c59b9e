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
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/config"
	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/elo"
	"github.com/robuttal/robuttal/pkg/judge"
	"github.com/robuttal/robuttal/pkg/llm"
	"github.com/robuttal/robuttal/pkg/orchestrator"
	"github.com/robuttal/robuttal/pkg/storage"
)

// Pipeline drives one debate end to end: topic and participant selection,
// orchestration, judgment, audit, rating updates, and topic bookkeeping.
// Failures attributable to a single participant consume the restart
// budget: the participant is excused, the transcript is wiped, and the
// debate reruns with a fresh quartet on the same row.
type Pipeline struct {
	store   storage.Store
	resolve llm.Resolver
	rater   elo.Rater
	cfg     *config.Config
	rnd     *rand.Rand
}

// NewPipeline returns a Pipeline bound to the given store and resolver.
func NewPipeline(store storage.Store, resolve llm.Resolver, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store:   store,
		resolve: resolve,
		rater:   elo.NewRater(cfg.EloKFactor),
		cfg:     cfg,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RunSingleDebate executes one complete debate. An empty topic pool is not
// an error; the slot is skipped. When the restart budget runs out the
// topic returns to the pending pool and the last error is returned.
func (p *Pipeline) RunSingleDebate(ctx context.Context) error {
	topic, err := SelectNextTopic(ctx, p.store, p.cfg.TopicSelectionMode, p.cfg.MinUserVotes)
	if err != nil {
		return fmt.Errorf("selecting topic: %w", err)
	}
	if topic == nil {
		log.Warn("no topic available, skipping debate slot")
		return nil
	}

	debateID := uuid.New()
	excused := make(map[uuid.UUID]bool)
	var records []debate.ExcuseRecord
	cooldown := time.Duration(p.cfg.MatchupCooldownDays) * 24 * time.Hour

	for attempt := 0; ; attempt++ {
		quartet, err := SelectDebateModels(ctx, p.store, excused, cooldown, p.rnd)
		if err != nil {
			return err
		}
		if quartet == nil {
			return fmt.Errorf("not enough active models to seat a debate")
		}

		if attempt == 0 {
			err = p.createDebate(ctx, debateID, topic, quartet)
		} else {
			err = p.reseatDebate(ctx, debateID, quartet)
		}
		if err != nil {
			return err
		}

		runErr := p.runPipeline(ctx, debateID, topic, &records)
		if runErr == nil {
			return nil
		}

		seat := identifyFailedSeat(quartet, runErr)
		if seat == nil {
			return runErr
		}
		log.Warn("debate attempt failed, excusing participant",
			zap.String("debate_id", debateID.String()),
			zap.String("model", seat.model.Name),
			zap.String("role", string(seat.role)),
			zap.String("reason", seat.reason),
			zap.Int("attempt", attempt+1),
			zap.Error(runErr))

		excused[seat.model.ID] = true
		if err := p.store.IncrementTimesExcused(ctx, seat.model.ID); err != nil {
			return fmt.Errorf("recording excuse for %s: %w", seat.model.Name, err)
		}
		records = append(records, debate.ExcuseRecord{
			ModelID:      seat.model.ID.String(),
			ModelName:    seat.model.Name,
			Role:         seat.role,
			Provider:     seat.model.Provider,
			ErrorMessage: runErr.Error(),
			Attempt:      attempt + 1,
			Reason:       seat.reason,
		})
		if err := p.store.DeleteTranscript(ctx, debateID); err != nil {
			return fmt.Errorf("wiping transcript for restart: %w", err)
		}

		if attempt >= p.cfg.MaxContentFilterRestarts {
			log.Error("restart budget exhausted, returning topic to the pool",
				zap.String("debate_id", debateID.String()),
				zap.String("topic", topic.Title),
				zap.Int("attempts", attempt+1))
			if serr := p.store.SetTopicStatus(ctx, topic.ID, debate.TopicStatusPending); serr != nil {
				log.Error("failed to return topic to pool", zap.Error(serr))
			}
			if serr := p.storeExcuses(ctx, debateID, records); serr != nil {
				log.Error("failed to store excuse records", zap.Error(serr))
			}
			return runErr
		}
	}
}

// createDebate writes the debate row for the first attempt and takes the
// topic out of the pool. Roughly half of all debates are blinded so judge
// favoritism toward known models can be measured against a baseline.
func (p *Pipeline) createDebate(ctx context.Context, id uuid.UUID, topic *debate.Topic, q *Quartet) error {
	now := time.Now().UTC()
	d := &debate.Debate{
		ID:           id,
		TopicID:      topic.ID,
		DebaterProID: q.Pro.ID,
		DebaterConID: q.Con.ID,
		JudgeID:      q.Judge.ID,
		AuditorID:    q.Auditor.ID,
		Status:       debate.StatusScheduled,
		ScheduledAt:  now,
		CreatedAt:    now,
		IsBlinded:    p.rnd.Intn(2) == 0,
	}
	if err := p.store.CreateDebate(ctx, d); err != nil {
		return fmt.Errorf("creating debate: %w", err)
	}
	if err := p.store.SetTopicStatus(ctx, topic.ID, debate.TopicStatusSelected); err != nil {
		return fmt.Errorf("marking topic selected: %w", err)
	}
	log.Info("debate scheduled",
		zap.String("debate_id", id.String()),
		zap.String("topic", topic.Title),
		zap.String("pro", q.Pro.Name),
		zap.String("con", q.Con.Name),
		zap.String("judge", q.Judge.Name),
		zap.String("auditor", q.Auditor.Name),
		zap.Bool("blinded", d.IsBlinded))
	return nil
}

// reseatDebate reuses the existing row for a restart, pointing the seats
// at the fresh quartet.
func (p *Pipeline) reseatDebate(ctx context.Context, id uuid.UUID, q *Quartet) error {
	d, err := p.store.GetDebate(ctx, id)
	if err != nil {
		return fmt.Errorf("loading debate for restart: %w", err)
	}
	d.DebaterProID = q.Pro.ID
	d.DebaterConID = q.Con.ID
	d.JudgeID = q.Judge.ID
	d.AuditorID = q.Auditor.ID
	d.Status = debate.StatusScheduled
	d.StartedAt = nil
	if err := p.store.UpdateDebate(ctx, d); err != nil {
		return fmt.Errorf("reseating debate: %w", err)
	}
	log.Info("debate reseated for restart",
		zap.String("debate_id", id.String()),
		zap.String("pro", q.Pro.Name),
		zap.String("con", q.Con.Name),
		zap.String("judge", q.Judge.Name),
		zap.String("auditor", q.Auditor.Name))
	return nil
}

func (p *Pipeline) runPipeline(ctx context.Context, debateID uuid.UUID, topic *debate.Topic, records *[]debate.ExcuseRecord) error {
	result, err := orchestrator.New(p.store, p.resolve).Run(ctx, debateID)
	if result != nil {
		*records = append(*records, result.Excuses...)
	}
	if err != nil {
		return err
	}

	svc := judge.New(p.store, p.resolve, p.judgeTimeout())
	_, err = svc.JudgeDebate(ctx, debateID)
	if err == nil {
		_, err = svc.AuditJudge(ctx, debateID)
	}
	*records = append(*records, svc.Excuses()...)
	if err != nil {
		return err
	}

	if err := p.rater.Apply(ctx, p.store, debateID); err != nil {
		return err
	}
	if err := p.store.MarkTopicDebated(ctx, topic.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking topic debated: %w", err)
	}
	return p.storeExcuses(ctx, debateID, *records)
}

func (p *Pipeline) judgeTimeout() time.Duration {
	return time.Duration(p.cfg.JudgeTimeoutSeconds) * time.Second
}

// storeExcuses persists the accumulated excuse records on the debate row.
func (p *Pipeline) storeExcuses(ctx context.Context, debateID uuid.UUID, records []debate.ExcuseRecord) error {
	if len(records) == 0 {
		return nil
	}
	d, err := p.store.GetDebate(ctx, debateID)
	if err != nil {
		return fmt.Errorf("loading debate for excuse records: %w", err)
	}
	if d.AnalysisMetadata == nil {
		d.AnalysisMetadata = &debate.AnalysisMetadata{}
	}
	d.AnalysisMetadata.ContentFilterExcuses = records
	if err := p.store.UpdateDebate(ctx, d); err != nil {
		return fmt.Errorf("storing excuse records: %w", err)
	}
	return nil
}

// failedSeat is the participant a pipeline error was traced to.
type failedSeat struct {
	model  *debate.Model
	role   debate.Role
	reason string
}

// identifyFailedSeat maps a pipeline error to the participant responsible
// for it, or nil when the error is not attributable and must propagate.
// Timeouts and content filter errors name the model; exhausted
// substitution errors from the judge service name the role.
func identifyFailedSeat(q *Quartet, err error) *failedSeat {
	msg := strings.ToLower(err.Error())

	var te *llm.TimeoutError
	if errors.As(err, &te) {
		seats := []failedSeat{
			{q.Judge, debate.RoleJudge, "timeout"},
			{q.Auditor, debate.RoleAuditor, "timeout"},
			{q.Pro, debate.RoleDebaterPro, "timeout"},
			{q.Con, debate.RoleDebaterCon, "timeout"},
		}
		for _, seat := range seats {
			if strings.Contains(msg, strings.ToLower(seat.model.Name)) {
				seat := seat
				return &seat
			}
		}
		// The message names nobody we seated; the judge holds the longest
		// call ceiling, so presume it.
		return &failedSeat{q.Judge, debate.RoleJudge, "timeout"}
	}

	var cfe *llm.ContentFilterError
	if errors.As(err, &cfe) {
		if seat := matchSeatByModel(q, msg, cfe.Provider); seat != nil {
			seat.reason = "content_filter"
			return seat
		}
		return nil
	}

	if strings.Contains(msg, "auditor") {
		return &failedSeat{q.Auditor, debate.RoleAuditor, "content_filter"}
	}
	if strings.Contains(msg, "judge") {
		return &failedSeat{q.Judge, debate.RoleJudge, "content_filter"}
	}
	return nil
}

// matchSeatByModel finds the seated model a lowercased error message refers
// to, matching the name in either direction and falling back to the
// provider tag.
func matchSeatByModel(q *Quartet, msg, provider string) *failedSeat {
	seats := []failedSeat{
		{model: q.Pro, role: debate.RoleDebaterPro},
		{model: q.Con, role: debate.RoleDebaterCon},
		{model: q.Judge, role: debate.RoleJudge},
		{model: q.Auditor, role: debate.RoleAuditor},
	}
	for _, seat := range seats {
		name := strings.ToLower(seat.model.Name)
		if strings.Contains(msg, name) || strings.Contains(name, msg) {
			seat := seat
			return &seat
		}
	}
	for _, seat := range seats {
		if strings.EqualFold(seat.model.Provider, provider) {
			seat := seat
			return &seat
		}
	}
	return nil
}
