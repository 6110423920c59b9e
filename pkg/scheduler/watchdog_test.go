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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robuttal/robuttal/pkg/config"
	"github.com/robuttal/robuttal/pkg/debate"
)

// seedJudgingDebate plants a debate stalled in judging, started long
// enough ago to trip the watchdog. With withJudgment the judge's verdict
// is already persisted and only the audit remains.
func seedJudgingDebate(t *testing.T, fx *fixture, withJudgment bool) *debate.Debate {
	t.Helper()
	ctx := context.Background()
	topic := fx.seedTopic("geopolitics", debate.TopicStatusSelected)

	started := time.Now().UTC().Add(-10 * time.Minute)
	d := &debate.Debate{
		ID: uuid.New(), TopicID: topic.ID,
		DebaterProID: fx.models[0].ID, DebaterConID: fx.models[1].ID,
		JudgeID: fx.models[2].ID, AuditorID: fx.models[3].ID,
		Status:      debate.StatusJudging,
		ScheduledAt: started, StartedAt: &started, CreatedAt: started,
	}
	if withJudgment {
		pro, con := 76, 64
		d.ProScore, d.ConScore = &pro, &con
		winner := d.DebaterProID
		d.WinnerID = &winner
	}
	require.NoError(t, fx.store.CreateDebate(ctx, d))

	proPos, conPos := debate.PositionPro, debate.PositionCon
	tokens, latency := 150, 400
	cost := 0.0015
	for i, pos := range []*debate.Position{&proPos, &conPos} {
		speaker := d.DebaterProID
		if *pos == debate.PositionCon {
			speaker = d.DebaterConID
		}
		require.NoError(t, fx.store.AppendTranscriptEntry(ctx, &debate.TranscriptEntry{
			ID: uuid.New(), DebateID: d.ID, Phase: debate.PhaseOpening,
			SpeakerID: speaker, Position: pos,
			Content: "An opening statement recovered from the stalled run.",
			TokenCount: 240, SequenceOrder: i, CreatedAt: started,
			InputTokens: &tokens, OutputTokens: &tokens, LatencyMS: &latency, CostUSD: &cost,
		}))
	}
	if withJudgment {
		judgePos := debate.PositionJudge
		require.NoError(t, fx.store.AppendTranscriptEntry(ctx, &debate.TranscriptEntry{
			ID: uuid.New(), DebateID: d.ID, Phase: debate.PhaseJudgment,
			SpeakerID: d.JudgeID, Position: &judgePos,
			Content: judgmentJSON, TokenCount: 40, SequenceOrder: 2, CreatedAt: started,
		}))
	}
	return d
}

func TestRecoverStuckDebateCompletesAfterAudit(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 5)
	d := seedJudgingDebate(t, fx, true)

	s := New(fx.store, fx.resolver(), fx.cfg)
	require.NoError(t, s.RecoverStuckDebates(ctx))

	got, err := fx.store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, debate.StatusCompleted, got.Status)
	require.NotNil(t, got.JudgeScore)
	assert.InDelta(t, 8.0, *got.JudgeScore, 1e-9)
	require.NotNil(t, got.ProEloAfter, "ratings are applied during recovery")

	// The persisted verdict was reused; only the auditor spoke.
	assert.Equal(t, 0, fx.provider(fx.models[2]).judgeCalls)
	assert.Equal(t, 1, fx.provider(fx.models[3]).auditCalls)

	topic, err := fx.store.GetTopic(ctx, got.TopicID)
	require.NoError(t, err)
	assert.Equal(t, debate.TopicStatusDebated, topic.Status)

	judgeModel, err := fx.store.GetModel(ctx, got.JudgeID)
	require.NoError(t, err)
	assert.Equal(t, 1, judgeModel.TimesJudged)
	require.NotNil(t, judgeModel.AvgJudgeScore)
	assert.InDelta(t, 8.0, *judgeModel.AvgJudgeScore, 1e-9)
}

func TestRecoverStuckDebateRunsJudgmentWhenMissing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 5)
	d := seedJudgingDebate(t, fx, false)

	s := New(fx.store, fx.resolver(), fx.cfg)
	require.NoError(t, s.RecoverStuckDebates(ctx))

	got, err := fx.store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, debate.StatusCompleted, got.Status)
	require.NotNil(t, got.ProScore)
	assert.Equal(t, 76, *got.ProScore)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, got.DebaterProID, *got.WinnerID)

	assert.Equal(t, 1, fx.provider(fx.models[2]).judgeCalls)
	assert.Equal(t, 1, fx.provider(fx.models[3]).auditCalls)
}

func TestRecoverStuckDebateReplacesTimedOutAuditor(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 5)
	d := seedJudgingDebate(t, fx, true)

	auditor, spare := fx.models[3], fx.models[4]
	fx.provider(auditor).blockAudit = true

	s := New(fx.store, fx.resolver(), fx.cfg)
	require.NoError(t, s.RecoverStuckDebates(ctx))

	got, err := fx.store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, debate.StatusCompleted, got.Status)
	assert.Equal(t, spare.ID, got.AuditorID, "the reserve model takes the auditor seat")

	excused, err := fx.store.GetModel(ctx, auditor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, excused.TimesExcused)

	require.NotNil(t, got.AnalysisMetadata)
	require.Len(t, got.AnalysisMetadata.ContentFilterExcuses, 1)
	rec := got.AnalysisMetadata.ContentFilterExcuses[0]
	assert.Equal(t, auditor.Name, rec.ModelName)
	assert.Equal(t, spare.Name, rec.ReplacementModelName)
	assert.Equal(t, debate.RoleAuditor, rec.Role)
	assert.Equal(t, "timeout", rec.Reason)
}

func TestRecoverStuckDebatesIgnoresFreshJudging(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 5)
	d := seedJudgingDebate(t, fx, true)

	now := time.Now().UTC()
	got, err := fx.store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	got.StartedAt = &now
	require.NoError(t, fx.store.UpdateDebate(ctx, got))

	s := New(fx.store, fx.resolver(), fx.cfg)
	require.NoError(t, s.RecoverStuckDebates(ctx))

	after, err := fx.store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, debate.StatusJudging, after.Status, "a debate inside the threshold is left alone")
	assert.Equal(t, 0, fx.provider(fx.models[3]).auditCalls)
}

func TestSlotAndWatchdogSpecs(t *testing.T) {
	assert.Equal(t, "0 11 * * *", slotSpec(config.SlotTime{Hour: 11, Minute: 0}))
	assert.Equal(t, "30 2 * * *", slotSpec(config.SlotTime{Hour: 2, Minute: 30}))

	assert.Equal(t, "5 11 * * *", watchdogSpec(config.SlotTime{Hour: 11, Minute: 0}))
	assert.Equal(t, "3 0 * * *", watchdogSpec(config.SlotTime{Hour: 23, Minute: 58}))
}

func TestSchedulerStartRegistersAllJobs(t *testing.T) {
	fx := newFixture(t, 5)

	s := New(fx.store, fx.resolver(), fx.cfg)
	require.NoError(t, s.Start())

	// One debate job and one trailing watchdog per slot, plus the safety
	// net sweep.
	assert.Len(t, s.cron.Entries(), 2*len(fx.cfg.Slots)+1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}
