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
package judge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/llm"
	"github.com/robuttal/robuttal/pkg/storage"
	"github.com/robuttal/robuttal/pkg/storage/memstore"
)

const judgmentJSON = `{
  "pro_scores": {"logical_consistency": 20, "evidence": 19, "persuasiveness": 18, "engagement": 19},
  "con_scores": {"logical_consistency": 16, "evidence": 17, "persuasiveness": 15, "engagement": 16},
  "winner": "pro",
  "reasoning": "Pro engaged more directly with opposing arguments."
}`

const auditJSON = `{
  "accuracy": 8,
  "fairness": 9,
  "thoroughness": 7,
  "reasoning_quality": 8,
  "overall_score": 8.0,
  "notes": "Solid, well-referenced evaluation."
}`

type fakeProvider struct {
	spec   llm.ModelSpec
	script []any
	calls  int
	block  bool
}

func (f *fakeProvider) Name() string        { return f.spec.Provider }
func (f *fakeProvider) Spec() llm.ModelSpec { return f.spec }

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	var step any = judgmentJSON
	if f.calls < len(f.script) {
		step = f.script[f.calls]
	}
	f.calls++
	if err, ok := step.(error); ok {
		return "", err
	}
	return step.(string), nil
}

func (f *fakeProvider) CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (*llm.CompletionResult, error) {
	content, err := f.Complete(ctx, systemPrompt, conversation, maxTokens)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResult{Content: content}, nil
}

type fixture struct {
	store     *memstore.Store
	providers map[string]*fakeProvider
	pro       *debate.Model
	con       *debate.Model
	judge     *debate.Model
	auditor   *debate.Model
	spare     *debate.Model
	debate    *debate.Debate
}

func (fx *fixture) resolver() llm.Resolver {
	return func(apiModelID string) (llm.Provider, error) {
		p, ok := fx.providers[apiModelID]
		if !ok {
			return nil, fmt.Errorf("no provider for %q", apiModelID)
		}
		return p, nil
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{store: memstore.New(), providers: make(map[string]*fakeProvider)}

	mk := func(name, provider string, elo int) *debate.Model {
		m := &debate.Model{
			ID: uuid.New(), Name: name, Provider: provider,
			APIModelID: name + "-api", EloRating: elo, IsActive: true,
		}
		fx.store.PutModel(m)
		fx.providers[m.APIModelID] = &fakeProvider{
			spec: llm.ModelSpec{Name: name, Provider: provider, APIID: m.APIModelID},
		}
		return m
	}
	fx.pro = mk("alpha", "anthropic", 1550)
	fx.con = mk("beta", "openai", 1520)
	fx.judge = mk("gamma", "google", 1500)
	fx.auditor = mk("delta", "xai", 1480)
	fx.spare = mk("epsilon", "mistral", 1460)

	topic := &debate.Topic{
		ID: uuid.New(), Title: "Resolved: brevity is a virtue",
		Subdomain: "rhetoric", Domain: "philosophy",
		Source: debate.TopicSourceSeed, Status: debate.TopicStatusSelected,
		CreatedAt: time.Now(),
	}
	fx.store.PutTopic(topic)

	fx.debate = &debate.Debate{
		ID:           uuid.New(),
		TopicID:      topic.ID,
		DebaterProID: fx.pro.ID,
		DebaterConID: fx.con.ID,
		JudgeID:      fx.judge.ID,
		AuditorID:    fx.auditor.ID,
		Status:       debate.StatusJudging,
		ScheduledAt:  time.Now(),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, fx.store.CreateDebate(context.Background(), fx.debate))

	// Minimal transcript so formatting has something to render.
	proPos, conPos := debate.PositionPro, debate.PositionCon
	tokens, latency := 100, 300
	cost := 0.001
	for i, e := range []struct {
		pos     *debate.Position
		speaker uuid.UUID
		content string
	}{
		{&proPos, fx.pro.ID, "Opening for the proposition."},
		{&conPos, fx.con.ID, "Opening against the proposition."},
	} {
		require.NoError(t, fx.store.AppendTranscriptEntry(context.Background(), &debate.TranscriptEntry{
			ID: uuid.New(), DebateID: fx.debate.ID, Phase: debate.PhaseOpening,
			SpeakerID: e.speaker, Position: e.pos, Content: e.content,
			TokenCount: 200, SequenceOrder: i, CreatedAt: time.Now(),
			InputTokens: &tokens, OutputTokens: &tokens, LatencyMS: &latency, CostUSD: &cost,
		}))
	}
	return fx
}

func TestJudgeDebate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	svc := New(fx.store, fx.resolver(), 0)
	judgment, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)

	assert.Equal(t, 76, judgment.ProScore)
	assert.Equal(t, 64, judgment.ConScore)
	assert.Equal(t, "pro", judgment.Winner)

	d, err := fx.store.GetDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	require.NotNil(t, d.ProScore)
	assert.Equal(t, 76, *d.ProScore)
	assert.Equal(t, 64, *d.ConScore)
	require.NotNil(t, d.WinnerID)
	assert.Equal(t, fx.pro.ID, *d.WinnerID)
	assert.Equal(t, 20, *d.ProLogicalConsistency)
	assert.Equal(t, 16, *d.ConLogicalConsistency)
	assert.Equal(t, debate.StatusJudging, d.Status)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, debate.PhaseJudgment, last.Phase)
	assert.Equal(t, fx.judge.ID, last.SpeakerID)
	require.NotNil(t, last.Position)
	assert.Equal(t, debate.PositionJudge, *last.Position)
}

func TestJudgeDebateRequiresJudgingStatus(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.debate.Status = debate.StatusInProgress
	require.NoError(t, fx.store.UpdateDebate(ctx, fx.debate))

	svc := New(fx.store, fx.resolver(), 0)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	assert.ErrorContains(t, err, "not ready for judging")
}

func TestJudgeDebateJSONNudge(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.judge.APIModelID].script = []any{
		"I think the pro side did better overall, here are my thoughts...",
		judgmentJSON,
	}

	svc := New(fx.store, fx.resolver(), 0)
	judgment, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", judgment.Winner)
	assert.Equal(t, 2, fx.providers[fx.judge.APIModelID].calls)
}

func TestJudgeDebateContentFilterSubstitution(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.judge.APIModelID].script = []any{
		&llm.ContentFilterError{Provider: "google", ModelName: fx.judge.Name, Message: "blocked"},
	}

	svc := New(fx.store, fx.resolver(), 0)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)

	d, err := fx.store.GetDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.spare.ID, d.JudgeID)

	require.Len(t, svc.Excuses(), 1)
	assert.Equal(t, debate.RoleJudge, svc.Excuses()[0].Role)
	assert.Equal(t, debate.PhaseJudgment, svc.Excuses()[0].Phase)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	var notice *debate.TranscriptEntry
	for _, e := range entries {
		if e.IsSystemNotice() && e.Phase == debate.PhaseJudgment {
			notice = e
		}
	}
	require.NotNil(t, notice)
	assert.Contains(t, notice.Content, "substituted as the Judge")
}

func TestJudgeDebateTimeout(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.judge.APIModelID].block = true

	svc := New(fx.store, fx.resolver(), 50*time.Millisecond)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.Error(t, err)
	assert.True(t, llm.IsTimeout(err))
	assert.Contains(t, err.Error(), fx.judge.Name)
}

func TestAuditJudge(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.auditor.APIModelID].script = []any{auditJSON}

	svc := New(fx.store, fx.resolver(), 0)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)

	audit, err := svc.AuditJudge(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, audit.OverallScore)

	d, err := fx.store.GetDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, debate.StatusCompleted, d.Status)
	require.NotNil(t, d.CompletedAt)
	assert.Equal(t, 8.0, *d.JudgeScore)
	assert.Equal(t, 8, *d.AuditAccuracy)
	assert.Equal(t, 9, *d.AuditFairness)

	judgeModel, err := fx.store.GetModel(ctx, fx.judge.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, judgeModel.TimesJudged)
	require.NotNil(t, judgeModel.AvgJudgeScore)
	assert.Equal(t, 8.0, *judgeModel.AvgJudgeScore)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, debate.PhaseAudit, last.Phase)
	require.NotNil(t, last.Position)
	assert.Equal(t, debate.PositionAuditor, *last.Position)
}

func TestAuditJudgeRollingAverage(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	// Judge already has one prior audit on record.
	fx.judge.TimesJudged = 1
	prior := 6.0
	fx.judge.AvgJudgeScore = &prior
	fx.store.PutModel(fx.judge)
	fx.providers[fx.auditor.APIModelID].script = []any{auditJSON}

	svc := New(fx.store, fx.resolver(), 0)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	_, err = svc.AuditJudge(ctx, fx.debate.ID)
	require.NoError(t, err)

	judgeModel, err := fx.store.GetModel(ctx, fx.judge.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, judgeModel.TimesJudged)
	assert.InDelta(t, 7.0, *judgeModel.AvgJudgeScore, 1e-9)
}

// lockTrackingStore counts locked model reads, following the store into
// its transactional views.
type lockTrackingStore struct {
	storage.Store
	lockedReads *int
}

func (s *lockTrackingStore) Transact(ctx context.Context, fn func(storage.Store) error) error {
	return s.Store.Transact(ctx, func(st storage.Store) error {
		return fn(&lockTrackingStore{Store: st, lockedReads: s.lockedReads})
	})
}

func (s *lockTrackingStore) GetModelForUpdate(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	*s.lockedReads++
	return s.Store.GetModelForUpdate(ctx, id)
}

func TestAuditJudgeLocksJudgeRow(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.auditor.APIModelID].script = []any{auditJSON}

	locked := 0
	tracked := &lockTrackingStore{Store: fx.store, lockedReads: &locked}
	svc := New(tracked, fx.resolver(), 0)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	_, err = svc.AuditJudge(ctx, fx.debate.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, locked, "the judge row is read under a row lock for the average update")
}

func TestAuditJudgeRequiresJudgment(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	svc := New(fx.store, fx.resolver(), 0)
	_, err := svc.AuditJudge(ctx, fx.debate.ID)
	assert.ErrorContains(t, err, "has not been judged yet")
}

func TestFormatTranscriptBlinded(t *testing.T) {
	fx := newFixture(t)
	fx.debate.IsBlinded = true
	require.NoError(t, fx.store.UpdateDebate(context.Background(), fx.debate))

	svc := New(fx.store, fx.resolver(), 0)
	dc, err := svc.load(context.Background(), fx.debate.ID)
	require.NoError(t, err)

	text := svc.formatTranscriptForJudge(dc)
	assert.Contains(t, text, "Pro: Debater A")
	assert.Contains(t, text, "Con: Debater B")
	assert.Contains(t, text, "Model identities have been concealed")
	assert.NotContains(t, text, fx.pro.Name)
	assert.NotContains(t, text, fx.con.Name)
	assert.Contains(t, text, "--- OPENING STATEMENTS ---")
}

func TestFormatTranscriptForAuditorIncludesDecision(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	svc := New(fx.store, fx.resolver(), 0)
	_, err := svc.JudgeDebate(ctx, fx.debate.ID)
	require.NoError(t, err)

	dc, err := svc.load(ctx, fx.debate.ID)
	require.NoError(t, err)
	text := svc.formatTranscriptForAuditor(dc)
	assert.Contains(t, text, "JUDGE'S DECISION")
	assert.Contains(t, text, "Pro Score: 76")
	assert.Contains(t, text, "Con Score: 64")
	assert.Contains(t, text, "Winner: Pro")
	assert.Contains(t, text, "Judge's Reasoning:")
}
