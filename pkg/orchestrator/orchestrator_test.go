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
package orchestrator

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
	"github.com/robuttal/robuttal/pkg/storage/memstore"
)

// fakeProvider replays a script of responses. An entry that is an error
// is returned as-is; a string becomes a successful completion.
type fakeProvider struct {
	spec   llm.ModelSpec
	script []any
	calls  int
}

func (f *fakeProvider) Name() string        { return f.spec.Provider }
func (f *fakeProvider) Spec() llm.ModelSpec { return f.spec }

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (string, error) {
	res, err := f.CompleteWithUsage(ctx, systemPrompt, conversation, maxTokens)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (f *fakeProvider) CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (*llm.CompletionResult, error) {
	var step any = "A perfectly reasonable argument."
	if f.calls < len(f.script) {
		step = f.script[f.calls]
	}
	f.calls++
	if err, ok := step.(error); ok {
		return nil, err
	}
	return &llm.CompletionResult{
		Content:      step.(string),
		InputTokens:  120,
		OutputTokens: 80,
		LatencyMS:    450,
		CostUSD:      0.0012,
	}, nil
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
	fx := &fixture{
		store:     memstore.New(),
		providers: make(map[string]*fakeProvider),
	}

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
		ID: uuid.New(), Title: "Resolved: testing beats debugging",
		Subdomain: "engineering", Domain: "technology",
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
		Status:       debate.StatusScheduled,
		ScheduledAt:  time.Now(),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, fx.store.CreateDebate(context.Background(), fx.debate))
	return fx
}

func TestRunFullDebate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	o := New(fx.store, fx.resolver())
	result, err := o.Run(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Excuses)

	d, err := fx.store.GetDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, debate.StatusJudging, d.Status)
	require.NotNil(t, d.StartedAt)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	require.Len(t, entries, 10)

	wantPhases := []debate.Phase{
		debate.PhaseOpening, debate.PhaseOpening,
		debate.PhaseRebuttal, debate.PhaseRebuttal,
		debate.PhaseCrossExamination, debate.PhaseCrossExamination,
		debate.PhaseCrossExamination, debate.PhaseCrossExamination,
		debate.PhaseClosing, debate.PhaseClosing,
	}
	wantPositions := []debate.Position{
		debate.PositionPro, debate.PositionCon,
		debate.PositionCon, debate.PositionPro,
		debate.PositionPro, debate.PositionCon,
		debate.PositionCon, debate.PositionPro,
		debate.PositionPro, debate.PositionCon,
	}
	for i, e := range entries {
		assert.Equal(t, wantPhases[i], e.Phase, "entry %d phase", i)
		require.NotNil(t, e.Position, "entry %d position", i)
		assert.Equal(t, wantPositions[i], *e.Position, "entry %d position", i)
		assert.Equal(t, i, e.SequenceOrder, "entry %d sequence", i)
		assert.False(t, e.IsSystemNotice(), "entry %d should carry telemetry", i)
		assert.Equal(t, 200, e.TokenCount, "entry %d token count", i)
	}

	// Debaters speak four times each; judge and auditor never speak.
	assert.Equal(t, 5, fx.providers[fx.pro.APIModelID].calls)
	assert.Equal(t, 5, fx.providers[fx.con.APIModelID].calls)
	assert.Equal(t, 0, fx.providers[fx.judge.APIModelID].calls)
	assert.Equal(t, 0, fx.providers[fx.auditor.APIModelID].calls)
}

func TestRunContentFilterSubstitution(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	// Con's first turn is its opening statement; block it once.
	fx.providers[fx.con.APIModelID].script = []any{
		&llm.ContentFilterError{Provider: "openai", ModelName: fx.con.Name, Message: "flagged by moderation"},
	}

	o := New(fx.store, fx.resolver())
	result, err := o.Run(ctx, fx.debate.ID)
	require.NoError(t, err)

	require.Len(t, result.Excuses, 1)
	assert.Equal(t, fx.con.Name, result.Excuses[0].ModelName)
	assert.Equal(t, debate.RoleDebaterCon, result.Excuses[0].Role)
	assert.Equal(t, debate.PhaseOpening, result.Excuses[0].Phase)
	assert.Equal(t, fx.spare.Name, result.Excuses[0].ReplacementModelName)

	d, err := fx.store.GetDebate(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.spare.ID, d.DebaterConID, "spare model should hold the con seat")
	assert.Equal(t, debate.StatusJudging, d.Status)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	require.Len(t, entries, 11)

	notice := entries[1]
	assert.True(t, notice.IsSystemNotice())
	assert.Equal(t, debate.PhaseOpening, notice.Phase)
	assert.Equal(t, fx.spare.ID, notice.SpeakerID)
	assert.Contains(t, notice.Content, "SUBSTITUTION NOTICE")
	assert.Contains(t, notice.Content, "content policy restrictions")
	assert.Contains(t, notice.Content, "Debater Con")

	excused, err := fx.store.GetModel(ctx, fx.con.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, excused.TimesExcused)

	// The spare finishes the con seat's remaining turns.
	assert.Equal(t, 5, fx.providers[fx.spare.APIModelID].calls)
}

func TestRunNoReplacementAvailable(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	// Only the four participants are active, so a blocked debater has
	// nowhere to turn.
	fx.spare.IsActive = false
	fx.store.PutModel(fx.spare)
	fx.providers[fx.pro.APIModelID].script = []any{
		&llm.ContentFilterError{Provider: "anthropic", ModelName: fx.pro.Name, Message: "flagged"},
	}

	o := New(fx.store, fx.resolver())
	_, err := o.Run(ctx, fx.debate.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no replacement model available")
	assert.Contains(t, err.Error(), fx.pro.Name)
}

func TestRunEmptyResponseRetries(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.pro.APIModelID].script = []any{"", "", "Third time lucky."}

	o := New(fx.store, fx.resolver())
	_, err := o.Run(ctx, fx.debate.ID)
	require.NoError(t, err)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Equal(t, "Third time lucky.", entries[0].Content)
}

func TestRunEmptyResponseExhausted(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.providers[fx.pro.APIModelID].script = []any{"", "   ", "\n"}

	o := New(fx.store, fx.resolver())
	_, err := o.Run(ctx, fx.debate.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestRunResumesAtFirstIncompletePhase(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	// Seed a completed opening phase, as if a previous run died after its
	// first commit.
	proPos, conPos := debate.PositionPro, debate.PositionCon
	tokens, latency := 100, 300
	cost := 0.001
	for i, pos := range []*debate.Position{&proPos, &conPos} {
		speaker := fx.pro.ID
		if *pos == debate.PositionCon {
			speaker = fx.con.ID
		}
		require.NoError(t, fx.store.AppendTranscriptEntry(ctx, &debate.TranscriptEntry{
			ID: uuid.New(), DebateID: fx.debate.ID, Phase: debate.PhaseOpening,
			SpeakerID: speaker, Position: pos, Content: "Recovered opening.",
			TokenCount: 200, SequenceOrder: i, CreatedAt: time.Now(),
			InputTokens: &tokens, OutputTokens: &tokens, LatencyMS: &latency, CostUSD: &cost,
		}))
	}
	fx.debate.Status = debate.StatusInProgress
	require.NoError(t, fx.store.UpdateDebate(ctx, fx.debate))

	o := New(fx.store, fx.resolver())
	_, err := o.Run(ctx, fx.debate.ID)
	require.NoError(t, err)

	entries, err := fx.store.TranscriptEntries(ctx, fx.debate.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 10)

	// Opening was not re-run: each debater spoke only its remaining four
	// turns.
	assert.Equal(t, 4, fx.providers[fx.pro.APIModelID].calls)
	assert.Equal(t, 4, fx.providers[fx.con.APIModelID].calls)
}

func TestRunOpeningIsIndependent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	// Wrap the resolver to capture the conversation the con debater sees
	// on its opening turn.
	var conOpeningMessages []llm.Message
	base := fx.resolver()
	capture := func(apiModelID string) (llm.Provider, error) {
		p, err := base(apiModelID)
		if err != nil {
			return nil, err
		}
		if apiModelID == fx.con.APIModelID {
			return providerFunc(func(ctx context.Context, system string, conv []llm.Message, maxTokens int) (*llm.CompletionResult, error) {
				if conOpeningMessages == nil {
					conOpeningMessages = conv
				}
				return p.CompleteWithUsage(ctx, system, conv, maxTokens)
			}), nil
		}
		return p, nil
	}

	o := New(fx.store, capture)
	_, err := o.Run(ctx, fx.debate.ID)
	require.NoError(t, err)

	require.Len(t, conOpeningMessages, 1)
	assert.Equal(t, "The debate is beginning. Please provide your opening statement.", conOpeningMessages[0].Content)
}

// providerFunc adapts a function to the llm.Provider interface for tests.
type providerFunc func(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (*llm.CompletionResult, error)

func (f providerFunc) Name() string        { return "func" }
func (f providerFunc) Spec() llm.ModelSpec { return llm.ModelSpec{} }

func (f providerFunc) Complete(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (string, error) {
	res, err := f(ctx, systemPrompt, conversation, maxTokens)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (f providerFunc) CompleteWithUsage(ctx context.Context, systemPrompt string, conversation []llm.Message, maxTokens int) (*llm.CompletionResult, error) {
	return f(ctx, systemPrompt, conversation, maxTokens)
}
