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
// Package judge scores finished debates and audits the scoring. The judge
// model reads the transcript and produces a structured verdict; the
// auditor model then grades the judge's work, which completes the debate
// and feeds the judge's rolling quality average.
package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/llm"
	"github.com/robuttal/robuttal/pkg/storage"
)

// DefaultAPITimeout bounds a single judge or auditor call. Generous to
// allow for long transcripts on slow providers.
const DefaultAPITimeout = 120 * time.Second

const (
	judgmentMaxTokens = 2500
	auditMaxTokens    = 1500
)

// CategoryScores is a per-category rubric breakdown, 0-25 each.
type CategoryScores struct {
	LogicalConsistency int
	Evidence           int
	Persuasiveness     int
	Engagement         int
}

// Judgment is the parsed verdict of a judge model.
type Judgment struct {
	ProScore  int
	ConScore  int
	Winner    string
	Reasoning string
	ProScores *CategoryScores
	ConScores *CategoryScores
}

// Audit is the parsed quality assessment of a judge's verdict.
type Audit struct {
	Accuracy         int
	Fairness         int
	Thoroughness     int
	ReasoningQuality int
	OverallScore     float64
	Notes            string
}

// Service judges debates and audits judgments.
type Service struct {
	store      storage.Store
	resolve    llm.Resolver
	timeout    time.Duration
	excusedIDs map[uuid.UUID]bool
	excuses    []debate.ExcuseRecord
}

// New returns a judge Service. A non-positive timeout falls back to
// DefaultAPITimeout.
func New(store storage.Store, resolve llm.Resolver, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	return &Service{
		store:      store,
		resolve:    resolve,
		timeout:    timeout,
		excusedIDs: make(map[uuid.UUID]bool),
	}
}

// Excuses lists the content filter substitutions recorded during judging
// and auditing, for the scheduler to merge into debate metadata.
func (s *Service) Excuses() []debate.ExcuseRecord {
	return s.excuses
}

type debateContext struct {
	debate  *debate.Debate
	topic   *debate.Topic
	pro     *debate.Model
	con     *debate.Model
	judge   *debate.Model
	auditor *debate.Model
	entries []*debate.TranscriptEntry
}

func (s *Service) load(ctx context.Context, debateID uuid.UUID) (*debateContext, error) {
	d, err := s.store.GetDebate(ctx, debateID)
	if err != nil {
		return nil, fmt.Errorf("loading debate %s: %w", debateID, err)
	}
	topic, err := s.store.GetTopic(ctx, d.TopicID)
	if err != nil {
		return nil, fmt.Errorf("loading topic: %w", err)
	}
	pro, err := s.store.GetModel(ctx, d.DebaterProID)
	if err != nil {
		return nil, fmt.Errorf("loading pro debater: %w", err)
	}
	con, err := s.store.GetModel(ctx, d.DebaterConID)
	if err != nil {
		return nil, fmt.Errorf("loading con debater: %w", err)
	}
	judgeModel, err := s.store.GetModel(ctx, d.JudgeID)
	if err != nil {
		return nil, fmt.Errorf("loading judge: %w", err)
	}
	auditor, err := s.store.GetModel(ctx, d.AuditorID)
	if err != nil {
		return nil, fmt.Errorf("loading auditor: %w", err)
	}
	entries, err := s.store.TranscriptEntries(ctx, debateID)
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}
	return &debateContext{
		debate: d, topic: topic, pro: pro, con: con,
		judge: judgeModel, auditor: auditor, entries: entries,
	}, nil
}

// JudgeDebate runs the judgment phase: the judge model scores the
// transcript and the verdict is persisted atomically with the winner.
func (s *Service) JudgeDebate(ctx context.Context, debateID uuid.UUID) (*Judgment, error) {
	dc, err := s.load(ctx, debateID)
	if err != nil {
		return nil, err
	}
	if dc.debate.Status != debate.StatusJudging {
		return nil, fmt.Errorf("debate %s is not ready for judging (status: %s)", debateID, dc.debate.Status)
	}

	transcript := s.formatTranscriptForJudge(dc)
	systemPrompt := fmt.Sprintf(judgeSystemPrompt, dc.topic.Title)
	messages := []llm.Message{{Role: "user", Content: transcript}}

	current := dc.judge
	excludeIDs := map[uuid.UUID]bool{
		dc.debate.DebaterProID: true,
		dc.debate.DebaterConID: true,
		dc.debate.AuditorID:    true,
	}
	for id := range s.excusedIDs {
		excludeIDs[id] = true
	}

	var response string
	for {
		log.Info("judging debate",
			zap.String("debate_id", debateID.String()),
			zap.String("judge", current.Name))

		response, err = s.callModelWithJSONRetry(ctx, current, systemPrompt, messages, judgmentMaxTokens)
		if err == nil {
			break
		}
		if !llm.IsContentFilter(err) {
			return nil, err
		}
		log.Warn("content filter triggered for judge",
			zap.String("judge", current.Name),
			zap.Error(err))

		excludeIDs[current.ID] = true
		replacement, rerr := s.findReplacement(ctx, excludeIDs)
		if rerr != nil {
			return nil, rerr
		}
		if replacement == nil {
			if xerr := s.recordExcuse(ctx, current, nil, debate.RoleJudge, debate.PhaseJudgment, err.Error()); xerr != nil {
				return nil, xerr
			}
			return nil, fmt.Errorf("no replacement judge available after %s was blocked by content filter", current.Name)
		}
		if xerr := s.recordExcuse(ctx, current, replacement, debate.RoleJudge, debate.PhaseJudgment, err.Error()); xerr != nil {
			return nil, xerr
		}

		dc.debate.JudgeID = replacement.ID
		if uerr := s.store.UpdateDebate(ctx, dc.debate); uerr != nil {
			return nil, fmt.Errorf("recording substituted judge: %w", uerr)
		}
		if nerr := s.addSubstitutionNote(ctx, dc, current, replacement, debate.RoleJudge, debate.PhaseJudgment, "content policy restrictions"); nerr != nil {
			return nil, nerr
		}
		excludeIDs[replacement.ID] = true
		dc.judge = replacement
		current = replacement
	}

	judgment, err := parseJudgment(response)
	if err != nil {
		return nil, fmt.Errorf("parsing judgment from %s: %w", current.Name, err)
	}

	pos := debate.PositionJudge
	entry := &debate.TranscriptEntry{
		ID:            uuid.New(),
		DebateID:      debateID,
		Phase:         debate.PhaseJudgment,
		SpeakerID:     current.ID,
		Position:      &pos,
		Content:       response,
		TokenCount:    len(strings.Fields(response)),
		SequenceOrder: nextSequence(dc.entries),
		CreatedAt:     time.Now().UTC(),
	}

	dc.debate.ProScore = &judgment.ProScore
	dc.debate.ConScore = &judgment.ConScore
	if judgment.ProScores != nil {
		dc.debate.ProLogicalConsistency = &judgment.ProScores.LogicalConsistency
		dc.debate.ProEvidence = &judgment.ProScores.Evidence
		dc.debate.ProPersuasiveness = &judgment.ProScores.Persuasiveness
		dc.debate.ProEngagement = &judgment.ProScores.Engagement
	}
	if judgment.ConScores != nil {
		dc.debate.ConLogicalConsistency = &judgment.ConScores.LogicalConsistency
		dc.debate.ConEvidence = &judgment.ConScores.Evidence
		dc.debate.ConPersuasiveness = &judgment.ConScores.Persuasiveness
		dc.debate.ConEngagement = &judgment.ConScores.Engagement
	}
	winnerID := dc.debate.DebaterConID
	if judgment.Winner == "pro" {
		winnerID = dc.debate.DebaterProID
	}
	dc.debate.WinnerID = &winnerID

	err = s.store.Transact(ctx, func(st storage.Store) error {
		if err := st.AppendTranscriptEntry(ctx, entry); err != nil {
			return fmt.Errorf("appending judgment entry: %w", err)
		}
		if err := st.UpdateDebate(ctx, dc.debate); err != nil {
			return fmt.Errorf("saving judgment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dc.entries = append(dc.entries, entry)

	log.Info("judgment complete",
		zap.String("debate_id", debateID.String()),
		zap.Int("pro_score", judgment.ProScore),
		zap.Int("con_score", judgment.ConScore),
		zap.String("winner", judgment.Winner))
	return judgment, nil
}

// AuditJudge runs the audit phase: the auditor grades the judgment, the
// debate completes, and the judge's rolling average is updated, all in one
// transaction.
func (s *Service) AuditJudge(ctx context.Context, debateID uuid.UUID) (*Audit, error) {
	dc, err := s.load(ctx, debateID)
	if err != nil {
		return nil, err
	}
	if dc.debate.ProScore == nil || dc.debate.ConScore == nil {
		return nil, fmt.Errorf("debate %s has not been judged yet", debateID)
	}

	transcript := s.formatTranscriptForAuditor(dc)
	systemPrompt := fmt.Sprintf(auditorSystemPrompt, dc.topic.Title)
	messages := []llm.Message{{Role: "user", Content: transcript}}

	current := dc.auditor
	excludeIDs := map[uuid.UUID]bool{
		dc.debate.JudgeID:      true,
		dc.debate.DebaterProID: true,
		dc.debate.DebaterConID: true,
	}
	for id := range s.excusedIDs {
		excludeIDs[id] = true
	}

	var response string
	for {
		log.Info("auditing debate",
			zap.String("debate_id", debateID.String()),
			zap.String("auditor", current.Name))

		response, err = s.callModelWithJSONRetry(ctx, current, systemPrompt, messages, auditMaxTokens)
		if err == nil {
			break
		}
		if !llm.IsContentFilter(err) {
			return nil, err
		}
		log.Warn("content filter triggered for auditor",
			zap.String("auditor", current.Name),
			zap.Error(err))

		excludeIDs[current.ID] = true
		replacement, rerr := s.findReplacement(ctx, excludeIDs)
		if rerr != nil {
			return nil, rerr
		}
		if replacement == nil {
			if xerr := s.recordExcuse(ctx, current, nil, debate.RoleAuditor, debate.PhaseAudit, err.Error()); xerr != nil {
				return nil, xerr
			}
			return nil, fmt.Errorf("no replacement auditor available after %s was blocked by content filter", current.Name)
		}
		if xerr := s.recordExcuse(ctx, current, replacement, debate.RoleAuditor, debate.PhaseAudit, err.Error()); xerr != nil {
			return nil, xerr
		}

		dc.debate.AuditorID = replacement.ID
		if uerr := s.store.UpdateDebate(ctx, dc.debate); uerr != nil {
			return nil, fmt.Errorf("recording substituted auditor: %w", uerr)
		}
		if nerr := s.addSubstitutionNote(ctx, dc, current, replacement, debate.RoleAuditor, debate.PhaseAudit, "content policy restrictions"); nerr != nil {
			return nil, nerr
		}
		excludeIDs[replacement.ID] = true
		dc.auditor = replacement
		current = replacement
	}

	audit, err := parseAudit(response)
	if err != nil {
		return nil, fmt.Errorf("parsing audit from %s: %w", current.Name, err)
	}

	pos := debate.PositionAuditor
	entry := &debate.TranscriptEntry{
		ID:            uuid.New(),
		DebateID:      debateID,
		Phase:         debate.PhaseAudit,
		SpeakerID:     current.ID,
		Position:      &pos,
		Content:       response,
		TokenCount:    len(strings.Fields(response)),
		SequenceOrder: nextSequence(dc.entries),
		CreatedAt:     time.Now().UTC(),
	}

	now := time.Now().UTC()
	dc.debate.JudgeScore = &audit.OverallScore
	dc.debate.AuditAccuracy = &audit.Accuracy
	dc.debate.AuditFairness = &audit.Fairness
	dc.debate.AuditThoroughness = &audit.Thoroughness
	dc.debate.AuditReasoningQuality = &audit.ReasoningQuality
	dc.debate.Status = debate.StatusCompleted
	dc.debate.CompletedAt = &now

	err = s.store.Transact(ctx, func(st storage.Store) error {
		if err := st.AppendTranscriptEntry(ctx, entry); err != nil {
			return fmt.Errorf("appending audit entry: %w", err)
		}
		if err := st.UpdateDebate(ctx, dc.debate); err != nil {
			return fmt.Errorf("saving audit: %w", err)
		}
		// Fold this audit into the judge's rolling quality average. The
		// locked read keeps a concurrent audit of the same judge from
		// overwriting this one's average.
		judgeModel, err := st.GetModelForUpdate(ctx, dc.debate.JudgeID)
		if err != nil {
			return fmt.Errorf("loading judge for score update: %w", err)
		}
		timesJudged := judgeModel.TimesJudged + 1
		avg := audit.OverallScore
		if judgeModel.AvgJudgeScore != nil {
			avg = (*judgeModel.AvgJudgeScore*float64(timesJudged-1) + audit.OverallScore) / float64(timesJudged)
		}
		if err := st.UpdateJudgeScore(ctx, dc.debate.JudgeID, timesJudged, avg); err != nil {
			return fmt.Errorf("updating judge average: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dc.entries = append(dc.entries, entry)

	log.Info("audit complete",
		zap.String("debate_id", debateID.String()),
		zap.Float64("overall_score", audit.OverallScore),
		zap.Int("accuracy", audit.Accuracy),
		zap.Int("fairness", audit.Fairness),
		zap.Int("thoroughness", audit.Thoroughness),
		zap.Int("reasoning_quality", audit.ReasoningQuality))
	return audit, nil
}

func (s *Service) findReplacement(ctx context.Context, excludeIDs map[uuid.UUID]bool) (*debate.Model, error) {
	exclude := make([]uuid.UUID, 0, len(excludeIDs))
	for id := range excludeIDs {
		exclude = append(exclude, id)
	}
	models, err := s.store.ListActiveModels(ctx, exclude)
	if err != nil {
		return nil, fmt.Errorf("finding replacement model: %w", err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0], nil
}

func (s *Service) recordExcuse(ctx context.Context, excused, replacement *debate.Model, role debate.Role, phase debate.Phase, errMsg string) error {
	if err := s.store.IncrementTimesExcused(ctx, excused.ID); err != nil {
		return fmt.Errorf("recording excuse for %s: %w", excused.Name, err)
	}
	s.excusedIDs[excused.ID] = true

	rec := debate.ExcuseRecord{
		ModelID:      excused.ID.String(),
		ModelName:    excused.Name,
		Role:         role,
		Provider:     excused.Provider,
		Phase:        phase,
		ErrorMessage: errMsg,
	}
	if replacement != nil {
		rec.ReplacementModelID = replacement.ID.String()
		rec.ReplacementModelName = replacement.Name
	}
	s.excuses = append(s.excuses, rec)
	return nil
}

func (s *Service) addSubstitutionNote(ctx context.Context, dc *debateContext, excused, replacement *debate.Model, role debate.Role, phase debate.Phase, reasonText string) error {
	pos := debate.PositionForRole(role)
	title := "Judge"
	if role == debate.RoleAuditor {
		title = "Auditor"
	}
	content := fmt.Sprintf(
		"[SUBSTITUTION NOTICE: %s was unable to continue due to %s. %s has been substituted as the %s.]",
		excused.Name, reasonText, replacement.Name, title)

	entry := &debate.TranscriptEntry{
		ID:            uuid.New(),
		DebateID:      dc.debate.ID,
		Phase:         phase,
		SpeakerID:     replacement.ID,
		Position:      &pos,
		Content:       content,
		SequenceOrder: nextSequence(dc.entries),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.AppendTranscriptEntry(ctx, entry); err != nil {
		return fmt.Errorf("appending substitution note: %w", err)
	}
	dc.entries = append(dc.entries, entry)
	return nil
}

func nextSequence(entries []*debate.TranscriptEntry) int {
	next := 0
	for _, e := range entries {
		if e.SequenceOrder >= next {
			next = e.SequenceOrder + 1
		}
	}
	return next
}

// callModelWithJSONRetry calls the model and, if the response does not
// contain parseable JSON, nudges once with the prior response in context.
func (s *Service) callModelWithJSONRetry(ctx context.Context, m *debate.Model, systemPrompt string, messages []llm.Message, maxTokens int) (string, error) {
	response, err := s.callModel(ctx, m, systemPrompt, messages, maxTokens)
	if err != nil {
		return "", err
	}
	if _, jerr := extractJSON(response); jerr == nil {
		return response, nil
	}
	log.Warn("invalid JSON response, retrying with nudge", zap.String("model", m.Name))

	retryMessages := append(append([]llm.Message{}, messages...),
		llm.Message{Role: "assistant", Content: response},
		llm.Message{Role: "user", Content: jsonRetryPrompt},
	)
	return s.callModel(ctx, m, systemPrompt, retryMessages, maxTokens)
}

func (s *Service) callModel(ctx context.Context, m *debate.Model, systemPrompt string, messages []llm.Message, maxTokens int) (string, error) {
	provider, err := s.resolve(m.APIModelID)
	if err != nil {
		return "", fmt.Errorf("resolving provider for %s: %w", m.Name, err)
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := provider.Complete(cctx, systemPrompt, messages, maxTokens)
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			log.Error("api call timed out",
				zap.String("model", m.Name),
				zap.String("provider", m.Provider),
				zap.Duration("timeout", s.timeout))
			return "", &llm.TimeoutError{
				Provider:  m.Provider,
				ModelName: m.Name,
				Message:   fmt.Sprintf("API call to %s timed out after %s", m.Name, s.timeout),
			}
		}
		return "", err
	}
	return response, nil
}
