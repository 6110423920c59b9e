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
// Package memstore is an in-memory storage.Store for tests and local
// experimentation. All reads return copies so callers cannot mutate
// shared state.
package memstore

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/storage"
)

// Store is a mutex-guarded in-memory implementation of storage.Store.
type Store struct {
	mu      sync.Mutex
	models  map[uuid.UUID]*debate.Model
	topics  map[uuid.UUID]*debate.Topic
	debates map[uuid.UUID]*debate.Debate
	entries map[uuid.UUID][]*debate.TranscriptEntry
	rnd     *rand.Rand
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		models:  make(map[uuid.UUID]*debate.Model),
		topics:  make(map[uuid.UUID]*debate.Topic),
		debates: make(map[uuid.UUID]*debate.Debate),
		entries: make(map[uuid.UUID][]*debate.TranscriptEntry),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PutModel inserts or replaces a model row. Test seeding helper.
func (s *Store) PutModel(m *debate.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[m.ID] = cloneModel(m)
}

// PutTopic inserts or replaces a topic row. Test seeding helper.
func (s *Store) PutTopic(t *debate.Topic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[t.ID] = cloneTopic(t)
}

// Debates returns every debate row. Test inspection helper.
func (s *Store) Debates() []*debate.Debate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*debate.Debate, 0, len(s.debates))
	for _, d := range s.debates {
		out = append(out, cloneDebate(d))
	}
	return out
}

// Transact snapshots the store, runs fn against an unlocked view, and
// restores the snapshot if fn fails.
func (s *Store) Transact(ctx context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&txView{s: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type state struct {
	models  map[uuid.UUID]*debate.Model
	topics  map[uuid.UUID]*debate.Topic
	debates map[uuid.UUID]*debate.Debate
	entries map[uuid.UUID][]*debate.TranscriptEntry
}

func (s *Store) snapshot() state {
	st := state{
		models:  make(map[uuid.UUID]*debate.Model, len(s.models)),
		topics:  make(map[uuid.UUID]*debate.Topic, len(s.topics)),
		debates: make(map[uuid.UUID]*debate.Debate, len(s.debates)),
		entries: make(map[uuid.UUID][]*debate.TranscriptEntry, len(s.entries)),
	}
	for id, m := range s.models {
		st.models[id] = cloneModel(m)
	}
	for id, t := range s.topics {
		st.topics[id] = cloneTopic(t)
	}
	for id, d := range s.debates {
		st.debates[id] = cloneDebate(d)
	}
	for id, es := range s.entries {
		st.entries[id] = cloneEntries(es)
	}
	return st
}

func (s *Store) restore(st state) {
	s.models = st.models
	s.topics = st.topics
	s.debates = st.debates
	s.entries = st.entries
}

// txView exposes the unlocked method set inside a Transact callback. The
// outer Transact holds the store mutex for the duration.
type txView struct {
	s *Store
}

var _ storage.Store = (*txView)(nil)

func (v *txView) Transact(ctx context.Context, fn func(storage.Store) error) error {
	return fn(v)
}

func (v *txView) GetModel(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	return v.s.getModel(id)
}

// GetModelForUpdate is a plain read here: the store mutex already
// serializes whole transactions.
func (v *txView) GetModelForUpdate(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	return v.s.getModel(id)
}

func (v *txView) ListActiveModels(ctx context.Context, excludeIDs []uuid.UUID) ([]*debate.Model, error) {
	return v.s.listActiveModels(excludeIDs)
}

func (v *txView) IncrementTimesExcused(ctx context.Context, id uuid.UUID) error {
	return v.s.incrementTimesExcused(id)
}

func (v *txView) ApplyMatchResult(ctx context.Context, winnerID, loserID uuid.UUID, winnerNewElo, loserNewElo int) error {
	return v.s.applyMatchResult(winnerID, loserID, winnerNewElo, loserNewElo)
}

func (v *txView) UpdateJudgeScore(ctx context.Context, judgeID uuid.UUID, timesJudged int, avgScore float64) error {
	return v.s.updateJudgeScore(judgeID, timesJudged, avgScore)
}

func (v *txView) GetTopic(ctx context.Context, id uuid.UUID) (*debate.Topic, error) {
	return v.s.getTopic(id)
}

func (v *txView) TopVotedUserTopic(ctx context.Context, minVotes int) (*debate.Topic, error) {
	return v.s.topVotedUserTopic(minVotes)
}

func (v *txView) RandomPendingSeedTopic(ctx context.Context, excludeSubdomains []string) (*debate.Topic, error) {
	return v.s.randomPendingSeedTopic(excludeSubdomains)
}

func (v *txView) SetTopicStatus(ctx context.Context, id uuid.UUID, status debate.TopicStatus) error {
	return v.s.setTopicStatus(id, status)
}

func (v *txView) MarkTopicDebated(ctx context.Context, id uuid.UUID, at time.Time) error {
	return v.s.markTopicDebated(id, at)
}

func (v *txView) SubdomainsDebatedSince(ctx context.Context, since time.Time) ([]string, error) {
	return v.s.subdomainsDebatedSince(since)
}

func (v *txView) CreateDebate(ctx context.Context, d *debate.Debate) error {
	return v.s.createDebate(d)
}

func (v *txView) GetDebate(ctx context.Context, id uuid.UUID) (*debate.Debate, error) {
	return v.s.getDebate(id)
}

func (v *txView) UpdateDebate(ctx context.Context, d *debate.Debate) error {
	return v.s.updateDebate(d)
}

func (v *txView) RecentMatchupPairs(ctx context.Context, since time.Time) ([][2]uuid.UUID, error) {
	return v.s.recentMatchupPairs(since)
}

func (v *txView) StuckJudgingDebates(ctx context.Context, cutoff time.Time) ([]*debate.Debate, error) {
	return v.s.stuckJudgingDebates(cutoff)
}

func (v *txView) AppendTranscriptEntry(ctx context.Context, e *debate.TranscriptEntry) error {
	return v.s.appendTranscriptEntry(e)
}

func (v *txView) TranscriptEntries(ctx context.Context, debateID uuid.UUID) ([]*debate.TranscriptEntry, error) {
	return v.s.transcriptEntries(debateID)
}

func (v *txView) DeleteTranscript(ctx context.Context, debateID uuid.UUID) error {
	return v.s.deleteTranscript(debateID)
}

// Locked exported methods.

func (s *Store) GetModel(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getModel(id)
}

func (s *Store) GetModelForUpdate(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getModel(id)
}

func (s *Store) ListActiveModels(ctx context.Context, excludeIDs []uuid.UUID) ([]*debate.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listActiveModels(excludeIDs)
}

func (s *Store) IncrementTimesExcused(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementTimesExcused(id)
}

func (s *Store) ApplyMatchResult(ctx context.Context, winnerID, loserID uuid.UUID, winnerNewElo, loserNewElo int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMatchResult(winnerID, loserID, winnerNewElo, loserNewElo)
}

func (s *Store) UpdateJudgeScore(ctx context.Context, judgeID uuid.UUID, timesJudged int, avgScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateJudgeScore(judgeID, timesJudged, avgScore)
}

func (s *Store) GetTopic(ctx context.Context, id uuid.UUID) (*debate.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTopic(id)
}

func (s *Store) TopVotedUserTopic(ctx context.Context, minVotes int) (*debate.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topVotedUserTopic(minVotes)
}

func (s *Store) RandomPendingSeedTopic(ctx context.Context, excludeSubdomains []string) (*debate.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randomPendingSeedTopic(excludeSubdomains)
}

func (s *Store) SetTopicStatus(ctx context.Context, id uuid.UUID, status debate.TopicStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTopicStatus(id, status)
}

func (s *Store) MarkTopicDebated(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markTopicDebated(id, at)
}

func (s *Store) SubdomainsDebatedSince(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subdomainsDebatedSince(since)
}

func (s *Store) CreateDebate(ctx context.Context, d *debate.Debate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDebate(d)
}

func (s *Store) GetDebate(ctx context.Context, id uuid.UUID) (*debate.Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDebate(id)
}

func (s *Store) UpdateDebate(ctx context.Context, d *debate.Debate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDebate(d)
}

func (s *Store) RecentMatchupPairs(ctx context.Context, since time.Time) ([][2]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentMatchupPairs(since)
}

func (s *Store) StuckJudgingDebates(ctx context.Context, cutoff time.Time) ([]*debate.Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stuckJudgingDebates(cutoff)
}

func (s *Store) AppendTranscriptEntry(ctx context.Context, e *debate.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendTranscriptEntry(e)
}

func (s *Store) TranscriptEntries(ctx context.Context, debateID uuid.UUID) ([]*debate.TranscriptEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptEntries(debateID)
}

func (s *Store) DeleteTranscript(ctx context.Context, debateID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteTranscript(debateID)
}

// Unlocked implementations. Callers hold s.mu.

func (s *Store) getModel(id uuid.UUID) (*debate.Model, error) {
	m, ok := s.models[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneModel(m), nil
}

func (s *Store) listActiveModels(excludeIDs []uuid.UUID) ([]*debate.Model, error) {
	excluded := make(map[uuid.UUID]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var models []*debate.Model
	for _, m := range s.models {
		if m.IsActive && !excluded[m.ID] {
			models = append(models, cloneModel(m))
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].EloRating != models[j].EloRating {
			return models[i].EloRating > models[j].EloRating
		}
		return models[i].Name < models[j].Name
	})
	return models, nil
}

func (s *Store) incrementTimesExcused(id uuid.UUID) error {
	m, ok := s.models[id]
	if !ok {
		return storage.ErrNotFound
	}
	m.TimesExcused++
	return nil
}

func (s *Store) applyMatchResult(winnerID, loserID uuid.UUID, winnerNewElo, loserNewElo int) error {
	winner, ok := s.models[winnerID]
	if !ok {
		return storage.ErrNotFound
	}
	loser, ok := s.models[loserID]
	if !ok {
		return storage.ErrNotFound
	}
	winner.EloRating = winnerNewElo
	winner.DebatesWon++
	loser.EloRating = loserNewElo
	loser.DebatesLost++
	return nil
}

func (s *Store) updateJudgeScore(judgeID uuid.UUID, timesJudged int, avgScore float64) error {
	m, ok := s.models[judgeID]
	if !ok {
		return storage.ErrNotFound
	}
	m.TimesJudged = timesJudged
	score := avgScore
	m.AvgJudgeScore = &score
	return nil
}

func (s *Store) getTopic(id uuid.UUID) (*debate.Topic, error) {
	t, ok := s.topics[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneTopic(t), nil
}

func (s *Store) topVotedUserTopic(minVotes int) (*debate.Topic, error) {
	var best *debate.Topic
	for _, t := range s.topics {
		if t.Source != debate.TopicSourceUser || t.Status != debate.TopicStatusApproved || t.VoteCount < minVotes {
			continue
		}
		if best == nil ||
			t.VoteCount > best.VoteCount ||
			(t.VoteCount == best.VoteCount && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return cloneTopic(best), nil
}

func (s *Store) randomPendingSeedTopic(excludeSubdomains []string) (*debate.Topic, error) {
	excluded := make(map[string]bool, len(excludeSubdomains))
	for _, sd := range excludeSubdomains {
		excluded[sd] = true
	}
	var eligible []*debate.Topic
	for _, t := range s.topics {
		if t.Source == debate.TopicSourceSeed && t.Status == debate.TopicStatusPending && !excluded[t.Subdomain] {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil, storage.ErrNotFound
	}
	return cloneTopic(eligible[s.rnd.Intn(len(eligible))]), nil
}

func (s *Store) setTopicStatus(id uuid.UUID, status debate.TopicStatus) error {
	t, ok := s.topics[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.Status = status
	return nil
}

func (s *Store) markTopicDebated(id uuid.UUID, at time.Time) error {
	t, ok := s.topics[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.Status = debate.TopicStatusDebated
	when := at
	t.DebatedAt = &when
	return nil
}

func (s *Store) subdomainsDebatedSince(since time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var subdomains []string
	for _, t := range s.topics {
		if t.Status != debate.TopicStatusDebated || t.DebatedAt == nil || t.DebatedAt.Before(since) {
			continue
		}
		if !seen[t.Subdomain] {
			seen[t.Subdomain] = true
			subdomains = append(subdomains, t.Subdomain)
		}
	}
	return subdomains, nil
}

func (s *Store) createDebate(d *debate.Debate) error {
	s.debates[d.ID] = cloneDebate(d)
	return nil
}

func (s *Store) getDebate(id uuid.UUID) (*debate.Debate, error) {
	d, ok := s.debates[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneDebate(d), nil
}

func (s *Store) updateDebate(d *debate.Debate) error {
	existing, ok := s.debates[d.ID]
	if !ok {
		return storage.ErrNotFound
	}
	updated := cloneDebate(d)
	updated.CreatedAt = existing.CreatedAt
	s.debates[d.ID] = updated
	return nil
}

func (s *Store) recentMatchupPairs(since time.Time) ([][2]uuid.UUID, error) {
	var pairs [][2]uuid.UUID
	for _, d := range s.debates {
		if !d.CreatedAt.Before(since) {
			pairs = append(pairs, [2]uuid.UUID{d.DebaterProID, d.DebaterConID})
		}
	}
	return pairs, nil
}

func (s *Store) stuckJudgingDebates(cutoff time.Time) ([]*debate.Debate, error) {
	var stuck []*debate.Debate
	for _, d := range s.debates {
		if d.Status != debate.StatusJudging {
			continue
		}
		switch {
		case d.StartedAt != nil && d.StartedAt.Before(cutoff):
			stuck = append(stuck, cloneDebate(d))
		case d.StartedAt == nil && d.ScheduledAt.Before(cutoff):
			stuck = append(stuck, cloneDebate(d))
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].ScheduledAt.Before(stuck[j].ScheduledAt)
	})
	return stuck, nil
}

func (s *Store) appendTranscriptEntry(e *debate.TranscriptEntry) error {
	if _, ok := s.debates[e.DebateID]; !ok {
		return storage.ErrNotFound
	}
	s.entries[e.DebateID] = append(s.entries[e.DebateID], cloneEntry(e))
	return nil
}

func (s *Store) transcriptEntries(debateID uuid.UUID) ([]*debate.TranscriptEntry, error) {
	entries := cloneEntries(s.entries[debateID])
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SequenceOrder < entries[j].SequenceOrder
	})
	return entries, nil
}

func (s *Store) deleteTranscript(debateID uuid.UUID) error {
	delete(s.entries, debateID)
	return nil
}

// Clone helpers.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneModel(m *debate.Model) *debate.Model {
	c := *m
	c.AvgJudgeScore = clonePtr(m.AvgJudgeScore)
	return &c
}

func cloneTopic(t *debate.Topic) *debate.Topic {
	c := *t
	c.SubmittedBy = clonePtr(t.SubmittedBy)
	c.DebatedAt = clonePtr(t.DebatedAt)
	return &c
}

func cloneDebate(d *debate.Debate) *debate.Debate {
	c := *d
	c.WinnerID = clonePtr(d.WinnerID)
	c.ProScore = clonePtr(d.ProScore)
	c.ConScore = clonePtr(d.ConScore)
	c.JudgeScore = clonePtr(d.JudgeScore)
	c.ProLogicalConsistency = clonePtr(d.ProLogicalConsistency)
	c.ProEvidence = clonePtr(d.ProEvidence)
	c.ProPersuasiveness = clonePtr(d.ProPersuasiveness)
	c.ProEngagement = clonePtr(d.ProEngagement)
	c.ConLogicalConsistency = clonePtr(d.ConLogicalConsistency)
	c.ConEvidence = clonePtr(d.ConEvidence)
	c.ConPersuasiveness = clonePtr(d.ConPersuasiveness)
	c.ConEngagement = clonePtr(d.ConEngagement)
	c.AuditAccuracy = clonePtr(d.AuditAccuracy)
	c.AuditFairness = clonePtr(d.AuditFairness)
	c.AuditThoroughness = clonePtr(d.AuditThoroughness)
	c.AuditReasoningQuality = clonePtr(d.AuditReasoningQuality)
	c.ProEloBefore = clonePtr(d.ProEloBefore)
	c.ProEloAfter = clonePtr(d.ProEloAfter)
	c.ConEloBefore = clonePtr(d.ConEloBefore)
	c.ConEloAfter = clonePtr(d.ConEloAfter)
	c.StartedAt = clonePtr(d.StartedAt)
	c.CompletedAt = clonePtr(d.CompletedAt)
	if d.AnalysisMetadata != nil {
		meta := debate.AnalysisMetadata{
			ContentFilterExcuses: append([]debate.ExcuseRecord(nil), d.AnalysisMetadata.ContentFilterExcuses...),
		}
		c.AnalysisMetadata = &meta
	}
	return &c
}

func cloneEntry(e *debate.TranscriptEntry) *debate.TranscriptEntry {
	c := *e
	c.Position = clonePtr(e.Position)
	c.InputTokens = clonePtr(e.InputTokens)
	c.OutputTokens = clonePtr(e.OutputTokens)
	c.LatencyMS = clonePtr(e.LatencyMS)
	c.CostUSD = clonePtr(e.CostUSD)
	return &c
}

func cloneEntries(entries []*debate.TranscriptEntry) []*debate.TranscriptEntry {
	out := make([]*debate.TranscriptEntry, len(entries))
	for i, e := range entries {
		out[i] = cloneEntry(e)
	}
	return out
}
