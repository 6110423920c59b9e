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
// Package postgres implements storage.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/storage"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx, so the
// same query methods serve both the pooled store and transactional views.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed implementation of storage.Store.
type Store struct {
	pool *pgxpool.Pool
	q    querier
}

var _ storage.Store = (*Store)(nil)

// New connects to the database and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool, q: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Transact runs fn inside a database transaction. A Store already bound to
// a transaction runs fn against the same transaction.
func (s *Store) Transact(ctx context.Context, fn func(storage.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&Store{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const modelColumns = `id, name, provider, api_model_id, elo_rating, debates_won,
	debates_lost, times_judged, avg_judge_score, times_excused, is_active, created_at`

func scanModel(row rowScanner) (*debate.Model, error) {
	var m debate.Model
	err := row.Scan(&m.ID, &m.Name, &m.Provider, &m.APIModelID, &m.EloRating,
		&m.DebatesWon, &m.DebatesLost, &m.TimesJudged, &m.AvgJudgeScore,
		&m.TimesExcused, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetModel(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	return s.getModel(ctx, id, "")
}

// GetModelForUpdate locks the model row for the rest of the surrounding
// transaction, serializing read-modify-write rating updates that would
// otherwise lose one side under READ COMMITTED.
func (s *Store) GetModelForUpdate(ctx context.Context, id uuid.UUID) (*debate.Model, error) {
	return s.getModel(ctx, id, " FOR UPDATE")
}

func (s *Store) getModel(ctx context.Context, id uuid.UUID, lock string) (*debate.Model, error) {
	row := s.q.QueryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1`+lock, id)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting model: %w", err)
	}
	return m, nil
}

func (s *Store) ListActiveModels(ctx context.Context, excludeIDs []uuid.UUID) ([]*debate.Model, error) {
	if excludeIDs == nil {
		excludeIDs = []uuid.UUID{}
	}
	rows, err := s.q.Query(ctx, `SELECT `+modelColumns+`
		FROM models
		WHERE is_active AND NOT (id = ANY($1))
		ORDER BY elo_rating DESC, name ASC`, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("listing active models: %w", err)
	}
	defer rows.Close()

	var models []*debate.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *Store) IncrementTimesExcused(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `UPDATE models SET times_excused = times_excused + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("incrementing times_excused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ApplyMatchResult(ctx context.Context, winnerID, loserID uuid.UUID, winnerNewElo, loserNewElo int) error {
	tag, err := s.q.Exec(ctx, `UPDATE models
		SET elo_rating = $2, debates_won = debates_won + 1
		WHERE id = $1`, winnerID, winnerNewElo)
	if err != nil {
		return fmt.Errorf("updating winner rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	tag, err = s.q.Exec(ctx, `UPDATE models
		SET elo_rating = $2, debates_lost = debates_lost + 1
		WHERE id = $1`, loserID, loserNewElo)
	if err != nil {
		return fmt.Errorf("updating loser rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateJudgeScore(ctx context.Context, judgeID uuid.UUID, timesJudged int, avgScore float64) error {
	tag, err := s.q.Exec(ctx, `UPDATE models
		SET times_judged = $2, avg_judge_score = $3
		WHERE id = $1`, judgeID, timesJudged, avgScore)
	if err != nil {
		return fmt.Errorf("updating judge score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const topicColumns = `id, title, subdomain, domain, source, submitted_by,
	vote_count, status, created_at, debated_at`

func scanTopic(row rowScanner) (*debate.Topic, error) {
	var t debate.Topic
	err := row.Scan(&t.ID, &t.Title, &t.Subdomain, &t.Domain, &t.Source,
		&t.SubmittedBy, &t.VoteCount, &t.Status, &t.CreatedAt, &t.DebatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTopic(ctx context.Context, id uuid.UUID) (*debate.Topic, error) {
	row := s.q.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id)
	t, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting topic: %w", err)
	}
	return t, nil
}

func (s *Store) TopVotedUserTopic(ctx context.Context, minVotes int) (*debate.Topic, error) {
	row := s.q.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics
		WHERE source = 'user' AND status = 'approved' AND vote_count >= $1
		ORDER BY vote_count DESC, created_at ASC
		LIMIT 1`, minVotes)
	t, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting user topic: %w", err)
	}
	return t, nil
}

func (s *Store) RandomPendingSeedTopic(ctx context.Context, excludeSubdomains []string) (*debate.Topic, error) {
	if excludeSubdomains == nil {
		excludeSubdomains = []string{}
	}
	row := s.q.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics
		WHERE source = 'seed' AND status = 'pending' AND NOT (subdomain = ANY($1))
		ORDER BY random()
		LIMIT 1`, excludeSubdomains)
	t, err := scanTopic(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("selecting seed topic: %w", err)
	}
	return t, nil
}

func (s *Store) SetTopicStatus(ctx context.Context, id uuid.UUID, status debate.TopicStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE topics SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("setting topic status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) MarkTopicDebated(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE topics
		SET status = 'debated', debated_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("marking topic debated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SubdomainsDebatedSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT subdomain FROM topics
		WHERE status = 'debated' AND debated_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("listing debated subdomains: %w", err)
	}
	defer rows.Close()

	var subdomains []string
	for rows.Next() {
		var sd string
		if err := rows.Scan(&sd); err != nil {
			return nil, fmt.Errorf("scanning subdomain: %w", err)
		}
		subdomains = append(subdomains, sd)
	}
	return subdomains, rows.Err()
}

const debateColumns = `id, topic_id, debater_pro_id, debater_con_id, judge_id,
	auditor_id, winner_id, pro_score, con_score, judge_score,
	pro_logical_consistency, pro_evidence, pro_persuasiveness, pro_engagement,
	con_logical_consistency, con_evidence, con_persuasiveness, con_engagement,
	audit_accuracy, audit_fairness, audit_thoroughness, audit_reasoning_quality,
	pro_elo_before, pro_elo_after, con_elo_before, con_elo_after,
	status, scheduled_at, started_at, completed_at, created_at,
	analysis_metadata, is_blinded`

func scanDebate(row rowScanner) (*debate.Debate, error) {
	var d debate.Debate
	var metadata []byte
	err := row.Scan(&d.ID, &d.TopicID, &d.DebaterProID, &d.DebaterConID, &d.JudgeID,
		&d.AuditorID, &d.WinnerID, &d.ProScore, &d.ConScore, &d.JudgeScore,
		&d.ProLogicalConsistency, &d.ProEvidence, &d.ProPersuasiveness, &d.ProEngagement,
		&d.ConLogicalConsistency, &d.ConEvidence, &d.ConPersuasiveness, &d.ConEngagement,
		&d.AuditAccuracy, &d.AuditFairness, &d.AuditThoroughness, &d.AuditReasoningQuality,
		&d.ProEloBefore, &d.ProEloAfter, &d.ConEloBefore, &d.ConEloAfter,
		&d.Status, &d.ScheduledAt, &d.StartedAt, &d.CompletedAt, &d.CreatedAt,
		&metadata, &d.IsBlinded)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		d.AnalysisMetadata = &debate.AnalysisMetadata{}
		if err := json.Unmarshal(metadata, d.AnalysisMetadata); err != nil {
			return nil, fmt.Errorf("decoding analysis metadata: %w", err)
		}
	}
	return &d, nil
}

func marshalMetadata(m *debate.AnalysisMetadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (s *Store) CreateDebate(ctx context.Context, d *debate.Debate) error {
	metadata, err := marshalMetadata(d.AnalysisMetadata)
	if err != nil {
		return fmt.Errorf("encoding analysis metadata: %w", err)
	}
	_, err = s.q.Exec(ctx, `INSERT INTO debates (
			id, topic_id, debater_pro_id, debater_con_id, judge_id, auditor_id,
			status, scheduled_at, created_at, analysis_metadata, is_blinded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.TopicID, d.DebaterProID, d.DebaterConID, d.JudgeID, d.AuditorID,
		d.Status, d.ScheduledAt, d.CreatedAt, metadata, d.IsBlinded)
	if err != nil {
		return fmt.Errorf("creating debate: %w", err)
	}
	return nil
}

func (s *Store) GetDebate(ctx context.Context, id uuid.UUID) (*debate.Debate, error) {
	row := s.q.QueryRow(ctx, `SELECT `+debateColumns+` FROM debates WHERE id = $1`, id)
	d, err := scanDebate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting debate: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateDebate(ctx context.Context, d *debate.Debate) error {
	metadata, err := marshalMetadata(d.AnalysisMetadata)
	if err != nil {
		return fmt.Errorf("encoding analysis metadata: %w", err)
	}
	tag, err := s.q.Exec(ctx, `UPDATE debates SET
			debater_pro_id = $2, debater_con_id = $3, judge_id = $4, auditor_id = $5,
			winner_id = $6, pro_score = $7, con_score = $8, judge_score = $9,
			pro_logical_consistency = $10, pro_evidence = $11,
			pro_persuasiveness = $12, pro_engagement = $13,
			con_logical_consistency = $14, con_evidence = $15,
			con_persuasiveness = $16, con_engagement = $17,
			audit_accuracy = $18, audit_fairness = $19,
			audit_thoroughness = $20, audit_reasoning_quality = $21,
			pro_elo_before = $22, pro_elo_after = $23,
			con_elo_before = $24, con_elo_after = $25,
			status = $26, scheduled_at = $27, started_at = $28, completed_at = $29,
			analysis_metadata = $30, is_blinded = $31
		WHERE id = $1`,
		d.ID, d.DebaterProID, d.DebaterConID, d.JudgeID, d.AuditorID,
		d.WinnerID, d.ProScore, d.ConScore, d.JudgeScore,
		d.ProLogicalConsistency, d.ProEvidence, d.ProPersuasiveness, d.ProEngagement,
		d.ConLogicalConsistency, d.ConEvidence, d.ConPersuasiveness, d.ConEngagement,
		d.AuditAccuracy, d.AuditFairness, d.AuditThoroughness, d.AuditReasoningQuality,
		d.ProEloBefore, d.ProEloAfter, d.ConEloBefore, d.ConEloAfter,
		d.Status, d.ScheduledAt, d.StartedAt, d.CompletedAt,
		metadata, d.IsBlinded)
	if err != nil {
		return fmt.Errorf("updating debate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) RecentMatchupPairs(ctx context.Context, since time.Time) ([][2]uuid.UUID, error) {
	rows, err := s.q.Query(ctx, `SELECT debater_pro_id, debater_con_id
		FROM debates
		WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("listing recent matchups: %w", err)
	}
	defer rows.Close()

	var pairs [][2]uuid.UUID
	for rows.Next() {
		var pair [2]uuid.UUID
		if err := rows.Scan(&pair[0], &pair[1]); err != nil {
			return nil, fmt.Errorf("scanning matchup: %w", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (s *Store) StuckJudgingDebates(ctx context.Context, cutoff time.Time) ([]*debate.Debate, error) {
	rows, err := s.q.Query(ctx, `SELECT `+debateColumns+` FROM debates
		WHERE status = 'judging'
		  AND ((started_at IS NOT NULL AND started_at < $1)
		    OR (started_at IS NULL AND scheduled_at < $1))
		ORDER BY scheduled_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stuck debates: %w", err)
	}
	defer rows.Close()

	var debates []*debate.Debate
	for rows.Next() {
		d, err := scanDebate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning debate: %w", err)
		}
		debates = append(debates, d)
	}
	return debates, rows.Err()
}

func (s *Store) AppendTranscriptEntry(ctx context.Context, e *debate.TranscriptEntry) error {
	_, err := s.q.Exec(ctx, `INSERT INTO transcript_entries (
			id, debate_id, phase, speaker_id, position, content, token_count,
			sequence_order, created_at, input_tokens, output_tokens, latency_ms, cost_usd
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.DebateID, e.Phase, e.SpeakerID, e.Position, e.Content, e.TokenCount,
		e.SequenceOrder, e.CreatedAt, e.InputTokens, e.OutputTokens, e.LatencyMS, e.CostUSD)
	if err != nil {
		return fmt.Errorf("appending transcript entry: %w", err)
	}
	return nil
}

func (s *Store) TranscriptEntries(ctx context.Context, debateID uuid.UUID) ([]*debate.TranscriptEntry, error) {
	rows, err := s.q.Query(ctx, `SELECT id, debate_id, phase, speaker_id, position,
			content, token_count, sequence_order, created_at,
			input_tokens, output_tokens, latency_ms, cost_usd
		FROM transcript_entries
		WHERE debate_id = $1
		ORDER BY sequence_order ASC`, debateID)
	if err != nil {
		return nil, fmt.Errorf("listing transcript entries: %w", err)
	}
	defer rows.Close()

	var entries []*debate.TranscriptEntry
	for rows.Next() {
		var e debate.TranscriptEntry
		err := rows.Scan(&e.ID, &e.DebateID, &e.Phase, &e.SpeakerID, &e.Position,
			&e.Content, &e.TokenCount, &e.SequenceOrder, &e.CreatedAt,
			&e.InputTokens, &e.OutputTokens, &e.LatencyMS, &e.CostUSD)
		if err != nil {
			return nil, fmt.Errorf("scanning transcript entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *Store) DeleteTranscript(ctx context.Context, debateID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `DELETE FROM transcript_entries WHERE debate_id = $1`, debateID)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	return nil
}
