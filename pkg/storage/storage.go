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
// Package storage defines the persistence contract for the debate engine.
// The postgres subpackage is the production implementation; memstore backs
// the test suites.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/robuttal/robuttal/pkg/debate"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract. All methods are safe for concurrent
// use; mutations that must be atomic with a status transition run inside
// Transact.
type Store interface {
	// Transact runs fn against a transactional view of the store. If fn
	// returns an error the transaction rolls back.
	Transact(ctx context.Context, fn func(Store) error) error

	// Models.

	GetModel(ctx context.Context, id uuid.UUID) (*debate.Model, error)
	// GetModelForUpdate loads a model and, when called inside Transact,
	// holds a write lock on its row until the transaction ends. Callers
	// that read a model and write back a value derived from it must use
	// this so concurrent completions sharing a model do not lose updates.
	GetModelForUpdate(ctx context.Context, id uuid.UUID) (*debate.Model, error)
	// ListActiveModels returns active models, excluding the given IDs,
	// ordered by Elo rating descending.
	ListActiveModels(ctx context.Context, excludeIDs []uuid.UUID) ([]*debate.Model, error)
	IncrementTimesExcused(ctx context.Context, id uuid.UUID) error
	// ApplyMatchResult sets both debaters' new ratings and bumps their
	// win/loss counters.
	ApplyMatchResult(ctx context.Context, winnerID, loserID uuid.UUID, winnerNewElo, loserNewElo int) error
	// UpdateJudgeScore sets a judge's rolling audit average and judged count.
	UpdateJudgeScore(ctx context.Context, judgeID uuid.UUID, timesJudged int, avgScore float64) error

	// Topics.

	GetTopic(ctx context.Context, id uuid.UUID) (*debate.Topic, error)
	// TopVotedUserTopic returns the approved user topic with the highest
	// vote count at or above minVotes, oldest first on ties.
	TopVotedUserTopic(ctx context.Context, minVotes int) (*debate.Topic, error)
	// RandomPendingSeedTopic returns a random pending seed topic whose
	// subdomain is not in excludeSubdomains.
	RandomPendingSeedTopic(ctx context.Context, excludeSubdomains []string) (*debate.Topic, error)
	SetTopicStatus(ctx context.Context, id uuid.UUID, status debate.TopicStatus) error
	MarkTopicDebated(ctx context.Context, id uuid.UUID, at time.Time) error
	// SubdomainsDebatedSince returns the subdomains of topics debated at or
	// after the given time, for daily diversity in seed selection.
	SubdomainsDebatedSince(ctx context.Context, since time.Time) ([]string, error)

	// Debates.

	CreateDebate(ctx context.Context, d *debate.Debate) error
	GetDebate(ctx context.Context, id uuid.UUID) (*debate.Debate, error)
	// UpdateDebate writes every mutable column of the debate row.
	UpdateDebate(ctx context.Context, d *debate.Debate) error
	// RecentMatchupPairs returns the (pro, con) debater pairs of debates
	// created at or after the given time, regardless of status.
	RecentMatchupPairs(ctx context.Context, since time.Time) ([][2]uuid.UUID, error)
	// StuckJudgingDebates returns debates in judging status whose
	// started_at (or scheduled_at when started_at is null) is before cutoff.
	StuckJudgingDebates(ctx context.Context, cutoff time.Time) ([]*debate.Debate, error)

	// Transcript entries.

	AppendTranscriptEntry(ctx context.Context, e *debate.TranscriptEntry) error
	// TranscriptEntries returns a debate's entries ordered by sequence.
	TranscriptEntries(ctx context.Context, debateID uuid.UUID) ([]*debate.TranscriptEntry, error)
	// DeleteTranscript removes all entries for a debate.
	DeleteTranscript(ctx context.Context, debateID uuid.UUID) error
}
