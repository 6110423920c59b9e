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
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/storage"
)

// maxMatchupShuffleAttempts bounds the search for a debater pairing that
// has not met recently before accepting a repeat.
const maxMatchupShuffleAttempts = 50

// Quartet is the four seats selected for one debate.
type Quartet struct {
	Pro     *debate.Model
	Con     *debate.Model
	Judge   *debate.Model
	Auditor *debate.Model
}

// SelectNextTopic picks the topic for the next debate, or nil when the
// pool is empty. In hybrid mode, user-submitted topics that cleared the
// vote threshold take priority over the seed backlog.
func SelectNextTopic(ctx context.Context, st storage.Store, mode string, minVotes int) (*debate.Topic, error) {
	switch mode {
	case "user_only":
		return noneAsNil(st.TopVotedUserTopic(ctx, minVotes))
	case "backlog_only":
		return selectSeedTopic(ctx, st)
	default:
		t, err := noneAsNil(st.TopVotedUserTopic(ctx, minVotes))
		if err != nil || t != nil {
			return t, err
		}
		return selectSeedTopic(ctx, st)
	}
}

// selectSeedTopic draws a random pending seed topic, avoiding subdomains
// already debated today so consecutive slots cover different ground. When
// every pending subdomain has been covered, the constraint is dropped.
func selectSeedTopic(ctx context.Context, st storage.Store) (*debate.Topic, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	debated, err := st.SubdomainsDebatedSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("loading today's subdomains: %w", err)
	}

	t, err := noneAsNil(st.RandomPendingSeedTopic(ctx, debated))
	if err != nil || t != nil {
		return t, err
	}
	return noneAsNil(st.RandomPendingSeedTopic(ctx, nil))
}

func noneAsNil(t *debate.Topic, err error) (*debate.Topic, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// SelectDebateModels seats a quartet from the active roster, excluding the
// given IDs. Returns nil when fewer than three models remain. Debater
// pairings that met within the cooldown window are avoided when possible,
// and the auditor seat goes to the candidate with the best audit track
// record. With only three models the auditor doubles as a debater; the
// judge seat is never shared.
func SelectDebateModels(ctx context.Context, st storage.Store, exclude map[uuid.UUID]bool, cooldown time.Duration, rnd *rand.Rand) (*Quartet, error) {
	excludeIDs := make([]uuid.UUID, 0, len(exclude))
	for id := range exclude {
		excludeIDs = append(excludeIDs, id)
	}
	models, err := st.ListActiveModels(ctx, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("listing active models: %w", err)
	}
	if len(models) < 3 {
		return nil, nil
	}
	allowAuditorReuse := len(models) < 4

	pairs, err := st.RecentMatchupPairs(ctx, time.Now().UTC().Add(-cooldown))
	if err != nil {
		return nil, fmt.Errorf("loading recent matchups: %w", err)
	}
	recent := make(map[[2]uuid.UUID]bool, len(pairs))
	for _, p := range pairs {
		recent[matchupKey(p[0], p[1])] = true
	}

	shuffled := make([]*debate.Model, len(models))
	copy(shuffled, models)
	for attempt := 0; attempt < maxMatchupShuffleAttempts; attempt++ {
		rnd.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		pro, con := shuffled[0], shuffled[1]
		if recent[matchupKey(pro.ID, con.ID)] {
			continue
		}
		judgeModel := shuffled[2]

		var candidates []*debate.Model
		if allowAuditorReuse {
			candidates = []*debate.Model{pro, con}
		} else {
			candidates = shuffled[3:]
		}
		return &Quartet{Pro: pro, Con: con, Judge: judgeModel, Auditor: bestAuditor(candidates)}, nil
	}

	// Every shuffle produced a recent pairing; accept a repeat rather than
	// skip the slot.
	rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	q := &Quartet{Pro: shuffled[0], Con: shuffled[1], Judge: shuffled[2]}
	if len(shuffled) >= 4 {
		q.Auditor = shuffled[3]
	} else {
		q.Auditor = shuffled[0]
	}
	return q, nil
}

// bestAuditor prefers the candidate with the highest rolling audit average.
// Models that have never judged rank below any scored model.
func bestAuditor(candidates []*debate.Model) *debate.Model {
	best := candidates[0]
	bestScore := auditorScore(best)
	for _, m := range candidates[1:] {
		if s := auditorScore(m); s > bestScore {
			best, bestScore = m, s
		}
	}
	return best
}

func auditorScore(m *debate.Model) float64 {
	if m.AvgJudgeScore == nil {
		return -1
	}
	return *m.AvgJudgeScore
}

// matchupKey normalizes a debater pair so (a, b) and (b, a) collide.
func matchupKey(a, b uuid.UUID) [2]uuid.UUID {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}
