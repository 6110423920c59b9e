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
// Package elo implements pairwise Elo rating updates for debate outcomes.
package elo

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robuttal/robuttal/internal/log"
	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/storage"
)

// DefaultKFactor is the standard rating volatility constant.
const DefaultKFactor = 32

// Rater computes and applies rating updates.
type Rater struct {
	K int
}

// NewRater returns a Rater with the given K factor, falling back to the
// default when k is not positive.
func NewRater(k int) Rater {
	if k <= 0 {
		k = DefaultKFactor
	}
	return Rater{K: k}
}

// Expected returns the winner's expected score against the loser.
func Expected(winnerRating, loserRating int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(loserRating-winnerRating)/400.0))
}

// Update returns the new ratings after the winner beats the loser. Updates
// are rounded to the nearest integer, so the two deltas can differ by one
// point.
func (r Rater) Update(winnerRating, loserRating int) (newWinner, newLoser int) {
	expectedWin := Expected(winnerRating, loserRating)
	expectedLoss := 1.0 - expectedWin
	newWinner = winnerRating + int(math.Round(float64(r.K)*(1.0-expectedWin)))
	newLoser = loserRating + int(math.Round(float64(r.K)*(0.0-expectedLoss)))
	return newWinner, newLoser
}

// Apply records the rating change for a decided debate: both debaters'
// ratings and win/loss counters move together with the debate's before and
// after snapshots, in one transaction. A debate whose snapshots are
// already set is left untouched, so recovery paths can replay the
// completion pipeline safely.
func (r Rater) Apply(ctx context.Context, store storage.Store, debateID uuid.UUID) error {
	return store.Transact(ctx, func(st storage.Store) error {
		d, err := st.GetDebate(ctx, debateID)
		if err != nil {
			return fmt.Errorf("loading debate: %w", err)
		}
		if d.ProEloAfter != nil {
			log.Warn("elo already applied, skipping",
				zap.String("debate_id", debateID.String()))
			return nil
		}
		if d.WinnerID == nil {
			return fmt.Errorf("debate %s has no winner", debateID)
		}

		// Locked reads: another completion sharing a debater must wait
		// for this transaction, or its rating write would be lost.
		pro, err := st.GetModelForUpdate(ctx, d.DebaterProID)
		if err != nil {
			return fmt.Errorf("loading pro debater: %w", err)
		}
		con, err := st.GetModelForUpdate(ctx, d.DebaterConID)
		if err != nil {
			return fmt.Errorf("loading con debater: %w", err)
		}

		var winner, loser *debate.Model
		if *d.WinnerID == pro.ID {
			winner, loser = pro, con
		} else if *d.WinnerID == con.ID {
			winner, loser = con, pro
		} else {
			return fmt.Errorf("winner %s is not a debater in debate %s", d.WinnerID, debateID)
		}

		newWinner, newLoser := r.Update(winner.EloRating, loser.EloRating)

		proBefore, conBefore := pro.EloRating, con.EloRating
		var proAfter, conAfter int
		if winner == pro {
			proAfter, conAfter = newWinner, newLoser
		} else {
			proAfter, conAfter = newLoser, newWinner
		}
		d.ProEloBefore = &proBefore
		d.ProEloAfter = &proAfter
		d.ConEloBefore = &conBefore
		d.ConEloAfter = &conAfter

		if err := st.ApplyMatchResult(ctx, winner.ID, loser.ID, newWinner, newLoser); err != nil {
			return fmt.Errorf("applying match result: %w", err)
		}
		if err := st.UpdateDebate(ctx, d); err != nil {
			return fmt.Errorf("saving rating snapshots: %w", err)
		}

		log.Info("elo ratings applied",
			zap.String("debate_id", debateID.String()),
			zap.String("winner", winner.Name),
			zap.Int("winner_elo", newWinner),
			zap.String("loser", loser.Name),
			zap.Int("loser_elo", newLoser))
		return nil
	})
}
