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
package elo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robuttal/robuttal/pkg/debate"
	"github.com/robuttal/robuttal/pkg/storage"
	"github.com/robuttal/robuttal/pkg/storage/memstore"
)

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

func TestUpdate(t *testing.T) {
	r := NewRater(32)

	tests := []struct {
		name       string
		winnerElo  int
		loserElo   int
		wantWinner int
		wantLoser  int
	}{
		{name: "evenly matched", winnerElo: 1500, loserElo: 1500, wantWinner: 1516, wantLoser: 1484},
		{name: "favorite wins", winnerElo: 1700, loserElo: 1300, wantWinner: 1703, wantLoser: 1297},
		{name: "underdog wins", winnerElo: 1300, loserElo: 1700, wantWinner: 1329, wantLoser: 1671},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotWinner, gotLoser := r.Update(tt.winnerElo, tt.loserElo)
			assert.Equal(t, tt.wantWinner, gotWinner)
			assert.Equal(t, tt.wantLoser, gotLoser)
		})
	}
}

func TestUpdateZeroSum(t *testing.T) {
	r := NewRater(32)
	for _, pair := range [][2]int{{1500, 1500}, {1612, 1488}, {1433, 1901}} {
		newWinner, newLoser := r.Update(pair[0], pair[1])
		delta := (newWinner - pair[0]) + (newLoser - pair[1])
		// Rounding each side independently can leave the sum off by one.
		assert.LessOrEqual(t, delta, 1)
		assert.GreaterOrEqual(t, delta, -1)
	}
}

func seedDecidedDebate(t *testing.T, store *memstore.Store, proWins bool) (*debate.Debate, *debate.Model, *debate.Model) {
	t.Helper()

	pro := &debate.Model{ID: uuid.New(), Name: "pro-model", Provider: "anthropic", APIModelID: "pro-api", EloRating: 1500, IsActive: true}
	con := &debate.Model{ID: uuid.New(), Name: "con-model", Provider: "openai", APIModelID: "con-api", EloRating: 1500, IsActive: true}
	judge := &debate.Model{ID: uuid.New(), Name: "judge-model", Provider: "google", APIModelID: "judge-api", EloRating: 1500, IsActive: true}
	auditor := &debate.Model{ID: uuid.New(), Name: "auditor-model", Provider: "xai", APIModelID: "auditor-api", EloRating: 1500, IsActive: true}
	for _, m := range []*debate.Model{pro, con, judge, auditor} {
		store.PutModel(m)
	}

	topic := &debate.Topic{ID: uuid.New(), Title: "Test proposition", Subdomain: "ethics", Domain: "philosophy",
		Source: debate.TopicSourceSeed, Status: debate.TopicStatusSelected, CreatedAt: time.Now()}
	store.PutTopic(topic)

	winnerID := pro.ID
	if !proWins {
		winnerID = con.ID
	}
	d := &debate.Debate{
		ID:           uuid.New(),
		TopicID:      topic.ID,
		DebaterProID: pro.ID,
		DebaterConID: con.ID,
		JudgeID:      judge.ID,
		AuditorID:    auditor.ID,
		WinnerID:     &winnerID,
		Status:       debate.StatusJudging,
		ScheduledAt:  time.Now(),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.CreateDebate(context.Background(), d))
	return d, pro, con
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, pro, con := seedDecidedDebate(t, store, true)

	r := NewRater(32)
	require.NoError(t, r.Apply(ctx, store, d.ID))

	gotPro, err := store.GetModel(ctx, pro.ID)
	require.NoError(t, err)
	gotCon, err := store.GetModel(ctx, con.ID)
	require.NoError(t, err)

	assert.Equal(t, 1516, gotPro.EloRating)
	assert.Equal(t, 1, gotPro.DebatesWon)
	assert.Equal(t, 0, gotPro.DebatesLost)
	assert.Equal(t, 1484, gotCon.EloRating)
	assert.Equal(t, 0, gotCon.DebatesWon)
	assert.Equal(t, 1, gotCon.DebatesLost)

	gotDebate, err := store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, gotDebate.ProEloBefore)
	assert.Equal(t, 1500, *gotDebate.ProEloBefore)
	assert.Equal(t, 1516, *gotDebate.ProEloAfter)
	assert.Equal(t, 1500, *gotDebate.ConEloBefore)
	assert.Equal(t, 1484, *gotDebate.ConEloAfter)
}

func TestApplyConWins(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, pro, con := seedDecidedDebate(t, store, false)

	require.NoError(t, NewRater(32).Apply(ctx, store, d.ID))

	gotPro, err := store.GetModel(ctx, pro.ID)
	require.NoError(t, err)
	gotCon, err := store.GetModel(ctx, con.ID)
	require.NoError(t, err)
	assert.Equal(t, 1484, gotPro.EloRating)
	assert.Equal(t, 1516, gotCon.EloRating)

	gotDebate, err := store.GetDebate(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1484, *gotDebate.ProEloAfter)
	assert.Equal(t, 1516, *gotDebate.ConEloAfter)
}

func TestApplyIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, pro, con := seedDecidedDebate(t, store, true)

	r := NewRater(32)
	require.NoError(t, r.Apply(ctx, store, d.ID))
	require.NoError(t, r.Apply(ctx, store, d.ID))

	gotPro, err := store.GetModel(ctx, pro.ID)
	require.NoError(t, err)
	gotCon, err := store.GetModel(ctx, con.ID)
	require.NoError(t, err)
	assert.Equal(t, 1516, gotPro.EloRating)
	assert.Equal(t, 1, gotPro.DebatesWon)
	assert.Equal(t, 1484, gotCon.EloRating)
	assert.Equal(t, 1, gotCon.DebatesLost)
}

func TestApplyLocksDebaterRows(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, pro, con := seedDecidedDebate(t, store, true)

	locked := 0
	tracked := &lockTrackingStore{Store: store, lockedReads: &locked}
	require.NoError(t, NewRater(32).Apply(ctx, tracked, d.ID))

	assert.Equal(t, 2, locked, "both debater rows are read under a row lock")

	gotPro, err := store.GetModel(ctx, pro.ID)
	require.NoError(t, err)
	gotCon, err := store.GetModel(ctx, con.ID)
	require.NoError(t, err)
	assert.Equal(t, 1516, gotPro.EloRating)
	assert.Equal(t, 1484, gotCon.EloRating)
}

func TestApplyNoWinner(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	d, _, _ := seedDecidedDebate(t, store, true)
	d.WinnerID = nil
	require.NoError(t, store.UpdateDebate(ctx, d))

	err := NewRater(32).Apply(ctx, store, d.ID)
	assert.ErrorContains(t, err, "no winner")
}
