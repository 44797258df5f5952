package ugs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/testutil"
)

type captureEmitter struct {
	mu     sync.Mutex
	emits  [][]domain.ClassDelta
	userID int
}

func (c *captureEmitter) EmitClassAchievements(userID int, deltas []domain.ClassDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.emits = append(c.emits, deltas)
}

type testEnv struct {
	svc     *Service
	pbs     *repository.PBRepository
	ugs     *repository.UGSRepository
	classes *repository.ClassAchievementRepository
	emitter *captureEmitter
}

func newTestEnv(t *testing.T, bestN int) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	log := testutil.Logger()

	env := &testEnv{
		pbs:     repository.NewPBRepository(db, log),
		ugs:     repository.NewUGSRepository(db, log),
		classes: repository.NewClassAchievementRepository(db, log),
		emitter: &captureEmitter{},
	}
	env.svc = NewService(env.ugs, env.pbs, env.classes, env.emitter, bestN, log)
	return env
}

func (env *testEnv) seedPB(t *testing.T, userID, n int, game domain.Game, playtype domain.Playtype, calcData map[string]float64) {
	t.Helper()

	require.NoError(t, env.pbs.UpsertBatch(context.Background(), []domain.PersonalBest{{
		UserID:   userID,
		ChartID:  fmt.Sprintf("chart-%d", n),
		SongID:   n,
		Game:     game,
		Playtype: playtype,
		ScoreData: domain.ScoreData{
			Score: 9000000, Percent: 90, Grade: "AA", Lamp: "CLEAR", LampIndex: 1,
		},
		CalculatedData: calcData,
	}}))
}

func TestUpdateStatsUnderBestNYieldsNilRating(t *testing.T) {
	env := newTestEnv(t, 10)

	for i := 0; i < 9; i++ {
		env.seedPB(t, 1, i, domain.GameSDVX, domain.PlaytypeSingle, map[string]float64{"VF6": 30})
	}

	_, err := env.svc.UpdateStats(context.Background(), 1, domain.GameSDVX, domain.PlaytypeSingle, nil)
	require.NoError(t, err)

	doc, err := env.ugs.Get(context.Background(), 1, domain.GameSDVX, domain.PlaytypeSingle)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Contains(t, doc.Ratings, "VF6")
	assert.Nil(t, doc.Ratings["VF6"])
}

func TestUpdateStatsBestNMean(t *testing.T) {
	env := newTestEnv(t, 3)

	// Four PBs; top three should be averaged: (34 + 32 + 30) / 3 = 32.
	for i, vf := range []float64{28, 30, 32, 34} {
		env.seedPB(t, 1, i, domain.GameSDVX, domain.PlaytypeSingle, map[string]float64{"VF6": vf})
	}

	deltas, err := env.svc.UpdateStats(context.Background(), 1, domain.GameSDVX, domain.PlaytypeSingle, nil)
	require.NoError(t, err)

	doc, err := env.ugs.Get(context.Background(), 1, domain.GameSDVX, domain.PlaytypeSingle)
	require.NoError(t, err)
	require.NotNil(t, doc.Ratings["VF6"])
	assert.InDelta(t, 32.0, *doc.Ratings["VF6"], 0.0001)

	// A rating that high derives a volforce class and a first-time delta.
	require.Len(t, deltas, 1)
	assert.Equal(t, "vfClass", deltas[0].Set)
	assert.Nil(t, deltas[0].Old)

	// First stats document also creates game settings.
	gs, err := env.ugs.GetGameSettings(context.Background(), 1, domain.GameSDVX, domain.PlaytypeSingle)
	require.NoError(t, err)
	assert.NotNil(t, gs)
}

func TestUpdateStatsClassRatchet(t *testing.T) {
	env := newTestEnv(t, 1)

	env.seedPB(t, 1, 0, domain.GameIIDX, domain.PlaytypeSP, map[string]float64{"ktLampRating": 10})

	// Externally reported dan 5.
	deltas, err := env.svc.UpdateStats(context.Background(), 1, domain.GameIIDX, domain.PlaytypeSP, map[string]int{"dan": 5})
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, "dan", deltas[0].Set)
	assert.Equal(t, 5, deltas[0].New)
	assert.Nil(t, deltas[0].Old)

	// A lower report later must not lower the stored class or emit.
	deltas, err = env.svc.UpdateStats(context.Background(), 1, domain.GameIIDX, domain.PlaytypeSP, map[string]int{"dan": 3})
	require.NoError(t, err)
	assert.Empty(t, deltas)

	doc, err := env.ugs.Get(context.Background(), 1, domain.GameIIDX, domain.PlaytypeSP)
	require.NoError(t, err)
	assert.Equal(t, 5, doc.Classes["dan"])

	// A higher report passes the ratchet and records the old value.
	deltas, err = env.svc.UpdateStats(context.Background(), 1, domain.GameIIDX, domain.PlaytypeSP, map[string]int{"dan": 7})
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	require.NotNil(t, deltas[0].Old)
	assert.Equal(t, 5, *deltas[0].Old)
	assert.Equal(t, 7, deltas[0].New)

	history, err := env.classes.GetForUser(context.Background(), 1, domain.GameIIDX, domain.PlaytypeSP)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestUpdateStatsEmitsWebhook(t *testing.T) {
	env := newTestEnv(t, 1)

	env.seedPB(t, 7, 0, domain.GameGitadora, domain.PlaytypeGita, map[string]float64{"skill": 4200})

	deltas, err := env.svc.UpdateStats(context.Background(), 7, domain.GameGitadora, domain.PlaytypeGita, nil)
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, "colour", deltas[0].Set)

	require.Len(t, env.emitter.emits, 1)
	assert.Equal(t, 7, env.emitter.userID)
}

func TestClassFromThresholds(t *testing.T) {
	assert.Equal(t, 0, classFromThresholds(0, volforceThresholds))
	assert.Equal(t, 0, classFromThresholds(2.4, volforceThresholds))
	assert.Equal(t, 1, classFromThresholds(2.5, volforceThresholds))
	assert.Equal(t, 15, classFromThresholds(99, volforceThresholds))
}

func TestUpdateStatsUnsupportedPlaytype(t *testing.T) {
	env := newTestEnv(t, 10)

	_, err := env.svc.UpdateStats(context.Background(), 1, domain.GameIIDX, domain.Playtype("9K"), nil)
	assert.Error(t, err)
}

func TestRatchetKeepsUnrelatedClasses(t *testing.T) {
	old := map[string]int{"dan": 5, "colour": 3}
	deltas, final := ratchetClasses(domain.GameIIDX, domain.PlaytypeSP, old, map[string]int{"dan": 6})

	require.Len(t, deltas, 1)
	assert.Equal(t, 6, final["dan"])
	assert.Equal(t, 3, final["colour"])
}
