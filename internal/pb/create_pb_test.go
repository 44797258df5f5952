package pb

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/testutil"
)

func newTestService(t *testing.T, log zerolog.Logger) (*Service, *repository.ScoreRepository, *repository.PBRepository) {
	t.Helper()

	db := testutil.NewDB(t)
	scores := repository.NewScoreRepository(db, log)
	pbs := repository.NewPBRepository(db, log)
	return NewService(scores, pbs, log), scores, pbs
}

func seedScore(t *testing.T, repo *repository.ScoreRepository, score domain.Score) {
	t.Helper()

	if score.Game == "" {
		score.Game = domain.GameIIDX
	}
	if score.Playtype == "" {
		score.Playtype = domain.PlaytypeSP
	}
	if score.ChartID == "" {
		score.ChartID = "chart-1"
	}
	score.SongID = 1
	score.TimeAdded = time.Now()
	require.NoError(t, repo.Insert(context.Background(), &score))
}

func TestCreatePBDocSingleScore(t *testing.T) {
	svc, scores, _ := newTestService(t, testutil.Logger())

	seedScore(t, scores, domain.Score{
		ScoreID: "Raaa",
		UserID:  1,
		ScoreData: domain.ScoreData{
			Score: 1400, Percent: 89.0, Grade: "AA", GradeIndex: 6,
			Lamp: "CLEAR", LampIndex: 4,
		},
		CalculatedData: map[string]float64{"ktLampRating": 9.0},
	})

	doc, err := svc.CreatePBDoc(context.Background(), 1, "chart-1")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "Raaa", doc.ComposedFrom.ScorePB)
	assert.Equal(t, "Raaa", doc.ComposedFrom.LampPB)
	assert.Empty(t, doc.ComposedFrom.Other)
	assert.Equal(t, 1400, doc.ScoreData.Score)
	assert.Equal(t, "CLEAR", doc.ScoreData.Lamp)
	assert.Equal(t, map[string]float64{"ktLampRating": 9.0}, doc.CalculatedData)
}

func TestCreatePBDocMergesScoreAndLamp(t *testing.T) {
	svc, scores, _ := newTestService(t, testutil.Logger())

	// Higher score, worse lamp.
	seedScore(t, scores, domain.Score{
		ScoreID: "Rscore",
		UserID:  1,
		ScoreData: domain.ScoreData{
			Score: 1500, Percent: 95.4, Grade: "AAA", GradeIndex: 7,
			Lamp: "FAILED", LampIndex: 1,
			Judgements: domain.Judgements{"pgreat": 700},
		},
		CalculatedData: map[string]float64{"BPI": 4.5, "ktLampRating": 0},
	})
	// Lower score, better lamp.
	seedScore(t, scores, domain.Score{
		ScoreID: "Rlamp",
		UserID:  1,
		ScoreData: domain.ScoreData{
			Score: 1200, Percent: 76.3, Grade: "A", GradeIndex: 5,
			Lamp: "HARD CLEAR", LampIndex: 5,
		},
		CalculatedData: map[string]float64{"BPI": -2.0, "ktLampRating": 12},
	})

	doc, err := svc.CreatePBDoc(context.Background(), 1, "chart-1")
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "Rscore", doc.ComposedFrom.ScorePB)
	assert.Equal(t, "Rlamp", doc.ComposedFrom.LampPB)

	// Score fields from the score PB.
	assert.Equal(t, 1500, doc.ScoreData.Score)
	assert.InDelta(t, 95.4, doc.ScoreData.Percent, 0.001)
	assert.Equal(t, "AAA", doc.ScoreData.Grade)
	assert.Equal(t, domain.Judgements{"pgreat": 700}, doc.ScoreData.Judgements)

	// Lamp fields from the lamp PB.
	assert.Equal(t, "HARD CLEAR", doc.ScoreData.Lamp)
	assert.Equal(t, 5, doc.ScoreData.LampIndex)

	// Calculated data unioned per key by max.
	assert.Equal(t, map[string]float64{"BPI": 4.5, "ktLampRating": 12}, doc.CalculatedData)
}

func TestCreatePBDocScoreTieBreaksByRecency(t *testing.T) {
	svc, scores, _ := newTestService(t, testutil.Logger())

	seedScore(t, scores, domain.Score{
		ScoreID: "Rold", UserID: 1, TimeAchieved: 1000,
		ScoreData: domain.ScoreData{Score: 1400, Lamp: "CLEAR", LampIndex: 4},
	})
	seedScore(t, scores, domain.Score{
		ScoreID: "Rnew", UserID: 1, TimeAchieved: 2000,
		ScoreData: domain.ScoreData{Score: 1400, Lamp: "CLEAR", LampIndex: 4},
	})

	doc, err := svc.CreatePBDoc(context.Background(), 1, "chart-1")
	require.NoError(t, err)
	assert.Equal(t, "Rnew", doc.ComposedFrom.ScorePB)
}

func TestCreatePBDocIIDXBestBP(t *testing.T) {
	svc, scores, _ := newTestService(t, testutil.Logger())

	seedScore(t, scores, domain.Score{
		ScoreID: "Rscore", UserID: 1,
		ScoreData: domain.ScoreData{
			Score: 1500, Percent: 95.4, Lamp: "FAILED", LampIndex: 1,
			HitMeta: domain.HitMeta{"bp": 40},
		},
	})
	seedScore(t, scores, domain.Score{
		ScoreID: "Rlamp", UserID: 1,
		ScoreData: domain.ScoreData{
			Score: 1200, Percent: 76.3, Lamp: "HARD CLEAR", LampIndex: 5,
			HitMeta: domain.HitMeta{"bp": 15},
		},
	})
	seedScore(t, scores, domain.Score{
		ScoreID: "Rbp", UserID: 1,
		ScoreData: domain.ScoreData{
			Score: 1100, Percent: 70.0, Lamp: "CLEAR", LampIndex: 4,
			HitMeta: domain.HitMeta{"bp": 5},
		},
	})

	doc, err := svc.CreatePBDoc(context.Background(), 1, "chart-1")
	require.NoError(t, err)

	assert.Equal(t, 5.0, doc.ScoreData.HitMeta["bp"])
	require.Len(t, doc.ComposedFrom.Other, 1)
	assert.Equal(t, "Best BP", doc.ComposedFrom.Other[0].Name)
	assert.Equal(t, "Rbp", doc.ComposedFrom.Other[0].ScoreID)
}

func TestCreatePBDocNoScores(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	svc, _, _ := newTestService(t, log)

	doc, err := svc.CreatePBDoc(context.Background(), 1, "chart-none")
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.True(t, strings.Contains(buf.String(), `"severe":true`),
		"expected a severe log entry, got: %s", buf.String())
}

func TestProcessPBsWritesRankings(t *testing.T) {
	svc, scores, pbs := newTestService(t, testutil.Logger())

	seedScore(t, scores, domain.Score{
		ScoreID: "Ru1", UserID: 1,
		ScoreData: domain.ScoreData{Score: 1500, Percent: 95.4, Lamp: "CLEAR", LampIndex: 4},
	})
	seedScore(t, scores, domain.Score{
		ScoreID: "Ru2", UserID: 2,
		ScoreData: domain.ScoreData{Score: 1200, Percent: 76.3, Lamp: "CLEAR", LampIndex: 4},
	})

	require.NoError(t, svc.ProcessPBs(context.Background(), 1, []string{"chart-1"}))
	require.NoError(t, svc.ProcessPBs(context.Background(), 2, []string{"chart-1"}))

	top, err := pbs.Get(context.Background(), 1, "chart-1")
	require.NoError(t, err)
	require.NotNil(t, top.RankingData)
	assert.Equal(t, 1, top.RankingData.Rank)
	assert.Equal(t, 2, top.RankingData.OutOf)

	second, err := pbs.Get(context.Background(), 2, "chart-1")
	require.NoError(t, err)
	require.NotNil(t, second.RankingData)
	assert.Equal(t, 2, second.RankingData.Rank)
	assert.Equal(t, 2, second.RankingData.OutOf)
}

func TestUpdateChartRankingDenseTies(t *testing.T) {
	svc, scores, pbs := newTestService(t, testutil.Logger())

	for i, pct := range []float64{90, 90, 80} {
		seedScore(t, scores, domain.Score{
			ScoreID: "R" + string(rune('a'+i)), UserID: i + 1, TimeAchieved: int64(i),
			ScoreData: domain.ScoreData{Score: 1000 + i, Percent: pct, Lamp: "CLEAR", LampIndex: 4},
		})
		require.NoError(t, svc.ProcessPBs(context.Background(), i+1, []string{"chart-1"}))
	}

	wantRanks := map[int]int{1: 1, 2: 1, 3: 2}
	for userID, want := range wantRanks {
		doc, err := pbs.Get(context.Background(), userID, "chart-1")
		require.NoError(t, err)
		require.NotNil(t, doc.RankingData)
		assert.Equal(t, want, doc.RankingData.Rank, "user %d", userID)
		assert.Equal(t, 3, doc.RankingData.OutOf)
	}
}
