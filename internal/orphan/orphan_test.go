package orphan

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/testutil"
)

func newTestService(t *testing.T, threshold int) (*Service, *repository.OrphanRepository, *repository.ChartRepository) {
	t.Helper()

	db := testutil.NewDB(t)
	log := testutil.Logger()
	orphans := repository.NewOrphanRepository(db, log)
	charts := repository.NewChartRepository(db, log)
	return NewService(orphans, charts, threshold, log), orphans, charts
}

func testOrphanChart() *domain.OrphanChart {
	return &domain.OrphanChart{
		Fingerprint: "usc|abc123|Keyboard",
		Game:        domain.GameUSC,
		Playtype:    domain.PlaytypeKeyboard,
		Name:        "Unknown Chart (abc123)",
		Chart: domain.Chart{
			Difficulty: "EXH",
			Level:      "18",
			LevelNum:   18,
			HashSHA1:   "abc123",
		},
		Song: domain.Song{Title: "Mystery Song", Artist: "???"},
	}
}

func TestHandleOrphanChartBelowThreshold(t *testing.T) {
	svc, orphans, _ := newTestService(t, 3)
	ctx := context.Background()

	chart, err := svc.HandleOrphanChart(ctx, testOrphanChart(), 1)
	require.NoError(t, err)
	assert.Nil(t, chart)

	chart, err = svc.HandleOrphanChart(ctx, testOrphanChart(), 2)
	require.NoError(t, err)
	assert.Nil(t, chart)

	oc, err := orphans.GetChartByFingerprint(ctx, "usc|abc123|Keyboard")
	require.NoError(t, err)
	require.NotNil(t, oc)
	assert.ElementsMatch(t, []int{1, 2}, oc.UserIDs)
	assert.False(t, oc.Claimed)
}

func TestHandleOrphanChartSameUserDoesNotCount(t *testing.T) {
	svc, orphans, _ := newTestService(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		chart, err := svc.HandleOrphanChart(ctx, testOrphanChart(), 1)
		require.NoError(t, err)
		assert.Nil(t, chart)
	}

	oc, err := orphans.GetChartByFingerprint(ctx, "usc|abc123|Keyboard")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, oc.UserIDs)
}

func TestHandleOrphanChartPromotesAtThreshold(t *testing.T) {
	svc, orphans, charts := newTestService(t, 2)
	ctx := context.Background()

	chart, err := svc.HandleOrphanChart(ctx, testOrphanChart(), 1)
	require.NoError(t, err)
	require.Nil(t, chart)

	chart, err = svc.HandleOrphanChart(ctx, testOrphanChart(), 2)
	require.NoError(t, err)
	require.NotNil(t, chart)

	assert.NotEmpty(t, chart.ChartID)
	assert.Equal(t, domain.GameUSC, chart.Game)
	assert.Equal(t, "abc123", chart.HashSHA1)
	assert.True(t, chart.IsPrimary)

	// Catalog now has both the chart and its song.
	got, err := charts.GetChartByHash(ctx, domain.GameUSC, "abc123", domain.PlaytypeKeyboard)
	require.NoError(t, err)
	require.NotNil(t, got)

	song, err := charts.GetSong(ctx, domain.GameUSC, chart.SongID)
	require.NoError(t, err)
	require.NotNil(t, song)
	assert.Equal(t, "Mystery Song", song.Title)

	// Orphan row is gone.
	oc, err := orphans.GetChartByFingerprint(ctx, "usc|abc123|Keyboard")
	require.NoError(t, err)
	assert.Nil(t, oc)
}

func TestHandleOrphanChartConcurrentPromotion(t *testing.T) {
	svc, _, charts := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.HandleOrphanChart(ctx, testOrphanChart(), 1)
	require.NoError(t, err)

	// Several users cross the threshold at once; exactly one promotion
	// must happen.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		promoted []*domain.Chart
	)
	for userID := 2; userID <= 6; userID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chart, err := svc.HandleOrphanChart(ctx, testOrphanChart(), userID)
			assert.NoError(t, err)
			if chart != nil {
				mu.Lock()
				promoted = append(promoted, chart)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, promoted, 1)

	got, err := charts.GetChartByHash(ctx, domain.GameUSC, "abc123", domain.PlaytypeKeyboard)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestQueueAndDrainScores(t *testing.T) {
	svc, _, _ := newTestService(t, 3)
	ctx := context.Background()

	require.NoError(t, svc.QueueScore(ctx, &domain.OrphanScore{
		Fingerprint: "usc|abc123|Keyboard",
		UserID:      1,
		Game:        domain.GameUSC,
		ImportType:  "ir/direct-manual",
		Data:        []byte(`{"score": 9000000}`),
		Context:     []byte(`{}`),
	}))
	require.NoError(t, svc.QueueScore(ctx, &domain.OrphanScore{
		Fingerprint: "usc|abc123|Keyboard",
		UserID:      2,
		Game:        domain.GameUSC,
		ImportType:  "ir/direct-manual",
		Data:        []byte(`{"score": 8500000}`),
		Context:     []byte(`{}`),
	}))

	scores, err := svc.DrainScores(ctx, "usc|abc123|Keyboard")
	require.NoError(t, err)
	assert.Len(t, scores, 2)

	// Drained; a second drain is empty.
	scores, err = svc.DrainScores(ctx, "usc|abc123|Keyboard")
	require.NoError(t, err)
	assert.Empty(t, scores)
}
