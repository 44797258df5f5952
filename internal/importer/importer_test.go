package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/converter"
	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/lock"
	"rhythm-tracker/internal/orphan"
	"rhythm-tracker/internal/pb"
	"rhythm-tracker/internal/rating"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/testutil"
	"rhythm-tracker/internal/ugs"
	"rhythm-tracker/internal/webhook"
)

type env struct {
	imp     *Importer
	charts  *repository.ChartRepository
	scores  *repository.ScoreRepository
	pbs     *repository.PBRepository
	ugsRepo *repository.UGSRepository
	imports *repository.ImportRepository
}

func newEnv(t *testing.T, orphanThreshold int) *env {
	t.Helper()

	db := testutil.NewDB(t)
	log := testutil.Logger()

	charts := repository.NewChartRepository(db, log)
	scores := repository.NewScoreRepository(db, log)
	pbRepo := repository.NewPBRepository(db, log)
	ugsRepo := repository.NewUGSRepository(db, log)
	classRepo := repository.NewClassAchievementRepository(db, log)
	orphanRepo := repository.NewOrphanRepository(db, log)
	importRepo := repository.NewImportRepository(db, log)
	bpiRepo := repository.NewBPIRepository(db, log)

	pbSvc := pb.NewService(scores, pbRepo, log)
	// bestN of 1 so a single score already yields profile ratings.
	ugsSvc := ugs.NewService(ugsRepo, pbRepo, classRepo, webhook.NoopEmitter{}, 1, log)
	orphanSvc := orphan.NewService(orphanRepo, charts, orphanThreshold, log)
	engine := rating.NewEngine(bpiRepo, log)

	registry := converter.NewRegistry(
		converter.BatchManual(converter.ImportTypeBatchManual, charts),
		converter.BatchManual(converter.ImportTypeDirectManual, charts),
	)

	imp := New(Params{
		Registry:  registry,
		Scores:    scores,
		Imports:   importRepo,
		Engine:    engine,
		PBs:       pbSvc,
		Stats:     ugsSvc,
		Orphans:   orphanSvc,
		Locker:    lock.NewMemory(),
		LockTries: 3,
		LockDelay: time.Millisecond,
		Logger:    log,
	})

	return &env{
		imp:     imp,
		charts:  charts,
		scores:  scores,
		pbs:     pbRepo,
		ugsRepo: ugsRepo,
		imports: importRepo,
	}
}

func (e *env) seedIIDXChart(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.charts.InsertSong(ctx, &domain.Song{
		ID: 1, Game: domain.GameIIDX, Title: "5.1.1.", Artist: "dj nagureo",
	}))
	require.NoError(t, e.charts.InsertChart(ctx, &domain.Chart{
		ChartID:    "chart-511-spa",
		SongID:     1,
		Game:       domain.GameIIDX,
		Playtype:   domain.PlaytypeSP,
		Difficulty: "ANOTHER",
		Level:      "12",
		LevelNum:   12,
		Notecount:  786,
		HashSHA1:   "deadbeef511",
		IsPrimary:  true,
	}))
}

const mixedBatch = `{
	"meta": {"game": "iidx", "playtype": "SP", "service": "test-service"},
	"scores": [
		{"identifier": "1", "matchType": "songID", "difficulty": "ANOTHER", "score": 1400, "lamp": "HARD CLEAR", "timeAchieved": 1619454485988},
		{"identifier": "999", "matchType": "songID", "difficulty": "ANOTHER", "score": 1000, "lamp": "CLEAR"},
		{"identifier": "1", "matchType": "songID", "difficulty": "ANOTHER", "score": 1000, "lamp": "NOT A LAMP"}
	],
	"classes": {"dan": 7}
}`

func TestImportMixedBatch(t *testing.T) {
	e := newEnv(t, 3)
	e.seedIIDXChart(t)
	ctx := context.Background()

	doc, err := e.imp.Import(ctx, 1, converter.ImportTypeBatchManual, []byte(mixedBatch), true)
	require.NoError(t, err)

	assert.Len(t, doc.ScoreIDs, 1)
	require.Len(t, doc.Errors, 2)

	errTypes := []domain.ImportErrType{doc.Errors[0].Type, doc.Errors[1].Type}
	assert.Contains(t, errTypes, domain.ImportErrDataNotFound)
	assert.Contains(t, errTypes, domain.ImportErrInvalidScore)

	// The good score landed with identity and calculated data.
	score, err := e.scores.GetWithScoreID(ctx, doc.ScoreIDs[0])
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, "test-service", score.Service)
	assert.Equal(t, 12.0, score.CalculatedData["ktLampRating"])

	// Aggregation ran: PB with ranking, stats with rating and the
	// externally reported dan.
	pbDoc, err := e.pbs.Get(ctx, 1, "chart-511-spa")
	require.NoError(t, err)
	require.NotNil(t, pbDoc)
	require.NotNil(t, pbDoc.RankingData)
	assert.Equal(t, 1, pbDoc.RankingData.Rank)

	stats, err := e.ugsRepo.Get(ctx, 1, domain.GameIIDX, domain.PlaytypeSP)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 7, stats.Classes["dan"])
	require.NotNil(t, stats.Ratings["ktLampRating"])
	assert.Equal(t, 12.0, *stats.Ratings["ktLampRating"])

	require.Len(t, doc.ClassDeltas, 1)
	assert.Equal(t, "dan", doc.ClassDeltas[0].Set)

	// The finished import is queryable.
	status, stored, err := e.imp.ImportStatus(ctx, doc.ImportID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status)
	require.NotNil(t, stored)
	assert.Equal(t, doc.ScoreIDs, stored.ScoreIDs)
}

func TestImportDuplicateResubmission(t *testing.T) {
	e := newEnv(t, 3)
	e.seedIIDXChart(t)
	ctx := context.Background()

	first, err := e.imp.Import(ctx, 1, converter.ImportTypeBatchManual, []byte(mixedBatch), true)
	require.NoError(t, err)
	require.Len(t, first.ScoreIDs, 1)

	// Resubmitting the same export inserts nothing and errors the same
	// bad records; duplicates themselves are silent.
	second, err := e.imp.Import(ctx, 1, converter.ImportTypeBatchManual, []byte(mixedBatch), true)
	require.NoError(t, err)
	assert.Empty(t, second.ScoreIDs)
	assert.Len(t, second.Errors, 2)
}

func TestImportParseFailureIsFatal(t *testing.T) {
	e := newEnv(t, 3)

	_, err := e.imp.Import(context.Background(), 1, converter.ImportTypeBatchManual, []byte(`{"meta":`), true)
	assert.Error(t, err)
}

func TestImportUnknownType(t *testing.T) {
	e := newEnv(t, 3)

	_, err := e.imp.Import(context.Background(), 1, "file/unheard-of", []byte(`{}`), true)
	assert.Error(t, err)
}

const orphanBatchTemplate = `{
	"meta": {"game": "usc", "playtype": "Keyboard", "service": "usc-ir"},
	"scores": [
		{"identifier": "abc123", "matchType": "chartHash", "difficulty": "EXH", "score": 9123456, "lamp": "CLEAR"}
	]
}`

func TestImportOrphanPromotionAndReplay(t *testing.T) {
	e := newEnv(t, 2)
	ctx := context.Background()

	// First sighting: the score is queued, not imported, and not an
	// error either.
	doc, err := e.imp.Import(ctx, 1, converter.ImportTypeDirectManual, []byte(orphanBatchTemplate), true)
	require.NoError(t, err)
	assert.Empty(t, doc.ScoreIDs)
	assert.Empty(t, doc.Errors)

	// Second distinct user crosses the threshold: the chart is
	// promoted and both queued scores replay.
	doc, err = e.imp.Import(ctx, 2, converter.ImportTypeDirectManual, []byte(orphanBatchTemplate), true)
	require.NoError(t, err)
	assert.Len(t, doc.ScoreIDs, 2)
	assert.Empty(t, doc.Errors)

	chart, err := e.charts.GetChartByHash(ctx, domain.GameUSC, "abc123", domain.PlaytypeKeyboard)
	require.NoError(t, err)
	require.NotNil(t, chart)

	// Both users got PBs on the promoted chart, ranked against each
	// other.
	for userID := 1; userID <= 2; userID++ {
		pbDoc, err := e.pbs.Get(ctx, userID, chart.ChartID)
		require.NoError(t, err)
		require.NotNil(t, pbDoc, "user %d", userID)
		require.NotNil(t, pbDoc.RankingData)
		assert.Equal(t, 2, pbDoc.RankingData.OutOf)
	}
}

func TestImportBatchManualDoesNotOrphan(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()

	// file/batch-manual has no orphaning; an unknown chart is a
	// per-record error even with a threshold of one.
	doc, err := e.imp.Import(ctx, 1, converter.ImportTypeBatchManual, []byte(orphanBatchTemplate), true)
	require.NoError(t, err)
	assert.Empty(t, doc.ScoreIDs)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, domain.ImportErrDataNotFound, doc.Errors[0].Type)

	chart, err := e.charts.GetChartByHash(ctx, domain.GameUSC, "abc123", domain.PlaytypeKeyboard)
	require.NoError(t, err)
	assert.Nil(t, chart)
}
