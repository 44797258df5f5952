package rating

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/testutil"
)

func newEngine(t *testing.T) (*Engine, *repository.BPIRepository) {
	t.Helper()
	db := testutil.NewDB(t)
	bpi := repository.NewBPIRepository(db, testutil.Logger())
	return NewEngine(bpi, testutil.Logger()), bpi
}

func TestCalculateDataForGamePTUnregistered(t *testing.T) {
	e, _ := newEngine(t)

	stats := e.CalculateDataForGamePT(context.Background(),
		domain.Game("popn"), domain.Playtype("9B"),
		&domain.Chart{}, &domain.DryScore{}, testutil.Logger())

	assert.Empty(t, stats, "unregistered playtype must return empty stats, not fail")
}

func TestCalculateDataSDVX(t *testing.T) {
	e, _ := newEngine(t)

	chart := &domain.Chart{
		ChartID: "sdvx-chart", Game: domain.GameSDVX,
		Playtype: domain.PlaytypeSingle, LevelNum: 18,
	}
	dry := &domain.DryScore{
		Game: domain.GameSDVX,
		ScoreData: domain.ScoreData{
			Score: 9_700_000, Grade: "AAA", Lamp: "CLEAR",
		},
	}

	stats := e.CalculateDataForGamePT(context.Background(),
		domain.GameSDVX, domain.PlaytypeSingle, chart, dry, testutil.Logger())

	// 18 * 0.97 * 1.0 * 1.0 * 2 = 34.92
	require.Contains(t, stats, "VF6")
	assert.InDelta(t, 34.92, stats["VF6"], 0.001)

	// Determinism: same inputs, same output.
	again := e.CalculateDataForGamePT(context.Background(),
		domain.GameSDVX, domain.PlaytypeSingle, chart, dry, testutil.Logger())
	assert.Equal(t, stats, again)
}

func TestCalculateDataIIDXWithoutCalibration(t *testing.T) {
	e, _ := newEngine(t)

	chart := &domain.Chart{
		ChartID: "iidx-chart", Game: domain.GameIIDX,
		Playtype: domain.PlaytypeSP, LevelNum: 12, Notecount: 1000,
	}
	dry := &domain.DryScore{
		Game: domain.GameIIDX,
		ScoreData: domain.ScoreData{
			Score: 1800, Lamp: "HARD CLEAR", LampIndex: 5,
		},
	}

	stats := e.CalculateDataForGamePT(context.Background(),
		domain.GameIIDX, domain.PlaytypeSP, chart, dry, testutil.Logger())

	assert.Equal(t, 12.0, stats["ktLampRating"])
	assert.NotContains(t, stats, "BPI", "no calibration data means no BPI key")
}

func TestCalculateDataIIDXWithCalibration(t *testing.T) {
	e, bpi := newEngine(t)
	ctx := context.Background()

	require.NoError(t, bpi.Upsert(ctx, &domain.BPIData{
		ChartID: "iidx-chart", KAVG: 1700, WR: 1900, Coef: -1,
	}))

	chart := &domain.Chart{
		ChartID: "iidx-chart", Game: domain.GameIIDX,
		Playtype: domain.PlaytypeSP, LevelNum: 12, Notecount: 1000,
	}
	dry := &domain.DryScore{
		Game: domain.GameIIDX,
		ScoreData: domain.ScoreData{
			Score: 1700, Lamp: "CLEAR", LampIndex: 4,
		},
	}

	stats := e.CalculateDataForGamePT(ctx,
		domain.GameIIDX, domain.PlaytypeSP, chart, dry, testutil.Logger())

	require.Contains(t, stats, "BPI")
	// Exactly at the kaiden average, BPI is zero.
	assert.InDelta(t, 0, stats["BPI"], 0.0001)
	assert.Equal(t, 9.0, stats["ktLampRating"])
}

func TestCalculateBPIClampsAtFloor(t *testing.T) {
	bpi := CalculateBPI(1700, 1900, 200, 2000, -1)
	assert.Equal(t, -15.0, bpi)
}
