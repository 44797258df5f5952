package rating

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

func calculateDataIIDX(ctx context.Context, e *Engine, chart *domain.Chart, dry *domain.DryScore, log zerolog.Logger) map[string]float64 {
	stats := map[string]float64{
		"ktLampRating": ktLampRatingIIDX(chart, dry),
	}

	calib, err := e.bpi.Get(ctx, chart.ChartID)
	if err != nil {
		log.Error().Err(err).Str("chart_id", chart.ChartID).Msg("failed to fetch BPI calibration")
		return stats
	}
	if calib == nil {
		// No calibration data, no BPI. Not an error.
		return stats
	}

	max := float64(chart.Notecount * 2)
	stats["BPI"] = CalculateBPI(calib.KAVG, calib.WR, float64(dry.ScoreData.Score), max, calib.Coef)

	return stats
}

// ktLampRatingIIDX rewards clear quality: the full chart level for a
// hard clear or better, a reduced value for lesser clears, nothing for
// a fail.
func ktLampRatingIIDX(chart *domain.Chart, dry *domain.DryScore) float64 {
	switch {
	case dry.ScoreData.LampIndex >= 5: // HARD CLEAR and up
		return chart.LevelNum
	case dry.ScoreData.LampIndex == 4: // CLEAR
		return chart.LevelNum * 0.75
	case dry.ScoreData.LampIndex >= 2: // ASSIST/EASY CLEAR
		return chart.LevelNum * 0.5
	default:
		return 0
	}
}

// CalculateBPI implements the Beat Power Indicator relative to the
// kaiden average (kavg) and the world record (wr) on a chart. The
// coefficient defaults to 1.175 when calibration supplies -1. Results
// below -15 are clamped, matching the convention for the scale.
func CalculateBPI(kavg, wr, yourEx, max, coef float64) float64 {
	powCoef := coef
	if powCoef == -1 {
		powCoef = 1.175
	}

	pgf := func(x float64) float64 {
		if x == max {
			return max * 0.8
		}
		return 1 + (x/max-0.5)/(1-x/max)
	}

	glassWall := pgf(wr)
	kaidenPGF := pgf(kavg)
	yourPGF := pgf(yourEx)

	s := yourPGF / kaidenPGF
	z := glassWall / kaidenPGF

	bpi := 100 * math.Pow(math.Log(s)/math.Log(z), powCoef)
	if yourEx < kavg {
		bpi = -100 * math.Pow(-math.Log(s)/math.Log(z), powCoef)
	}

	if bpi < -15 {
		return -15
	}
	return bpi
}

var vf6GradeCoefs = []struct {
	grade string
	coef  float64
}{
	{"S", 1.05}, {"AAA+", 1.02}, {"AAA", 1.0}, {"AA+", 0.97},
	{"AA", 0.94}, {"A+", 0.91}, {"A", 0.88}, {"B", 0.85},
	{"C", 0.82}, {"D", 0.8},
}

var vf6LampCoefs = map[string]float64{
	"PERFECT ULTIMATE CHAIN": 1.1,
	"ULTIMATE CHAIN":         1.05,
	"EXCESSIVE CLEAR":        1.02,
	"CLEAR":                  1.0,
	"FAILED":                 0.5,
}

func calculateDataSDVXOrUSC(ctx context.Context, e *Engine, chart *domain.Chart, dry *domain.DryScore, log zerolog.Logger) map[string]float64 {
	gradeCoef := 0.0
	for _, gc := range vf6GradeCoefs {
		if gc.grade == dry.ScoreData.Grade {
			gradeCoef = gc.coef
			break
		}
	}

	lampCoef, ok := vf6LampCoefs[dry.ScoreData.Lamp]
	if !ok {
		log.Error().Str("lamp", dry.ScoreData.Lamp).Msg("unknown lamp for VF6, using 0")
	}

	vf := chart.LevelNum * (float64(dry.ScoreData.Score) / 10_000_000) * gradeCoef * lampCoef * 2

	// VOLFORCE is truncated to two decimal places, not rounded.
	return map[string]float64{
		"VF6": math.Floor(vf*100) / 100,
	}
}

func calculateDataChunithm(ctx context.Context, e *Engine, chart *domain.Chart, dry *domain.DryScore, log zerolog.Logger) map[string]float64 {
	score := float64(dry.ScoreData.Score)
	level := chart.LevelNum

	var rating float64
	switch {
	case score >= 1_007_500:
		rating = level + 2
	case score >= 1_005_000:
		rating = level + 1.5 + (score-1_005_000)/5_000
	case score >= 1_000_000:
		rating = level + 1 + (score-1_000_000)/10_000
	case score >= 975_000:
		rating = level + (score-975_000)/25_000
	case score >= 925_000:
		rating = level - 3 + (score-925_000)*3/50_000
	case score >= 900_000:
		rating = level - 5 + (score-900_000)*2/25_000
	default:
		rating = 0
	}

	if rating < 0 {
		rating = 0
	}

	return map[string]float64{
		"rating": math.Floor(rating*100) / 100,
	}
}

func calculateDataGitadora(ctx context.Context, e *Engine, chart *domain.Chart, dry *domain.DryScore, log zerolog.Logger) map[string]float64 {
	skill := chart.LevelNum * 20 * (dry.ScoreData.Percent / 100)

	return map[string]float64{
		"skill": math.Floor(skill*100) / 100,
	}
}
