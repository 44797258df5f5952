package gameconfig

import (
	"fmt"

	"rhythm-tracker/internal/domain"
)

type gradeBoundary struct {
	grade   string
	lowerPc float64
}

// Boundaries are ordered best to worst; the first boundary whose lower
// bound the percent meets wins.
var gradeBoundaries = map[domain.Game][]gradeBoundary{
	domain.GameIIDX: {
		{"MAX", 100}, {"MAX-", 94.44}, {"AAA", 88.88}, {"AA", 77.77},
		{"A", 66.66}, {"B", 55.55}, {"C", 44.44}, {"D", 33.33},
		{"E", 22.22}, {"F", 0},
	},
	domain.GameSDVX: {
		{"S", 99}, {"AAA+", 98}, {"AAA", 97}, {"AA+", 95}, {"AA", 93},
		{"A+", 90}, {"A", 87}, {"B", 75}, {"C", 65}, {"D", 0},
	},
	domain.GameUSC: {
		{"S", 99}, {"AAA+", 98}, {"AAA", 97}, {"AA+", 95}, {"AA", 93},
		{"A+", 90}, {"A", 87}, {"B", 75}, {"C", 65}, {"D", 0},
	},
	domain.GameChunithm: {
		{"SSS", 100.75}, {"SS", 100}, {"S", 97.5}, {"AAA", 95},
		{"AA", 90}, {"A", 80}, {"BBB", 70}, {"BB", 60}, {"B", 50},
		{"C", 40}, {"D", 0},
	},
	domain.GameGitadora: {
		{"MAX", 100}, {"SS", 95}, {"S", 80}, {"A", 73}, {"B", 63},
		{"C", 0},
	},
}

// MaxScore returns the maximum achievable numeric score on a chart.
func MaxScore(game domain.Game, chart *domain.Chart) int {
	switch game {
	case domain.GameIIDX:
		return chart.Notecount * 2
	case domain.GameSDVX, domain.GameUSC:
		return 10_000_000
	case domain.GameChunithm:
		return 1_010_000
	default:
		return 1_000_000
	}
}

// GradeAndPercent derives the grade and percent for a raw score on a
// chart. Percent is score relative to the chart's maximum; chunithm
// percents are the score divided by 10_000 to keep the conventional
// "over 100%" scale.
func GradeAndPercent(game domain.Game, score int, chart *domain.Chart) (string, float64, error) {
	max := MaxScore(game, chart)
	if max <= 0 {
		return "", 0, fmt.Errorf("chart %s has no valid max score", chart.ChartID)
	}
	if score < 0 || score > max {
		return "", 0, fmt.Errorf("score %d is out of bounds for chart %s (max %d)", score, chart.ChartID, max)
	}

	var percent float64
	if game == domain.GameChunithm {
		percent = float64(score) / 10_000
	} else {
		percent = float64(score) / float64(max) * 100
	}

	boundaries, ok := gradeBoundaries[game]
	if !ok {
		return "", 0, fmt.Errorf("no grade boundaries for game %s", game)
	}

	for _, b := range boundaries {
		if percent >= b.lowerPc {
			return b.grade, percent, nil
		}
	}

	return boundaries[len(boundaries)-1].grade, percent, nil
}
