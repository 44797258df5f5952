package gameconfig

import (
	"fmt"

	"rhythm-tracker/internal/domain"
)

// GamePTConfig describes the static shape of one supported
// (game, playtype): the ordered lamp and grade tables and the rating
// algorithms tracked on profiles. Lamps and Grades are ordered worst
// to best; indices into these tables are what scores carry around.
type GamePTConfig struct {
	Game     domain.Game
	Playtype domain.Playtype

	Lamps  []string
	Grades []string

	// ProfileRatingAlgs are the calculatedData keys aggregated into
	// UGS ratings (best-N average).
	ProfileRatingAlgs []string

	// ClearLamp is the first lamp index considered a clear.
	ClearLamp int
}

type gamePT struct {
	game     domain.Game
	playtype domain.Playtype
}

var iidxLamps = []string{
	"NO PLAY", "FAILED", "ASSIST CLEAR", "EASY CLEAR", "CLEAR",
	"HARD CLEAR", "EX HARD CLEAR", "FULL COMBO",
}

var iidxGrades = []string{"F", "E", "D", "C", "B", "A", "AA", "AAA", "MAX-", "MAX"}

var sdvxLamps = []string{
	"FAILED", "CLEAR", "EXCESSIVE CLEAR", "ULTIMATE CHAIN",
	"PERFECT ULTIMATE CHAIN",
}

var sdvxGrades = []string{"D", "C", "B", "A", "A+", "AA", "AA+", "AAA", "AAA+", "S"}

var configs = map[gamePT]*GamePTConfig{
	{domain.GameIIDX, domain.PlaytypeSP}: {
		Game: domain.GameIIDX, Playtype: domain.PlaytypeSP,
		Lamps: iidxLamps, Grades: iidxGrades,
		ProfileRatingAlgs: []string{"BPI", "ktLampRating"},
		ClearLamp:         3,
	},
	{domain.GameIIDX, domain.PlaytypeDP}: {
		Game: domain.GameIIDX, Playtype: domain.PlaytypeDP,
		Lamps: iidxLamps, Grades: iidxGrades,
		ProfileRatingAlgs: []string{"BPI", "ktLampRating"},
		ClearLamp:         3,
	},
	{domain.GameSDVX, domain.PlaytypeSingle}: {
		Game: domain.GameSDVX, Playtype: domain.PlaytypeSingle,
		Lamps: sdvxLamps, Grades: sdvxGrades,
		ProfileRatingAlgs: []string{"VF6"},
		ClearLamp:         1,
	},
	{domain.GameUSC, domain.PlaytypeKeyboard}: {
		Game: domain.GameUSC, Playtype: domain.PlaytypeKeyboard,
		Lamps: sdvxLamps, Grades: sdvxGrades,
		ProfileRatingAlgs: []string{"VF6"},
		ClearLamp:         1,
	},
	{domain.GameUSC, domain.PlaytypeController}: {
		Game: domain.GameUSC, Playtype: domain.PlaytypeController,
		Lamps: sdvxLamps, Grades: sdvxGrades,
		ProfileRatingAlgs: []string{"VF6"},
		ClearLamp:         1,
	},
	{domain.GameChunithm, domain.PlaytypeSingle}: {
		Game: domain.GameChunithm, Playtype: domain.PlaytypeSingle,
		Lamps: []string{"FAILED", "CLEAR", "FULL COMBO", "ALL JUSTICE", "ALL JUSTICE CRITICAL"},
		Grades: []string{
			"D", "C", "B", "BB", "BBB", "A", "AA", "AAA", "S", "SS", "SSS",
		},
		ProfileRatingAlgs: []string{"rating"},
		ClearLamp:         1,
	},
	{domain.GameGitadora, domain.PlaytypeGita}: {
		Game: domain.GameGitadora, Playtype: domain.PlaytypeGita,
		Lamps:             []string{"FAILED", "CLEAR", "FULL COMBO", "EXCELLENT"},
		Grades:            []string{"C", "B", "A", "S", "SS", "MAX"},
		ProfileRatingAlgs: []string{"skill"},
		ClearLamp:         1,
	},
	{domain.GameGitadora, domain.PlaytypeDora}: {
		Game: domain.GameGitadora, Playtype: domain.PlaytypeDora,
		Lamps:             []string{"FAILED", "CLEAR", "FULL COMBO", "EXCELLENT"},
		Grades:            []string{"C", "B", "A", "S", "SS", "MAX"},
		ProfileRatingAlgs: []string{"skill"},
		ClearLamp:         1,
	},
}

// Get returns the config for a (game, playtype), or nil if the
// combination is not supported.
func Get(game domain.Game, playtype domain.Playtype) *GamePTConfig {
	return configs[gamePT{game, playtype}]
}

// ValidPlaytypes returns every playtype registered for a game.
func ValidPlaytypes(game domain.Game) []domain.Playtype {
	var pts []domain.Playtype
	for k := range configs {
		if k.game == game {
			pts = append(pts, k.playtype)
		}
	}
	return pts
}

// LampIndex resolves a lamp string to its index in the lamp ordering.
func (c *GamePTConfig) LampIndex(lamp string) (int, error) {
	for i, l := range c.Lamps {
		if l == lamp {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid lamp %q for %s:%s", lamp, c.Game, c.Playtype)
}

// GradeIndex resolves a grade string to its index in the grade ordering.
func (c *GamePTConfig) GradeIndex(grade string) (int, error) {
	for i, g := range c.Grades {
		if g == grade {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid grade %q for %s:%s", grade, c.Game, c.Playtype)
}
