package ugs

import (
	"rhythm-tracker/internal/domain"
)

// classDeriver computes rating-derived classes for a (game, playtype)
// from the freshly calculated profile ratings. Externally reported
// class sets (IIDX dan, for example) never appear here; those arrive
// through the import's class resolver instead.
type classDeriver func(ratings map[string]*float64) map[string]int

type gamePTKey struct {
	game     domain.Game
	playtype domain.Playtype
}

var classDerivers = map[gamePTKey]classDeriver{
	{domain.GameSDVX, domain.PlaytypeSingle}:     deriveVolforceClass,
	{domain.GameUSC, domain.PlaytypeKeyboard}:    deriveVolforceClass,
	{domain.GameUSC, domain.PlaytypeController}:  deriveVolforceClass,
	{domain.GameGitadora, domain.PlaytypeGita}:   deriveSkillColour,
	{domain.GameGitadora, domain.PlaytypeDora}:   deriveSkillColour,
	{domain.GameChunithm, domain.PlaytypeSingle}: deriveChunithmColour,
}

// Lower bounds, ordered. The class value is the index of the highest
// threshold the rating reaches.
var volforceThresholds = []float64{
	0, 2.5, 5, 7.5, 10, 12.5, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23,
}

var gitadoraSkillThresholds = []float64{
	0, 1000, 1500, 2000, 2500, 3000, 3500, 4000, 4500,
	5000, 5500, 6000, 6500, 7000, 7500, 8000, 8500,
}

var chunithmRatingThresholds = []float64{
	0, 2, 4, 7, 10, 12, 13.25, 14.5, 15.25, 16,
}

func classFromThresholds(value float64, thresholds []float64) int {
	class := 0
	for i, t := range thresholds {
		if value >= t {
			class = i
		}
	}
	return class
}

func deriveVolforceClass(ratings map[string]*float64) map[string]int {
	vf := ratings["VF6"]
	if vf == nil {
		return nil
	}
	return map[string]int{"vfClass": classFromThresholds(*vf, volforceThresholds)}
}

func deriveSkillColour(ratings map[string]*float64) map[string]int {
	skill := ratings["skill"]
	if skill == nil {
		return nil
	}
	return map[string]int{"colour": classFromThresholds(*skill, gitadoraSkillThresholds)}
}

func deriveChunithmColour(ratings map[string]*float64) map[string]int {
	rating := ratings["rating"]
	if rating == nil {
		return nil
	}
	return map[string]int{"colour": classFromThresholds(*rating, chunithmRatingThresholds)}
}

// mergeClasses combines derived and externally provided class sets.
// The sets are disjoint in practice; if a key collides, the derived
// value wins since it was computed from our own data.
func mergeClasses(derived, provided map[string]int) map[string]int {
	merged := make(map[string]int, len(derived)+len(provided))
	for k, v := range provided {
		merged[k] = v
	}
	for k, v := range derived {
		merged[k] = v
	}
	return merged
}
