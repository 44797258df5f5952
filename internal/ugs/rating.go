// Package ugs maintains per (user, game, playtype) profile stats:
// best-N profile ratings over the user's PBs and monotonic class sets.
package ugs

import (
	"sort"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/gameconfig"
)

// calculateRatings averages the user's top-N values of each profile
// rating algorithm across their PBs. An algorithm with fewer than N
// contributing PBs yields nil, never an average over a smaller pool.
func calculateRatings(gptConfig *gameconfig.GamePTConfig, pbs []domain.PersonalBest, bestN int) map[string]*float64 {
	ratings := make(map[string]*float64, len(gptConfig.ProfileRatingAlgs))

	for _, alg := range gptConfig.ProfileRatingAlgs {
		var values []float64
		for i := range pbs {
			if v, ok := pbs[i].CalculatedData[alg]; ok {
				values = append(values, v)
			}
		}

		if len(values) < bestN {
			ratings[alg] = nil
			continue
		}

		sort.Sort(sort.Reverse(sort.Float64Slice(values)))

		var sum float64
		for _, v := range values[:bestN] {
			sum += v
		}
		mean := sum / float64(bestN)
		ratings[alg] = &mean
	}

	return ratings
}
