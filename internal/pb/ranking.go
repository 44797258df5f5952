package pb

import (
	"context"
	"fmt"
)

// UpdateChartRanking recomputes dense 1-based ranks for every PB on a
// chart, ordered by percent descending. Tied percents share a rank and
// the next distinct percent takes rank+1. Idempotent: rerunning it on
// an unchanged chart writes the same ranks.
func (s *Service) UpdateChartRanking(ctx context.Context, chartID string) error {
	pbs, err := s.pbs.GetChartPBs(ctx, chartID)
	if err != nil {
		return fmt.Errorf("failed to fetch chart pbs: %w", err)
	}

	outOf := len(pbs)
	rank := 0
	lastPercent := -1.0

	for i := range pbs {
		if pbs[i].ScoreData.Percent != lastPercent {
			rank++
			lastPercent = pbs[i].ScoreData.Percent
		}

		if err := s.pbs.WriteRanking(ctx, pbs[i].UserID, chartID, rank, outOf); err != nil {
			return fmt.Errorf("failed to write ranking for user %d: %w", pbs[i].UserID, err)
		}
	}

	return nil
}
