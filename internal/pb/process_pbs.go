package pb

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"rhythm-tracker/internal/constants"
	"rhythm-tracker/internal/domain"
)

// ProcessPBs recomputes the user's PBs for the given charts and
// refreshes the affected chart rankings. Chart order is irrelevant;
// each chart's PB is independent of the others.
func (s *Service) ProcessPBs(ctx context.Context, userID int, chartIDs []string) error {
	if len(chartIDs) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		docs []domain.PersonalBest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.ImportConcurrency)

	for _, chartID := range chartIDs {
		g.Go(func() error {
			doc, err := s.CreatePBDoc(gctx, userID, chartID)
			if err != nil {
				// One chart's failure must not block the rest of
				// the batch.
				s.logger.Error().
					Err(err).
					Int("user_id", userID).
					Str("chart_id", chartID).
					Msg("failed to compose pb")
				return nil
			}
			if doc == nil {
				return nil
			}

			mu.Lock()
			docs = append(docs, *doc)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to compose pbs: %w", err)
	}

	if len(docs) == 0 {
		return nil
	}

	if err := s.pbs.UpsertBatch(ctx, docs); err != nil {
		return fmt.Errorf("failed to store pbs: %w", err)
	}

	for _, doc := range docs {
		if err := s.UpdateChartRanking(ctx, doc.ChartID); err != nil {
			s.logger.Error().
				Err(err).
				Str("chart_id", doc.ChartID).
				Msg("failed to refresh chart ranking")
		}
	}

	return nil
}
