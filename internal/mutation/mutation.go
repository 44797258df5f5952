// Package mutation is the corrective path for stored scores. Scores
// are otherwise never edited in place; when one genuinely has to
// change or go, the identity hash, calculated data, PBs, chart
// rankings and profile stats all have to be reconciled, and this
// package owns that.
package mutation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/gameconfig"
	"rhythm-tracker/internal/pb"
	"rhythm-tracker/internal/rating"
	"rhythm-tracker/internal/repository"
	"rhythm-tracker/internal/scoreid"
	"rhythm-tracker/internal/ugs"
)

type Service struct {
	scores *repository.ScoreRepository
	charts *repository.ChartRepository
	pbRepo *repository.PBRepository
	pbs    *pb.Service
	stats  *ugs.Service
	engine *rating.Engine
	logger zerolog.Logger
}

func NewService(
	scores *repository.ScoreRepository,
	charts *repository.ChartRepository,
	pbRepo *repository.PBRepository,
	pbSvc *pb.Service,
	stats *ugs.Service,
	engine *rating.Engine,
	log zerolog.Logger,
) *Service {
	return &Service{
		scores: scores,
		charts: charts,
		pbRepo: pbRepo,
		pbs:    pbSvc,
		stats:  stats,
		engine: engine,
		logger: log,
	}
}

// ScorePatch is what a correction may change. A new Score re-derives
// grade and percent; a new Lamp re-derives its index.
type ScorePatch struct {
	Score   *int
	Lamp    *string
	Comment *string
}

// UpdateScore applies a patch to a stored score, re-deriving identity
// and calculated data, then recomputes every aggregate shadowing it.
// If the patched score becomes identical to another stored score, the
// patched one is removed instead of colliding.
func (s *Service) UpdateScore(ctx context.Context, scoreID string, patch ScorePatch) (*domain.Score, error) {
	score, err := s.scores.GetWithScoreID(ctx, scoreID)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return nil, fmt.Errorf("no score with ID %s", scoreID)
	}

	chart, err := s.charts.GetChart(ctx, score.ChartID)
	if err != nil {
		return nil, err
	}
	if chart == nil {
		return nil, fmt.Errorf("score %s references missing chart %s", scoreID, score.ChartID)
	}

	cfg := gameconfig.Get(score.Game, score.Playtype)
	if cfg == nil {
		return nil, fmt.Errorf("unsupported game/playtype %s:%s", score.Game, score.Playtype)
	}

	if patch.Score != nil {
		grade, percent, err := gameconfig.GradeAndPercent(score.Game, *patch.Score, chart)
		if err != nil {
			return nil, err
		}
		gradeIndex, err := cfg.GradeIndex(grade)
		if err != nil {
			return nil, err
		}
		score.ScoreData.Score = *patch.Score
		score.ScoreData.Percent = percent
		score.ScoreData.Grade = grade
		score.ScoreData.GradeIndex = gradeIndex
	}

	if patch.Lamp != nil {
		lampIndex, err := cfg.LampIndex(*patch.Lamp)
		if err != nil {
			return nil, err
		}
		score.ScoreData.Lamp = *patch.Lamp
		score.ScoreData.LampIndex = lampIndex
	}

	if patch.Comment != nil {
		score.Comment = *patch.Comment
	}

	dry := &domain.DryScore{
		Game:         score.Game,
		Service:      score.Service,
		ImportType:   score.ImportType,
		Comment:      score.Comment,
		TimeAchieved: score.TimeAchieved,
		ScoreData:    score.ScoreData,
	}
	score.CalculatedData = s.engine.CalculateDataForGamePT(ctx, score.Game, score.Playtype, chart, dry, s.logger)

	newID := scoreid.CreateScoreID(score.UserID, dry, score.ChartID)
	if newID != scoreID {
		existing, err := s.scores.GetWithScoreID(ctx, newID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			// The correction collapsed this score into one we already
			// have; drop the corrected copy.
			s.logger.Info().
				Str("score_id", scoreID).
				Str("collided_with", newID).
				Msg("score correction collapsed into an existing score")
			if err := s.scores.Delete(ctx, scoreID); err != nil {
				return nil, err
			}
			score = existing
		} else {
			score.ScoreID = newID
			if err := s.scores.Update(ctx, scoreID, score); err != nil {
				return nil, err
			}
		}
	} else {
		if err := s.scores.Update(ctx, scoreID, score); err != nil {
			return nil, err
		}
	}

	if err := s.reconcile(ctx, score.UserID, chart.ChartID, score.Game, score.Playtype); err != nil {
		return nil, err
	}

	return score, nil
}

// DeleteScore removes a score and reconciles its aggregates. A chart
// left with no scores loses the user's PB entirely.
func (s *Service) DeleteScore(ctx context.Context, scoreID string) error {
	score, err := s.scores.GetWithScoreID(ctx, scoreID)
	if err != nil {
		return err
	}
	if score == nil {
		return fmt.Errorf("no score with ID %s", scoreID)
	}

	if err := s.scores.Delete(ctx, scoreID); err != nil {
		return err
	}

	return s.reconcile(ctx, score.UserID, score.ChartID, score.Game, score.Playtype)
}

func (s *Service) reconcile(ctx context.Context, userID int, chartID string, game domain.Game, playtype domain.Playtype) error {
	remaining, err := s.scores.GetUserChartScores(ctx, userID, chartID)
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		if err := s.pbRepo.Delete(ctx, userID, chartID); err != nil {
			return err
		}
		if err := s.pbs.UpdateChartRanking(ctx, chartID); err != nil {
			return err
		}
	} else {
		if err := s.pbs.ProcessPBs(ctx, userID, []string{chartID}); err != nil {
			return err
		}
	}

	_, err = s.stats.UpdateStats(ctx, userID, game, playtype, nil)
	return err
}
