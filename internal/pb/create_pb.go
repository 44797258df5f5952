// Package pb synthesizes personal bests from a user's scores and
// maintains per-chart rankings over them. PBs are derived caches: they
// can always be recomputed from scores and are never submitted
// directly.
package pb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/logger"
	"rhythm-tracker/internal/repository"
)

type Service struct {
	scores *repository.ScoreRepository
	pbs    *repository.PBRepository
	logger zerolog.Logger
}

func NewService(scores *repository.ScoreRepository, pbs *repository.PBRepository, log zerolog.Logger) *Service {
	return &Service{
		scores: scores,
		pbs:    pbs,
		logger: log,
	}
}

// CreatePBDoc composes a user's personal best on one chart from all
// their scores on it. Returns (nil, nil) when the user has no scores
// there; that is a caller bug (PB recompute should never run for a
// scoreless chart) and is logged severely rather than thrown.
//
// The returned PB carries no rankingData; that is filled in by the
// chart ranking refresh afterwards.
func (s *Service) CreatePBDoc(ctx context.Context, userID int, chartID string) (*domain.PersonalBest, error) {
	scores, err := s.scores.GetUserChartScores(ctx, userID, chartID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scores for pb: %w", err)
	}

	if len(scores) == 0 {
		logger.Severe(s.logger).
			Int("user_id", userID).
			Str("chart_id", chartID).
			Msg("pb requested for a chart the user has no scores on")
		return nil, nil
	}

	scorePB := &scores[0]
	lampPB := &scores[0]
	for i := 1; i < len(scores); i++ {
		sc := &scores[i]
		if betterScore(sc, scorePB) {
			scorePB = sc
		}
		if betterLamp(sc, lampPB) {
			lampPB = sc
		}
	}

	doc := mergeScoreLampPBs(scorePB, lampPB)

	if mergeFn := gameMergeFns[doc.Game]; mergeFn != nil {
		mergeFn(doc, scores)
	}

	return doc, nil
}

// betterScore compares by raw score, ties broken by the more recent
// timeAchieved.
func betterScore(a, b *domain.Score) bool {
	if a.ScoreData.Score != b.ScoreData.Score {
		return a.ScoreData.Score > b.ScoreData.Score
	}
	return a.TimeAchieved > b.TimeAchieved
}

func betterLamp(a, b *domain.Score) bool {
	if a.ScoreData.LampIndex != b.ScoreData.LampIndex {
		return a.ScoreData.LampIndex > b.ScoreData.LampIndex
	}
	return a.TimeAchieved > b.TimeAchieved
}

// mergeScoreLampPBs builds the PB document: score-related fields from
// the score PB, lamp fields from the lamp PB, calculatedData unioned
// per key by maximum.
func mergeScoreLampPBs(scorePB, lampPB *domain.Score) *domain.PersonalBest {
	doc := &domain.PersonalBest{
		UserID:       scorePB.UserID,
		ChartID:      scorePB.ChartID,
		SongID:       scorePB.SongID,
		Game:         scorePB.Game,
		Playtype:     scorePB.Playtype,
		IsPrimary:    true,
		TimeAchieved: scorePB.TimeAchieved,
		ScoreData: domain.ScoreData{
			Score:      scorePB.ScoreData.Score,
			Percent:    scorePB.ScoreData.Percent,
			Grade:      scorePB.ScoreData.Grade,
			GradeIndex: scorePB.ScoreData.GradeIndex,
			Lamp:       lampPB.ScoreData.Lamp,
			LampIndex:  lampPB.ScoreData.LampIndex,
			Judgements: scorePB.ScoreData.Judgements,
			HitMeta:    scorePB.ScoreData.HitMeta,
		},
		CalculatedData: mergeCalculatedData(scorePB.CalculatedData, lampPB.CalculatedData),
		ComposedFrom: domain.ComposedFrom{
			ScorePB: scorePB.ScoreID,
			LampPB:  lampPB.ScoreID,
		},
	}

	return doc
}

func mergeCalculatedData(a, b map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(a))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if existing, ok := merged[k]; !ok || v > existing {
			merged[k] = v
		}
	}
	return merged
}
