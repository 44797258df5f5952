// Package orphan queues scores referencing charts that are not in the
// catalog yet, and promotes those charts once enough distinct players
// have submitted them.
package orphan

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
	"rhythm-tracker/internal/repository"
)

type Service struct {
	orphans   *repository.OrphanRepository
	charts    *repository.ChartRepository
	threshold int
	logger    zerolog.Logger
}

func NewService(orphans *repository.OrphanRepository, charts *repository.ChartRepository, threshold int, log zerolog.Logger) *Service {
	return &Service{
		orphans:   orphans,
		charts:    charts,
		threshold: threshold,
		logger:    log,
	}
}

// HandleOrphanChart records one user's sighting of an unrecognized
// chart. First sighting queues it; later sightings from new users grow
// the distinct submitter count. Once the count reaches the threshold
// the chart is promoted into the catalog and returned; until then the
// return is (nil, nil).
//
// Concurrent threshold crossings are safe: claiming the orphan row is
// a single-winner update, so promotion runs exactly once.
func (s *Service) HandleOrphanChart(ctx context.Context, oc *domain.OrphanChart, userID int) (*domain.Chart, error) {
	existing, err := s.orphans.GetChartByFingerprint(ctx, oc.Fingerprint)
	if err != nil {
		return nil, err
	}

	var count int
	if existing == nil {
		oc.UserIDs = []int{userID}
		err := s.orphans.InsertChart(ctx, oc)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			// Lost the first-sighting race; fall through to counting.
			count, err = s.orphans.AddSubmitter(ctx, oc.Fingerprint, userID)
			if err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			count = 1
		}
	} else {
		if existing.Claimed {
			return nil, nil
		}
		count, err = s.orphans.AddSubmitter(ctx, oc.Fingerprint, userID)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Debug().
		Str("fingerprint", oc.Fingerprint).
		Int("submitters", count).
		Int("threshold", s.threshold).
		Msg("orphan chart sighted")

	if count < s.threshold {
		return nil, nil
	}

	won, err := s.orphans.Claim(ctx, oc.Fingerprint)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}

	return s.promote(ctx, oc.Fingerprint)
}

// promote moves an orphan chart into the canonical catalog, allocating
// a fresh song and chart for it.
func (s *Service) promote(ctx context.Context, fingerprint string) (*domain.Chart, error) {
	oc, err := s.orphans.GetChartByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if oc == nil {
		return nil, fmt.Errorf("claimed orphan chart %s vanished before promotion", fingerprint)
	}

	songID, err := s.charts.NextSongID(ctx, oc.Game)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate song id: %w", err)
	}

	song := oc.Song
	song.ID = songID
	song.Game = oc.Game
	if song.Title == "" {
		song.Title = oc.Name
	}
	if err := s.charts.InsertSong(ctx, &song); err != nil {
		return nil, fmt.Errorf("failed to insert promoted song: %w", err)
	}

	chart := oc.Chart
	chart.SongID = songID
	chart.Game = oc.Game
	chart.Playtype = oc.Playtype
	chart.IsPrimary = true
	if chart.ChartID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate chart id: %w", err)
		}
		chart.ChartID = id
	}
	if err := s.charts.InsertChart(ctx, &chart); err != nil {
		return nil, fmt.Errorf("failed to insert promoted chart: %w", err)
	}

	if err := s.orphans.DeleteChart(ctx, fingerprint); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("fingerprint", fingerprint).
		Str("chart_id", chart.ChartID).
		Int("song_id", songID).
		Msg("orphan chart promoted")

	return &chart, nil
}

// QueueScore stores a score's raw converter input for replay once its
// chart gets promoted.
func (s *Service) QueueScore(ctx context.Context, os *domain.OrphanScore) error {
	return s.orphans.InsertScore(ctx, os)
}

// DrainScores hands back every queued score for a fingerprint and
// clears the queue. Callers replay them through the normal pipeline.
func (s *Service) DrainScores(ctx context.Context, fingerprint string) ([]domain.OrphanScore, error) {
	scores, err := s.orphans.GetScoresByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := s.orphans.DeleteScores(ctx, fingerprint); err != nil {
		return nil, err
	}
	return scores, nil
}
