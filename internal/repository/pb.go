package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type PBRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPBRepository(sqlDB *sql.DB, logger zerolog.Logger) *PBRepository {
	return &PBRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const pbColumns = `user_id, chart_id, song_id, game, playtype,
	is_primary, highlight, time_achieved,
	score, percent, grade, grade_index, lamp, lamp_index,
	judgements, hit_meta, calculated_data, composed_from,
	ranking_rank, ranking_out_of`

// UpsertBatch writes PB documents keyed by (user, chart) with
// unordered semantics: a failing row is logged and skipped, the rest
// of the batch still lands. Ranking columns are cleared on upsert;
// they are repopulated by the chart ranking refresh that follows, and
// are legitimately absent in between.
func (r *PBRepository) UpsertBatch(ctx context.Context, pbs []domain.PersonalBest) error {
	if len(pbs) == 0 {
		return nil
	}

	var failed int
	for i := range pbs {
		if err := r.upsert(ctx, &pbs[i]); err != nil {
			failed++
			r.logger.Error().Err(err).
				Int("user_id", pbs[i].UserID).
				Str("chart_id", pbs[i].ChartID).
				Msg("failed to upsert personal best")
		}
	}

	if failed == len(pbs) {
		return fmt.Errorf("all %d personal best upserts failed", failed)
	}
	return nil
}

func (r *PBRepository) upsert(ctx context.Context, pb *domain.PersonalBest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO personal_bests (`+pbColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
		ON CONFLICT (user_id, chart_id) DO UPDATE SET
			song_id = excluded.song_id,
			game = excluded.game,
			playtype = excluded.playtype,
			is_primary = excluded.is_primary,
			highlight = excluded.highlight,
			time_achieved = excluded.time_achieved,
			score = excluded.score,
			percent = excluded.percent,
			grade = excluded.grade,
			grade_index = excluded.grade_index,
			lamp = excluded.lamp,
			lamp_index = excluded.lamp_index,
			judgements = excluded.judgements,
			hit_meta = excluded.hit_meta,
			calculated_data = excluded.calculated_data,
			composed_from = excluded.composed_from,
			ranking_rank = NULL,
			ranking_out_of = NULL`,
		pb.UserID, pb.ChartID, pb.SongID, pb.Game, pb.Playtype,
		pb.IsPrimary, pb.Highlight, pb.TimeAchieved,
		pb.ScoreData.Score, pb.ScoreData.Percent,
		pb.ScoreData.Grade, pb.ScoreData.GradeIndex,
		pb.ScoreData.Lamp, pb.ScoreData.LampIndex,
		marshal(pb.ScoreData.Judgements), marshal(pb.ScoreData.HitMeta),
		marshal(pb.CalculatedData), marshal(pb.ComposedFrom),
	)
	return err
}

// Get returns (nil, nil) when the user has no PB on this chart.
func (r *PBRepository) Get(ctx context.Context, userID int, chartID string) (*domain.PersonalBest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+pbColumns+` FROM personal_bests
		WHERE user_id = ? AND chart_id = ?`, userID, chartID)

	pb, err := scanPB(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pb user %d chart %s: %w", userID, chartID, err)
	}
	return pb, nil
}

// GetChartPBs returns all PBs on a chart ordered by the primary
// ranking metric descending, ties broken by earliest achievement.
func (r *PBRepository) GetChartPBs(ctx context.Context, chartID string) ([]domain.PersonalBest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pbColumns+` FROM personal_bests
		WHERE chart_id = ?
		ORDER BY percent DESC, time_achieved ASC`, chartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pbs for chart %s: %w", chartID, err)
	}
	defer rows.Close()

	return collectPBs(rows)
}

// GetUserGamePBs returns every PB a user holds for a (game, playtype).
func (r *PBRepository) GetUserGamePBs(ctx context.Context, userID int, game domain.Game, playtype domain.Playtype) ([]domain.PersonalBest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pbColumns+` FROM personal_bests
		WHERE user_id = ? AND game = ? AND playtype = ?`,
		userID, game, playtype)
	if err != nil {
		return nil, fmt.Errorf("failed to query pbs for user %d %s:%s: %w", userID, game, playtype, err)
	}
	defer rows.Close()

	return collectPBs(rows)
}

// WriteRanking sets the rankingData on one PB row.
func (r *PBRepository) WriteRanking(ctx context.Context, userID int, chartID string, rank, outOf int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE personal_bests SET ranking_rank = ?, ranking_out_of = ?
		WHERE user_id = ? AND chart_id = ?`,
		rank, outOf, userID, chartID)
	if err != nil {
		return fmt.Errorf("failed to write ranking for user %d chart %s: %w", userID, chartID, err)
	}
	return nil
}

// Delete removes a user's PB on a chart. Used when the corrective
// mutation path leaves a chart with zero scores.
func (r *PBRepository) Delete(ctx context.Context, userID int, chartID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM personal_bests WHERE user_id = ? AND chart_id = ?`,
		userID, chartID)
	if err != nil {
		return fmt.Errorf("failed to delete pb user %d chart %s: %w", userID, chartID, err)
	}
	return nil
}

func scanPB(row rowScanner) (*domain.PersonalBest, error) {
	var pb domain.PersonalBest
	var judgements, hitMeta, calcData, composedFrom string
	var rank, outOf sql.NullInt64

	err := row.Scan(
		&pb.UserID, &pb.ChartID, &pb.SongID, &pb.Game, &pb.Playtype,
		&pb.IsPrimary, &pb.Highlight, &pb.TimeAchieved,
		&pb.ScoreData.Score, &pb.ScoreData.Percent,
		&pb.ScoreData.Grade, &pb.ScoreData.GradeIndex,
		&pb.ScoreData.Lamp, &pb.ScoreData.LampIndex,
		&judgements, &hitMeta, &calcData, &composedFrom,
		&rank, &outOf,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshal(judgements, &pb.ScoreData.Judgements); err != nil {
		return nil, fmt.Errorf("corrupt judgements on pb: %w", err)
	}
	if err := unmarshal(hitMeta, &pb.ScoreData.HitMeta); err != nil {
		return nil, fmt.Errorf("corrupt hit_meta on pb: %w", err)
	}
	if err := unmarshal(calcData, &pb.CalculatedData); err != nil {
		return nil, fmt.Errorf("corrupt calculated_data on pb: %w", err)
	}
	if err := unmarshal(composedFrom, &pb.ComposedFrom); err != nil {
		return nil, fmt.Errorf("corrupt composed_from on pb: %w", err)
	}

	if rank.Valid && outOf.Valid {
		pb.RankingData = &domain.RankingData{
			Rank:  int(rank.Int64),
			OutOf: int(outOf.Int64),
		}
	}

	return &pb, nil
}

func collectPBs(rows *sql.Rows) ([]domain.PersonalBest, error) {
	var result []domain.PersonalBest
	for rows.Next() {
		pb, err := scanPB(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pb)
	}
	return result, rows.Err()
}
