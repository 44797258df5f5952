package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type ScoreRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewScoreRepository(sqlDB *sql.DB, logger zerolog.Logger) *ScoreRepository {
	return &ScoreRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const scoreColumns = `score_id, user_id, chart_id, song_id, game, playtype,
	score, percent, grade, grade_index, lamp, lamp_index,
	judgements, hit_meta, calculated_data,
	import_type, service, comment, time_achieved, time_added`

// Insert persists a new score. Returns ErrDuplicate when a score with
// the same scoreID already exists; the unique index on score_id is the
// authoritative dedup backstop behind the importer's best-effort
// pre-check.
func (r *ScoreRepository) Insert(ctx context.Context, score *domain.Score) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scores (`+scoreColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		score.ScoreID, score.UserID, score.ChartID, score.SongID,
		score.Game, score.Playtype,
		score.ScoreData.Score, score.ScoreData.Percent,
		score.ScoreData.Grade, score.ScoreData.GradeIndex,
		score.ScoreData.Lamp, score.ScoreData.LampIndex,
		marshal(score.ScoreData.Judgements), marshal(score.ScoreData.HitMeta),
		marshal(score.CalculatedData),
		score.ImportType, score.Service, score.Comment,
		score.TimeAchieved, score.TimeAdded,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert score %s: %w", score.ScoreID, err)
	}
	return nil
}

// GetWithScoreID looks up a score by its identity hash. Returns
// (nil, nil) when the score does not exist; absence is not an error.
func (r *ScoreRepository) GetWithScoreID(ctx context.Context, scoreID string) (*domain.Score, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+scoreColumns+` FROM scores WHERE score_id = ?`, scoreID)

	score, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score %s: %w", scoreID, err)
	}
	return score, nil
}

// GetUserChartScores returns every score a user has on one chart.
func (r *ScoreRepository) GetUserChartScores(ctx context.Context, userID int, chartID string) ([]domain.Score, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scoreColumns+` FROM scores
		WHERE user_id = ? AND chart_id = ?`, userID, chartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores for user %d chart %s: %w", userID, chartID, err)
	}
	defer rows.Close()

	return collectScores(rows)
}

// Update rewrites the score stored under oldScoreID with the given
// score (which may carry a different scoreID). Used only by the
// corrective score-mutation path.
func (r *ScoreRepository) Update(ctx context.Context, oldScoreID string, score *domain.Score) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scores SET
			score_id = ?, user_id = ?, chart_id = ?, song_id = ?,
			game = ?, playtype = ?,
			score = ?, percent = ?, grade = ?, grade_index = ?,
			lamp = ?, lamp_index = ?,
			judgements = ?, hit_meta = ?, calculated_data = ?,
			import_type = ?, service = ?, comment = ?,
			time_achieved = ?, time_added = ?
		WHERE score_id = ?`,
		score.ScoreID, score.UserID, score.ChartID, score.SongID,
		score.Game, score.Playtype,
		score.ScoreData.Score, score.ScoreData.Percent,
		score.ScoreData.Grade, score.ScoreData.GradeIndex,
		score.ScoreData.Lamp, score.ScoreData.LampIndex,
		marshal(score.ScoreData.Judgements), marshal(score.ScoreData.HitMeta),
		marshal(score.CalculatedData),
		score.ImportType, score.Service, score.Comment,
		score.TimeAchieved, score.TimeAdded,
		oldScoreID,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update score %s: %w", oldScoreID, err)
	}
	return nil
}

// Delete removes a score row. Only the mutation path uses this, when a
// corrected score collides with an already-existing scoreID.
func (r *ScoreRepository) Delete(ctx context.Context, scoreID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scores WHERE score_id = ?`, scoreID)
	if err != nil {
		return fmt.Errorf("failed to delete score %s: %w", scoreID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*domain.Score, error) {
	var s domain.Score
	var judgements, hitMeta, calcData string

	err := row.Scan(
		&s.ScoreID, &s.UserID, &s.ChartID, &s.SongID, &s.Game, &s.Playtype,
		&s.ScoreData.Score, &s.ScoreData.Percent,
		&s.ScoreData.Grade, &s.ScoreData.GradeIndex,
		&s.ScoreData.Lamp, &s.ScoreData.LampIndex,
		&judgements, &hitMeta, &calcData,
		&s.ImportType, &s.Service, &s.Comment,
		&s.TimeAchieved, &s.TimeAdded,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshal(judgements, &s.ScoreData.Judgements); err != nil {
		return nil, fmt.Errorf("corrupt judgements on score %s: %w", s.ScoreID, err)
	}
	if err := unmarshal(hitMeta, &s.ScoreData.HitMeta); err != nil {
		return nil, fmt.Errorf("corrupt hit_meta on score %s: %w", s.ScoreID, err)
	}
	if err := unmarshal(calcData, &s.CalculatedData); err != nil {
		return nil, fmt.Errorf("corrupt calculated_data on score %s: %w", s.ScoreID, err)
	}

	return &s, nil
}

func collectScores(rows *sql.Rows) ([]domain.Score, error) {
	var result []domain.Score
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *score)
	}
	return result, rows.Err()
}
