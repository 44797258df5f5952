package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type ClassAchievementRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewClassAchievementRepository(sqlDB *sql.DB, logger zerolog.Logger) *ClassAchievementRepository {
	return &ClassAchievementRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// InsertBatch appends class achievement audit rows.
func (r *ClassAchievementRepository) InsertBatch(ctx context.Context, achievements []domain.ClassAchievement) error {
	if len(achievements) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range achievements {
		var old any
		if a.OldValue != nil {
			old = *a.OldValue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO class_achievements
				(user_id, game, playtype, class_set, old_value, new_value, time_achieved)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.UserID, a.Game, a.Playtype, a.ClassSet, old, a.NewValue, a.TimeAchieved,
		)
		if err != nil {
			return fmt.Errorf("failed to insert class achievement: %w", err)
		}
	}

	return tx.Commit()
}

// GetForUser returns a user's class achievement history for a
// (game, playtype), newest first.
func (r *ClassAchievementRepository) GetForUser(ctx context.Context, userID int, game domain.Game, playtype domain.Playtype) ([]domain.ClassAchievement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, game, playtype, class_set, old_value, new_value, time_achieved
		FROM class_achievements
		WHERE user_id = ? AND game = ? AND playtype = ?
		ORDER BY time_achieved DESC`,
		userID, game, playtype)
	if err != nil {
		return nil, fmt.Errorf("failed to query class achievements for user %d: %w", userID, err)
	}
	defer rows.Close()

	var result []domain.ClassAchievement
	for rows.Next() {
		var a domain.ClassAchievement
		var old sql.NullInt64
		if err := rows.Scan(&a.UserID, &a.Game, &a.Playtype, &a.ClassSet, &old, &a.NewValue, &a.TimeAchieved); err != nil {
			return nil, err
		}
		a.OldValue = nullableInt(old)
		result = append(result, a)
	}
	return result, rows.Err()
}
