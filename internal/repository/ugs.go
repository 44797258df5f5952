package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type UGSRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewUGSRepository(sqlDB *sql.DB, logger zerolog.Logger) *UGSRepository {
	return &UGSRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Get returns (nil, nil) when the user has no stats document for this
// (game, playtype) yet.
func (r *UGSRepository) Get(ctx context.Context, userID int, game domain.Game, playtype domain.Playtype) (*domain.UserGameStats, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, game, playtype, ratings, classes
		FROM user_game_stats
		WHERE user_id = ? AND game = ? AND playtype = ?`,
		userID, game, playtype)

	var ugs domain.UserGameStats
	var ratings, classes string

	err := row.Scan(&ugs.UserID, &ugs.Game, &ugs.Playtype, &ratings, &classes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ugs for user %d %s:%s: %w", userID, game, playtype, err)
	}

	if err := unmarshal(ratings, &ugs.Ratings); err != nil {
		return nil, fmt.Errorf("corrupt ratings on ugs: %w", err)
	}
	if err := unmarshal(classes, &ugs.Classes); err != nil {
		return nil, fmt.Errorf("corrupt classes on ugs: %w", err)
	}

	return &ugs, nil
}

// Upsert writes ratings and classes in one statement.
func (r *UGSRepository) Upsert(ctx context.Context, ugs *domain.UserGameStats) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_game_stats (user_id, game, playtype, ratings, classes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, game, playtype) DO UPDATE SET
			ratings = excluded.ratings,
			classes = excluded.classes`,
		ugs.UserID, ugs.Game, ugs.Playtype,
		marshal(ugs.Ratings), marshal(ugs.Classes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ugs for user %d %s:%s: %w", ugs.UserID, ugs.Game, ugs.Playtype, err)
	}
	return nil
}

// EnsureGameSettings creates a default game-settings document if the
// user doesn't have one for this (game, playtype). Invoked when a UGS
// document is created for the first time.
func (r *UGSRepository) EnsureGameSettings(ctx context.Context, userID int, game domain.Game, playtype domain.Playtype) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO game_settings (user_id, game, playtype, preferences)
		VALUES (?, ?, ?, '{}')
		ON CONFLICT (user_id, game, playtype) DO NOTHING`,
		userID, game, playtype)
	if err != nil {
		return fmt.Errorf("failed to ensure game settings for user %d %s:%s: %w", userID, game, playtype, err)
	}
	return nil
}

// GetGameSettings returns (nil, nil) when the user has no settings
// document for this (game, playtype).
func (r *UGSRepository) GetGameSettings(ctx context.Context, userID int, game domain.Game, playtype domain.Playtype) (*domain.GameSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, game, playtype, preferences FROM game_settings
		WHERE user_id = ? AND game = ? AND playtype = ?`,
		userID, game, playtype)

	var gs domain.GameSettings
	var prefs string

	err := row.Scan(&gs.UserID, &gs.Game, &gs.Playtype, &prefs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game settings for user %d: %w", userID, err)
	}

	if err := unmarshal(prefs, &gs.Preferences); err != nil {
		return nil, fmt.Errorf("corrupt preferences on game settings: %w", err)
	}

	return &gs, nil
}
