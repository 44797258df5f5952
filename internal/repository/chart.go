package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type ChartRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewChartRepository(sqlDB *sql.DB, logger zerolog.Logger) *ChartRepository {
	return &ChartRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const chartColumns = `chart_id, song_id, game, playtype, difficulty,
	level, level_num, notecount, hash_sha1, is_primary`

// GetChart returns (nil, nil) when the chart does not exist.
func (r *ChartRepository) GetChart(ctx context.Context, chartID string) (*domain.Chart, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+chartColumns+` FROM charts WHERE chart_id = ?`, chartID)

	chart, err := scanChart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chart %s: %w", chartID, err)
	}
	return chart, nil
}

// GetChartByHash resolves a chart by its content fingerprint. Returns
// (nil, nil) when unknown; callers route that to the orphan queue.
func (r *ChartRepository) GetChartByHash(ctx context.Context, game domain.Game, hashSHA1 string, playtype domain.Playtype) (*domain.Chart, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+chartColumns+` FROM charts
		WHERE game = ? AND hash_sha1 = ? AND playtype = ?`,
		game, hashSHA1, playtype)

	chart, err := scanChart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chart by hash %s: %w", hashSHA1, err)
	}
	return chart, nil
}

// GetChartForSong finds the primary chart for a song+playtype+difficulty.
func (r *ChartRepository) GetChartForSong(ctx context.Context, game domain.Game, songID int, playtype domain.Playtype, difficulty string) (*domain.Chart, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+chartColumns+` FROM charts
		WHERE game = ? AND song_id = ? AND playtype = ? AND difficulty = ? AND is_primary = 1`,
		game, songID, playtype, difficulty)

	chart, err := scanChart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chart for song %d: %w", songID, err)
	}
	return chart, nil
}

func (r *ChartRepository) InsertChart(ctx context.Context, chart *domain.Chart) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO charts (`+chartColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chart.ChartID, chart.SongID, chart.Game, chart.Playtype,
		chart.Difficulty, chart.Level, chart.LevelNum, chart.Notecount,
		chart.HashSHA1, chart.IsPrimary,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert chart %s: %w", chart.ChartID, err)
	}
	return nil
}

// GetSong returns (nil, nil) when the song does not exist.
func (r *ChartRepository) GetSong(ctx context.Context, game domain.Game, songID int) (*domain.Song, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, game, title, artist, version FROM songs
		WHERE game = ? AND id = ?`, game, songID)

	var s domain.Song
	err := row.Scan(&s.ID, &s.Game, &s.Title, &s.Artist, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song %d: %w", songID, err)
	}
	return &s, nil
}

// GetSongByTitle supports title-matching converters (batch-manual
// "songTitle" match type). Returns (nil, nil) when no song matches.
func (r *ChartRepository) GetSongByTitle(ctx context.Context, game domain.Game, title string) (*domain.Song, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, game, title, artist, version FROM songs
		WHERE game = ? AND title = ?`, game, title)

	var s domain.Song
	err := row.Scan(&s.ID, &s.Game, &s.Title, &s.Artist, &s.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song by title %q: %w", title, err)
	}
	return &s, nil
}

func (r *ChartRepository) InsertSong(ctx context.Context, song *domain.Song) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO songs (id, game, title, artist, version)
		VALUES (?, ?, ?, ?, ?)`,
		song.ID, song.Game, song.Title, song.Artist, song.Version,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert song %d: %w", song.ID, err)
	}
	return nil
}

// NextSongID allocates the next free song ID for a game. Promotion of
// orphan charts mints songs outside any upstream ID namespace.
func (r *ChartRepository) NextSongID(ctx context.Context, game domain.Game) (int, error) {
	var maxID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(id) FROM songs WHERE game = ?`, game).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to get max song id for %s: %w", game, err)
	}
	return int(maxID.Int64) + 1, nil
}

func scanChart(row rowScanner) (*domain.Chart, error) {
	var c domain.Chart
	err := row.Scan(
		&c.ChartID, &c.SongID, &c.Game, &c.Playtype, &c.Difficulty,
		&c.Level, &c.LevelNum, &c.Notecount, &c.HashSHA1, &c.IsPrimary,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
