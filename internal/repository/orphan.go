package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type OrphanRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewOrphanRepository(sqlDB *sql.DB, logger zerolog.Logger) *OrphanRepository {
	return &OrphanRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// GetChartByFingerprint returns (nil, nil) when no orphan chart with
// this fingerprint is queued.
func (r *OrphanRepository) GetChartByFingerprint(ctx context.Context, fingerprint string) (*domain.OrphanChart, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT orphan_id, fingerprint, game, playtype, name,
			chart_doc, song_doc, user_ids, claimed, time_added
		FROM orphan_charts WHERE fingerprint = ?`, fingerprint)

	oc, err := scanOrphanChart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get orphan chart %s: %w", fingerprint, err)
	}
	return oc, nil
}

// InsertChart queues a newly sighted orphan chart with its first
// submitter. Returns ErrDuplicate when another submission won the
// insert race for the same fingerprint.
func (r *OrphanRepository) InsertChart(ctx context.Context, oc *domain.OrphanChart) error {
	if oc.OrphanID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		oc.OrphanID = id
	}
	if oc.TimeAdded.IsZero() {
		oc.TimeAdded = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orphan_charts
			(orphan_id, fingerprint, game, playtype, name, chart_doc, song_doc, user_ids, claimed, time_added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		oc.OrphanID, oc.Fingerprint, oc.Game, oc.Playtype, oc.Name,
		marshal(oc.Chart), marshal(oc.Song), marshal(oc.UserIDs), oc.TimeAdded,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert orphan chart %s: %w", oc.Fingerprint, err)
	}
	return nil
}

// AddSubmitter records another distinct user sighting the fingerprint
// and returns the updated distinct submitter count. Re-submissions
// from an already counted user do not move the counter.
func (r *OrphanRepository) AddSubmitter(ctx context.Context, fingerprint string, userID int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userIDsRaw string
	err = tx.QueryRowContext(ctx, `
		SELECT user_ids FROM orphan_charts WHERE fingerprint = ?`,
		fingerprint).Scan(&userIDsRaw)
	if err != nil {
		return 0, fmt.Errorf("failed to read orphan submitters for %s: %w", fingerprint, err)
	}

	var userIDs []int
	if err := unmarshal(userIDsRaw, &userIDs); err != nil {
		return 0, fmt.Errorf("corrupt user_ids on orphan chart %s: %w", fingerprint, err)
	}

	if !slices.Contains(userIDs, userID) {
		userIDs = append(userIDs, userID)
		_, err = tx.ExecContext(ctx, `
			UPDATE orphan_charts SET user_ids = ? WHERE fingerprint = ?`,
			marshal(userIDs), fingerprint)
		if err != nil {
			return 0, fmt.Errorf("failed to update orphan submitters for %s: %w", fingerprint, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(userIDs), nil
}

// Claim flips the claimed flag and reports whether this caller won it.
// Promotion runs only for the single winner, which keeps concurrent
// threshold crossings idempotent.
func (r *OrphanRepository) Claim(ctx context.Context, fingerprint string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orphan_charts SET claimed = 1
		WHERE fingerprint = ? AND claimed = 0`, fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to claim orphan chart %s: %w", fingerprint, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteChart removes a promoted orphan chart row.
func (r *OrphanRepository) DeleteChart(ctx context.Context, fingerprint string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM orphan_charts WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete orphan chart %s: %w", fingerprint, err)
	}
	return nil
}

// InsertScore queues a score whose chart is still orphaned.
func (r *OrphanRepository) InsertScore(ctx context.Context, os *domain.OrphanScore) error {
	if os.OrphanID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		os.OrphanID = id
	}
	if os.TimeInserted.IsZero() {
		os.TimeInserted = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orphan_scores
			(orphan_id, fingerprint, user_id, game, import_type, data, context, time_inserted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		os.OrphanID, os.Fingerprint, os.UserID, os.Game, os.ImportType,
		string(os.Data), string(os.Context), os.TimeInserted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert orphan score: %w", err)
	}
	return nil
}

// GetScoresByFingerprint returns every queued orphan score for a
// fingerprint, for replay after promotion.
func (r *OrphanRepository) GetScoresByFingerprint(ctx context.Context, fingerprint string) ([]domain.OrphanScore, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT orphan_id, fingerprint, user_id, game, import_type, data, context, time_inserted
		FROM orphan_scores WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan scores for %s: %w", fingerprint, err)
	}
	defer rows.Close()

	var result []domain.OrphanScore
	for rows.Next() {
		var os domain.OrphanScore
		var data, contextRaw string
		if err := rows.Scan(&os.OrphanID, &os.Fingerprint, &os.UserID, &os.Game, &os.ImportType, &data, &contextRaw, &os.TimeInserted); err != nil {
			return nil, err
		}
		os.Data = []byte(data)
		os.Context = []byte(contextRaw)
		result = append(result, os)
	}
	return result, rows.Err()
}

// DeleteScores clears the queued scores for a fingerprint once they
// have been replayed.
func (r *OrphanRepository) DeleteScores(ctx context.Context, fingerprint string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM orphan_scores WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete orphan scores for %s: %w", fingerprint, err)
	}
	return nil
}

func scanOrphanChart(row rowScanner) (*domain.OrphanChart, error) {
	var oc domain.OrphanChart
	var chartDoc, songDoc, userIDs string

	err := row.Scan(
		&oc.OrphanID, &oc.Fingerprint, &oc.Game, &oc.Playtype, &oc.Name,
		&chartDoc, &songDoc, &userIDs, &oc.Claimed, &oc.TimeAdded,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshal(chartDoc, &oc.Chart); err != nil {
		return nil, fmt.Errorf("corrupt chart_doc on orphan chart: %w", err)
	}
	if err := unmarshal(songDoc, &oc.Song); err != nil {
		return nil, fmt.Errorf("corrupt song_doc on orphan chart: %w", err)
	}
	if err := unmarshal(userIDs, &oc.UserIDs); err != nil {
		return nil, fmt.Errorf("corrupt user_ids on orphan chart: %w", err)
	}

	return &oc, nil
}
