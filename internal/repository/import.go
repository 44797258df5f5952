package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

type ImportRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewImportRepository(sqlDB *sql.DB, logger zerolog.Logger) *ImportRepository {
	return &ImportRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *ImportRepository) Insert(ctx context.Context, doc *domain.ImportDocument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO imports
			(import_id, user_id, user_intent, import_type, game,
			 score_ids, errors, class_deltas, time_started, time_finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ImportID, doc.UserID, doc.UserIntent, doc.ImportType, doc.Game,
		marshal(doc.ScoreIDs), marshal(doc.Errors), marshal(doc.ClassDeltas),
		doc.TimeStarted, doc.TimeFinished,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert import %s: %w", doc.ImportID, err)
	}
	return nil
}

// GetByImportID returns (nil, nil) when the import is unknown. Serves
// the ongoing-import polling surface.
func (r *ImportRepository) GetByImportID(ctx context.Context, importID string) (*domain.ImportDocument, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT import_id, user_id, user_intent, import_type, game,
			score_ids, errors, class_deltas, time_started, time_finished
		FROM imports WHERE import_id = ?`, importID)

	var doc domain.ImportDocument
	var scoreIDs, errs, deltas string

	err := row.Scan(
		&doc.ImportID, &doc.UserID, &doc.UserIntent, &doc.ImportType, &doc.Game,
		&scoreIDs, &errs, &deltas, &doc.TimeStarted, &doc.TimeFinished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import %s: %w", importID, err)
	}

	if err := unmarshal(scoreIDs, &doc.ScoreIDs); err != nil {
		return nil, fmt.Errorf("corrupt score_ids on import %s: %w", importID, err)
	}
	if err := unmarshal(errs, &doc.Errors); err != nil {
		return nil, fmt.Errorf("corrupt errors on import %s: %w", importID, err)
	}
	if err := unmarshal(deltas, &doc.ClassDeltas); err != nil {
		return nil, fmt.Errorf("corrupt class_deltas on import %s: %w", importID, err)
	}

	return &doc, nil
}
