package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

// BPIRepository serves the per-chart calibration data the IIDX rating
// function looks up. This is the one bounded lookup a calculated-data
// function is allowed.
type BPIRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewBPIRepository(sqlDB *sql.DB, logger zerolog.Logger) *BPIRepository {
	return &BPIRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// Get returns (nil, nil) when no calibration data exists for the
// chart; BPI is then simply not computed.
func (r *BPIRepository) Get(ctx context.Context, chartID string) (*domain.BPIData, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT chart_id, kavg, wr, coef FROM bpi_data WHERE chart_id = ?`, chartID)

	var d domain.BPIData
	err := row.Scan(&d.ChartID, &d.KAVG, &d.WR, &d.Coef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bpi data for chart %s: %w", chartID, err)
	}
	return &d, nil
}

func (r *BPIRepository) Upsert(ctx context.Context, d *domain.BPIData) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bpi_data (chart_id, kavg, wr, coef)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chart_id) DO UPDATE SET
			kavg = excluded.kavg, wr = excluded.wr, coef = excluded.coef`,
		d.ChartID, d.KAVG, d.WR, d.Coef,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bpi data for chart %s: %w", d.ChartID, err)
	}
	return nil
}
