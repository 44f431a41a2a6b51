package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hpi-forecast/models"
	"hpi-forecast/panel"
)

// OpenGorm opens the read side of the store.
func OpenGorm(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db handle: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// PanelReader serves the merged monthly table and stored forecasts.
type PanelReader struct {
	db *gorm.DB
}

func NewPanelReader(db *gorm.DB) *PanelReader {
	return &PanelReader{db: db}
}

// Snapshot returns the whole table, ascending.
func (r *PanelReader) Snapshot(ctx context.Context) (panel.Table, error) {
	var recs []models.MonthlyRecord
	if err := r.db.WithContext(ctx).Order("ref_date ASC").Find(&recs).Error; err != nil {
		return panel.Table{}, fmt.Errorf("load panel: %w", err)
	}
	return panel.FromRecords(recs)
}

// Recent returns the last n months of the table, ascending.
func (r *PanelReader) Recent(ctx context.Context, n int) (panel.Table, error) {
	var recs []models.MonthlyRecord
	if err := r.db.WithContext(ctx).Order("ref_date DESC").Limit(n).Find(&recs).Error; err != nil {
		return panel.Table{}, fmt.Errorf("load recent panel: %w", err)
	}
	return panel.FromRecords(recs)
}

// Page returns up to limit records before the given ref_date, newest first.
// An empty before starts from the latest month.
func (r *PanelReader) Page(ctx context.Context, limit int, before string) ([]models.MonthlyRecord, error) {
	q := r.db.WithContext(ctx).Order("ref_date DESC").Limit(limit)
	if before != "" {
		q = q.Where("ref_date < ?", before)
	}
	var recs []models.MonthlyRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("page panel: %w", err)
	}
	return recs, nil
}

// Forecasts returns stored forecasts, newest run first and by horizon within
// a run. A zero horizon matches every horizon; a nil after starts from the
// latest run, otherwise listing resumes right after that forecast.
func (r *PanelReader) Forecasts(ctx context.Context, horizon, limit int, after *models.ForecastCursor) ([]models.Forecast, error) {
	q := r.db.WithContext(ctx).Order("generated_at DESC").Order("horizon_months ASC").Limit(limit)
	if horizon > 0 {
		q = q.Where("horizon_months = ?", horizon)
	}
	if after != nil {
		q = q.Where("(generated_at < ? OR (generated_at = ? AND horizon_months > ?))",
			after.GeneratedAt, after.GeneratedAt, after.HorizonMonths)
	}
	var rows []models.Forecast
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	return rows, nil
}
