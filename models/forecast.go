package models

import "time"

// Forecast is a stored point forecast produced right after a training run.
type Forecast struct {
	GeneratedAt      time.Time `gorm:"column:generated_at;primaryKey" json:"generated_at"`
	HorizonMonths    int       `gorm:"column:horizon_months;primaryKey" json:"horizon_months"`
	RefDate          string    `gorm:"column:ref_date" json:"ref_date"`
	CurrentHPI       float64   `gorm:"column:current_hpi" json:"current_hpi"`
	PredictedHPI     float64   `gorm:"column:predicted_hpi" json:"predicted_hpi"`
	PercentageChange float64   `gorm:"column:percentage_change" json:"percentage_change"`
	ModelRunID       string    `gorm:"column:model_run_id" json:"model_run_id"`
}

func (Forecast) TableName() string { return "hpi_forecasts" }

// ForecastCursor is the position of the last forecast of a page. Forecasts
// are listed by generated_at descending, then horizon_months ascending.
type ForecastCursor struct {
	GeneratedAt   time.Time
	HorizonMonths int
}
