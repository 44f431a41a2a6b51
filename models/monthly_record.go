package models

import "hpi-forecast/series"

const (
	ColUnemployment             = "unemployment_value"
	ColLabourForce              = "labour_force_value"
	ColUnemploymentRate         = "unemployment_rate"
	ColHPI                      = "housing_price_index_value"
	ColCPI                      = "monthly_cpi_value"
	ColBuildingPermits          = "building_permits_value"
	ColWeeklyIncome             = "weekly_income_value"
	ColHousingStarts            = "housing_starts_value"
	ColHousingUnderConstruction = "housing_under_construction_value"
	ColHousingCompletions       = "housing_completions_value"
	ColInterestRate             = "interest_rate"
	ColBondYield                = "bond_yield"
)

// Columns lists every indicator column of the wide table in schema order.
var Columns = []string{
	ColUnemployment,
	ColLabourForce,
	ColUnemploymentRate,
	ColHPI,
	ColCPI,
	ColBuildingPermits,
	ColWeeklyIncome,
	ColHousingStarts,
	ColHousingUnderConstruction,
	ColHousingCompletions,
	ColInterestRate,
	ColBondYield,
}

// MonthlyRecord is one row of the wide table. Nil fields are nulls.
type MonthlyRecord struct {
	RefDate                  string   `gorm:"column:ref_date;primaryKey;size:7" json:"ref_date"`
	UnemploymentValue        *float64 `gorm:"column:unemployment_value" json:"unemployment_value"`
	LabourForceValue         *float64 `gorm:"column:labour_force_value" json:"labour_force_value"`
	UnemploymentRate         *float64 `gorm:"column:unemployment_rate" json:"unemployment_rate"`
	HousingPriceIndex        *float64 `gorm:"column:housing_price_index_value" json:"housing_price_index_value"`
	MonthlyCPI               *float64 `gorm:"column:monthly_cpi_value" json:"monthly_cpi_value"`
	BuildingPermits          *float64 `gorm:"column:building_permits_value" json:"building_permits_value"`
	WeeklyIncome             *float64 `gorm:"column:weekly_income_value" json:"weekly_income_value"`
	HousingStarts            *float64 `gorm:"column:housing_starts_value" json:"housing_starts_value"`
	HousingUnderConstruction *float64 `gorm:"column:housing_under_construction_value" json:"housing_under_construction_value"`
	HousingCompletions       *float64 `gorm:"column:housing_completions_value" json:"housing_completions_value"`
	InterestRate             *float64 `gorm:"column:interest_rate" json:"interest_rate"`
	BondYield                *float64 `gorm:"column:bond_yield" json:"bond_yield"`
}

func (MonthlyRecord) TableName() string { return "housing_econ_wide" }

func (r *MonthlyRecord) Month() (series.Month, error) {
	return series.ParseMonth(r.RefDate)
}

func (r *MonthlyRecord) slot(col string) **float64 {
	switch col {
	case ColUnemployment:
		return &r.UnemploymentValue
	case ColLabourForce:
		return &r.LabourForceValue
	case ColUnemploymentRate:
		return &r.UnemploymentRate
	case ColHPI:
		return &r.HousingPriceIndex
	case ColCPI:
		return &r.MonthlyCPI
	case ColBuildingPermits:
		return &r.BuildingPermits
	case ColWeeklyIncome:
		return &r.WeeklyIncome
	case ColHousingStarts:
		return &r.HousingStarts
	case ColHousingUnderConstruction:
		return &r.HousingUnderConstruction
	case ColHousingCompletions:
		return &r.HousingCompletions
	case ColInterestRate:
		return &r.InterestRate
	case ColBondYield:
		return &r.BondYield
	}
	return nil
}

// Get returns the value of col and whether it is present. Unknown columns
// are reported as absent.
func (r *MonthlyRecord) Get(col string) (float64, bool) {
	p := r.slot(col)
	if p == nil || *p == nil {
		return 0, false
	}
	return **p, true
}

// Set stores v under col and reports whether col is a known column.
func (r *MonthlyRecord) Set(col string, v float64) bool {
	p := r.slot(col)
	if p == nil {
		return false
	}
	*p = &v
	return true
}

func IsColumn(col string) bool {
	var r MonthlyRecord
	return r.slot(col) != nil
}
