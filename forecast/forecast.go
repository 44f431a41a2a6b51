package forecast

import (
	"errors"
	"fmt"

	"hpi-forecast/models"
	"hpi-forecast/panel"
)

var (
	ErrUnsupportedHorizon = errors.New("unsupported horizon")
	ErrModelNotFound      = errors.New("model unavailable")
	ErrNoData             = errors.New("no panel data")
	ErrNoCurrentIndex     = errors.New("latest row has no housing price index")
)

// Model is a fitted regressor taking features in its training order.
type Model interface {
	Predict(features []float64) (float64, error)
}

// Handle is a loaded model together with the column order it was fit on.
type Handle struct {
	Horizon        int
	FeatureColumns []string
	Model          Model
	RunID          string
}

// ModelSource resolves the model of a horizon.
type ModelSource interface {
	Load(horizon int) (*Handle, error)
}

type HistoryPoint struct {
	Date string  `json:"date"`
	HPI  float64 `json:"hpi"`
}

type Result struct {
	HorizonMonths    int            `json:"horizon_months"`
	CurrentHPI       float64        `json:"current_hpi"`
	PredictedHPI     float64        `json:"predicted_hpi"`
	PercentageChange float64        `json:"percentage_change"`
	RefDate          string         `json:"ref_date"`
	Historical       []HistoryPoint `json:"historical,omitempty"`
}

type Options struct {
	IncludeHistorical bool
	HistoryMonths     int
}

// Forecaster computes a Result from an immutable table snapshot. It never
// modifies the snapshot.
type Forecaster interface {
	Predict(snapshot panel.Table, horizon int, opts Options) (Result, error)
}

type Predictor struct {
	models ModelSource
}

func NewPredictor(models ModelSource) *Predictor {
	return &Predictor{models: models}
}

func (p *Predictor) Predict(snapshot panel.Table, horizon int, opts Options) (Result, error) {
	latest, current, err := current(snapshot, horizon)
	if err != nil {
		return Result{}, err
	}

	h, err := p.models.Load(horizon)
	if err != nil {
		return Result{}, err
	}

	predicted, err := h.Model.Predict(latest.Features(h.FeatureColumns))
	if err != nil {
		return Result{}, fmt.Errorf("predict h=%d: %w", horizon, err)
	}
	return newResult(snapshot, latest, horizon, current, predicted, opts), nil
}

func current(snapshot panel.Table, horizon int) (panel.Row, float64, error) {
	if !models.IsHorizon(horizon) {
		return panel.Row{}, 0, fmt.Errorf("%w: %d (want one of %v)", ErrUnsupportedHorizon, horizon, models.Horizons)
	}
	latest, ok := snapshot.Latest()
	if !ok {
		return panel.Row{}, 0, ErrNoData
	}
	hpi, ok := latest.HPI()
	if !ok {
		return panel.Row{}, 0, fmt.Errorf("%w: %s", ErrNoCurrentIndex, latest.Month)
	}
	return latest, hpi, nil
}

func newResult(snapshot panel.Table, latest panel.Row, horizon int, current, predicted float64, opts Options) Result {
	res := Result{
		HorizonMonths:    horizon,
		CurrentHPI:       current,
		PredictedHPI:     predicted,
		PercentageChange: PercentageChange(current, predicted),
		RefDate:          latest.Month.String(),
	}
	if opts.IncludeHistorical {
		res.Historical = History(snapshot, opts.HistoryMonths)
	}
	return res
}

// PercentageChange is (predicted - current) / current * 100.
func PercentageChange(current, predicted float64) float64 {
	if current == 0 {
		return 0
	}
	return (predicted - current) / current * 100
}

// History returns the HPI of the last n months of the snapshot, oldest
// first. Months without an index value are left out.
func History(snapshot panel.Table, n int) []HistoryPoint {
	tail := snapshot.Tail(n)
	out := make([]HistoryPoint, 0, tail.Len())
	for _, r := range tail.Rows {
		if v, ok := r.HPI(); ok {
			out = append(out, HistoryPoint{Date: r.Month.String(), HPI: v})
		}
	}
	return out
}
