package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are hold-out scores of one horizon's model.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Evaluate scores predicted against actual. With a constant actual series R²
// is 1 for a perfect fit and 0 otherwise.
func Evaluate(actual, predicted []float64) (Metrics, error) {
	if len(actual) == 0 {
		return Metrics{}, fmt.Errorf("evaluate: no rows")
	}
	if len(actual) != len(predicted) {
		return Metrics{}, fmt.Errorf("evaluate: %d actual vs %d predicted", len(actual), len(predicted))
	}
	n := float64(len(actual))

	m := Metrics{
		MAE:  floats.Distance(actual, predicted, 1) / n,
		RMSE: floats.Distance(actual, predicted, 2) / math.Sqrt(n),
	}

	if len(actual) < 2 || stat.Variance(actual, nil) == 0 {
		if m.RMSE == 0 {
			m.R2 = 1
		}
		return m, nil
	}
	m.R2 = stat.RSquaredFrom(predicted, actual, nil)
	return m, nil
}

// TargetStats summarises a horizon's labels before fitting.
type TargetStats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	Std   float64
}

func describe(y []float64) TargetStats {
	if len(y) == 0 {
		return TargetStats{}
	}
	mean, std := stat.MeanStdDev(y, nil)
	if len(y) < 2 {
		std = 0
	}
	return TargetStats{
		Count: len(y),
		Min:   floats.Min(y),
		Max:   floats.Max(y),
		Mean:  mean,
		Std:   std,
	}
}
