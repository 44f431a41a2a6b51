package forecast

import (
	"errors"

	"hpi-forecast/panel"
)

// demoGrowth is the fixed percentage change returned per horizon in demo mode.
var demoGrowth = map[int]float64{
	1:  0.3,
	2:  0.6,
	3:  0.9,
	6:  1.8,
	12: 3.5,
	24: 6.8,
	36: 10.0,
}

const (
	demoCurrentHPI = 165.0
	demoRefDate    = "2025-01"
)

// DemoPredictor returns fixed mock forecasts without loading any model. It
// applies a fixed growth rate to the latest index value, or to a fixed index
// when there is no data at all.
type DemoPredictor struct{}

func (DemoPredictor) Predict(snapshot panel.Table, horizon int, opts Options) (Result, error) {
	latest, cur, err := current(snapshot, horizon)
	switch {
	case errors.Is(err, ErrNoData):
		return Result{
			HorizonMonths:    horizon,
			CurrentHPI:       demoCurrentHPI,
			PredictedHPI:     demoCurrentHPI * (1 + demoGrowth[horizon]/100),
			PercentageChange: demoGrowth[horizon],
			RefDate:          demoRefDate,
		}, nil
	case err != nil:
		return Result{}, err
	}
	predicted := cur * (1 + demoGrowth[horizon]/100)
	return newResult(snapshot, latest, horizon, cur, predicted, opts), nil
}
