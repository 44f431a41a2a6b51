package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	SourceRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hpi_pipeline_source_rows_total",
		Help: "Raw rows read per source, by outcome (kept, dropped, filtered).",
	}, []string{"source", "outcome"})
	MergedRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hpi_pipeline_merged_rows",
		Help: "Rows in the most recently merged monthly table.",
	})
	PanelWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hpi_pipeline_panel_writes_total",
		Help: "Publications of the merged table, by target and result.",
	}, []string{"target", "result"})

	TrainDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hpi_trainer_fit_duration_seconds",
		Help:    "Time spent fitting one horizon's model.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"horizon"})
	ModelMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hpi_trainer_eval_metric",
		Help: "Hold-out evaluation metric per horizon (mae, rmse, r2).",
	}, []string{"horizon", "metric"})
	HorizonsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hpi_trainer_horizons_skipped_total",
		Help: "Horizons skipped for insufficient data.",
	})

	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hpi_api_predictions_total",
		Help: "Forecast requests by horizon and outcome.",
	}, []string{"horizon", "outcome"})
	PredictLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hpi_api_predict_latency_seconds",
		Help:    "Latency of forecast computation.",
		Buckets: prometheus.DefBuckets,
	})
)

func Horizon(h int) string { return strconv.Itoa(h) }

// Push sends the default registry to a Pushgateway. Batch jobs call it once
// before exiting; an empty url is a no-op.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx)
}
