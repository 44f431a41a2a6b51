package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hpi-forecast/forecast"
	"hpi-forecast/metrics"
	"hpi-forecast/models"
	"hpi-forecast/panel"
	"hpi-forecast/services"
)

// SnapshotSource returns the last n months of the merged table.
type SnapshotSource interface {
	Recent(ctx context.Context, n int) (panel.Table, error)
}

type ForecastHandler struct {
	snapshots     SnapshotSource
	predictor     forecast.Forecaster
	cache         *services.CacheService
	historyMonths int
	ttl           time.Duration
	log           zerolog.Logger
}

func NewForecastHandler(snapshots SnapshotSource, predictor forecast.Forecaster, cache *services.CacheService,
	historyMonths int, ttl time.Duration, log zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{
		snapshots:     snapshots,
		predictor:     predictor,
		cache:         cache,
		historyMonths: historyMonths,
		ttl:           ttl,
		log:           log,
	}
}

// GetForecast serves GET /api/v1/forecast?horizon=H&include_historical=B.
func (h *ForecastHandler) GetForecast(c *gin.Context) {
	start := time.Now()

	horizon, err := strconv.Atoi(c.DefaultQuery("horizon", "1"))
	if err != nil || !models.IsHorizon(horizon) {
		metrics.Predictions.WithLabelValues("invalid", "unsupported_horizon").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              forecast.ErrUnsupportedHorizon.Error(),
			"supported_horizons": models.Horizons,
		})
		return
	}
	label := metrics.Horizon(horizon)

	includeHistorical, err := strconv.ParseBool(c.DefaultQuery("include_historical", "false"))
	if err != nil {
		metrics.Predictions.WithLabelValues(label, "bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid include_historical parameter, must be true or false"})
		return
	}

	cacheKey := fmt.Sprintf("%s%d:%t", services.ForecastKeyPrefix, horizon, includeHistorical)
	var cached forecast.Result
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.HorizonMonths == horizon {
		metrics.Predictions.WithLabelValues(label, "cache_hit").Inc()
		c.JSON(http.StatusOK, cached)
		return
	}

	snap, err := h.snapshots.Recent(c.Request.Context(), max(h.historyMonths, 1))
	if err != nil {
		h.log.Error().Err(err).Int("horizon", horizon).Msg("load snapshot")
		metrics.Predictions.WithLabelValues(label, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	res, err := h.predictor.Predict(snap, horizon, forecast.Options{
		IncludeHistorical: includeHistorical,
		HistoryMonths:     h.historyMonths,
	})
	metrics.PredictLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		status, outcome := forecastStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Int("horizon", horizon).Msg("predict")
		} else {
			h.log.Warn().Err(err).Int("horizon", horizon).Msg("forecast unavailable")
		}
		metrics.Predictions.WithLabelValues(label, outcome).Inc()
		c.JSON(status, gin.H{"error": errorMessage(err)})
		return
	}

	metrics.Predictions.WithLabelValues(label, "ok").Inc()
	go h.cache.Set(context.Background(), cacheKey, res, h.ttl)

	c.JSON(http.StatusOK, res)
}

func forecastStatus(err error) (int, string) {
	switch {
	case errors.Is(err, forecast.ErrUnsupportedHorizon):
		return http.StatusBadRequest, "unsupported_horizon"
	case errors.Is(err, forecast.ErrModelNotFound):
		return http.StatusNotFound, "model_unavailable"
	case errors.Is(err, forecast.ErrNoData), errors.Is(err, forecast.ErrNoCurrentIndex):
		return http.StatusServiceUnavailable, "no_data"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func errorMessage(err error) string {
	for _, known := range []error{
		forecast.ErrUnsupportedHorizon,
		forecast.ErrModelNotFound,
		forecast.ErrNoData,
		forecast.ErrNoCurrentIndex,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "prediction failed"
}
