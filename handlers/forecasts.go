package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hpi-forecast/models"
	"hpi-forecast/services"
)

type StoredForecastSource interface {
	Forecasts(ctx context.Context, horizon, limit int, after *models.ForecastCursor) ([]models.Forecast, error)
}

// StoredForecastHandler lists the forecasts recorded after each training run.
type StoredForecastHandler struct {
	rows  StoredForecastSource
	cache *services.CacheService
	log   zerolog.Logger
}

func NewStoredForecastHandler(rows StoredForecastSource, cache *services.CacheService, log zerolog.Logger) *StoredForecastHandler {
	return &StoredForecastHandler{rows: rows, cache: cache, log: log}
}

func (h *StoredForecastHandler) GetForecasts(c *gin.Context) {
	p := ParsePagination(c)

	horizon := 0
	if s := c.Query("horizon"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || !models.IsHorizon(v) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":              "unsupported horizon",
				"supported_horizons": models.Horizons,
			})
			return
		}
		horizon = v
	}

	after := parseForecastCursor(p.Before)
	cursorKey := ""
	if after != nil {
		cursorKey = encodeForecastCursor(after.GeneratedAt, after.HorizonMonths)
	}
	cacheKey := fmt.Sprintf("%sstored:%d:%d:%s", services.ForecastKeyPrefix, horizon, p.Limit, cursorKey)

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	rows, err := h.rows.Forecasts(c.Request.Context(), horizon, p.Limit+1, after)
	if err != nil {
		h.log.Error().Err(err).Msg("list stored forecasts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		nextCursor = encodeForecastCursor(last.GeneratedAt, last.HorizonMonths)
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, 30*time.Second)

	c.JSON(http.StatusOK, resp)
}

// A cursor is "<generated_at RFC3339Nano>|<horizon_months>". One run stores
// several horizons under the same generated_at, so the time alone cannot mark
// a position inside a run.
func encodeForecastCursor(generatedAt time.Time, horizon int) string {
	return generatedAt.UTC().Format(time.RFC3339Nano) + "|" + strconv.Itoa(horizon)
}

// parseForecastCursor returns nil for an empty or malformed cursor. A bare
// timestamp means every run strictly before it.
func parseForecastCursor(s string) *models.ForecastCursor {
	if s == "" {
		return nil
	}
	ts, h, found := strings.Cut(s, "|")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil
	}
	if !found {
		return &models.ForecastCursor{GeneratedAt: t, HorizonMonths: math.MaxInt32}
	}
	horizon, err := strconv.Atoi(h)
	if err != nil {
		return nil
	}
	return &models.ForecastCursor{GeneratedAt: t, HorizonMonths: horizon}
}
