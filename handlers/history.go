package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hpi-forecast/models"
	"hpi-forecast/series"
	"hpi-forecast/services"
)

type HistorySource interface {
	Page(ctx context.Context, limit int, before string) ([]models.MonthlyRecord, error)
}

type HistoryHandler struct {
	rows  HistorySource
	cache *services.CacheService
	log   zerolog.Logger
}

func NewHistoryHandler(rows HistorySource, cache *services.CacheService, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{rows: rows, cache: cache, log: log}
}

// GetHistory pages through the merged table newest first. The cursor is a
// ref_date; rows strictly before it are returned.
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	p := ParsePagination(c)

	before := ""
	if p.Before != "" {
		if m, err := series.ParseMonth(p.Before); err == nil {
			before = m.String()
		}
	}
	cacheKey := fmt.Sprintf("history:%d:%s", p.Limit, before)

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	rows, err := h.rows.Page(c.Request.Context(), p.Limit+1, before)
	if err != nil {
		h.log.Error().Err(err).Msg("page history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].RefDate
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, 60*time.Second)

	c.JSON(http.StatusOK, resp)
}
