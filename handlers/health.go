package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports UP while the store answers; mode is the predictor mode.
func Health(db Pinger, mode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": "database unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "HPI forecast API is running",
			"mode":    mode,
		})
	}
}
