package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/forecast"
	"hpi-forecast/handlers"
	"hpi-forecast/logger"
	"hpi-forecast/middleware"
	"hpi-forecast/panel"
	"hpi-forecast/services"
	"hpi-forecast/store"
)

// emptySnapshots stands in for the store when demo mode runs without one.
type emptySnapshots struct{}

func (emptySnapshots) Recent(context.Context, int) (panel.Table, error) { return panel.Table{}, nil }

func main() {
	cfg, err := config.LoadConfig(getEnv("ENV_FILE", ".env"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}, "hpi-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	demo := cfg.Model.Mode == "demo"

	cache, err := services.NewCacheService(cfg.Redis, log)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without cache")
	}
	defer cache.Close()

	var (
		snapshots handlers.SnapshotSource = emptySnapshots{}
		reader    *store.PanelReader
		pinger    handlers.Pinger
	)
	db, err := store.OpenGorm(cfg.Database.GetDSN())
	switch {
	case err == nil:
		reader = store.NewPanelReader(db)
		snapshots = reader
		if sqlDB, err := db.DB(); err == nil {
			pinger = sqlDB
		}
	case demo:
		log.Warn().Err(err).Msg("database unavailable, demo mode serves fixed forecasts")
	default:
		log.Fatal().Err(err).Msg("connect database")
	}

	registry := forecast.NewRegistry(cfg.Model.Dir)
	var predictor forecast.Forecaster = forecast.NewPredictor(registry)
	if demo {
		log.Warn().Msg("PREDICTOR_MODE=demo: serving fixed mock forecasts, no model inference")
		predictor = forecast.DemoPredictor{}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), middleware.SetupCORS(cfg.CORS))

	router.GET("/health", handlers.Health(pinger, cfg.Model.Mode))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ttl := time.Duration(cfg.Model.CacheTTLSeconds) * time.Second
	v1 := router.Group("/api/v1")
	v1.GET("/forecast", handlers.NewForecastHandler(snapshots, predictor, cache, cfg.Model.HistoryMonths, ttl, log).GetForecast)
	v1.GET("/models", handlers.NewModelHandler(registry, log).GetModels)
	if reader != nil {
		v1.GET("/history", handlers.NewHistoryHandler(reader, cache, log).GetHistory)
		v1.GET("/forecasts", handlers.NewStoredForecastHandler(reader, cache, log).GetForecasts)
	}
	router.GET("/ws/updates", handlers.UpdatesWebSocket(cache, log))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("mode", cfg.Model.Mode).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
