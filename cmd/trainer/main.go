package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/forecast"
	"hpi-forecast/logger"
	"hpi-forecast/metrics"
	"hpi-forecast/models"
	"hpi-forecast/panel"
	"hpi-forecast/services"
	"hpi-forecast/store"
	"hpi-forecast/training"
)

func main() {
	cfg, err := config.LoadConfig(getEnv("ENV_FILE", ".env"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}, "hpi-trainer")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := run(ctx, cfg, log, start)

	pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, "hpi-trainer"); err != nil {
		log.Warn().Err(err).Msg("push metrics")
	}

	if runErr != nil {
		log.Fatal().Err(runErr).Dur("elapsed", time.Since(start)).Msg("training failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("training complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, now time.Time) error {
	table, err := loadTable(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info().Str("source", cfg.Training.Source).Int("rows", table.Len()).Msg("loaded monthly table")

	report, trainErr := training.NewTrainer(training.OptionsFrom(cfg.Training, cfg.Model.Dir), log).Train(ctx, table)
	if errors.Is(trainErr, context.Canceled) {
		return trainErr
	}
	if trainErr != nil {
		// Horizons that did train are still published below.
		log.Error().Err(trainErr).Msg("some horizons failed")
	}
	if len(report.Trained()) == 0 {
		if trainErr != nil {
			return trainErr
		}
		return fmt.Errorf("%w: no horizon had enough rows", training.ErrInsufficientData)
	}

	if err := training.WriteOutputs(cfg.Pipeline.OutputsDir, report); err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}
	log.Info().Str("dir", cfg.Pipeline.OutputsDir).Msg("wrote evaluation outputs")

	forecasts, err := currentForecasts(table, report, cfg.Model.Dir, now)
	if err != nil {
		return err
	}
	if cfg.Training.Source == "db" {
		if err := storeForecasts(ctx, cfg.Database.GetURL(), forecasts, log); err != nil {
			return err
		}
	}
	publishForecasts(ctx, cfg.Redis, report.RunID, now, forecasts, log)
	return trainErr
}

func loadTable(ctx context.Context, cfg *config.Config) (panel.Table, error) {
	if cfg.Training.Source == "file" {
		t, err := store.ReadCSV(cfg.Pipeline.PanelFile)
		if err != nil {
			return panel.Table{}, fmt.Errorf("read panel file: %w", err)
		}
		return t, nil
	}
	db, err := store.OpenGorm(cfg.Database.GetDSN())
	if err != nil {
		return panel.Table{}, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return store.NewPanelReader(db).Snapshot(ctx)
}

// currentForecasts runs the freshly saved models on the latest month, the
// same way the API does.
func currentForecasts(table panel.Table, report training.Report, modelDir string, now time.Time) ([]models.Forecast, error) {
	p := forecast.NewPredictor(forecast.NewRegistry(modelDir))
	var out []models.Forecast
	for _, res := range report.Trained() {
		r, err := p.Predict(table, res.Horizon, forecast.Options{})
		if err != nil {
			return nil, fmt.Errorf("forecast h=%d: %w", res.Horizon, err)
		}
		out = append(out, models.Forecast{
			GeneratedAt:      now.UTC(),
			HorizonMonths:    r.HorizonMonths,
			RefDate:          r.RefDate,
			CurrentHPI:       r.CurrentHPI,
			PredictedHPI:     r.PredictedHPI,
			PercentageChange: r.PercentageChange,
			ModelRunID:       report.RunID,
		})
	}
	return out, nil
}

func storeForecasts(ctx context.Context, url string, forecasts []models.Forecast, log zerolog.Logger) error {
	pool, err := store.OpenPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	w := store.NewForecastWriter(pool)
	if err := w.EnsureSchema(ctx); err != nil {
		return err
	}
	n, err := w.Store(ctx, forecasts)
	if err != nil {
		return err
	}
	log.Info().Int("stored", n).Msg("stored forecasts")
	return nil
}

// publishForecasts announces the run on the updates channel and drops cached
// forecast responses. Redis is optional; failures only warn.
func publishForecasts(ctx context.Context, cfg config.RedisConfig, runID string, now time.Time, forecasts []models.Forecast, log zerolog.Logger) {
	if !cfg.Enabled() {
		return
	}
	cache, err := services.NewCacheService(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, skipping publish")
		return
	}
	defer cache.Close()

	if n, err := cache.DeleteByPrefix(ctx, services.ForecastKeyPrefix); err != nil {
		log.Warn().Err(err).Msg("invalidate forecast cache")
	} else {
		log.Debug().Int("keys", n).Msg("invalidated forecast cache")
	}

	if err := cache.Publish(ctx, services.UpdatesChannel, updateMessage(runID, now, forecasts)); err != nil {
		log.Warn().Err(err).Msg("publish forecast update")
		return
	}
	log.Info().Str("channel", services.UpdatesChannel).Int("forecasts", len(forecasts)).Msg("published forecast update")
}

func updateMessage(runID string, now time.Time, forecasts []models.Forecast) services.ForecastUpdate {
	horizons := make([]int, len(forecasts))
	for i, f := range forecasts {
		horizons[i] = f.HorizonMonths
	}
	return services.ForecastUpdate{
		RunID:       runID,
		GeneratedAt: now.UTC(),
		Horizons:    horizons,
		Forecasts:   forecasts,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
