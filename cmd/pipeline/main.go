package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/ingest"
	"hpi-forecast/logger"
	"hpi-forecast/metrics"
	"hpi-forecast/panel"
	"hpi-forecast/services"
	"hpi-forecast/store"
)

// Pipeline reads every source, merges them into the monthly table and
// publishes the table to the flat file and the database.
func main() {
	cfg, err := config.LoadConfig(getEnv("ENV_FILE", ".env"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}, "hpi-pipeline")
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
	if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, "hpi-pipeline"); err != nil {
		log.Warn().Err(err).Msg("push metrics")
	}

	if runErr != nil {
		log.Fatal().Err(runErr).Dur("elapsed", time.Since(start)).Msg("pipeline failed, nothing published")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("pipeline complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, now time.Time) error {
	src, err := config.LoadSources(cfg.Pipeline.SourcesFile)
	if err != nil {
		return err
	}

	in, _, err := ingest.NewCollector(src, cfg.Pipeline.InputDir, log).Collect(ctx, src, now)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	table, err := panel.Merge(in, panel.OptionsFrom(src))
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	metrics.MergedRows.Set(float64(table.Len()))
	latest, _ := table.Latest()
	log.Info().
		Int("rows", table.Len()).
		Str("from", table.Rows[0].Month.String()).
		Str("to", latest.Month.String()).
		Msg("merged monthly table")

	// The database goes first: a failed transaction leaves both copies on the
	// previous table.
	if cfg.Pipeline.WriteDB {
		if err := publish(ctx, cfg.Database.GetURL(), table, log); err != nil {
			metrics.PanelWrites.WithLabelValues("db", "error").Inc()
			return err
		}
		metrics.PanelWrites.WithLabelValues("db", "ok").Inc()
	}

	if err := store.WriteCSV(cfg.Pipeline.PanelFile, table); err != nil {
		metrics.PanelWrites.WithLabelValues("file", "error").Inc()
		return fmt.Errorf("write %s: %w", cfg.Pipeline.PanelFile, err)
	}
	metrics.PanelWrites.WithLabelValues("file", "ok").Inc()
	log.Info().Str("path", cfg.Pipeline.PanelFile).Msg("wrote flat file")

	invalidate(ctx, cfg.Redis, log)
	return nil
}

func publish(ctx context.Context, url string, table panel.Table, log zerolog.Logger) error {
	pool, err := store.OpenPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	w := store.NewPanelWriter(pool)
	if err := w.EnsureSchema(ctx); err != nil {
		return err
	}
	n, err := w.Publish(ctx, table)
	if err != nil {
		return fmt.Errorf("publish panel: %w", err)
	}
	log.Info().Int("rows", n).Msg("upserted housing_econ_wide")
	return nil
}

// invalidate drops cached API responses built from the previous table.
func invalidate(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) {
	if !cfg.Enabled() {
		return
	}
	cache, err := services.NewCacheService(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, cached responses expire by ttl")
		return
	}
	defer cache.Close()

	var result *multierror.Error
	total := 0
	for _, prefix := range []string{services.ForecastKeyPrefix, "history:"} {
		n, err := cache.DeleteByPrefix(ctx, prefix)
		total += n
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warn().Err(err).Msg("invalidate cache")
		return
	}
	log.Debug().Int("keys", total).Msg("invalidated cached responses")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
