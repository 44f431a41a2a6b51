package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hpi-forecast/models"
	"hpi-forecast/panel"
)

var (
	panelSchema = []string{
		`CREATE TABLE IF NOT EXISTS housing_econ_wide (
			ref_date VARCHAR(7) PRIMARY KEY,
			` + columnDefs() + `
		)`,
	}
	forecastSchema = []string{
		`CREATE TABLE IF NOT EXISTS hpi_forecasts (
			generated_at TIMESTAMPTZ NOT NULL,
			horizon_months INTEGER NOT NULL,
			ref_date VARCHAR(7) NOT NULL,
			current_hpi DOUBLE PRECISION NOT NULL,
			predicted_hpi DOUBLE PRECISION NOT NULL,
			percentage_change DOUBLE PRECISION NOT NULL,
			model_run_id TEXT NOT NULL,
			PRIMARY KEY (generated_at, horizon_months)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hpi_forecasts_horizon ON hpi_forecasts (horizon_months, generated_at DESC)`,
	}

	upsertPanelSQL = buildUpsertPanel()
)

const deleteStalePanelSQL = `DELETE FROM housing_econ_wide WHERE ref_date < $1 OR ref_date > $2`

const insertForecastSQL = `
	INSERT INTO hpi_forecasts (generated_at, horizon_months, ref_date, current_hpi, predicted_hpi, percentage_change, model_run_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (generated_at, horizon_months) DO UPDATE SET
		ref_date = EXCLUDED.ref_date,
		current_hpi = EXCLUDED.current_hpi,
		predicted_hpi = EXCLUDED.predicted_hpi,
		percentage_change = EXCLUDED.percentage_change,
		model_run_id = EXCLUDED.model_run_id`

func columnDefs() string {
	defs := make([]string, len(models.Columns))
	for i, c := range models.Columns {
		defs[i] = c + " DOUBLE PRECISION"
	}
	return strings.Join(defs, ",\n\t\t\t")
}

func buildUpsertPanel() string {
	cols := append([]string{"ref_date"}, models.Columns...)
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, len(models.Columns))
	for i, c := range models.Columns {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	return fmt.Sprintf(
		"INSERT INTO housing_econ_wide (%s) VALUES (%s) ON CONFLICT (ref_date) DO UPDATE SET %s",
		strings.Join(cols, ", "), strings.Join(params, ", "), strings.Join(sets, ", "),
	)
}

// panelArgs returns the upsert arguments of rec; nulls stay nil.
func panelArgs(rec models.MonthlyRecord) []any {
	args := make([]any, 0, len(models.Columns)+1)
	args = append(args, rec.RefDate)
	for _, c := range models.Columns {
		if v, ok := rec.Get(c); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

func OpenPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("db pool init: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// PanelWriter publishes the merged table.
type PanelWriter struct {
	pool *pgxpool.Pool
}

func NewPanelWriter(pool *pgxpool.Pool) *PanelWriter {
	return &PanelWriter{pool: pool}
}

func (w *PanelWriter) EnsureSchema(ctx context.Context) error {
	return execAll(ctx, w.pool, panelSchema)
}

// Publish replaces the stored table with t in one transaction, so readers see
// either the previous table or the complete new one. Months outside t's span
// are deleted.
func (w *PanelWriter) Publish(ctx context.Context, t panel.Table) (int, error) {
	batch, err := publishBatch(t)
	if err != nil {
		return 0, err
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("publish statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return t.Len(), nil
}

// publishBatch queues the range delete followed by one upsert per row.
func publishBatch(t panel.Table) (*pgx.Batch, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("refusing to publish an empty table")
	}

	recs := t.Records()
	batch := &pgx.Batch{}
	batch.Queue(deleteStalePanelSQL, recs[0].RefDate, recs[len(recs)-1].RefDate)
	for _, rec := range recs {
		batch.Queue(upsertPanelSQL, panelArgs(rec)...)
	}
	return batch, nil
}

// ForecastWriter stores forecasts made after a training run.
type ForecastWriter struct {
	pool *pgxpool.Pool
}

func NewForecastWriter(pool *pgxpool.Pool) *ForecastWriter {
	return &ForecastWriter{pool: pool}
}

func (w *ForecastWriter) EnsureSchema(ctx context.Context) error {
	return execAll(ctx, w.pool, forecastSchema)
}

func (w *ForecastWriter) Store(ctx context.Context, forecasts []models.Forecast) (int, error) {
	stored := 0
	for _, f := range forecasts {
		_, err := w.pool.Exec(ctx, insertForecastSQL,
			f.GeneratedAt, f.HorizonMonths, f.RefDate, f.CurrentHPI, f.PredictedHPI, f.PercentageChange, f.ModelRunID)
		if err != nil {
			return stored, fmt.Errorf("store forecast h=%d: %w", f.HorizonMonths, err)
		}
		stored++
	}
	return stored, nil
}

func execAll(ctx context.Context, pool *pgxpool.Pool, stmts []string) error {
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
