package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hpi-forecast/models"
	"hpi-forecast/panel"
	"hpi-forecast/series"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.MonthlyRecord{}, &models.Forecast{}))
	return db
}

func record(month string, hpi float64) models.MonthlyRecord {
	r := models.MonthlyRecord{RefDate: month}
	r.Set(models.ColHPI, hpi)
	return r
}

func seedPanel(t *testing.T, db *gorm.DB) {
	t.Helper()
	recs := []models.MonthlyRecord{
		record("2024-03", 103),
		record("2024-01", 101),
		record("2024-02", 102),
		record("2024-04", 104),
	}
	require.NoError(t, db.Create(&recs).Error)
}

func TestPanelReaderSnapshot(t *testing.T) {
	db := testDB(t)
	seedPanel(t, db)
	r := NewPanelReader(db)

	tbl, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, tbl.Len())
	assert.Equal(t, "2024-01", tbl.Rows[0].Month.String())
	latest, ok := tbl.Latest()
	require.True(t, ok)
	hpi, ok := latest.HPI()
	require.True(t, ok)
	assert.Equal(t, 104.0, hpi)
	_, ok = latest.Get(models.ColCPI)
	assert.False(t, ok, "null columns stay null")
}

func TestPanelReaderRecent(t *testing.T) {
	db := testDB(t)
	seedPanel(t, db)

	tbl, err := NewPanelReader(db).Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "2024-03", tbl.Rows[0].Month.String())
	assert.Equal(t, "2024-04", tbl.Rows[1].Month.String())
}

func TestPanelReaderPage(t *testing.T) {
	db := testDB(t)
	seedPanel(t, db)
	r := NewPanelReader(db)

	first, err := r.Page(context.Background(), 3, "")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "2024-04", first[0].RefDate)
	assert.Equal(t, "2024-02", first[2].RefDate)

	rest, err := r.Page(context.Background(), 3, "2024-02")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "2024-01", rest[0].RefDate)
}

func TestPanelReaderForecasts(t *testing.T) {
	db := testDB(t)
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	rows := []models.Forecast{
		{GeneratedAt: older, HorizonMonths: 1, RefDate: "2024-12", CurrentHPI: 160, PredictedHPI: 161, ModelRunID: "a"},
		{GeneratedAt: older, HorizonMonths: 12, RefDate: "2024-12", CurrentHPI: 160, PredictedHPI: 170, ModelRunID: "a"},
		{GeneratedAt: newer, HorizonMonths: 1, RefDate: "2025-01", CurrentHPI: 162, PredictedHPI: 163, ModelRunID: "b"},
	}
	require.NoError(t, db.Create(&rows).Error)
	r := NewPanelReader(db)

	all, err := r.Forecasts(context.Background(), 0, 10, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].ModelRunID)

	h1, err := r.Forecasts(context.Background(), 1, 10, nil)
	require.NoError(t, err)
	require.Len(t, h1, 2)

	before, err := r.Forecasts(context.Background(), 0, 10, &models.ForecastCursor{GeneratedAt: newer, HorizonMonths: math.MaxInt32})
	require.NoError(t, err)
	require.Len(t, before, 2)
	for _, f := range before {
		assert.Equal(t, "a", f.ModelRunID)
	}

	within, err := r.Forecasts(context.Background(), 0, 10, &models.ForecastCursor{GeneratedAt: older, HorizonMonths: 1})
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, 12, within[0].HorizonMonths)
}

func TestPanelReaderForecastsPagesAcrossRuns(t *testing.T) {
	db := testDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []models.Forecast
	for run := 0; run < 8; run++ {
		for _, h := range models.Horizons {
			rows = append(rows, models.Forecast{
				GeneratedAt:   base.Add(time.Duration(run) * time.Hour),
				HorizonMonths: h,
				RefDate:       "2024-12",
				ModelRunID:    fmt.Sprintf("run-%d", run),
			})
		}
	}
	require.NoError(t, db.Create(&rows).Error)
	r := NewPanelReader(db)

	seen := map[string]bool{}
	var after *models.ForecastCursor
	for pages := 0; pages < 10; pages++ {
		page, err := r.Forecasts(context.Background(), 0, 5, after)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, f := range page {
			key := fmt.Sprintf("%s/%d", f.ModelRunID, f.HorizonMonths)
			assert.False(t, seen[key], "duplicate %s", key)
			seen[key] = true
		}
		last := page[len(page)-1]
		after = &models.ForecastCursor{GeneratedAt: last.GeneratedAt, HorizonMonths: last.HorizonMonths}
	}
	assert.Len(t, seen, len(rows))
}

func TestFlatFileRoundTrip(t *testing.T) {
	start := series.NewMonth(2023, time.November)
	hpi := map[series.Month]float64{}
	cpi := map[series.Month]float64{}
	for i := 0; i < 4; i++ {
		hpi[start.AddMonths(i)] = 150.5 + float64(i)
		if i != 2 {
			cpi[start.AddMonths(i)] = 155.25
		}
	}
	tbl, err := panel.Merge([]series.Series{
		series.FromMap(models.ColHPI, hpi),
		series.FromMap(models.ColCPI, cpi),
	}, panel.Options{Required: []string{models.ColHPI}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data", "housing_econ_wide.csv")
	require.NoError(t, WriteCSV(path, tbl))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.SplitN(string(raw), "\n", 2)[0]
	assert.Equal(t, "ref_date,"+strings.Join(models.Columns, ","), header)

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Records(), got.Records())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadCSVRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"missing ref_date", "month,housing_price_index_value\n2024-01,1\n"},
		{"bad value", "ref_date,housing_price_index_value\n2024-01,abc\n"},
		{"bad month", "ref_date,housing_price_index_value\n2024-13,1\n"},
		{"duplicate month", "ref_date,housing_price_index_value\n2024-01,1\n2024-01,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := ReadCSV(path)
			assert.Error(t, err)
		})
	}
}

func TestUpsertPanelSQL(t *testing.T) {
	assert.True(t, strings.HasPrefix(upsertPanelSQL, "INSERT INTO housing_econ_wide (ref_date, "))
	assert.Contains(t, upsertPanelSQL, "ON CONFLICT (ref_date) DO UPDATE SET")
	assert.Contains(t, upsertPanelSQL, "$13")
	assert.NotContains(t, upsertPanelSQL, "$14")
	for _, c := range models.Columns {
		assert.Contains(t, upsertPanelSQL, c+" = EXCLUDED."+c)
	}
	assert.NotContains(t, upsertPanelSQL, "ref_date = EXCLUDED")
}

func TestPanelArgsKeepsNulls(t *testing.T) {
	args := panelArgs(record("2024-01", 101))
	require.Len(t, args, len(models.Columns)+1)
	assert.Equal(t, "2024-01", args[0])
	for i, c := range models.Columns {
		if c == models.ColHPI {
			assert.Equal(t, 101.0, args[i+1])
		} else {
			assert.Nil(t, args[i+1])
		}
	}
}

func TestPublishBatchDeletesMonthsOutsideTable(t *testing.T) {
	tbl, err := panel.FromRecords([]models.MonthlyRecord{
		record("2024-02", 102),
		record("2024-01", 101),
		record("2024-03", 103),
	})
	require.NoError(t, err)

	batch, err := publishBatch(tbl)
	require.NoError(t, err)
	require.Equal(t, 4, batch.Len())

	del := batch.QueuedQueries[0]
	assert.Equal(t, deleteStalePanelSQL, del.SQL)
	assert.Equal(t, []any{"2024-01", "2024-03"}, del.Arguments)
	for i, month := range []string{"2024-01", "2024-02", "2024-03"} {
		q := batch.QueuedQueries[i+1]
		assert.Equal(t, upsertPanelSQL, q.SQL)
		assert.Equal(t, month, q.Arguments[0])
	}
}

func TestPublishBatchRejectsEmptyTable(t *testing.T) {
	_, err := publishBatch(panel.Table{})
	assert.Error(t, err)
}
