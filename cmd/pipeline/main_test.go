package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/models"
	"hpi-forecast/store"
)

func TestGetEnv(t *testing.T) {
	t.Run("returns fallback when unset", func(t *testing.T) {
		os.Unsetenv("TEST_PIPELINE_VAR")
		got := getEnv("TEST_PIPELINE_VAR", "default_val")
		if got != "default_val" {
			t.Errorf("getEnv() = %q, want %q", got, "default_val")
		}
	})

	t.Run("returns env value when set", func(t *testing.T) {
		t.Setenv("TEST_PIPELINE_VAR", "custom")
		got := getEnv("TEST_PIPELINE_VAR", "default_val")
		if got != "custom" {
			t.Errorf("getEnv() = %q, want %q", got, "custom")
		}
	})
}

const testSources = `
required: [housing_price_index_value, monthly_cpi_value]
csv:
  - name: hpi
    file: hpi.csv
    filters: {GEO: Toronto}
    series:
      - column: housing_price_index_value
  - name: cpi
    file: cpi.csv
    series:
      - column: monthly_cpi_value
`

const hpiCSV = `REF_DATE,GEO,VALUE
2024-01,Toronto,120.5
2024-01,Ottawa,99
2024-02,Toronto,121
2024-03,Toronto,x
2024-04,Toronto,122.5
`

const cpiCSV = `REF_DATE,VALUE
2023-12,150
2024-01,151
2024-02,152
2024-03,153
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sources.yaml"), testSources)
	writeFile(t, filepath.Join(in, "hpi.csv"), hpiCSV)
	writeFile(t, filepath.Join(in, "cpi.csv"), cpiCSV)

	return &config.Config{
		Pipeline: config.PipelineConfig{
			SourcesFile: filepath.Join(dir, "sources.yaml"),
			InputDir:    in,
			PanelFile:   filepath.Join(dir, "data", "housing_econ_wide.csv"),
			OutputsDir:  filepath.Join(dir, "outputs"),
		},
	}
}

func TestRunWritesFlatFile(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if err := run(context.Background(), cfg, zerolog.Nop(), now); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	table, err := store.ReadCSV(cfg.Pipeline.PanelFile)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	// HPI and CPI overlap from 2024-01 to 2024-03.
	if table.Len() != 3 {
		t.Fatalf("rows = %d, want 3", table.Len())
	}
	if got := table.Rows[0].Month.String(); got != "2024-01" {
		t.Errorf("first month = %s, want 2024-01", got)
	}
	if v, ok := table.Rows[0].HPI(); !ok || v != 120.5 {
		t.Errorf("2024-01 HPI = %v (%v), want 120.5", v, ok)
	}
	if _, ok := table.Rows[2].HPI(); ok {
		t.Error("2024-03 HPI should be null after a malformed value")
	}
	if v, ok := table.Rows[2].Get(models.ColCPI); !ok || v != 153 {
		t.Errorf("2024-03 CPI = %v (%v), want 153", v, ok)
	}
}

func TestRunMissingSourceWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	if err := os.Remove(filepath.Join(cfg.Pipeline.InputDir, "cpi.csv")); err != nil {
		t.Fatal(err)
	}

	if err := run(context.Background(), cfg, zerolog.Nop(), time.Now()); err == nil {
		t.Fatal("run() should fail when a source file is missing")
	}
	if _, err := os.Stat(cfg.Pipeline.PanelFile); !os.IsNotExist(err) {
		t.Errorf("panel file should not exist, stat err = %v", err)
	}
}

func TestRunDatabaseFailureLeavesFlatFileAlone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.WriteDB = true
	cfg.Database = config.DatabaseConfig{
		Host: "127.0.0.1", Port: 1, User: "hpi", Password: "hpi", Name: "hpi", SSLMode: "disable",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := run(ctx, cfg, zerolog.Nop(), time.Now()); err == nil {
		t.Fatal("run() should fail when the database is unreachable")
	}
	if _, err := os.Stat(cfg.Pipeline.PanelFile); !os.IsNotExist(err) {
		t.Errorf("panel file should not exist, stat err = %v", err)
	}
}
