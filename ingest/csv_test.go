package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpi-forecast/config"
	"hpi-forecast/series"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func month(t *testing.T, s string) series.Month {
	t.Helper()
	m, err := series.ParseMonth(s)
	require.NoError(t, err)
	return m
}

const unemploymentCSV = "\ufeff\"REF_DATE\",\"GEO\",\"Labour force characteristics\",\"VALUE\"\n" +
	"\"2020-01\",\"Ontario\",\"Unemployment\",\"500.5\"\n" +
	"\"2020-01\",\"Ontario\",\"Labour force\",\"8000\"\n" +
	"\"2020-01\",\"Quebec\",\"Unemployment\",\"300\"\n" +
	"\"2020-02\",\"Ontario\",\"Unemployment\",\"..\"\n" +
	"\"2020-02\",\"Ontario\",\"Employment\",\"7000\"\n" +
	"\"2020-03\",\"Ontario\",\"Unemployment\",\"510\"\n" +
	"\"2020-03\",\"Ontario\",\"Unemployment\",\"512\"\n" +
	"\"bad-date\",\"Ontario\",\"Unemployment\",\"1\"\n" +
	"\n" +
	"\"Footnotes:\"\n" +
	"\"1\",\"Source: Labour Force Survey\"\n"

func unemploymentSource() config.CSVSource {
	return config.CSVSource{
		Name:        "unemployment",
		File:        "unemployment.csv",
		DateColumn:  "REF_DATE",
		ValueColumn: "VALUE",
		Frequency:   "monthly",
		Filters:     map[string]string{"GEO": "Ontario"},
		Series: []config.SeriesMapping{
			{Column: "unemployment_value", Match: map[string]string{"Labour force characteristics": "Unemployment"}},
			{Column: "labour_force_value", Match: map[string]string{"Labour force characteristics": "Labour force"}},
		},
	}
}

func TestCSVReaderSplitsAndCleans(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unemployment.csv", unemploymentCSV)

	r := NewCSVReader(dir, zerolog.Nop())
	out, stats, err := r.Read(context.Background(), unemploymentSource())
	require.NoError(t, err)
	require.Len(t, out, 2)

	unemp := out[0]
	assert.Equal(t, "unemployment_value", unemp.Name)
	assert.Equal(t, []series.Point{
		{Month: month(t, "2020-01"), Value: 500.5},
		{Month: month(t, "2020-03"), Value: 512},
	}, unemp.Points, "later duplicate wins, non-numeric dropped")

	lf := out[1]
	assert.Equal(t, []series.Point{{Month: month(t, "2020-01"), Value: 8000}}, lf.Points)

	assert.Equal(t, 10, stats.Rows)
	assert.Equal(t, 4, stats.Kept)
	// ".." value, bad date, and two footer rows.
	assert.Equal(t, 4, stats.Dropped)
	// Quebec row and the Employment row.
	assert.Equal(t, 2, stats.Filtered)
}

func TestCSVReaderAnnualExpansion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "income.csv", "REF_DATE,GEO,VALUE\n2019,Ontario,1000\n2020,Ontario,1100\n2020,Canada,999\n")

	r := NewCSVReader(dir, zerolog.Nop())
	out, stats, err := r.Read(context.Background(), config.CSVSource{
		Name:        "income",
		File:        "income.csv",
		DateColumn:  "REF_DATE",
		ValueColumn: "VALUE",
		Frequency:   "annual",
		Filters:     map[string]string{"GEO": "Ontario"},
		Series:      []config.SeriesMapping{{Column: "weekly_income_value"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	pts := out[0].Points
	require.Len(t, pts, 24)
	assert.Equal(t, month(t, "2019-01"), pts[0].Month)
	assert.Equal(t, 1000.0, pts[11].Value)
	assert.Equal(t, month(t, "2020-12"), pts[23].Month)
	assert.Equal(t, 1100.0, pts[23].Value)
	assert.Equal(t, 1, stats.Filtered)
}

func TestCSVReaderFullDates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cpi.csv", "REF_DATE,VALUE\n2021-05-01,140.2\n2021-06-01,141\n")

	r := NewCSVReader(dir, zerolog.Nop())
	out, _, err := r.Read(context.Background(), config.CSVSource{
		Name: "cpi", File: "cpi.csv", DateColumn: "REF_DATE", ValueColumn: "VALUE",
		Series: []config.SeriesMapping{{Column: "monthly_cpi_value"}},
	})
	require.NoError(t, err)
	assert.Equal(t, month(t, "2021-05"), out[0].Points[0].Month)
	assert.Equal(t, 141.0, out[0].Points[1].Value)
}

func TestCSVReaderMissingFile(t *testing.T) {
	r := NewCSVReader(t.TempDir(), zerolog.Nop())
	_, _, err := r.Read(context.Background(), unemploymentSource())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestCSVReaderMissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unemployment.csv", "REF_DATE,VALUE\n2020-01,1\n")

	r := NewCSVReader(dir, zerolog.Nop())
	_, _, err := r.Read(context.Background(), unemploymentSource())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{" 7 ", 7, true},
		{"", 0, false},
		{"..", 0, false},
		{"x", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseValue(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}
