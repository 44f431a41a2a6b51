package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/series"
)

// ErrSourceUnavailable marks a source that could not be opened or fetched.
// It is fatal for a pipeline run.
var ErrSourceUnavailable = errors.New("source unavailable")

const utf8BOM = "\ufeff"

// ReadStats counts what happened to the raw rows of one source.
type ReadStats struct {
	Source   string
	Rows     int
	Kept     int
	Dropped  int
	Filtered int
}

func (s *ReadStats) add(o ReadStats) {
	s.Rows += o.Rows
	s.Kept += o.Kept
	s.Dropped += o.Dropped
	s.Filtered += o.Filtered
}

type CSVReader struct {
	dir string
	log zerolog.Logger
}

func NewCSVReader(dir string, log zerolog.Logger) *CSVReader {
	return &CSVReader{dir: dir, log: log}
}

type boundMapping struct {
	column string
	match  []boundFilter
	values map[series.Month]float64
}

type boundFilter struct {
	idx   int
	value string
}

// Read streams one source file and returns one series per configured
// mapping. Rows that fail date or number coercion are dropped and counted.
func (r *CSVReader) Read(ctx context.Context, src config.CSVSource) ([]series.Series, ReadStats, error) {
	stats := ReadStats{Source: src.Name}
	path := src.File
	if !filepath.IsAbs(path) && r.dir != "" {
		path = filepath.Join(r.dir, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src.Name, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && string(bom) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header of %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	width := len(header)

	lookup := func(col string) (int, error) {
		i, ok := index[col]
		if !ok {
			return 0, fmt.Errorf("%s: missing column %q", src.Name, col)
		}
		return i, nil
	}
	dateIdx, err := lookup(src.DateColumn)
	if err != nil {
		return nil, stats, err
	}
	valueIdx, err := lookup(src.ValueColumn)
	if err != nil {
		return nil, stats, err
	}
	filters, err := bindFilters(src.Filters, lookup)
	if err != nil {
		return nil, stats, err
	}
	mappings := make([]*boundMapping, 0, len(src.Series))
	for _, m := range src.Series {
		match, err := bindFilters(m.Match, lookup)
		if err != nil {
			return nil, stats, err
		}
		mappings = append(mappings, &boundMapping{
			column: m.Column,
			match:  match,
			values: make(map[series.Month]float64),
		})
	}

	annual := src.Frequency == "annual"

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Rows++
				stats.Dropped++
				continue
			}
			return nil, stats, fmt.Errorf("read %s: %w", path, err)
		}
		stats.Rows++
		if stats.Rows%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		// Footnotes and trailing notes carry fewer fields than the header.
		if len(rec) < width {
			stats.Dropped++
			continue
		}
		if !matches(rec, filters) {
			stats.Filtered++
			continue
		}

		var target *boundMapping
		for _, m := range mappings {
			if matches(rec, m.match) {
				target = m
				break
			}
		}
		if target == nil {
			stats.Filtered++
			continue
		}

		value, ok := parseValue(rec[valueIdx])
		if !ok {
			stats.Dropped++
			continue
		}
		months, ok := parseDate(rec[dateIdx], annual)
		if !ok {
			stats.Dropped++
			continue
		}
		for _, m := range months {
			target.values[m] = value
		}
		stats.Kept++
	}

	out := make([]series.Series, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, series.FromMap(m.column, m.values))
	}

	r.log.Info().
		Str("source", src.Name).
		Int("rows", stats.Rows).
		Int("kept", stats.Kept).
		Int("dropped", stats.Dropped).
		Int("filtered", stats.Filtered).
		Msg("source read")
	return out, stats, nil
}

func bindFilters(conds map[string]string, lookup func(string) (int, error)) ([]boundFilter, error) {
	out := make([]boundFilter, 0, len(conds))
	for col, want := range conds {
		i, err := lookup(col)
		if err != nil {
			return nil, err
		}
		out = append(out, boundFilter{idx: i, value: want})
	}
	return out, nil
}

func matches(rec []string, filters []boundFilter) bool {
	for _, f := range filters {
		if strings.TrimSpace(rec[f.idx]) != f.value {
			return false
		}
	}
	return true
}

func parseValue(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseDate normalises a reference date to the months it covers: one month
// for monthly data, all twelve for an annual figure.
func parseDate(raw string, annual bool) ([]series.Month, bool) {
	raw = strings.TrimSpace(raw)
	if annual {
		y, err := series.ParseYear(raw)
		if err != nil {
			return nil, false
		}
		months := make([]series.Month, 12)
		first := series.NewMonth(y, 1)
		for i := range months {
			months[i] = first.AddMonths(i)
		}
		return months, true
	}
	m, err := series.ParseMonth(raw)
	if err != nil {
		return nil, false
	}
	return []series.Month{m}, true
}
