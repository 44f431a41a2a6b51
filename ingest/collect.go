package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/metrics"
	"hpi-forecast/series"
)

// Collector reads every configured source in turn.
type Collector struct {
	csv   *CSVReader
	valet *ValetClient
	log   zerolog.Logger
}

func NewCollector(src *config.Sources, inputDir string, log zerolog.Logger) *Collector {
	if inputDir == "" {
		inputDir = src.InputDir
	}
	return &Collector{
		csv:   NewCSVReader(inputDir, log),
		valet: NewValetClient(src.Valet, log),
		log:   log,
	}
}

// Collect returns all series from all sources. Any unreadable source aborts
// the whole collection so that nothing partial is merged.
func (c *Collector) Collect(ctx context.Context, src *config.Sources, now time.Time) ([]series.Series, []ReadStats, error) {
	var all []series.Series
	var stats []ReadStats
	var total ReadStats

	for _, s := range src.CSV {
		out, st, err := c.csv.Read(ctx, s)
		if err != nil {
			return nil, stats, err
		}
		record(st)
		total.add(st)
		stats = append(stats, st)
		all = append(all, out...)
	}

	if len(src.Valet.Series) > 0 {
		start, err := time.Parse(time.DateOnly, src.Valet.StartDate)
		if err != nil {
			return nil, stats, fmt.Errorf("valet start date: %w", err)
		}
		for _, vs := range src.Valet.Series {
			out, st, err := c.valet.Fetch(ctx, vs.ID, vs.Column, start, now)
			if err != nil {
				return nil, stats, err
			}
			record(st)
			total.add(st)
			stats = append(stats, st)
			all = append(all, out)
		}
	}

	c.log.Info().
		Int("sources", len(stats)).
		Int("series", len(all)).
		Int("rows", total.Rows).
		Int("dropped", total.Dropped).
		Msg("collection complete")
	return all, stats, nil
}

func record(st ReadStats) {
	metrics.SourceRows.WithLabelValues(st.Source, "kept").Add(float64(st.Kept))
	metrics.SourceRows.WithLabelValues(st.Source, "dropped").Add(float64(st.Dropped))
	metrics.SourceRows.WithLabelValues(st.Source, "filtered").Add(float64(st.Filtered))
}
