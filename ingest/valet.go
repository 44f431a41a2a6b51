package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hpi-forecast/config"
	"hpi-forecast/series"
)

// ValetClient reads observation series from the Bank of Canada Valet API.
type ValetClient struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	log        zerolog.Logger
}

func NewValetClient(cfg config.ValetSource, log zerolog.Logger) *ValetClient {
	return &ValetClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.Retries,
		backoff:    time.Second,
		log:        log,
	}
}

type valetResponse struct {
	Observations []map[string]json.RawMessage `json:"observations"`
}

type valetCell struct {
	V json.RawMessage `json:"v"`
}

// statusError is a non-2xx answer. Only server-side failures are retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// Fetch downloads one series between start and end and collapses it to the
// last observation of each month.
func (c *ValetClient) Fetch(ctx context.Context, seriesID, column string, start, end time.Time) (series.Series, ReadStats, error) {
	stats := ReadStats{Source: "valet:" + seriesID}

	q := url.Values{}
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))
	endpoint := fmt.Sprintf("%s/observations/%s/json?%s", c.baseURL, url.PathEscape(seriesID), q.Encode())

	var body []byte
	err := c.withRetry(ctx, seriesID, func() error {
		b, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return series.Series{}, stats, fmt.Errorf("%w: valet %s: %v", ErrSourceUnavailable, seriesID, err)
	}

	var resp valetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return series.Series{}, stats, fmt.Errorf("decode valet %s: %w", seriesID, err)
	}

	type dated struct {
		day   time.Time
		value float64
	}
	latest := make(map[series.Month]dated)
	for _, obs := range resp.Observations {
		stats.Rows++
		day, value, ok := parseObservation(obs, seriesID)
		if !ok {
			stats.Dropped++
			continue
		}
		m := series.MonthOf(day)
		if prev, seen := latest[m]; !seen || !day.Before(prev.day) {
			latest[m] = dated{day: day, value: value}
		}
		stats.Kept++
	}

	values := make(map[series.Month]float64, len(latest))
	for m, d := range latest {
		values[m] = d.value
	}

	c.log.Info().
		Str("series", seriesID).
		Str("column", column).
		Int("observations", stats.Rows).
		Int("dropped", stats.Dropped).
		Int("months", len(values)).
		Msg("valet series fetched")
	return series.FromMap(column, values), stats, nil
}

func parseObservation(obs map[string]json.RawMessage, seriesID string) (time.Time, float64, bool) {
	var d string
	if err := json.Unmarshal(obs["d"], &d); err != nil {
		return time.Time{}, 0, false
	}
	day, err := time.Parse(time.DateOnly, d)
	if err != nil {
		return time.Time{}, 0, false
	}
	raw, ok := obs[seriesID]
	if !ok {
		return time.Time{}, 0, false
	}
	var cell valetCell
	if err := json.Unmarshal(raw, &cell); err != nil {
		return time.Time{}, 0, false
	}
	v, ok := parseValue(strings.Trim(string(cell.V), `"`))
	if !ok {
		return time.Time{}, 0, false
	}
	return day, v, true
}

func (c *ValetClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// withRetry runs fn up to retries+1 times with quadratic backoff.
func (c *ValetClient) withRetry(ctx context.Context, seriesID string, fn func() error) error {
	attempts := c.retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt*attempt) * c.backoff
			c.log.Warn().
				Str("series", seriesID).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Msg("retrying valet request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("all %d attempts failed, last error: %w", attempts, lastErr)
}
