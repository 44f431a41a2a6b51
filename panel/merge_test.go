package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpi-forecast/config"
	"hpi-forecast/models"
	"hpi-forecast/series"
)

func ym(year int, m time.Month) series.Month { return series.NewMonth(year, m) }

func monthly(name string, from series.Month, values ...float64) series.Series {
	pts := make(map[series.Month]float64, len(values))
	for i, v := range values {
		pts[from.AddMonths(i)] = v
	}
	return series.FromMap(name, pts)
}

func TestMergeRangeIsRequiredIntersection(t *testing.T) {
	in := []series.Series{
		monthly(models.ColHPI, ym(2019, time.November), 100, 101, 102, 103, 104, 105),
		monthly(models.ColCPI, ym(2020, time.January), 130, 131, 132, 133, 134, 135, 136),
		monthly(models.ColUnemployment, ym(2019, time.January), 500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 400, 400, 400, 400),
		monthly(models.ColLabourForce, ym(2019, time.January), 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000, 8000),
		monthly(models.ColInterestRate, ym(2015, time.January), 1.5),
	}

	tbl, err := Merge(in, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	// HPI ends 2020-04, CPI starts 2020-01, unemployment rate spans 2019.
	require.Equal(t, 4, tbl.Len())
	assert.Equal(t, ym(2020, time.January), tbl.Rows[0].Month)
	assert.Equal(t, ym(2020, time.April), tbl.Rows[3].Month)

	rate, ok := tbl.Rows[0].Get(models.ColUnemploymentRate)
	require.True(t, ok)
	assert.InDelta(t, 5.0, rate, 1e-9)

	_, ok = tbl.Rows[0].Get(models.ColInterestRate)
	assert.False(t, ok, "unmatched fields are null")
}

func TestMergeFillsGapsWithNulls(t *testing.T) {
	hpi := series.FromMap(models.ColHPI, map[series.Month]float64{
		ym(2020, time.January): 100,
		ym(2020, time.April):   103,
	})

	tbl, err := Merge([]series.Series{hpi}, Options{Required: []string{models.ColHPI}})
	require.NoError(t, err)
	require.Equal(t, 4, tbl.Len())

	for i, row := range tbl.Rows {
		assert.Equal(t, ym(2020, time.January).AddMonths(i), row.Month)
	}
	_, ok := tbl.Rows[1].HPI()
	assert.False(t, ok)
}

func TestMergeNoOverlap(t *testing.T) {
	in := []series.Series{
		monthly(models.ColHPI, ym(2010, time.January), 1, 2),
		monthly(models.ColCPI, ym(2020, time.January), 1, 2),
	}
	_, err := Merge(in, Options{Required: []string{models.ColHPI, models.ColCPI}})
	assert.True(t, errors.Is(err, ErrEmptyRange))
}

func TestMergeMissingRequired(t *testing.T) {
	_, err := Merge([]series.Series{monthly(models.ColCPI, ym(2020, time.January), 1)}, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEmptyRange))
}

func TestMergeUnknownColumn(t *testing.T) {
	_, err := Merge([]series.Series{monthly("rent", ym(2020, time.January), 1)}, Options{})
	assert.Error(t, err)
}

func TestMergeWithoutRequiredUsesUnion(t *testing.T) {
	in := []series.Series{
		monthly(models.ColHPI, ym(2020, time.March), 1),
		monthly(models.ColBondYield, ym(2020, time.January), 2),
	}
	tbl, err := Merge(in, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
}

func TestOptionsFrom(t *testing.T) {
	src, err := config.LoadSources("")
	require.NoError(t, err)

	opts := OptionsFrom(src)
	assert.Equal(t, DefaultOptions(), opts)

	opts = OptionsFrom(&config.Sources{Required: []string{models.ColHPI}})
	assert.Equal(t, []string{models.ColHPI}, opts.Required)
	assert.Len(t, opts.Derived, 1)
}
