package panel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpi-forecast/models"
	"hpi-forecast/series"
)

// syntheticTable has HPI(i) = 100 + i for 60 consecutive months.
func syntheticTable(t *testing.T, n int) Table {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	tbl, err := Merge([]series.Series{monthly(models.ColHPI, ym(2015, time.January), values...)},
		Options{Required: []string{models.ColHPI}})
	require.NoError(t, err)
	return tbl
}

func TestTargetsNullExactlyForLastHRows(t *testing.T) {
	tbl := syntheticTable(t, 60)
	rows := WithTargets(tbl, models.Horizons)

	for _, h := range models.Horizons {
		for i, r := range rows {
			_, ok := r.Target(h)
			if i >= len(rows)-h {
				assert.False(t, ok, "h=%d row=%d should have no target", h, i)
			} else {
				assert.True(t, ok, "h=%d row=%d should have a target", h, i)
			}
		}
	}
}

func TestTrainingSetHorizonSix(t *testing.T) {
	tbl := syntheticTable(t, 40)
	rows := WithTargets(tbl, models.Horizons)
	set := TrainingSet(rows, 6)

	require.Len(t, set, 34)
	for _, r := range set {
		target, ok := r.Target(6)
		require.True(t, ok)

		j, ok := tbl.Find(r.Month.AddMonths(6))
		require.True(t, ok)
		ahead, _ := tbl.Rows[j].HPI()
		assert.Equal(t, ahead, target)

		cur, _ := r.HPI()
		assert.Equal(t, cur+6, target)
	}
	last := set[len(set)-1].Month
	assert.Equal(t, tbl.Rows[tbl.Len()-7].Month, last, "final six rows are excluded")
}

func TestTargetsSkipMissingFutureIndex(t *testing.T) {
	hpi := series.FromMap(models.ColHPI, map[series.Month]float64{
		ym(2020, time.January): 100,
		ym(2020, time.March):   102,
		ym(2020, time.April):   103,
	})
	tbl, err := Merge([]series.Series{hpi}, Options{Required: []string{models.ColHPI}})
	require.NoError(t, err)

	rows := WithTargets(tbl, []int{1, 2})
	_, ok := rows[0].Target(1)
	assert.False(t, ok, "February has no HPI")
	v, ok := rows[0].Target(2)
	assert.True(t, ok)
	assert.Equal(t, 102.0, v)

	assert.Len(t, TrainingSet(rows, 1), 2)
}

func TestTableHelpers(t *testing.T) {
	tbl := syntheticTable(t, 24)

	latest, ok := tbl.Latest()
	require.True(t, ok)
	assert.Equal(t, ym(2016, time.December), latest.Month)

	tail := tbl.Tail(12)
	assert.Equal(t, 12, tail.Len())
	assert.Equal(t, ym(2016, time.January), tail.Rows[0].Month)
	assert.Equal(t, 24, tbl.Tail(100).Len())

	_, ok = Table{}.Latest()
	assert.False(t, ok)
}

func TestFromRecordsSortsAndRejectsDuplicates(t *testing.T) {
	a := models.MonthlyRecord{RefDate: "2020-02"}
	a.Set(models.ColHPI, 101)
	b := models.MonthlyRecord{RefDate: "2020-01"}
	b.Set(models.ColHPI, 100)

	tbl, err := FromRecords([]models.MonthlyRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, ym(2020, time.January), tbl.Rows[0].Month)

	recs := tbl.Records()
	assert.Equal(t, "2020-02", recs[1].RefDate)
	v, ok := recs[1].Get(models.ColHPI)
	assert.True(t, ok)
	assert.Equal(t, 101.0, v)

	_, err = FromRecords([]models.MonthlyRecord{a, a})
	assert.Error(t, err)
}

func TestFeaturesOrder(t *testing.T) {
	row := NewRow(ym(2020, time.January))
	row.Set(models.ColCPI, 130)
	row.Set(models.ColBondYield, 2.5)

	f := row.Features([]string{models.ColBondYield, models.ColInterestRate, models.ColCPI})
	assert.Equal(t, 2.5, f[0])
	assert.True(t, math.IsNaN(f[1]), "null feature is NaN")
	assert.Equal(t, 130.0, f[2])
}
