package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonthlyRecordGetSet(t *testing.T) {
	var r MonthlyRecord
	for _, col := range Columns {
		_, ok := r.Get(col)
		assert.False(t, ok, "column %s should start null", col)
	}

	assert.True(t, r.Set(ColHPI, 165.0))
	v, ok := r.Get(ColHPI)
	assert.True(t, ok)
	assert.Equal(t, 165.0, v)
	if assert.NotNil(t, r.HousingPriceIndex) {
		assert.Equal(t, 165.0, *r.HousingPriceIndex)
	}

	assert.False(t, r.Set("ref_date", 1))
	assert.False(t, r.Set("target_h1", 1))
	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestColumnsAreKnown(t *testing.T) {
	seen := map[string]bool{}
	for _, col := range Columns {
		assert.True(t, IsColumn(col), col)
		assert.False(t, seen[col], "duplicate column %s", col)
		seen[col] = true
	}
	assert.Len(t, Columns, 12)
}

func TestIsHorizon(t *testing.T) {
	for _, h := range []int{1, 2, 3, 6, 12, 24, 36} {
		assert.True(t, IsHorizon(h), "horizon %d", h)
	}
	for _, h := range []int{0, 4, 5, 18, 48, -1} {
		assert.False(t, IsHorizon(h), "horizon %d", h)
	}
}
