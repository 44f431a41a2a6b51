package panel

import (
	"fmt"
	"math"
	"sort"

	"hpi-forecast/models"
	"hpi-forecast/series"
)

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(models.Columns))
	for i, c := range models.Columns {
		m[c] = i
	}
	return m
}()

// Row is one month of the wide table. Values follow models.Columns order and
// hold NaN for nulls.
type Row struct {
	Month  series.Month
	Values []float64
}

func NewRow(m series.Month) Row {
	v := make([]float64, len(models.Columns))
	for i := range v {
		v[i] = math.NaN()
	}
	return Row{Month: m, Values: v}
}

func (r Row) Get(col string) (float64, bool) {
	i, ok := columnIndex[col]
	if !ok || math.IsNaN(r.Values[i]) {
		return 0, false
	}
	return r.Values[i], true
}

func (r Row) Set(col string, v float64) {
	if i, ok := columnIndex[col]; ok {
		r.Values[i] = v
	}
}

// HPI returns the housing price index of the row, if reported.
func (r Row) HPI() (float64, bool) { return r.Get(models.ColHPI) }

// Features returns the values of cols in the given order, NaN where null or
// unknown.
func (r Row) Features(cols []string) []float64 {
	out := make([]float64, len(cols))
	for i, c := range cols {
		if v, ok := r.Get(c); ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

func (r Row) Record() models.MonthlyRecord {
	rec := models.MonthlyRecord{RefDate: r.Month.String()}
	for _, c := range models.Columns {
		if v, ok := r.Get(c); ok {
			rec.Set(c, v)
		}
	}
	return rec
}

// Table is the merged monthly panel: one row per month, ascending. A Table
// is not modified after construction, so it can be shared as a snapshot.
type Table struct {
	Rows []Row
}

func (t Table) Len() int { return len(t.Rows) }

func (t Table) Latest() (Row, bool) {
	if len(t.Rows) == 0 {
		return Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Tail returns the last n rows (all rows if n exceeds the length).
func (t Table) Tail(n int) Table {
	if n < 0 {
		n = 0
	}
	if n >= len(t.Rows) {
		return t
	}
	return Table{Rows: t.Rows[len(t.Rows)-n:]}
}

// Find returns the position of month m.
func (t Table) Find(m series.Month) (int, bool) {
	i := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].Month >= m })
	if i < len(t.Rows) && t.Rows[i].Month == m {
		return i, true
	}
	return 0, false
}

// Validate checks that months are unique and strictly ascending.
func (t Table) Validate() error {
	for i := 1; i < len(t.Rows); i++ {
		prev, cur := t.Rows[i-1].Month, t.Rows[i].Month
		if cur == prev {
			return fmt.Errorf("duplicate ref_date %s", cur)
		}
		if cur < prev {
			return fmt.Errorf("ref_date %s after %s is out of order", cur, prev)
		}
	}
	return nil
}

func (t Table) Records() []models.MonthlyRecord {
	out := make([]models.MonthlyRecord, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Record()
	}
	return out
}

// FromRecords builds a Table from stored records in any order.
func FromRecords(recs []models.MonthlyRecord) (Table, error) {
	rows := make([]Row, 0, len(recs))
	for i := range recs {
		m, err := recs[i].Month()
		if err != nil {
			return Table{}, err
		}
		row := NewRow(m)
		for _, c := range models.Columns {
			if v, ok := recs[i].Get(c); ok {
				row.Set(c, v)
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })

	t := Table{Rows: rows}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}
