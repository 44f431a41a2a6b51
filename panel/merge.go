package panel

import (
	"errors"
	"fmt"

	"hpi-forecast/config"
	"hpi-forecast/models"
	"hpi-forecast/series"
)

// ErrEmptyRange means the required series share no common months.
var ErrEmptyRange = errors.New("required series have no overlapping months")

// Derivation computes Column = Numerator / Denominator * Scale.
type Derivation struct {
	Column      string
	Numerator   string
	Denominator string
	Scale       float64
}

type Options struct {
	// Required series bound the merged date range.
	Required []string
	Derived  []Derivation
}

func DefaultOptions() Options {
	return Options{
		Required: []string{models.ColHPI, models.ColCPI, models.ColUnemploymentRate},
		Derived: []Derivation{{
			Column:      models.ColUnemploymentRate,
			Numerator:   models.ColUnemployment,
			Denominator: models.ColLabourForce,
			Scale:       100,
		}},
	}
}

// OptionsFrom reads merge options from the source definitions.
func OptionsFrom(src *config.Sources) Options {
	opts := DefaultOptions()
	if len(src.Required) > 0 {
		opts.Required = src.Required
	}
	if len(src.Derived) > 0 {
		opts.Derived = make([]Derivation, len(src.Derived))
		for i, d := range src.Derived {
			opts.Derived[i] = Derivation{
				Column:      d.Column,
				Numerator:   d.Numerator,
				Denominator: d.Denominator,
				Scale:       d.Scale,
			}
		}
	}
	return opts
}

// Merge joins all series on month into one wide table. The table spans from
// the first month every required series has data to the last month they all
// share; months inside that range without any data are kept with nulls.
func Merge(in []series.Series, opts Options) (Table, error) {
	cols := make(map[string]map[series.Month]float64)
	for _, s := range in {
		if !models.IsColumn(s.Name) {
			return Table{}, fmt.Errorf("unknown column %q", s.Name)
		}
		dst, ok := cols[s.Name]
		if !ok {
			dst = make(map[series.Month]float64, len(s.Points))
			cols[s.Name] = dst
		}
		for _, p := range s.Points {
			dst[p.Month] = p.Value
		}
	}

	for _, d := range opts.Derived {
		num, den := cols[d.Numerator], cols[d.Denominator]
		if len(num) == 0 || len(den) == 0 {
			continue
		}
		out := make(map[series.Month]float64, len(num))
		for m, n := range num {
			if v, ok := den[m]; ok && v != 0 {
				out[m] = n / v * d.Scale
			}
		}
		cols[d.Column] = out
	}

	first, last, err := bounds(cols, opts.Required)
	if err != nil {
		return Table{}, err
	}

	rows := make([]Row, 0, int(last-first)+1)
	for m := first; m <= last; m++ {
		row := NewRow(m)
		for name, values := range cols {
			if v, ok := values[m]; ok {
				row.Set(name, v)
			}
		}
		rows = append(rows, row)
	}

	t := Table{Rows: rows}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

func bounds(cols map[string]map[series.Month]float64, required []string) (series.Month, series.Month, error) {
	var first, last series.Month
	started := false

	consider := func(values map[series.Month]float64, intersect bool) {
		lo, hi := span(values)
		switch {
		case !started:
			first, last = lo, hi
			started = true
		case intersect:
			first, last = max(first, lo), min(last, hi)
		default:
			first, last = min(first, lo), max(last, hi)
		}
	}

	if len(required) == 0 {
		for _, values := range cols {
			if len(values) > 0 {
				consider(values, false)
			}
		}
	} else {
		for _, name := range required {
			values := cols[name]
			if len(values) == 0 {
				return 0, 0, fmt.Errorf("%w: %s has no data", ErrEmptyRange, name)
			}
			consider(values, true)
		}
	}

	if !started || first > last {
		return 0, 0, ErrEmptyRange
	}
	return first, last, nil
}

func span(values map[series.Month]float64) (series.Month, series.Month) {
	var lo, hi series.Month
	n := 0
	for m := range values {
		if n == 0 || m < lo {
			lo = m
		}
		if n == 0 || m > hi {
			hi = m
		}
		n++
	}
	return lo, hi
}
