package series

import "sort"

type Point struct {
	Month Month
	Value float64
}

// Series is a named monthly time series with at most one point per month,
// ordered by month ascending.
type Series struct {
	Name   string
	Points []Point
}

// FromMap builds a Series from month->value pairs.
func FromMap(name string, values map[Month]float64) Series {
	points := make([]Point, 0, len(values))
	for m, v := range values {
		points = append(points, Point{Month: m, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Month < points[j].Month })
	return Series{Name: name, Points: points}
}

func (s Series) Len() int { return len(s.Points) }

func (s Series) First() (Month, bool) {
	if len(s.Points) == 0 {
		return 0, false
	}
	return s.Points[0].Month, true
}

func (s Series) Last() (Month, bool) {
	if len(s.Points) == 0 {
		return 0, false
	}
	return s.Points[len(s.Points)-1].Month, true
}

func (s Series) Lookup() map[Month]float64 {
	out := make(map[Month]float64, len(s.Points))
	for _, p := range s.Points {
		out[p.Month] = p.Value
	}
	return out
}
