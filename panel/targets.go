package panel

import "hpi-forecast/models"

// FeatureRow is a table row with one forward HPI target per horizon.
type FeatureRow struct {
	Row
	targets map[int]float64
}

// Target returns the HPI h months after the row, if it is known.
func (f FeatureRow) Target(h int) (float64, bool) {
	v, ok := f.targets[h]
	return v, ok
}

// WithTargets attaches target_h = HPI(month+h) to every row. The target is
// absent when month+h is beyond the table or has no HPI.
func WithTargets(t Table, horizons []int) []FeatureRow {
	out := make([]FeatureRow, len(t.Rows))
	for i, row := range t.Rows {
		fr := FeatureRow{Row: row, targets: make(map[int]float64, len(horizons))}
		for _, h := range horizons {
			j, ok := t.Find(row.Month.AddMonths(h))
			if !ok {
				continue
			}
			if v, ok := t.Rows[j].Get(models.ColHPI); ok {
				fr.targets[h] = v
			}
		}
		out[i] = fr
	}
	return out
}

// TrainingSet keeps the rows that have a target for horizon h, in order.
func TrainingSet(rows []FeatureRow, h int) []FeatureRow {
	var out []FeatureRow
	for _, r := range rows {
		if _, ok := r.targets[h]; ok {
			out = append(out, r)
		}
	}
	return out
}
