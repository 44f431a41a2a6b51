// Package gbm implements gradient-boosted regression trees with squared-error
// loss, second-order split gain, L2 leaf regularisation, row and column
// subsampling, and a learned default direction for missing (NaN) features.
package gbm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoData        = errors.New("gbm: no training rows")
	ErrShapeMismatch = errors.New("gbm: feature count mismatch")
)

type Params struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Subsample      float64 `json:"subsample"`
	ColSample      float64 `json:"colsample_bytree"`
	Lambda         float64 `json:"reg_lambda"`
	Gamma          float64 `json:"gamma"`
	MinChildWeight float64 `json:"min_child_weight"`
	Seed           int64   `json:"seed"`
}

func DefaultParams() Params {
	return Params{
		NEstimators:    500,
		MaxDepth:       5,
		LearningRate:   0.05,
		Subsample:      0.8,
		ColSample:      0.8,
		Lambda:         1,
		Gamma:          0,
		MinChildWeight: 1,
		Seed:           42,
	}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("gbm: n_estimators must be positive, got %d", p.NEstimators)
	case p.MaxDepth < 1:
		return fmt.Errorf("gbm: max_depth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0:
		return fmt.Errorf("gbm: learning_rate must be positive, got %v", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("gbm: subsample must be in (0,1], got %v", p.Subsample)
	case p.ColSample <= 0 || p.ColSample > 1:
		return fmt.Errorf("gbm: colsample must be in (0,1], got %v", p.ColSample)
	case p.Lambda < 0:
		return fmt.Errorf("gbm: reg_lambda must be non-negative, got %v", p.Lambda)
	}
	return nil
}

// Node is a split when Feature >= 0 and a leaf otherwise.
type Node struct {
	Feature     int     `json:"f"`
	Threshold   float64 `json:"t,omitempty"`
	Left        int     `json:"l,omitempty"`
	Right       int     `json:"r,omitempty"`
	DefaultLeft bool    `json:"d,omitempty"`
	Value       float64 `json:"v,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v < n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
}

// Model is a fitted ensemble. It is immutable and safe for concurrent use.
type Model struct {
	Params      Params  `json:"params"`
	NumFeatures int     `json:"num_features"`
	BaseScore   float64 `json:"base_score"`
	Trees       []Tree  `json:"trees"`
}

func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != m.NumFeatures {
		return 0, fmt.Errorf("%w: model has %d, got %d", ErrShapeMismatch, m.NumFeatures, len(x))
	}
	out := m.BaseScore
	for _, t := range m.Trees {
		out += t.predict(x)
	}
	return out, nil
}

func (m *Model) PredictBatch(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		v, err := m.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Fit trains a model on rows x (NaN marks a missing feature) and targets y.
// The same inputs and seed always produce the same model.
func Fit(x [][]float64, y []float64, p Params) (*Model, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 || len(y) == 0 {
		return nil, ErrNoData
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("gbm: %d rows but %d targets", len(x), len(y))
	}
	nf := len(x[0])
	if nf == 0 {
		return nil, fmt.Errorf("%w: no features", ErrShapeMismatch)
	}
	for i, row := range x {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), nf)
		}
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("gbm: target %d is not finite", i)
		}
	}

	m := &Model{
		Params:      p,
		NumFeatures: nf,
		BaseScore:   stat.Mean(y, nil),
		Trees:       make([]Tree, 0, p.NEstimators),
	}

	rng := rand.New(rand.NewSource(p.Seed))
	n := len(y)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}
	step := make([]float64, n)

	for round := 0; round < p.NEstimators; round++ {
		// Squared error: gradient is the residual, hessian is constant.
		copy(grad, pred)
		floats.Sub(grad, y)

		rows := sampleRows(rng, n, p.Subsample)
		cols := sampleCols(rng, nf, p.ColSample)

		b := &builder{x: x, grad: grad, hess: hess, features: cols, p: p}
		b.build(rows, 0)
		tree := Tree{Nodes: b.nodes}
		m.Trees = append(m.Trees, tree)

		for i := range step {
			step[i] = tree.predict(x[i])
		}
		floats.Add(pred, step)
	}
	return m, nil
}

func sampleRows(rng *rand.Rand, n int, rate float64) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if rate >= 1 || rng.Float64() < rate {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

func sampleCols(rng *rand.Rand, n int, rate float64) []int {
	k := int(math.Floor(rate * float64(n)))
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)
	cols := perm[:k]
	sort.Ints(cols)
	return cols
}
