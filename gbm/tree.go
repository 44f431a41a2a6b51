package gbm

import (
	"math"
	"sort"
)

type builder struct {
	x        [][]float64
	grad     []float64
	hess     []float64
	features []int
	p        Params
	nodes    []Node

	scratch []entry
}

type entry struct {
	v, g, h float64
}

type split struct {
	feature     int
	threshold   float64
	defaultLeft bool
	gain        float64
}

// build grows the subtree over rows idx and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	var g, h float64
	for _, i := range idx {
		g += b.grad[i]
		h += b.hess[i]
	}

	pos := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature: -1,
		Value:   -g / (h + b.p.Lambda) * b.p.LearningRate,
	})
	if depth >= b.p.MaxDepth || len(idx) < 2 {
		return pos
	}

	sp, ok := b.bestSplit(idx, g, h)
	if !ok {
		return pos
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		v := b.x[i][sp.feature]
		if (math.IsNaN(v) && sp.defaultLeft) || v < sp.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[pos] = Node{
		Feature:     sp.feature,
		Threshold:   sp.threshold,
		Left:        l,
		Right:       r,
		DefaultLeft: sp.defaultLeft,
	}
	return pos
}

// bestSplit scans every sampled feature for the threshold with the highest
// gain, trying missing values on each side.
func (b *builder) bestSplit(idx []int, g, h float64) (split, bool) {
	lambda := b.p.Lambda
	parent := g * g / (h + lambda)
	best := split{}
	found := false

	try := func(f int, thr float64, gl, hl float64, defaultLeft bool) {
		gr, hr := g-gl, h-hl
		if hl < b.p.MinChildWeight || hr < b.p.MinChildWeight {
			return
		}
		gain := 0.5*(gl*gl/(hl+lambda)+gr*gr/(hr+lambda)-parent) - b.p.Gamma
		if gain > best.gain {
			best = split{feature: f, threshold: thr, defaultLeft: defaultLeft, gain: gain}
			found = true
		}
	}

	for _, f := range b.features {
		vals := b.scratch[:0]
		var gPresent, hPresent float64
		for _, i := range idx {
			v := b.x[i][f]
			if math.IsNaN(v) {
				continue
			}
			vals = append(vals, entry{v: v, g: b.grad[i], h: b.hess[i]})
			gPresent += b.grad[i]
			hPresent += b.hess[i]
		}
		b.scratch = vals
		if len(vals) < 2 {
			continue
		}
		sort.Slice(vals, func(i, j int) bool { return vals[i].v < vals[j].v })

		gMissing, hMissing := g-gPresent, h-hPresent
		hasMissing := len(vals) < len(idx)

		var gl, hl float64
		for k := 0; k < len(vals)-1; k++ {
			gl += vals[k].g
			hl += vals[k].h
			if vals[k].v == vals[k+1].v {
				continue
			}
			thr := vals[k].v + (vals[k+1].v-vals[k].v)/2
			if !(thr > vals[k].v && thr <= vals[k+1].v) {
				thr = vals[k+1].v
			}
			try(f, thr, gl, hl, false)
			if hasMissing {
				try(f, thr, gl+gMissing, hl+hMissing, true)
			}
		}
	}
	return best, found
}
