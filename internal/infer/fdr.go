package infer

import (
	"math"
	"sort"
)

// BHAdjust converts p-values to Benjamini-Hochberg q-values. NaN
// entries do not count toward the number of tests and stay NaN.
func BHAdjust(p []float64) []float64 {
	q := make([]float64, len(p))
	var idx []int
	for i, v := range p {
		if math.IsNaN(v) {
			q[i] = math.NaN()
		} else {
			idx = append(idx, i)
		}
	}
	m := len(idx)
	sort.Slice(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })
	run := math.Inf(1)
	for k := m - 1; k >= 0; k-- {
		v := p[idx[k]] * float64(m) / float64(k+1)
		if v < run {
			run = v
		}
		q[idx[k]] = math.Min(run, 1)
	}
	return q
}
