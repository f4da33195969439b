package normalize

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pepdiff/pepdiff/internal/expr"
)

// Method normalizes the sample columns of an intensity matrix.
type Method interface {
	// Name returns the configuration name of the method.
	Name() string
	// Raw reports whether the method consumes raw intensities and
	// produces log2-scale values itself. Other methods expect log2
	// input.
	Raw() bool
	Apply(s *expr.Set) error
}

// ErrUnknownMethod means no normalization method has the requested name
var ErrUnknownMethod = errors.New("normalize: unknown method")

// ByName returns the normalization method with the given name. Valid
// names are none, median, quantile and vsn.
func ByName(name string) (Method, error) {
	switch name {
	case "", "none":
		return noneMethod{}, nil
	case "median":
		return medianMethod{}, nil
	case "quantile", "quantiles":
		return quantileMethod{}, nil
	case "vsn":
		return vsnMethod{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

type noneMethod struct{}

func (noneMethod) Name() string            { return "none" }
func (noneMethod) Raw() bool               { return false }
func (noneMethod) Apply(s *expr.Set) error { return nil }

type medianMethod struct{}

func (medianMethod) Name() string { return "median" }
func (medianMethod) Raw() bool    { return false }

// Apply shifts every column so that all column medians end up on the
// mean of the original medians.
func (medianMethod) Apply(s *expr.Set) error {
	ns := s.NumSamples()
	meds := make([]float64, ns)
	for j := 0; j < ns; j++ {
		meds[j] = quantileR7(observedColumn(s, j), 0.5)
	}
	center := meanFinite(meds)
	if math.IsNaN(center) {
		return nil
	}
	for j := 0; j < ns; j++ {
		if math.IsNaN(meds[j]) {
			continue
		}
		shift := center - meds[j]
		for i := 0; i < s.NumFeatures(); i++ {
			if s.Observed(i, j) {
				s.X.Set(i, j, s.X.At(i, j)+shift)
			}
		}
	}
	return nil
}

type quantileMethod struct{}

func (quantileMethod) Name() string { return "quantile" }
func (quantileMethod) Raw() bool    { return false }

// Apply gives every column the same distribution: each observed value
// is replaced by the mean over columns of the column quantiles at its
// own tie-averaged rank position.
func (quantileMethod) Apply(s *expr.Set) error {
	nf, ns := s.NumFeatures(), s.NumSamples()
	if nf == 0 {
		return nil
	}
	cols := make([][]float64, ns)
	for j := 0; j < ns; j++ {
		c := observedColumn(s, j)
		sort.Float64s(c)
		cols[j] = c
	}
	for j := 0; j < ns; j++ {
		n := len(cols[j])
		if n == 0 {
			continue
		}
		var vals []float64
		var rows []int
		for i := 0; i < nf; i++ {
			if s.Observed(i, j) {
				vals = append(vals, s.X.At(i, j))
				rows = append(rows, i)
			}
		}
		ranks := fractionalRanks(vals)
		for k, i := range rows {
			p := 0.5
			if n > 1 {
				p = (ranks[k] - 1) / float64(n-1)
			}
			s.X.Set(i, j, refQuantile(cols, p))
		}
	}
	return nil
}

// refQuantile evaluates the mean quantile profile of all columns at p.
func refQuantile(cols [][]float64, p float64) float64 {
	var q []float64
	for _, c := range cols {
		if len(c) == 0 {
			continue
		}
		q = append(q, quantileSorted(c, p))
	}
	if len(q) == 0 {
		return math.NaN()
	}
	return stat.Mean(q, nil)
}

// observedColumn returns the observed values of column j.
func observedColumn(s *expr.Set, j int) []float64 {
	var col []float64
	for i := 0; i < s.NumFeatures(); i++ {
		if s.Observed(i, j) {
			col = append(col, s.X.At(i, j))
		}
	}
	return col
}

// quantileR7 returns the pth quantile of v according to the R-7 method.
// v is sorted in place. NaN for empty input.
func quantileR7(v []float64, p float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	return quantileSorted(v, p)
}

func quantileSorted(v []float64, p float64) float64 {
	if p >= 1 {
		return v[len(v)-1]
	}
	if p < 0 {
		p = 0
	}
	h := float64(len(v)-1) * p
	i := int(h)
	if i+1 >= len(v) {
		return v[len(v)-1]
	}
	return v[i] + (h-math.Floor(h))*(v[i+1]-v[i])
}

// fractionalRanks returns 1-based ranks with ties averaged.
func fractionalRanks(v []float64) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	r := make([]float64, len(v))
	for lo := 0; lo < len(idx); {
		hi := lo + 1
		for hi < len(idx) && v[idx[hi]] == v[idx[lo]] {
			hi++
		}
		avg := float64(lo+hi+1) / 2
		for k := lo; k < hi; k++ {
			r[idx[k]] = avg
		}
		lo = hi
	}
	return r
}

func meanFinite(v []float64) float64 {
	var fin []float64
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			fin = append(fin, x)
		}
	}
	if len(fin) == 0 {
		return math.NaN()
	}
	return stat.Mean(fin, nil)
}
