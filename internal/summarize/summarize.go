// Package summarize collapses the peptide rows of a protein group into
// one expression value per sample.
package summarize

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Method condenses a features-by-samples matrix into one value per
// sample column. Cells that were never observed come back as NaN.
type Method interface {
	// Name returns the configuration name of the method.
	Name() string
	Summarize(y *mat.Dense) ([]float64, error)
}

// ErrUnknownMethod means no summarization method has the requested name
var ErrUnknownMethod = errors.New("summarize: unknown method")

// ErrSingular means the summarization system could not be solved
var ErrSingular = errors.New("summarize: singular system")

// ByName returns the summarization method with the given name. Valid
// names are robust, medpolish, mean and median.
func ByName(name string) (Method, error) {
	switch name {
	case "", "robust":
		return robustMethod{}, nil
	case "medpolish":
		return medpolishMethod{}, nil
	case "mean":
		return meanMethod{}, nil
	case "median":
		return medianMethod{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

type meanMethod struct{}

func (meanMethod) Name() string { return "mean" }

func (meanMethod) Summarize(y *mat.Dense) ([]float64, error) {
	return columnwise(y, func(col []float64) float64 {
		return stat.Mean(col, nil)
	}), nil
}

type medianMethod struct{}

func (medianMethod) Name() string { return "median" }

func (medianMethod) Summarize(y *mat.Dense) ([]float64, error) {
	return columnwise(y, median), nil
}

func columnwise(y *mat.Dense, f func([]float64) float64) []float64 {
	nr, nc := y.Dims()
	out := make([]float64, nc)
	for j := 0; j < nc; j++ {
		var col []float64
		for i := 0; i < nr; i++ {
			if v := y.At(i, j); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = f(col)
	}
	return out
}

// median returns the middle value of v, NaN values excluded. v is not
// modified.
func median(v []float64) float64 {
	var fin []float64
	for _, x := range v {
		if !math.IsNaN(x) {
			fin = append(fin, x)
		}
	}
	if len(fin) == 0 {
		return math.NaN()
	}
	sort.Float64s(fin)
	n := len(fin)
	if n%2 == 1 {
		return fin[n/2]
	}
	return (fin[n/2-1] + fin[n/2]) / 2
}
