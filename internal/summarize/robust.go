package summarize

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	huberK     = 1.345
	robustIter = 20
	ridge      = 1e-8
)

// robustMethod fits expression = sample + feature by iteratively
// reweighted least squares with Huber weights, so that a peptide
// measured off its usual level pulls the sample estimate less than it
// would under plain averaging.
type robustMethod struct{}

func (robustMethod) Name() string { return "robust" }

type observation struct {
	s, f int // design columns; f is -1 for the reference feature
	v    float64
}

func (robustMethod) Summarize(y *mat.Dense) ([]float64, error) {
	nr, nc := y.Dims()
	out := make([]float64, nc)
	for j := range out {
		out[j] = math.NaN()
	}

	// Design columns exist only for samples and features that carry
	// at least one observation. The first kept feature is the
	// reference level and gets no column of its own.
	sampleCol := make([]int, nc)
	for j := range sampleCol {
		sampleCol[j] = -1
	}
	nObsSamples := 0
	for j := 0; j < nc; j++ {
		for i := 0; i < nr; i++ {
			if !math.IsNaN(y.At(i, j)) {
				sampleCol[j] = nObsSamples
				nObsSamples++
				break
			}
		}
	}
	featCol := make([]int, nr)
	nKept := 0
	next := nObsSamples
	for i := 0; i < nr; i++ {
		featCol[i] = -1
		for j := 0; j < nc; j++ {
			if !math.IsNaN(y.At(i, j)) {
				if nKept > 0 {
					featCol[i] = next
					next++
				}
				nKept++
				break
			}
		}
	}

	var obs []observation
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			if v := y.At(i, j); !math.IsNaN(v) {
				obs = append(obs, observation{s: sampleCol[j], f: featCol[i], v: v})
			}
		}
	}
	if len(obs) == 0 {
		return out, nil
	}

	dim := nObsSamples + nKept - 1
	w := make([]float64, len(obs))
	for k := range w {
		w[k] = 1
	}
	b := make([]float64, dim)
	prev := make([]float64, dim)

	for iter := 0; iter < robustIter; iter++ {
		copy(prev, b)
		if err := solveWeighted(obs, w, dim, b); err != nil {
			return nil, err
		}

		r := make([]float64, len(obs))
		for k, o := range obs {
			fit := b[o.s]
			if o.f >= 0 {
				fit += b[o.f]
			}
			r[k] = o.v - fit
		}
		scale := 1.4826 * medianAbs(r)
		if scale < 1e-10 {
			break
		}
		for k := range w {
			w[k] = huberWeight(r[k] / scale)
		}

		var maxDelta, maxB float64
		for d := 0; d < dim; d++ {
			maxDelta = math.Max(maxDelta, math.Abs(b[d]-prev[d]))
			maxB = math.Max(maxB, math.Abs(b[d]))
		}
		if maxDelta < 1e-6*(1+maxB) {
			break
		}
	}

	// The sample estimate is the sample coefficient plus the average
	// feature effect, with the reference feature contributing zero.
	var featSum float64
	for i := 0; i < nr; i++ {
		if c := featCol[i]; c >= 0 {
			featSum += b[c]
		}
	}
	featMean := featSum / float64(nKept)
	for j := 0; j < nc; j++ {
		if c := sampleCol[j]; c >= 0 {
			out[j] = b[c] + featMean
		}
	}
	return out, nil
}

// solveWeighted solves the weighted normal equations of the two-factor
// design. Every observation touches at most two design columns, so the
// system is accumulated directly instead of forming the design matrix.
func solveWeighted(obs []observation, w []float64, dim int, b []float64) error {
	a := mat.NewSymDense(dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	for k, o := range obs {
		wk := w[k]
		a.SetSym(o.s, o.s, a.At(o.s, o.s)+wk)
		rhs.SetVec(o.s, rhs.AtVec(o.s)+wk*o.v)
		if o.f >= 0 {
			a.SetSym(o.f, o.f, a.At(o.f, o.f)+wk)
			a.SetSym(o.s, o.f, a.At(o.s, o.f)+wk)
			rhs.SetVec(o.f, rhs.AtVec(o.f)+wk*o.v)
		}
	}
	for d := 0; d < dim; d++ {
		a.SetSym(d, d, a.At(d, d)+ridge)
	}
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return ErrSingular
	}
	sol := mat.NewVecDense(dim, nil)
	if err := chol.SolveVecTo(sol, rhs); err != nil {
		return ErrSingular
	}
	copy(b, sol.RawVector().Data)
	return nil
}

func huberWeight(u float64) float64 {
	if a := math.Abs(u); a > huberK {
		return huberK / a
	}
	return 1
}

func medianAbs(r []float64) float64 {
	abs := make([]float64, len(r))
	for k, v := range r {
		abs[k] = math.Abs(v)
	}
	return median(abs)
}
