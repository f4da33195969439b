package lmm

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// ErrTooFewObs means the group has too few observations to model
var ErrTooFewObs = errors.New("lmm: too few observations")

// ErrVariable means a formula names a variable the data does not have
var ErrVariable = errors.New("lmm: unknown variable")

// ErrTermLevels means a grouping variable is constant
var ErrTermLevels = errors.New("lmm: grouping variable is constant")

// ErrTermSaturated means a grouping variable has as many levels as
// there are observations
var ErrTermSaturated = errors.New("lmm: grouping variable saturates the data")

// ErrSingular means the mixed model equations could not be solved
var ErrSingular = errors.New("lmm: singular mixed model equations")

// ErrNoDF means the fit left no residual degrees of freedom
var ErrNoDF = errors.New("lmm: no residual degrees of freedom")

// ErrNoFormulas means FitAny was called with an empty formula list
var ErrNoFormulas = errors.New("lmm: no formulas given")

// ErrContrastLevel means a contrast names a level the model never saw
var ErrContrastLevel = errors.New("lmm: unknown contrast level")

// Data holds the observations of one model fit. Y is the response and
// must contain observed values only. Vars maps each grouping variable
// to its value per observation.
type Data struct {
	Y    []float64
	Vars map[string][]string
}

type term struct {
	name   string
	levels []string
	index  map[string]int
	obs    []int // level index per observation
	off    int   // first coordinate in the mixed model equations
	theta  float64
}

func newTerm(name string, vals []string) *term {
	index := make(map[string]int)
	var levels []string
	for _, v := range vals {
		if _, ok := index[v]; !ok {
			index[v] = 0
			levels = append(levels, v)
		}
	}
	sort.Strings(levels)
	for i, l := range levels {
		index[l] = i
	}
	obs := make([]int, len(vals))
	for r, v := range vals {
		obs[r] = index[v]
	}
	return &term{name: name, levels: levels, index: index, obs: obs}
}

// Model is a fitted mixed model. Mu is the fixed intercept, Sigma2 the
// residual variance and DFRes the residual degrees of freedom left by
// the fit.
type Model struct {
	Formula Formula
	N       int
	Mu      float64
	Sigma2  float64
	DFRes   float64

	terms []*term
	b     []float64
	cinv  *mat.SymDense
}

// Fit estimates the model described by f on d. The variance ratios of
// the random terms are found by minimizing the restricted likelihood
// criterion; the fixed intercept and the random intercepts then come
// from one solve of the mixed model equations.
func Fit(d Data, f Formula) (*Model, error) {
	n := len(d.Y)
	if n < 3 {
		return nil, fmt.Errorf("%w: %d observations", ErrTooFewObs, n)
	}
	var terms []*term
	dim := 1
	for _, name := range f.Terms {
		vals, ok := d.Vars[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrVariable, name)
		}
		if len(vals) != n {
			return nil, fmt.Errorf("%w: %q has %d values for %d observations",
				ErrVariable, name, len(vals), n)
		}
		t := newTerm(name, vals)
		if len(t.levels) < 2 {
			return nil, fmt.Errorf("%w: %q", ErrTermLevels, name)
		}
		if len(t.levels) >= n {
			return nil, fmt.Errorf("%w: %q has %d levels for %d observations",
				ErrTermSaturated, name, len(t.levels), n)
		}
		t.off = dim
		dim += len(t.levels)
		terms = append(terms, t)
	}

	m := &Model{Formula: f, N: n, terms: terms}
	if len(terms) == 0 {
		m.fitIntercept(d.Y)
		return m, nil
	}

	yy := floats.Dot(d.Y, d.Y)
	problem := optimize.Problem{
		Func: func(eta []float64) float64 {
			return remlCriterion(d.Y, yy, terms, dim, eta)
		},
	}
	eta0 := make([]float64, len(terms))
	res, err := optimize.Minimize(problem, eta0, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("lmm: optimize: %w", err)
	}
	if err := m.finish(d.Y, yy, dim, res.X); err != nil {
		return nil, err
	}
	return m, nil
}

// remlCriterion is -2 times the restricted log likelihood, profiled
// over the intercept and the residual variance, up to a constant.
// eta[k] is the log ratio of the kth random variance to the residual
// variance.
func remlCriterion(y []float64, yy float64, terms []*term, dim int, eta []float64) float64 {
	theta := make([]float64, len(eta))
	for k, e := range eta {
		if math.Abs(e) > 35 {
			return math.Inf(1)
		}
		theta[k] = math.Exp(-e)
	}
	a, rhs := buildSystem(y, terms, dim, theta)
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return math.Inf(1)
	}
	b := mat.NewVecDense(dim, nil)
	if err := chol.SolveVecTo(b, rhs); err != nil {
		return math.Inf(1)
	}
	rss := yy - mat.Dot(b, rhs)
	if rss < 1e-12 {
		rss = 1e-12
	}
	crit := chol.LogDet() + float64(len(y)-1)*math.Log(rss)
	for k, t := range terms {
		crit += float64(len(t.levels)) * eta[k]
	}
	return crit
}

// buildSystem accumulates the mixed model equations. Every observation
// touches the intercept plus one coordinate per term, so the normal
// matrix is built directly from those index tuples.
func buildSystem(y []float64, terms []*term, dim int, theta []float64) (*mat.SymDense, *mat.VecDense) {
	a := mat.NewSymDense(dim, nil)
	rhs := mat.NewVecDense(dim, nil)
	coords := make([]int, 1+len(terms))
	for r, v := range y {
		coords = coords[:1]
		coords[0] = 0
		for _, t := range terms {
			coords = append(coords, t.off+t.obs[r])
		}
		for i, ci := range coords {
			rhs.SetVec(ci, rhs.AtVec(ci)+v)
			for _, cj := range coords[i:] {
				a.SetSym(ci, cj, a.At(ci, cj)+1)
			}
		}
	}
	for k, t := range terms {
		for j := range t.levels {
			c := t.off + j
			a.SetSym(c, c, a.At(c, c)+theta[k])
		}
	}
	return a, rhs
}

func (m *Model) fitIntercept(y []float64) {
	mu := floats.Sum(y) / float64(m.N)
	var rss float64
	for _, v := range y {
		d := v - mu
		rss += d * d
	}
	m.Mu = mu
	m.DFRes = float64(m.N - 1)
	m.Sigma2 = rss / m.DFRes
	m.b = []float64{mu}
	m.cinv = mat.NewSymDense(1, []float64{1 / float64(m.N)})
}

func (m *Model) finish(y []float64, yy float64, dim int, eta []float64) error {
	theta := make([]float64, len(eta))
	for k, e := range eta {
		theta[k] = math.Exp(-e)
		m.terms[k].theta = theta[k]
	}
	a, rhs := buildSystem(y, m.terms, dim, theta)
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return ErrSingular
	}
	bv := mat.NewVecDense(dim, nil)
	if err := chol.SolveVecTo(bv, rhs); err != nil {
		return ErrSingular
	}
	var cinv mat.SymDense
	if err := chol.InverseTo(&cinv); err != nil {
		return ErrSingular
	}

	rss := yy - mat.Dot(bv, rhs)
	if rss < 0 {
		rss = 0
	}
	// Residual degrees of freedom from the trace of the hat matrix.
	df := float64(len(y) - dim)
	for k, t := range m.terms {
		for j := range t.levels {
			c := t.off + j
			df += theta[k] * cinv.At(c, c)
		}
	}
	if df <= 0 {
		return fmt.Errorf("%w: %.2f", ErrNoDF, df)
	}

	m.b = make([]float64, dim)
	copy(m.b, bv.RawVector().Data)
	m.Mu = m.b[0]
	m.DFRes = df
	m.Sigma2 = rss / df
	m.cinv = &cinv
	return nil
}

// FitAny fits the first formula in the list that can be estimated on
// the data and returns it together with the index of the formula used.
// When every formula fails, the joined errors are returned.
func FitAny(d Data, formulas []Formula) (*Model, int, error) {
	if len(formulas) == 0 {
		return nil, -1, ErrNoFormulas
	}
	var errs []error
	for i, f := range formulas {
		m, err := Fit(d, f)
		if err == nil {
			return m, i, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", f, err))
	}
	return nil, -1, errors.Join(errs...)
}

func (m *Model) term(name string) *term {
	for _, t := range m.terms {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Levels returns the sorted levels of a grouping variable, or nil when
// the model has no term for it.
func (m *Model) Levels(name string) []string {
	t := m.term(name)
	if t == nil {
		return nil
	}
	return append([]string(nil), t.levels...)
}

// Effects returns the predicted random intercepts of a grouping
// variable by level.
func (m *Model) Effects(name string) (map[string]float64, error) {
	t := m.term(name)
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrVariable, name)
	}
	eff := make(map[string]float64, len(t.levels))
	for j, l := range t.levels {
		eff[l] = m.b[t.off+j]
	}
	return eff, nil
}

// Contrast evaluates a weighted combination of the random intercepts
// of one grouping variable. It returns the estimate and its variance
// on the unit residual scale; multiplying the latter by a residual
// variance gives a squared standard error.
func (m *Model) Contrast(name string, weights map[string]float64) (est, varUnscaled float64, err error) {
	t := m.term(name)
	if t == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrVariable, name)
	}
	v := mat.NewVecDense(len(m.b), nil)
	for level, w := range weights {
		j, ok := t.index[level]
		if !ok {
			return 0, 0, fmt.Errorf("%w: %q has no level %q", ErrContrastLevel, name, level)
		}
		v.SetVec(t.off+j, w)
		est += w * m.b[t.off+j]
	}
	return est, mat.Inner(v, m.cinv, v), nil
}

// VarComponents returns the estimated variance of each random term.
func (m *Model) VarComponents() map[string]float64 {
	vc := make(map[string]float64, len(m.terms))
	for _, t := range m.terms {
		vc[t.name] = m.Sigma2 / t.theta
	}
	return vc
}
