// Package infer turns fitted group models into moderated test
// statistics, p-values and false discovery rates.
package infer

import (
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior is the variance prior estimated across all groups. DF is +Inf
// when the group variances show no excess scatter, in which case every
// posterior variance equals S02.
type Prior struct {
	DF  float64
	S02 float64
}

// SqueezeVar shrinks the per-group residual variances toward a common
// prior fitted on their scaled-F distribution. It returns the prior
// and the posterior variance per group. Groups with unusable inputs
// keep NaN.
func SqueezeVar(s2, df []float64) (Prior, []float64) {
	var e []float64
	var tri []float64
	for k := range s2 {
		if usableVar(s2[k], df[k]) && s2[k] > 0 && !math.IsInf(df[k], 1) {
			e = append(e, math.Log(s2[k])-mathext.Digamma(df[k]/2)+math.Log(df[k]/2))
			tri = append(tri, trigamma(df[k]/2))
		}
	}

	prior := Prior{DF: math.Inf(1), S02: math.NaN()}
	if len(e) > 0 {
		emean := stat.Mean(e, nil)
		evar := stat.Variance(e, nil) - stat.Mean(tri, nil)
		if len(e) >= 2 && evar > 0 {
			prior.DF = 2 * trigammaInverse(evar)
			prior.S02 = math.Exp(emean + mathext.Digamma(prior.DF/2) - math.Log(prior.DF/2))
		} else {
			prior.S02 = math.Exp(emean)
		}
	}

	post := make([]float64, len(s2))
	for k := range s2 {
		switch {
		case !usableVar(s2[k], df[k]):
			post[k] = math.NaN()
		case math.IsInf(df[k], 1) || math.IsNaN(prior.S02):
			post[k] = s2[k]
		case math.IsInf(prior.DF, 1):
			post[k] = prior.S02
		default:
			post[k] = (prior.DF*prior.S02 + df[k]*s2[k]) / (prior.DF + df[k])
		}
	}
	return prior, post
}

func usableVar(s2, df float64) bool {
	return !math.IsNaN(s2) && s2 >= 0 && !math.IsNaN(df) && df > 0
}

// PValue returns the two-sided p-value of a t statistic. Infinite
// degrees of freedom give the normal reference distribution.
func PValue(t, df float64) float64 {
	if math.IsNaN(t) || math.IsNaN(df) || df <= 0 {
		return math.NaN()
	}
	if math.IsInf(df, 1) {
		return 2 * distuv.UnitNormal.Survival(math.Abs(t))
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

// trigamma is the second derivative of the log gamma function,
// computed by recurrence into the asymptotic range.
func trigamma(x float64) float64 {
	if math.IsInf(x, 1) {
		return 0
	}
	if math.IsNaN(x) || x <= 0 {
		return math.NaN()
	}
	var acc float64
	for x < 8 {
		acc += 1 / (x * x)
		x++
	}
	z := 1 / (x * x)
	return acc + 1/x + z/2 + z/x*(1.0/6-z*(1.0/30-z*(1.0/42-z/30)))
}

// trigammaInverse solves trigamma(x) = y for x > 0. The function is
// strictly decreasing, so a bisection on the log scale converges from
// any bracket.
func trigammaInverse(y float64) float64 {
	switch {
	case math.IsNaN(y) || y <= 0:
		return math.NaN()
	case y > 1e7:
		return 1 / math.Sqrt(y)
	case y < 1e-6:
		return 1 / y
	}
	lo, hi := 1e-10, 2/y+10
	for i := 0; i < 200; i++ {
		mid := math.Sqrt(lo * hi)
		if trigamma(mid) > y {
			lo = mid
		} else {
			hi = mid
		}
	}
	return math.Sqrt(lo * hi)
}
