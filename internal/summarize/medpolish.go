package summarize

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	medpolishIter = 10
	medpolishEps  = 0.01
)

// medpolishMethod runs Tukey median polish on the matrix and reports
// overall + column effect per sample.
type medpolishMethod struct{}

func (medpolishMethod) Name() string { return "medpolish" }

func (medpolishMethod) Summarize(y *mat.Dense) ([]float64, error) {
	nr, nc := y.Dims()
	z := mat.DenseCopyOf(y)
	overall := 0.0
	row := make([]float64, nr)
	col := make([]float64, nc)

	oldsum := 0.0
	for iter := 0; iter < medpolishIter; iter++ {
		for i := 0; i < nr; i++ {
			d := median(z.RawRowView(i))
			if math.IsNaN(d) {
				continue
			}
			for j := 0; j < nc; j++ {
				z.Set(i, j, z.At(i, j)-d)
			}
			row[i] += d
		}
		if d := median(col); !math.IsNaN(d) {
			for j := range col {
				col[j] -= d
			}
			overall += d
		}

		for j := 0; j < nc; j++ {
			d := median(matColumn(z, j))
			if math.IsNaN(d) {
				continue
			}
			for i := 0; i < nr; i++ {
				z.Set(i, j, z.At(i, j)-d)
			}
			col[j] += d
		}
		if d := median(row); !math.IsNaN(d) {
			for i := range row {
				row[i] -= d
			}
			overall += d
		}

		newsum := sumAbsFinite(z)
		if newsum == 0 || math.Abs(newsum-oldsum) < medpolishEps*newsum {
			break
		}
		oldsum = newsum
	}

	out := make([]float64, nc)
	for j := 0; j < nc; j++ {
		out[j] = math.NaN()
		for i := 0; i < nr; i++ {
			if !math.IsNaN(y.At(i, j)) {
				out[j] = overall + col[j]
				break
			}
		}
	}
	return out, nil
}

func matColumn(m *mat.Dense, j int) []float64 {
	nr, _ := m.Dims()
	col := make([]float64, nr)
	for i := 0; i < nr; i++ {
		col[i] = m.At(i, j)
	}
	return col
}

func sumAbsFinite(m *mat.Dense) float64 {
	nr, nc := m.Dims()
	var s float64
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			if v := m.At(i, j); !math.IsNaN(v) {
				s += math.Abs(v)
			}
		}
	}
	return s
}
