package summarize

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestByName(t *testing.T) {
	for name, want := range map[string]string{
		"":          "robust",
		"robust":    "robust",
		"medpolish": "medpolish",
		"mean":      "mean",
		"median":    "median",
	} {
		m, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if m.Name() != want {
			t.Errorf("ByName(%q).Name() = %q, want %q", name, m.Name(), want)
		}
	}
	if _, err := ByName("tukey"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("ByName(tukey) error = %v, want ErrUnknownMethod", err)
	}
}

func TestMeanMedian(t *testing.T) {
	nan := math.NaN()
	y := mat.NewDense(3, 2, []float64{
		1, 2,
		3, nan,
		5, 4,
	})
	for _, tc := range []struct {
		name string
		want []float64
	}{
		{"mean", []float64{3, 3}},
		{"median", []float64{3, 3}},
	} {
		m, _ := ByName(tc.name)
		got, err := m.Summarize(y)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		for j, want := range tc.want {
			if got[j] != want {
				t.Errorf("%s sample %d = %v, want %v", tc.name, j, got[j], want)
			}
		}
	}
}

func TestRobustSinglePeptide(t *testing.T) {
	nan := math.NaN()
	y := mat.NewDense(1, 3, []float64{20, 21, nan})
	m, _ := ByName("robust")
	got, err := m.Summarize(y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got[0]-20) > 1e-5 || math.Abs(got[1]-21) > 1e-5 {
		t.Errorf("single peptide not passed through: got %v", got)
	}
	if !math.IsNaN(got[2]) {
		t.Errorf("sample without observations = %v, want NaN", got[2])
	}
}

func TestRobustOffsetPeptides(t *testing.T) {
	// Two peptides measuring the same profile four log2 units apart.
	// The additive fit reproduces the column means exactly.
	y := mat.NewDense(2, 4, []float64{
		20, 21, 22, 23,
		16, 17, 18, 19,
	})
	m, _ := ByName("robust")
	got, err := m.Summarize(y)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{18, 19, 20, 21}
	for j := range want {
		if math.Abs(got[j]-want[j]) > 1e-4 {
			t.Errorf("sample %d = %v, want %v", j, got[j], want[j])
		}
	}
}

func TestRobustOutlier(t *testing.T) {
	// The last cell of the second peptide is ten units too high.
	y := mat.NewDense(2, 4, []float64{
		20, 21, 22, 20.5,
		18, 19, 20, 28.5,
	})
	robust, _ := ByName("robust")
	got, err := robust.Summarize(y)
	if err != nil {
		t.Fatal(err)
	}
	mean, _ := ByName("mean")
	avg, _ := mean.Summarize(y)

	if got[3] >= avg[3]-1 {
		t.Errorf("outlier sample: robust %v not pulled below mean %v", got[3], avg[3])
	}
	if math.Abs(got[0]-19) > 0.5 {
		t.Errorf("clean sample 0 = %v, want about 19", got[0])
	}
}

func TestRobustEmpty(t *testing.T) {
	nan := math.NaN()
	y := mat.NewDense(2, 2, []float64{nan, nan, nan, nan})
	m, _ := ByName("robust")
	got, err := m.Summarize(y)
	if err != nil {
		t.Fatal(err)
	}
	for j, v := range got {
		if !math.IsNaN(v) {
			t.Errorf("sample %d = %v, want NaN", j, v)
		}
	}
}

func TestMedpolish(t *testing.T) {
	// Perfectly additive matrix: overall 10, row effects 0 and 2,
	// column effects 0, 1 and 3.
	y := mat.NewDense(2, 3, []float64{
		10, 11, 13,
		12, 13, 15,
	})
	m, _ := ByName("medpolish")
	got, err := m.Summarize(y)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{11, 12, 14}
	for j := range want {
		if math.Abs(got[j]-want[j]) > 1e-12 {
			t.Errorf("sample %d = %v, want %v", j, got[j], want[j])
		}
	}
}

func TestMedpolishMissingColumn(t *testing.T) {
	nan := math.NaN()
	y := mat.NewDense(2, 3, []float64{
		10, 11, nan,
		12, 13, nan,
	})
	m, _ := ByName("medpolish")
	got, err := m.Summarize(y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got[0]-11) > 1e-12 || math.Abs(got[1]-12) > 1e-12 {
		t.Errorf("got %v, want [11 12 NaN]", got)
	}
	if !math.IsNaN(got[2]) {
		t.Errorf("unobserved sample = %v, want NaN", got[2])
	}
}

func TestMedian(t *testing.T) {
	nan := math.NaN()
	for _, tc := range []struct {
		in   []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 2, 3}, 2.5},
		{[]float64{5, nan, 1}, 3},
		{[]float64{nan, nan}, nan},
	} {
		got := median(tc.in)
		if math.IsNaN(tc.want) {
			if !math.IsNaN(got) {
				t.Errorf("median(%v) = %v, want NaN", tc.in, got)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("median(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
