package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/pepdiff/pepdiff/internal/expr"
)

func testRun() *Run {
	s2, df := 1.5, 6.25
	return &Run{
		ID:        "run-1",
		Version:   "Unknown",
		Started:   time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
		Finished:  time.Date(2026, 8, 21, 10, 0, 5, 0, time.UTC),
		Mode:      "full",
		GroupBy:   "proteins",
		Normalize: "vsn",
		Summarize: "robust",

		Samples:    []string{"s1", "s2", "s3", "s4"},
		Conditions: []string{"A", "B"},
		Contrasts:  []string{"B - A"},
		NPeptides:  5,
		NGroups:    2,

		Groups: []Group{
			{
				ID: "P1", Leading: "P1", NPeptides: 3, Human: true,
				Formula: "expression ~ (1|condition)",
				Sigma2:  &s2, DF: &df,
				Contrasts: []ContrastResult{{
					Name: "B - A", LogFC: 2, SE: 0.5, T: 4, DF: 8.5,
					P: 0.001, Q: 0.002, Significant: true,
				}},
			},
			{
				ID: "P2", Leading: "P2", NPeptides: 1, Ecoli: true,
				FitError: "lmm: too few observations",
			},
		},
	}
}

func TestWriteTSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTSV(&buf, testRun()); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		strings.Join([]string{
			"Protein group", "Leading", "Peptides",
			"Human", "Ecoli", "Reverse", "Contaminant", "Only by site",
			"Formula", "Sigma2", "DF",
			"B - A logFC", "B - A SE", "B - A t", "B - A df",
			"B - A pvalue", "B - A qvalue", "B - A signif",
		}, "\t"),
		strings.Join([]string{
			"P1", "P1", "3", "+", "", "", "", "",
			"expression ~ (1|condition)", "1.5", "6.25",
			"2", "0.5", "4", "8.5", "0.001", "0.002", "+",
		}, "\t"),
		strings.Join([]string{
			"P2", "P2", "1", "", "+", "", "", "",
			"", "NA", "NA",
			"NA", "NA", "NA", "NA", "NA", "NA", "NA",
		}, "\t"),
	}, "\n") + "\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("TSV mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	run := testRun()
	var buf bytes.Buffer
	if err := WriteJSON(&buf, run); err != nil {
		t.Fatal(err)
	}
	var got Run
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(*run, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteMatrix(t *testing.T) {
	nan := math.NaN()
	s := &expr.Set{
		X: mat.NewDense(2, 2, []float64{1.5, nan, 2, 3}),
		Features: []expr.Feature{
			{ID: "AAK", Group: "P1"},
			{ID: "LLR", Group: "P2"},
		},
		Samples: []expr.Sample{{Name: "s1"}, {Name: "s2"}},
	}
	var buf bytes.Buffer
	if err := WriteMatrix(&buf, s); err != nil {
		t.Fatal(err)
	}
	want := "Sequence\tProtein group\ts1\ts2\n" +
		"AAK\tP1\t1.5\tNA\n" +
		"LLR\tP2\t2\t3\n"
	if got := buf.String(); got != want {
		t.Errorf("matrix = %q, want %q", got, want)
	}
}

func TestFinite(t *testing.T) {
	if Finite(math.NaN()) != nil || Finite(math.Inf(1)) != nil {
		t.Error("Finite should reject NaN and Inf")
	}
	if p := Finite(2.5); p == nil || *p != 2.5 {
		t.Error("Finite rejected a finite value")
	}
}
