package maxquant

import (
	"bytes"
	"compress/gzip"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const peptidesTxt = "Sequence\tProteins\tLeading razor protein\tIntensity\tIntensity cA_1\tIntensity cA_2\tIntensity cB_1\tReverse\tPotential contaminant\tid\tProtein group IDs\n" +
	"AAAK\tP1\tP1\t300\t100\t200\t0\t\t\t0\t7\n" +
	"CCCK\tP1;P2\tP1\t50\t\tNaN\t50\t\t+\t1\t7;8\n" +
	"DDDR\t\tREV__P3\t0\t0\t0\t0\t+\t\t2\t9\n"

func TestReadPeptides(t *testing.T) {
	tbl, err := ReadPeptides(strings.NewReader(peptidesTxt), Options{})
	if err != nil {
		t.Fatalf("ReadPeptides: error return %v", err)
	}
	wantSamples := []string{"cA_1", "cA_2", "cB_1"}
	if diff := cmp.Diff(wantSamples, tbl.Samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tbl.Rows))
	}

	r0 := tbl.Rows[0]
	if r0.Sequence != "AAAK" || r0.Proteins != "P1" || r0.LeadingRazor != "P1" {
		t.Errorf("row 0 annotation mismatch: %+v", r0)
	}
	if r0.ID != "0" || r0.GroupIDs != "7" {
		t.Errorf("row 0 ids mismatch: %+v", r0)
	}
	if r0.Intensity[0] != 100 || r0.Intensity[1] != 200 || r0.Intensity[2] != 0 {
		t.Errorf("row 0 intensities mismatch: %v", r0.Intensity)
	}

	r1 := tbl.Rows[1]
	if !math.IsNaN(r1.Intensity[0]) {
		t.Errorf("expected empty cell to parse as NaN, got %f", r1.Intensity[0])
	}
	if !math.IsNaN(r1.Intensity[1]) {
		t.Errorf("expected NaN cell to parse as NaN, got %f", r1.Intensity[1])
	}
	if !r1.Contaminant {
		t.Errorf("expected row 1 to be flagged as contaminant")
	}
	if r1.Reverse {
		t.Errorf("row 1 should not be flagged as reverse")
	}

	r2 := tbl.Rows[2]
	if !r2.Reverse {
		t.Errorf("expected row 2 to be flagged as reverse")
	}
	if r2.Proteins != "REV__P3" {
		t.Errorf("expected empty Proteins to fall back to leading razor protein, got %q", r2.Proteins)
	}
}

func TestReadPeptidesGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(peptidesTxt)); err != nil {
		t.Fatalf("gzip write: error return %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: error return %v", err)
	}
	tbl, err := ReadPeptides(&buf, Options{})
	if err != nil {
		t.Fatalf("ReadPeptides: error return %v", err)
	}
	if len(tbl.Rows) != 3 {
		t.Errorf("expected 3 rows from gzip input, got %d", len(tbl.Rows))
	}
}

func TestReadPeptidesCustomPrefix(t *testing.T) {
	in := "Sequence\tProteins\tLFQ intensity s1\tLFQ intensity s2\n" +
		"AAAK\tP1\t1\t2\n"
	tbl, err := ReadPeptides(strings.NewReader(in), Options{IntensityPrefix: "LFQ intensity "})
	if err != nil {
		t.Fatalf("ReadPeptides: error return %v", err)
	}
	if len(tbl.Samples) != 2 || tbl.Samples[0] != "s1" || tbl.Samples[1] != "s2" {
		t.Errorf("unexpected samples: %v", tbl.Samples)
	}
}

func TestReadPeptidesMissingColumn(t *testing.T) {
	_, err := ReadPeptides(strings.NewReader("Sequence\tIntensity a\nAAAK\t1\n"), Options{})
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}

	_, err = ReadPeptides(strings.NewReader("Sequence\tProteins\nAAAK\tP1\n"), Options{})
	if !errors.Is(err, ErrNoIntensityColumns) {
		t.Errorf("expected ErrNoIntensityColumns, got %v", err)
	}
}

func TestReadProteinGroups(t *testing.T) {
	in := "Protein IDs\tMajority protein IDs\tPeptide IDs\tReverse\tPotential contaminant\tOnly identified by site\tid\n" +
		"P1;P2\tP1\t0;1\t\t\t\t7\n" +
		"P9\tP9\t5\t+\t\t+\t8\n"
	groups, err := ReadProteinGroups(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("ReadProteinGroups: error return %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].ProteinIDs != "P1;P2" || groups[0].ID != "7" {
		t.Errorf("group 0 mismatch: %+v", groups[0])
	}
	if groups[0].Reverse || groups[0].OnlyBySite {
		t.Errorf("group 0 should carry no flags: %+v", groups[0])
	}
	if !groups[1].Reverse || !groups[1].OnlyBySite {
		t.Errorf("group 1 flags mismatch: %+v", groups[1])
	}
}

func TestSplitIDs(t *testing.T) {
	got := SplitIDs("P1; P2;;P3")
	want := []string{"P1", "P2", "P3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitIDs mismatch (-want +got):\n%s", diff)
	}
	if SplitIDs("") != nil {
		t.Errorf("expected nil for empty input")
	}
}
