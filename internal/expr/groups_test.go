package expr

import (
	"strings"
	"testing"

	"github.com/pepdiff/pepdiff/internal/fasta"
	"github.com/pepdiff/pepdiff/internal/maxquant"
)

func TestAnnotateGroups(t *testing.T) {
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows: []maxquant.PeptideRow{
			{Sequence: "AAAK", Proteins: "P1", GroupIDs: "7", Intensity: []float64{1}},
			// group composition disagrees with proteinGroups.txt on purpose
			{Sequence: "CCCK", Proteins: "P2;P9", Intensity: []float64{1}},
			{Sequence: "DDDR", Proteins: "P5", Intensity: []float64{1}},
		},
	})
	groups := []maxquant.ProteinGroup{
		{ID: "7", ProteinIDs: "P1;P8", OnlyBySite: true},
		{ID: "8", ProteinIDs: "P9", MajorityIDs: "P9", Contaminant: true},
	}
	s.AnnotateGroups(groups)

	if !s.Features[0].OnlyBySite {
		t.Errorf("feature 0 must inherit the only-by-site flag via its group id")
	}
	if !s.Features[1].Contaminant {
		t.Errorf("feature 1 must inherit the contaminant flag via member P9")
	}
	if s.Features[2].Contaminant || s.Features[2].Reverse || s.Features[2].OnlyBySite {
		t.Errorf("feature 2 must stay unflagged: %+v", s.Features[2])
	}
}

func TestAnnotateGroupsKeepsOwnFlags(t *testing.T) {
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows: []maxquant.PeptideRow{
			{Sequence: "AAAK", Proteins: "P1", Reverse: true, Intensity: []float64{1}},
		},
	})
	s.AnnotateGroups([]maxquant.ProteinGroup{{ID: "1", ProteinIDs: "P1"}})
	if !s.Features[0].Reverse {
		t.Errorf("reconciliation must not clear flags from the peptide table")
	}
}

func TestAnnotateSpecies(t *testing.T) {
	human, err := fasta.Read(strings.NewReader(">sp|P1|ONE_HUMAN x\nSEQ\n"))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	ecoli, err := fasta.Read(strings.NewReader(">sp|P2|TWO_ECOLI x\nSEQ\n"))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows: []maxquant.PeptideRow{
			{Sequence: "AAAK", Proteins: "P1", Intensity: []float64{1}},
			{Sequence: "CCCK", Proteins: "P2;P3", Intensity: []float64{1}},
			{Sequence: "DDDR", Proteins: "P4", Intensity: []float64{1}},
		},
	})
	s.AnnotateSpecies(human, ecoli)
	if !s.Features[0].Human || s.Features[0].Ecoli {
		t.Errorf("feature 0 flags mismatch: %+v", s.Features[0])
	}
	if s.Features[1].Human || !s.Features[1].Ecoli {
		t.Errorf("feature 1 flags mismatch: %+v", s.Features[1])
	}
	// No match resolves to false/false, never unset
	if s.Features[2].Human || s.Features[2].Ecoli {
		t.Errorf("feature 2 must default to false/false: %+v", s.Features[2])
	}
}

func TestAnnotateSpeciesNilSets(t *testing.T) {
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows:    []maxquant.PeptideRow{{Sequence: "AAAK", Proteins: "P1", Intensity: []float64{1}}},
	})
	s.AnnotateSpecies(nil, nil)
	if s.Features[0].Human || s.Features[0].Ecoli {
		t.Errorf("nil reference sets must resolve to false/false")
	}
}

func TestMinimalGroups(t *testing.T) {
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows: []maxquant.PeptideRow{
			{Sequence: "AAAK", Proteins: "P1", Intensity: []float64{1}},
			{Sequence: "CCCK", Proteins: "P1;P2", Intensity: []float64{1}},
			{Sequence: "DDDR", Proteins: "P3", Intensity: []float64{1}},
			{Sequence: "EEEK", Proteins: "P1", Intensity: []float64{1}},
		},
	})
	dropped := s.MinimalGroups()
	if dropped != 1 {
		t.Errorf("expected 1 dropped peptide, got %d", dropped)
	}
	ids, _ := s.Groups()
	if len(ids) != 2 || ids[0] != "P1" || ids[1] != "P3" {
		t.Errorf("unexpected surviving groups: %v", ids)
	}
	for _, f := range s.Features {
		if f.Group == "P1;P2" {
			t.Errorf("peptides of the ambiguous group must be dropped")
		}
	}
}

func TestMinimalGroupsDisjoint(t *testing.T) {
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows: []maxquant.PeptideRow{
			{Sequence: "AAAK", Proteins: "P1;P2", Intensity: []float64{1}},
			{Sequence: "CCCK", Proteins: "P3;P4", Intensity: []float64{1}},
		},
	})
	if dropped := s.MinimalGroups(); dropped != 0 {
		t.Errorf("disjoint groups must all survive, dropped %d", dropped)
	}
}

func TestRegroupByLeading(t *testing.T) {
	s := FromPeptides(&maxquant.PeptideTable{
		Samples: []string{"s1"},
		Rows: []maxquant.PeptideRow{
			{Sequence: "AAAK", Proteins: "P1;P2", LeadingRazor: "P1", Intensity: []float64{1}},
			{Sequence: "CCCK", Proteins: "P3", Intensity: []float64{1}},
		},
	})
	s.RegroupByLeading()
	if s.Features[0].Group != "P1" {
		t.Errorf("expected group P1, got %q", s.Features[0].Group)
	}
	if s.Features[1].Group != "P3" {
		t.Errorf("features without leading razor protein must keep their group, got %q", s.Features[1].Group)
	}
}
