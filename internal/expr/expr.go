package expr

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pepdiff/pepdiff/internal/maxquant"
)

// Feature is the annotation of one peptide row of the matrix. A
// summarized protein row uses the same type with Peptides holding the
// number of rows that went into it.
type Feature struct {
	ID          string   // peptide sequence
	Group       string   // protein group identifier
	Members     []string // accessions of the group
	Leading     string   // leading razor protein
	GroupIDs    string   // numeric proteinGroups.txt ids
	Peptides    int      // collapsed row count, zero on peptide rows
	Reverse     bool
	Contaminant bool
	OnlyBySite  bool
	Human       bool
	Ecoli       bool
}

// Sample is the annotation of one sample column of the matrix.
type Sample struct {
	Name      string
	Condition string
}

// Set is an annotated intensity matrix: features (peptides) by samples,
// NaN marking missing cells. Rows are only ever removed after
// construction, never added. X is nil exactly when the set has no
// features left.
type Set struct {
	X        *mat.Dense
	Features []Feature
	Samples  []Sample
}

// Obs is one observed cell of the matrix in long format.
type Obs struct {
	Feature    string
	Sample     string
	Group      string
	Condition  string
	Expression float64
}

var (
	// ErrNoCondition means a sample could not be assigned a condition label
	ErrNoCondition = errors.New("expr: no condition for sample")
)

// FromPeptides builds an annotated intensity matrix from a parsed
// peptides table.
func FromPeptides(t *maxquant.PeptideTable) *Set {
	s := &Set{Samples: make([]Sample, len(t.Samples))}
	for j, name := range t.Samples {
		s.Samples[j] = Sample{Name: name}
	}
	if len(t.Rows) == 0 {
		return s
	}
	s.X = mat.NewDense(len(t.Rows), len(t.Samples), nil)
	s.Features = make([]Feature, len(t.Rows))
	for i, row := range t.Rows {
		s.Features[i] = Feature{
			ID:          row.Sequence,
			Group:       row.Proteins,
			Members:     maxquant.SplitIDs(row.Proteins),
			Leading:     row.LeadingRazor,
			GroupIDs:    row.GroupIDs,
			Reverse:     row.Reverse,
			Contaminant: row.Contaminant,
		}
		s.X.SetRow(i, row.Intensity)
	}
	return s
}

// NumFeatures returns the number of feature rows.
func (s *Set) NumFeatures() int {
	return len(s.Features)
}

// NumSamples returns the number of sample columns.
func (s *Set) NumSamples() int {
	return len(s.Samples)
}

// Observed reports whether cell (i, j) holds a measured value.
func (s *Set) Observed(i, j int) bool {
	return !math.IsNaN(s.X.At(i, j))
}

// ObsCount returns the number of observed cells in feature row i.
func (s *Set) ObsCount(i int) int {
	n := 0
	for j := 0; j < s.NumSamples(); j++ {
		if s.Observed(i, j) {
			n++
		}
	}
	return n
}

// TotalObserved returns the number of observed cells in the matrix.
func (s *Set) TotalObserved() int {
	n := 0
	for i := 0; i < s.NumFeatures(); i++ {
		n += s.ObsCount(i)
	}
	return n
}

// MaskZeros replaces zero intensities with NaN and returns the number
// of cells masked. MaxQuant writes zero for not-quantified.
func (s *Set) MaskZeros() int {
	n := 0
	for i := 0; i < s.NumFeatures(); i++ {
		for j := 0; j < s.NumSamples(); j++ {
			if s.X.At(i, j) == 0 {
				s.X.Set(i, j, math.NaN())
				n++
			}
		}
	}
	return n
}

// Log2 transforms all observed cells in place.
func (s *Set) Log2() {
	for i := 0; i < s.NumFeatures(); i++ {
		for j := 0; j < s.NumSamples(); j++ {
			if v := s.X.At(i, j); !math.IsNaN(v) {
				s.X.Set(i, j, math.Log2(v))
			}
		}
	}
}

// KeepFeatures drops every row for which keep returns false, compacting
// the matrix and annotations in place, and returns the number of rows
// removed.
func (s *Set) KeepFeatures(keep func(i int, f Feature) bool) int {
	nf := s.NumFeatures()
	idx := make([]int, 0, nf)
	for i := 0; i < nf; i++ {
		if keep(i, s.Features[i]) {
			idx = append(idx, i)
		}
	}
	if len(idx) == nf {
		return 0
	}
	if len(idx) == 0 {
		s.X = nil
		s.Features = nil
		return nf
	}
	nx := mat.NewDense(len(idx), s.NumSamples(), nil)
	for k, i := range idx {
		nx.SetRow(k, s.X.RawRowView(i))
		s.Features[k] = s.Features[i]
	}
	s.X = nx
	s.Features = s.Features[:len(idx)]
	return nf - len(idx)
}

// SetConditions assigns condition labels by sample name.
func (s *Set) SetConditions(byName map[string]string) error {
	for j := range s.Samples {
		c, ok := byName[s.Samples[j].Name]
		if !ok || c == "" {
			return fmt.Errorf("%w: %s", ErrNoCondition, s.Samples[j].Name)
		}
		s.Samples[j].Condition = c
	}
	return nil
}

// SetConditionsPattern derives condition labels from sample names using
// the first capture group of re, or the whole match when the pattern
// has no groups.
func (s *Set) SetConditionsPattern(re *regexp.Regexp) error {
	for j := range s.Samples {
		m := re.FindStringSubmatch(s.Samples[j].Name)
		if m == nil {
			return fmt.Errorf("%w: %s does not match %s", ErrNoCondition, s.Samples[j].Name, re)
		}
		c := m[0]
		if len(m) > 1 {
			c = m[1]
		}
		if c == "" {
			return fmt.Errorf("%w: %s matches %s with empty label", ErrNoCondition, s.Samples[j].Name, re)
		}
		s.Samples[j].Condition = c
	}
	return nil
}

// Conditions returns the distinct condition labels, sorted.
func (s *Set) Conditions() []string {
	seen := make(map[string]bool, len(s.Samples))
	var cs []string
	for _, sm := range s.Samples {
		if sm.Condition != "" && !seen[sm.Condition] {
			seen[sm.Condition] = true
			cs = append(cs, sm.Condition)
		}
	}
	sort.Strings(cs)
	return cs
}

// Groups returns the distinct protein group identifiers in sorted order
// together with the feature row indices of each group.
func (s *Set) Groups() ([]string, map[string][]int) {
	rows := make(map[string][]int)
	var ids []string
	for i, f := range s.Features {
		if _, ok := rows[f.Group]; !ok {
			ids = append(ids, f.Group)
		}
		rows[f.Group] = append(rows[f.Group], i)
	}
	sort.Strings(ids)
	return ids, rows
}

// Long returns the observed cells as a long-format observation table,
// one row per (feature, sample, group, condition, expression) tuple.
func (s *Set) Long() []Obs {
	var out []Obs
	for i := 0; i < s.NumFeatures(); i++ {
		for j := 0; j < s.NumSamples(); j++ {
			if !s.Observed(i, j) {
				continue
			}
			out = append(out, Obs{
				Feature:    s.Features[i].ID,
				Sample:     s.Samples[j].Name,
				Group:      s.Features[i].Group,
				Condition:  s.Samples[j].Condition,
				Expression: s.X.At(i, j),
			})
		}
	}
	return out
}
