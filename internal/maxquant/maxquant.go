package maxquant

import (
	"errors"
	"strings"
)

// DefaultIntensityPrefix marks the per-sample intensity columns in
// MaxQuant tables. The part after the prefix is the sample name.
const DefaultIntensityPrefix = "Intensity "

// Options control how MaxQuant tables are decoded.
type Options struct {
	IntensityPrefix string // column prefix for sample intensities, DefaultIntensityPrefix if empty
	Encoding        string // charset label of the input, UTF-8 if empty
}

// PeptideRow holds one row of a peptides.txt table.
type PeptideRow struct {
	Sequence     string
	Proteins     string // protein group identifier, ";"-separated accessions
	LeadingRazor string
	ID           string
	GroupIDs     string // numeric proteinGroups.txt ids, ";"-separated
	Reverse      bool
	Contaminant  bool
	Intensity    []float64 // one value per sample, NaN when missing
}

// PeptideTable is the parsed content of a peptides.txt file.
type PeptideTable struct {
	Samples []string // sample names, in column order
	Rows    []PeptideRow
}

// ProteinGroup holds one metadata row of a proteinGroups.txt table.
type ProteinGroup struct {
	ID          string
	ProteinIDs  string
	MajorityIDs string
	PeptideIDs  string
	Reverse     bool
	Contaminant bool
	OnlyBySite  bool
}

var (
	// ErrMissingColumn means a required column is absent from the table header
	ErrMissingColumn = errors.New("maxquant: missing column")
	// ErrNoIntensityColumns means no column name matches the intensity prefix
	ErrNoIntensityColumns = errors.New("maxquant: no intensity columns")
)

// SplitIDs splits a composite MaxQuant identifier list on ";".
// Empty elements are dropped.
func SplitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	ids := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
