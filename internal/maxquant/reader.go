package maxquant

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Table gives sequential access to the records of a tab-delimited
// MaxQuant output table.
type Table struct {
	r     *csv.Reader
	cols  map[string]int
	names []string
}

// Open prepares a MaxQuant table for reading. Gzip compressed input is
// detected from its magic bytes. A non-empty charset label is used to
// decode the input, which MaxQuant on Windows does not always write as
// UTF-8.
func Open(r io.Reader, encoding string) (*Table, error) {
	br := bufio.NewReader(r)
	var rd io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("maxquant: open: %w", err)
		}
		rd = gz
	}
	if encoding != "" {
		var err error
		rd, err = charset.NewReaderLabel(encoding, rd)
		if err != nil {
			return nil, fmt.Errorf("maxquant: encoding %q: %w", encoding, err)
		}
	}
	cr := csv.NewReader(rd)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("maxquant: read header: %w", err)
	}
	t := &Table{r: cr, cols: make(map[string]int, len(header)), names: header}
	for i, name := range header {
		t.cols[name] = i
	}
	return t, nil
}

// Columns returns the header names in file order.
func (t *Table) Columns() []string {
	return t.names
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Next returns the next record, or io.EOF after the last one.
func (t *Table) Next() ([]string, error) {
	return t.r.Read()
}

// Field returns the named column of a record, or "" when the column is
// absent from the table or the record is too short.
func (t *Table) Field(rec []string, name string) string {
	i, ok := t.cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// Flag returns a MaxQuant boolean column. The convention in these
// tables is that "+" means true and anything else means false.
func (t *Table) Flag(rec []string, name string) bool {
	return t.Field(rec, name) == "+"
}

// Number returns a numeric column of a record, or NaN when the cell is
// empty or not parseable.
func (t *Table) Number(rec []string, name string) float64 {
	i, ok := t.cols[name]
	if !ok {
		return math.NaN()
	}
	return parseCell(rec, i)
}

func parseCell(rec []string, i int) float64 {
	if i >= len(rec) {
		return math.NaN()
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ReadPeptides parses a peptides.txt table. Sample intensity columns
// are identified by the intensity prefix; the bare total "Intensity"
// column does not match and is skipped.
func ReadPeptides(r io.Reader, opts Options) (*PeptideTable, error) {
	prefix := opts.IntensityPrefix
	if prefix == "" {
		prefix = DefaultIntensityPrefix
	}
	t, err := Open(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	for _, req := range []string{"Sequence", "Proteins"} {
		if !t.HasColumn(req) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, req)
		}
	}
	var sampleCols []int
	var samples []string
	for i, name := range t.Columns() {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			sampleCols = append(sampleCols, i)
			samples = append(samples, name[len(prefix):])
		}
	}
	if len(sampleCols) == 0 {
		return nil, fmt.Errorf("%w: prefix %q", ErrNoIntensityColumns, prefix)
	}
	tbl := &PeptideTable{Samples: samples}
	for {
		rec, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("maxquant: read peptides: %w", err)
		}
		row := PeptideRow{
			Sequence:     t.Field(rec, "Sequence"),
			Proteins:     t.Field(rec, "Proteins"),
			LeadingRazor: t.Field(rec, "Leading razor protein"),
			ID:           t.Field(rec, "id"),
			GroupIDs:     t.Field(rec, "Protein group IDs"),
			Reverse:      t.Flag(rec, "Reverse"),
			Contaminant:  t.Flag(rec, "Potential contaminant") || t.Flag(rec, "Contaminant"),
			Intensity:    make([]float64, len(sampleCols)),
		}
		// Reverse hits may come with an empty Proteins column
		if row.Proteins == "" {
			row.Proteins = row.LeadingRazor
		}
		for k, ci := range sampleCols {
			row.Intensity[k] = parseCell(rec, ci)
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// ReadProteinGroups parses a proteinGroups.txt table.
func ReadProteinGroups(r io.Reader, opts Options) ([]ProteinGroup, error) {
	t, err := Open(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	if !t.HasColumn("Protein IDs") {
		return nil, fmt.Errorf("%w: Protein IDs", ErrMissingColumn)
	}
	var groups []ProteinGroup
	for {
		rec, err := t.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("maxquant: read protein groups: %w", err)
		}
		groups = append(groups, ProteinGroup{
			ID:          t.Field(rec, "id"),
			ProteinIDs:  t.Field(rec, "Protein IDs"),
			MajorityIDs: t.Field(rec, "Majority protein IDs"),
			PeptideIDs:  t.Field(rec, "Peptide IDs"),
			Reverse:     t.Flag(rec, "Reverse"),
			Contaminant: t.Flag(rec, "Potential contaminant") || t.Flag(rec, "Contaminant"),
			OnlyBySite:  t.Flag(rec, "Only identified by site"),
		})
	}
	return groups, nil
}
