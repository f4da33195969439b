// Package report renders analysis results as JSON, TSV and matrix
// files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/pepdiff/pepdiff/internal/expr"
)

// Run is the complete result of one analysis run. Every float stored
// here must be finite so the run can be serialized as JSON; use Finite
// to build the optional fields.
type Run struct {
	ID       string    `json:"id"`
	Version  string    `json:"version"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Mode      string `json:"mode"`
	GroupBy   string `json:"group_by"`
	Normalize string `json:"normalize"`
	Summarize string `json:"summarize"`

	Samples    []string `json:"samples"`
	Conditions []string `json:"conditions"`
	Contrasts  []string `json:"contrasts,omitempty"`
	Formulas   []string `json:"formulas,omitempty"`

	NPeptides int `json:"peptides"`
	NGroups   int `json:"groups_total"`

	PriorDF  *float64 `json:"prior_df,omitempty"`
	PriorS02 *float64 `json:"prior_s02,omitempty"`

	Groups []Group `json:"results"`
}

// Group is the per-protein-group result. Sigma2 and DF are nil when no
// model could be fitted, and FitError then records why.
type Group struct {
	ID          string   `json:"id"`
	Members     []string `json:"members,omitempty"`
	Leading     string   `json:"leading,omitempty"`
	NPeptides   int      `json:"peptides"`
	Human       bool     `json:"human,omitempty"`
	Ecoli       bool     `json:"ecoli,omitempty"`
	Reverse     bool     `json:"reverse,omitempty"`
	Contaminant bool     `json:"contaminant,omitempty"`
	OnlyBySite  bool     `json:"only_by_site,omitempty"`

	Formula  string   `json:"formula,omitempty"`
	FitError string   `json:"fit_error,omitempty"`
	Sigma2   *float64 `json:"sigma2,omitempty"`
	DF       *float64 `json:"df,omitempty"`

	Contrasts []ContrastResult `json:"contrasts,omitempty"`
}

// ContrastResult is one tested contrast of one group. All fields are
// finite.
type ContrastResult struct {
	Name        string  `json:"name"`
	LogFC       float64 `json:"logfc"`
	SE          float64 `json:"se"`
	T           float64 `json:"t"`
	DF          float64 `json:"df"`
	P           float64 `json:"pvalue"`
	Q           float64 `json:"qvalue"`
	Significant bool    `json:"significant"`
}

// Finite returns a pointer to v when v is finite, nil otherwise.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// WriteJSON writes the run as indented JSON.
func WriteJSON(w io.Writer, run *Run) error {
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `)
	return e.Encode(run)
}

// WriteTSV writes the per-group results as a tab separated table with
// one column block per contrast in run.Contrasts. Missing values are
// written as NA, flags as + or empty.
func WriteTSV(w io.Writer, run *Run) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := []string{
		"Protein group", "Leading", "Peptides",
		"Human", "Ecoli", "Reverse", "Contaminant", "Only by site",
		"Formula", "Sigma2", "DF",
	}
	for _, c := range run.Contrasts {
		header = append(header,
			c+" logFC", c+" SE", c+" t", c+" df",
			c+" pvalue", c+" qvalue", c+" signif")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, g := range run.Groups {
		byName := make(map[string]ContrastResult, len(g.Contrasts))
		for _, c := range g.Contrasts {
			byName[c.Name] = c
		}
		rec := []string{
			g.ID, g.Leading, strconv.Itoa(g.NPeptides),
			flag(g.Human), flag(g.Ecoli), flag(g.Reverse),
			flag(g.Contaminant), flag(g.OnlyBySite),
			g.Formula, fmtPtr(g.Sigma2), fmtPtr(g.DF),
		}
		for _, name := range run.Contrasts {
			c, ok := byName[name]
			if !ok {
				rec = append(rec, "NA", "NA", "NA", "NA", "NA", "NA", "NA")
				continue
			}
			rec = append(rec,
				fmtFloat(c.LogFC), fmtFloat(c.SE), fmtFloat(c.T),
				fmtFloat(c.DF), fmtFloat(c.P), fmtFloat(c.Q),
				flag(c.Significant))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatrix writes the expression matrix as a tab separated table,
// one row per feature.
func WriteMatrix(w io.Writer, s *expr.Set) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := []string{"Sequence", "Protein group"}
	for _, sm := range s.Samples {
		header = append(header, sm.Name)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < s.NumFeatures(); i++ {
		rec := []string{s.Features[i].ID, s.Features[i].Group}
		for j := 0; j < s.NumSamples(); j++ {
			rec = append(rec, fmtFloat(s.X.At(i, j)))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "NA"
	}
	return fmtFloat(*v)
}

func flag(b bool) string {
	if b {
		return "+"
	}
	return ""
}
