package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pepdiff/pepdiff/internal/infer"
	"github.com/pepdiff/pepdiff/internal/lmm"
	"github.com/pepdiff/pepdiff/internal/normalize"
	"github.com/pepdiff/pepdiff/internal/summarize"
)

func TestDefaultValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Mode != "full" || c.Normalize != "vsn" || c.Summarize != "robust" {
		t.Errorf("unexpected defaults: mode=%q normalize=%q summarize=%q",
			c.Mode, c.Normalize, c.Summarize)
	}
	if c.FDR != 0.05 || c.Threads < 1 || len(c.Formulas) != 2 {
		t.Errorf("unexpected defaults: fdr=%v threads=%d formulas=%d",
			c.FDR, c.Threads, len(c.Formulas))
	}
	if c.MinSamplesPerCondition != 2 || c.MinObsPerPeptide != 2 || c.MinPeptides != 1 {
		t.Error("unexpected filter defaults")
	}
}

func TestLoadTOML(t *testing.T) {
	doc := `
peptides = "peptides.txt"
normalize = "median"
fdr = 0.01
drop_reverse = false
formulas = ["expression ~ (1|condition)"]
contrasts = ["B - A"]

[contrast_matrix]
levels = ["A", "B", "C"]

[[contrast_matrix.columns]]
name = "C - A"
coef = [-1.0, 0.0, 1.0]
`
	path := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Peptides != "peptides.txt" || c.Normalize != "median" || c.FDR != 0.01 {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.DropReverse {
		t.Error("drop_reverse override not applied")
	}
	if !c.DropContaminants || c.Summarize != "robust" {
		t.Error("defaults not kept for unset fields")
	}
	if len(c.Formulas) != 1 {
		t.Errorf("formulas = %v, want one", c.Formulas)
	}
	cs, err := c.AllContrasts()
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 || cs[0].Name != "B - A" || cs[1].Name != "C - A" {
		t.Errorf("contrasts = %v", cs)
	}
	if w := cs[1].Weights; w["C"] != 1 || w["A"] != -1 || len(w) != 2 {
		t.Errorf("matrix contrast weights = %v", w)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := "mode: MODEL\nsummarize: mean\nthreads: 3\ncontrasts:\n  - B - A\n"
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != "model" {
		t.Errorf("mode = %q, want model", c.Mode)
	}
	if c.Summarize != "mean" || c.Threads != 3 {
		t.Errorf("summarize = %q, threads = %d", c.Summarize, c.Threads)
	}
	if len(c.Contrasts) != 1 || c.Contrasts[0] != "B - A" {
		t.Errorf("contrasts = %v", c.Contrasts)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("run.json"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Load(run.json) error = %v, want ErrUnknownFormat", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"mode", func(c *Config) { c.Mode = "banana" }, ErrConfig},
		{"group_by", func(c *Config) { c.GroupBy = "genes" }, ErrConfig},
		{"normalize", func(c *Config) { c.Normalize = "loess" }, normalize.ErrUnknownMethod},
		{"summarize", func(c *Config) { c.Summarize = "tukey" }, summarize.ErrUnknownMethod},
		{"no formulas", func(c *Config) { c.Formulas = nil }, ErrConfig},
		{"bad formula", func(c *Config) { c.Formulas = []string{"y ~ x"} }, lmm.ErrFormulaSyntax},
		{"bad contrast", func(c *Config) { c.Contrasts = []string{"junk"} }, infer.ErrContrastSyntax},
		{"fdr zero", func(c *Config) { c.FDR = 0 }, ErrConfig},
		{"fdr high", func(c *Config) { c.FDR = 1.5 }, ErrConfig},
		{"min samples", func(c *Config) { c.MinSamplesPerCondition = 0 }, ErrConfig},
		{"pattern", func(c *Config) { c.ConditionPattern = "(" }, ErrConfig},
	} {
		c := Default()
		tc.mutate(c)
		if err := c.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("%s: Validate() = %v, want %v", tc.name, err, tc.want)
		}
	}

	c := Default()
	c.Threads = 0
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Threads < 1 {
		t.Errorf("threads = %d after Validate, want at least 1", c.Threads)
	}

	c = Default()
	c.Mode = " Full "
	if err := c.Validate(); err != nil || c.Mode != "full" {
		t.Errorf("mode canonicalization: %q, %v", c.Mode, err)
	}
}
