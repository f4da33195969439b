// Package config loads and validates the analysis configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/pepdiff/pepdiff/internal/infer"
	"github.com/pepdiff/pepdiff/internal/lmm"
	"github.com/pepdiff/pepdiff/internal/maxquant"
	"github.com/pepdiff/pepdiff/internal/normalize"
	"github.com/pepdiff/pepdiff/internal/summarize"
)

// ErrConfig means a configuration value is out of range
var ErrConfig = errors.New("config: invalid")

// ErrUnknownFormat means the configuration file extension is not
// supported
var ErrUnknownFormat = errors.New("config: unknown file format")

// Config holds every knob of an analysis run. Zero values are filled
// in by Default; files loaded with Load only override what they set.
type Config struct {
	// Inputs.
	Peptides      string `toml:"peptides" yaml:"peptides"`
	ProteinGroups string `toml:"protein_groups" yaml:"protein_groups"`
	Samples       string `toml:"samples" yaml:"samples"`
	HumanFasta    string `toml:"human_fasta" yaml:"human_fasta"`
	EcoliFasta    string `toml:"ecoli_fasta" yaml:"ecoli_fasta"`

	// Reading.
	IntensityPrefix  string `toml:"intensity_prefix" yaml:"intensity_prefix"`
	Encoding         string `toml:"encoding" yaml:"encoding"`
	ConditionPattern string `toml:"condition_pattern" yaml:"condition_pattern"`

	// Row dropping.
	DropReverse      bool `toml:"drop_reverse" yaml:"drop_reverse"`
	DropContaminants bool `toml:"drop_contaminants" yaml:"drop_contaminants"`
	DropOnlyBySite   bool `toml:"drop_only_by_site" yaml:"drop_only_by_site"`

	// Filtering.
	MinSamplesPerCondition int `toml:"min_samples_per_condition" yaml:"min_samples_per_condition"`
	MinObsPerPeptide       int `toml:"min_obs_per_peptide" yaml:"min_obs_per_peptide"`
	MinPeptides            int `toml:"min_peptides" yaml:"min_peptides"`

	// Processing.
	Mode      string   `toml:"mode" yaml:"mode"`
	GroupBy   string   `toml:"group_by" yaml:"group_by"`
	Normalize string   `toml:"normalize" yaml:"normalize"`
	Summarize string   `toml:"summarize" yaml:"summarize"`
	Formulas  []string `toml:"formulas" yaml:"formulas"`

	// Testing.
	Contrasts      []string        `toml:"contrasts" yaml:"contrasts"`
	ContrastMatrix *ContrastMatrix `toml:"contrast_matrix" yaml:"contrast_matrix"`
	FDR            float64         `toml:"fdr" yaml:"fdr"`

	Threads int `toml:"threads" yaml:"threads"`
}

// ContrastMatrix declares contrast weights explicitly, one weight per
// condition level and one named column per contrast.
type ContrastMatrix struct {
	Levels  []string         `toml:"levels" yaml:"levels"`
	Columns []ContrastColumn `toml:"columns" yaml:"columns"`
}

type ContrastColumn struct {
	Name string    `toml:"name" yaml:"name"`
	Coef []float64 `toml:"coef" yaml:"coef"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		IntensityPrefix: maxquant.DefaultIntensityPrefix,

		DropReverse:      true,
		DropContaminants: true,
		DropOnlyBySite:   true,

		MinSamplesPerCondition: 2,
		MinObsPerPeptide:       2,
		MinPeptides:            1,

		Mode:      "full",
		GroupBy:   "proteins",
		Normalize: "vsn",
		Summarize: "robust",
		Formulas: []string{
			"expression ~ (1|condition) + (1|sample) + (1|feature)",
			"expression ~ (1|condition)",
		},

		FDR:     0.05,
		Threads: runtime.NumCPU(),
	}
}

// Load reads a TOML or YAML configuration file over the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration and canonicalizes the method
// names. It modifies the receiver.
func (c *Config) Validate() error {
	c.Mode = canon(c.Mode, "full")
	switch c.Mode {
	case "full", "summarize", "model":
	default:
		return fmt.Errorf("%w: mode %q", ErrConfig, c.Mode)
	}

	c.GroupBy = canon(c.GroupBy, "proteins")
	switch c.GroupBy {
	case "proteins", "leading":
	default:
		return fmt.Errorf("%w: group_by %q", ErrConfig, c.GroupBy)
	}

	c.Normalize = canon(c.Normalize, "vsn")
	if _, err := normalize.ByName(c.Normalize); err != nil {
		return err
	}
	c.Summarize = canon(c.Summarize, "robust")
	if _, err := summarize.ByName(c.Summarize); err != nil {
		return err
	}

	if len(c.Formulas) == 0 {
		return fmt.Errorf("%w: no model formulas", ErrConfig)
	}
	for _, f := range c.Formulas {
		if _, err := lmm.Parse(f); err != nil {
			return err
		}
	}

	if _, err := infer.ParseContrasts(c.Contrasts); err != nil {
		return err
	}
	if m := c.ContrastMatrix; m != nil {
		names := make([]string, len(m.Columns))
		coefs := make([][]float64, len(m.Columns))
		for i, col := range m.Columns {
			names[i] = col.Name
			coefs[i] = col.Coef
		}
		if _, err := infer.FromMatrix(m.Levels, names, coefs); err != nil {
			return err
		}
	}

	if c.FDR <= 0 || c.FDR > 1 {
		return fmt.Errorf("%w: fdr %v not in (0, 1]", ErrConfig, c.FDR)
	}
	if c.MinSamplesPerCondition < 1 || c.MinObsPerPeptide < 1 || c.MinPeptides < 1 {
		return fmt.Errorf("%w: filter thresholds must be at least 1", ErrConfig)
	}
	if c.ConditionPattern != "" {
		if _, err := regexp.Compile(c.ConditionPattern); err != nil {
			return fmt.Errorf("%w: condition_pattern: %v", ErrConfig, err)
		}
	}
	if c.Threads < 1 {
		c.Threads = runtime.NumCPU()
	}
	return nil
}

// AllContrasts resolves the configured contrasts, list entries first,
// then matrix columns.
func (c *Config) AllContrasts() ([]infer.Contrast, error) {
	out, err := infer.ParseContrasts(c.Contrasts)
	if err != nil {
		return nil, err
	}
	if m := c.ContrastMatrix; m != nil {
		names := make([]string, len(m.Columns))
		coefs := make([][]float64, len(m.Columns))
		for i, col := range m.Columns {
			names[i] = col.Name
			coefs[i] = col.Coef
		}
		more, err := infer.FromMatrix(m.Levels, names, coefs)
		if err != nil {
			return nil, err
		}
		out = append(out, more...)
	}
	return out, nil
}

func canon(s, def string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}
