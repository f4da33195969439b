// Copyright 2025 The pepdiff Authors.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pepdiff/pepdiff/internal/config"
	"github.com/pepdiff/pepdiff/internal/pipeline"
	"github.com/pepdiff/pepdiff/internal/report"
)

// Program name and version, written to the JSON run report
const progName = "pepdiff"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	cfgFilename      *string // TOML or YAML configuration file
	groupsFilename   *string // proteinGroups.txt matching the peptides table
	samplesFilename  *string // sample to condition annotation table
	humanFasta       *string
	ecoliFasta       *string
	intensityPrefix  *string
	encoding         *string
	condPattern      *string
	dropReverse      *bool
	dropContaminants *bool
	dropOnlySite     *bool
	minSamples       *int // minimum samples per (group, condition) pair
	minObs           *int // minimum observations per peptide
	minPeps          *int // minimum peptides per protein group
	mode             *string
	groupBy          *string
	normalize        *string
	summarizeBy      *string
	formulas         *string // ";"-separated model formulas
	contrasts        *string // ","-separated contrast definitions
	fdr              *float64
	threads          *int
	outTSV           *string
	outJSON          *string
	outMatrix        *string
	outPepMatrix     *string
	verbosity        int      // verbosity of progress messages (infoDefault...)
	args             []string // additional values passed on the command line
	debug            bool     // enable debug logging (environment variable PEPDIFF_DEBUG=1)
}

// loadConfig reads the configuration file when one was given and
// returns the built-in defaults otherwise.
func loadConfig(par *params) *config.Config {
	if *par.cfgFilename == "" {
		return config.Default()
	}
	cfg, err := config.Load(*par.cfgFilename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load configuration: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// applyFlags copies every option that was set on the command line over
// the loaded configuration, so that flags always win over the file.
func applyFlags(par *params, cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "groups":
			cfg.ProteinGroups = *par.groupsFilename
		case "samples":
			cfg.Samples = *par.samplesFilename
		case "humanfasta":
			cfg.HumanFasta = *par.humanFasta
		case "ecolifasta":
			cfg.EcoliFasta = *par.ecoliFasta
		case "iprefix":
			cfg.IntensityPrefix = *par.intensityPrefix
		case "encoding":
			cfg.Encoding = *par.encoding
		case "condpattern":
			cfg.ConditionPattern = *par.condPattern
		case "dropreverse":
			cfg.DropReverse = *par.dropReverse
		case "dropcontaminants":
			cfg.DropContaminants = *par.dropContaminants
		case "droponlysite":
			cfg.DropOnlyBySite = *par.dropOnlySite
		case "minsamples":
			cfg.MinSamplesPerCondition = *par.minSamples
		case "minobs":
			cfg.MinObsPerPeptide = *par.minObs
		case "minpeps":
			cfg.MinPeptides = *par.minPeps
		case "mode":
			cfg.Mode = *par.mode
		case "groupby":
			cfg.GroupBy = *par.groupBy
		case "normalize":
			cfg.Normalize = *par.normalize
		case "summarize":
			cfg.Summarize = *par.summarizeBy
		case "formulas":
			cfg.Formulas = splitList(*par.formulas, ";")
		case "contrasts":
			cfg.Contrasts = splitList(*par.contrasts, ",")
		case "fdr":
			cfg.FDR = *par.fdr
		case "threads":
			cfg.Threads = *par.threads
		}
	})
}

// splitList splits a separated command line list, dropping empty
// elements.
func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sanitizeParams does some checks on parameters, and fills missing
// output filenames from the name of the peptides file.
func sanitizeParams(par *params, cfg *config.Config) {
	exeName := filepath.Base(os.Args[0])

	if len(par.args) != 1 {
		fmt.Fprintf(os.Stderr, `Last argument must be the name of a peptides.txt file.
Type %s --help for usage
`, exeName)
		os.Exit(2)
	}
	cfg.Peptides = par.args[0]

	var extension = filepath.Ext(cfg.Peptides)
	var startName = cfg.Peptides[0 : len(cfg.Peptides)-len(extension)]

	if *par.outTSV == "" {
		*par.outTSV = startName + "-diff.txt"
	}
	if *par.outJSON == "" {
		*par.outJSON = startName + "-diff.json"
	}
	if *par.outMatrix == "" {
		*par.outMatrix = startName + "-proteins.txt"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, `Invalid configuration: %v
Type %s --help for usage
`, err, exeName)
		os.Exit(2)
	}
}

func newLogger(par *params) zerolog.Logger {
	level := zerolog.InfoLevel
	if s := os.Getenv("PEPDIFF_LOG_LEVEL"); s != "" {
		if l, err := zerolog.ParseLevel(s); err == nil {
			level = l
		}
	}
	switch {
	case par.debug || par.verbosity == infoVerbose:
		level = zerolog.DebugLevel
	case par.verbosity == infoSilent:
		level = zerolog.ErrorLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeReports(par *params, res *pipeline.Result, logger zerolog.Logger) {
	if err := writeFile(*par.outTSV, func(w io.Writer) error {
		return report.WriteTSV(w, res.Run)
	}); err != nil {
		logger.Fatal().Err(err).Str("file", *par.outTSV).Msg("writing result table")
	}
	if err := writeFile(*par.outJSON, func(w io.Writer) error {
		return report.WriteJSON(w, res.Run)
	}); err != nil {
		logger.Fatal().Err(err).Str("file", *par.outJSON).Msg("writing JSON report")
	}
	if res.Proteins != nil {
		if err := writeFile(*par.outMatrix, func(w io.Writer) error {
			return report.WriteMatrix(w, res.Proteins)
		}); err != nil {
			logger.Fatal().Err(err).Str("file", *par.outMatrix).Msg("writing protein matrix")
		}
	}
	if *par.outPepMatrix != "" {
		if err := writeFile(*par.outPepMatrix, func(w io.Writer) error {
			return report.WriteMatrix(w, res.Peptides)
		}); err != nil {
			logger.Fatal().Err(err).Str("file", *par.outPepMatrix).Msg("writing peptide matrix")
		}
	}
	logger.Info().Str("table", *par.outTSV).Str("json", *par.outJSON).Msg("reports written")
}

func usage() {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr,
		`USAGE:
  %s [options] <peptides.txt>

  This program tests protein groups for differential expression between
  sample conditions, using the peptide intensities of a MaxQuant
  peptides.txt file. Peptide intensities are normalized, summarized per
  protein group and fitted with a mixed model per group; the configured
  contrasts are then tested with moderated t statistics and
  Benjamini-Hochberg adjusted p-values.

OPTIONS:
`, exeName)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr,
		`
ENVIRONMENT VARIABLES:
    When environment variable PEPDIFF_DEBUG=1, per group fit and
    contrast diagnostics are included in the progress output of %s.
    PEPDIFF_LOG_LEVEL sets the progress verbosity directly (trace,
    debug, info, warn or error); -verbose and -quiet take precedence.

USAGE EXAMPLES:
  %s -samples samples.txt peptides.txt
    Test all pairwise contrasts of the conditions annotated in
    samples.txt. The result table is written to peptides-diff.txt, the
    run report to peptides-diff.json and the summarized protein matrix
    to peptides-proteins.txt.

  %s -cfg spikein.toml -normalize median -fdr 0.01 peptides.txt
    Idem, but with options read from spikein.toml, median normalization
    and a stricter significance cutoff. Options given on the command
    line override the configuration file.

NOTES:
    Sample conditions are taken from the annotation file given with
    -samples, or derived from the sample names with -condpattern.
    Without either of them the run fails.
`, exeName, exeName, exeName)
}

func main() {
	var par params

	par.cfgFilename = flag.String("cfg",
		"",
		"`filename` of a TOML or YAML configuration file")
	par.groupsFilename = flag.String("groups",
		"",
		"`filename`"+` of the matching proteinGroups.txt, used to mark
reverse, contaminant and site-only groups`)
	par.samplesFilename = flag.String("samples",
		"",
		"`filename`"+` of a tab separated table mapping sample names to
condition labels`)
	par.humanFasta = flag.String("humanfasta",
		"",
		"`filename`"+` of a FASTA file; protein groups with an accession in
it are marked as human. Gzip compressed input is accepted.`)
	par.ecoliFasta = flag.String("ecolifasta",
		"",
		"`filename`"+` of a FASTA file; protein groups with an accession in
it are marked as E. coli. Gzip compressed input is accepted.`)
	par.intensityPrefix = flag.String("iprefix",
		"Intensity ",
		"column `prefix` of the per sample intensities")
	par.encoding = flag.String("encoding",
		"",
		"`charset` of the input tables when not UTF-8, e.g. windows-1252")
	par.condPattern = flag.String("condpattern",
		"",
		"`regexp`"+` deriving the condition from a sample name. The first
capture group is used when the pattern has one.`)
	par.dropReverse = flag.Bool("dropreverse", true,
		`Drop peptides of reverse (decoy) database hits`)
	par.dropContaminants = flag.Bool("dropcontaminants", true,
		`Drop peptides of potential contaminants`)
	par.dropOnlySite = flag.Bool("droponlysite", true,
		`Drop peptides of groups only identified by a modification site`)
	par.minSamples = flag.Int("minsamples",
		2,
		`minimum number of samples a (group, condition) pair must be
observed in; sparser pairs are masked`)
	par.minObs = flag.Int("minobs",
		2,
		`minimum number of observations a peptide must keep`)
	par.minPeps = flag.Int("minpeps",
		1,
		`minimum number of peptides per summarized protein group`)
	par.mode = flag.String("mode",
		"full",
		"processing `mode`"+`. Valid modes:
    full: summarize peptides per protein group, then test the groups.
    summarize: stop after writing the summarized protein matrix.
    model: fit the models on peptide level data directly.`)
	par.groupBy = flag.String("groupby",
		"proteins",
		"grouping `key`"+`: "proteins" (the MaxQuant protein group) or
"leading" (the leading razor protein)`)
	par.normalize = flag.String("normalize",
		"vsn",
		"normalization `method`: none, median, quantile or vsn")
	par.summarizeBy = flag.String("summarize",
		"robust",
		"summarization `method`: robust, medpolish, mean or median")
	par.formulas = flag.String("formulas",
		"",
		"semicolon separated model `formulas`"+`, tried in order per group
until one fits, e.g.
"expression ~ (1|condition) + (1|sample); expression ~ (1|condition)"`)
	par.contrasts = flag.String("contrasts",
		"",
		"comma separated `contrasts`"+` to test, e.g. "B - A,C - A".
If empty, all pairwise differences of the condition labels are tested.`)
	par.fdr = flag.Float64("fdr",
		0.05,
		`adjusted p-value cutoff for marking a contrast significant`)
	par.threads = flag.Int("threads",
		0,
		`number of worker threads. 0 means one per CPU.`)
	par.outTSV = flag.String("o",
		"",
		"`filename` of the tab separated result table")
	par.outJSON = flag.String("json",
		"",
		"`filename` of the JSON run report")
	par.outMatrix = flag.String("matrix",
		"",
		"`filename` of the summarized protein expression matrix")
	par.outPepMatrix = flag.String("pepmatrix",
		"",
		"`filename`"+` for the preprocessed peptide expression matrix.
Not written unless given.`)
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
	flag.Usage = usage
	flag.Parse()
	if *version {
		if progVersion == `Unknown` {
			progVersion = `Unknown
Build this program with -ldflags "-X main.progVersion=<version>" so that
the git version is shown here.`
		}
		fmt.Fprintf(os.Stderr, "%s version %s\n", progName, progVersion)
		return
	}
	if *verbose {
		par.verbosity = infoVerbose
	}
	if *quiet {
		par.verbosity = infoSilent
	}
	par.args = flag.Args()
	// Check if debug output should be enabled
	par.debug = os.Getenv("PEPDIFF_DEBUG") == `1`

	cfg := loadConfig(&par)
	applyFlags(&par, cfg)
	sanitizeParams(&par, cfg)

	logger := newLogger(&par)
	res, err := pipeline.New(cfg, logger).Run()
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis failed")
	}
	res.Run.Version = progVersion

	writeReports(&par, res, logger)
	debugDumpGroups(res)
}
