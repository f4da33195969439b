// Package pipeline drives a differential expression analysis from
// MaxQuant output to tested contrasts.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pepdiff/pepdiff/internal/config"
	"github.com/pepdiff/pepdiff/internal/expr"
	"github.com/pepdiff/pepdiff/internal/fasta"
	"github.com/pepdiff/pepdiff/internal/maxquant"
	"github.com/pepdiff/pepdiff/internal/normalize"
	"github.com/pepdiff/pepdiff/internal/report"
)

// ErrNoConditions means neither a sample annotation file nor a
// condition pattern was configured
var ErrNoConditions = errors.New("pipeline: no sample conditions configured")

// Pipeline runs the analysis stages described by one configuration.
// The configuration must have been validated.
type Pipeline struct {
	cfg *config.Config
	log zerolog.Logger
}

// Result bundles the run report with the working matrices. Proteins is
// nil when the run never summarized.
type Result struct {
	Run      *report.Run
	Peptides *expr.Set
	Proteins *expr.Set
}

func New(cfg *config.Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// Run executes the configured stages and returns the assembled run
// report.
func (p *Pipeline) Run() (*Result, error) {
	started := time.Now()
	run := &report.Run{
		ID:        uuid.NewString(),
		Started:   started,
		Mode:      p.cfg.Mode,
		GroupBy:   p.cfg.GroupBy,
		Normalize: p.cfg.Normalize,
		Summarize: p.cfg.Summarize,
	}
	p.log.Info().Str("run", run.ID).Str("mode", p.cfg.Mode).Msg("starting analysis")

	set, err := p.ingest()
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := p.annotate(set); err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	if err := p.preprocess(set); err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	for _, sm := range set.Samples {
		run.Samples = append(run.Samples, sm.Name)
	}
	run.Conditions = set.Conditions()
	run.NPeptides = set.NumFeatures()

	res := &Result{Run: run, Peptides: set}
	work := set
	if p.cfg.Mode != "model" {
		prot, err := p.summarizeStage(set)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		res.Proteins = prot
		work = prot
	}

	ids, rows := work.Groups()
	run.NGroups = len(ids)
	if p.cfg.Mode == "summarize" {
		for _, id := range ids {
			run.Groups = append(run.Groups, groupMeta(work, id, rows[id]))
		}
	} else {
		groups, err := p.modelStage(work, ids, rows, run)
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		run.Groups = groups
	}

	run.Finished = time.Now()
	p.log.Info().
		Int("groups", run.NGroups).
		Dur("elapsed", run.Finished.Sub(started)).
		Msg("analysis done")
	return res, nil
}

// ingest reads the peptides table and assigns condition labels.
func (p *Pipeline) ingest() (*expr.Set, error) {
	f, err := os.Open(p.cfg.Peptides)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tbl, err := maxquant.ReadPeptides(f, maxquant.Options{
		IntensityPrefix: p.cfg.IntensityPrefix,
		Encoding:        p.cfg.Encoding,
	})
	if err != nil {
		return nil, err
	}
	set := expr.FromPeptides(tbl)
	p.log.Info().
		Int("peptides", set.NumFeatures()).
		Int("samples", set.NumSamples()).
		Str("file", p.cfg.Peptides).
		Msg("peptides loaded")

	switch {
	case p.cfg.Samples != "":
		byName, err := readSampleTSV(p.cfg.Samples)
		if err != nil {
			return nil, err
		}
		if err := set.SetConditions(byName); err != nil {
			return nil, err
		}
	case p.cfg.ConditionPattern != "":
		re, err := regexp.Compile(p.cfg.ConditionPattern)
		if err != nil {
			return nil, err
		}
		if err := set.SetConditionsPattern(re); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoConditions
	}
	if n := len(set.Conditions()); n < 2 {
		p.log.Warn().Int("conditions", n).Msg("fewer than two conditions, contrasts will fail")
	}
	return set, nil
}

// annotate joins protein group and species information onto the
// peptide rows.
func (p *Pipeline) annotate(set *expr.Set) error {
	if p.cfg.ProteinGroups != "" {
		f, err := os.Open(p.cfg.ProteinGroups)
		if err != nil {
			return err
		}
		groups, err := maxquant.ReadProteinGroups(f, maxquant.Options{Encoding: p.cfg.Encoding})
		f.Close()
		if err != nil {
			return err
		}
		set.AnnotateGroups(groups)
		p.log.Info().Int("groups", len(groups)).Msg("protein groups joined")
	}
	if p.cfg.GroupBy == "leading" {
		set.RegroupByLeading()
	}

	human, err := readFasta(p.cfg.HumanFasta)
	if err != nil {
		return err
	}
	ecoli, err := readFasta(p.cfg.EcoliFasta)
	if err != nil {
		return err
	}
	if human != nil || ecoli != nil {
		set.AnnotateSpecies(human, ecoli)
		p.log.Info().
			Int("human", human.Len()).
			Int("ecoli", ecoli.Len()).
			Msg("species annotated")
	}
	return nil
}

// preprocess masks, drops, normalizes and filters the peptide matrix
// in place.
func (p *Pipeline) preprocess(set *expr.Set) error {
	masked := set.MaskZeros()

	dropped := set.KeepFeatures(func(_ int, f expr.Feature) bool {
		if p.cfg.DropReverse && f.Reverse {
			return false
		}
		if p.cfg.DropContaminants && f.Contaminant {
			return false
		}
		if p.cfg.DropOnlyBySite && f.OnlyBySite {
			return false
		}
		return true
	})
	shared := set.MinimalGroups()

	method, err := normalize.ByName(p.cfg.Normalize)
	if err != nil {
		return err
	}
	if !method.Raw() {
		set.Log2()
	}
	if err := method.Apply(set); err != nil {
		return err
	}

	sweeps := set.FilterCounts(p.cfg.MinSamplesPerCondition, p.cfg.MinObsPerPeptide)
	p.log.Info().
		Int("masked_zeros", masked).
		Int("dropped_flagged", dropped).
		Int("dropped_shared", shared).
		Int("filter_sweeps", sweeps).
		Int("peptides", set.NumFeatures()).
		Str("normalize", method.Name()).
		Msg("preprocessing done")
	return nil
}

func readFasta(path string) (*fasta.Set, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return fasta.Read(f)
}

// readSampleTSV reads a two column sample-to-condition table. A header
// line is skipped when its second field is the word condition.
func readSampleTSV(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(recs))
	for i, rec := range recs {
		if len(rec) < 2 {
			return nil, fmt.Errorf("pipeline: sample annotation line %d has %d fields", i+1, len(rec))
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[1]), "condition") {
			continue
		}
		m[strings.TrimSpace(rec[0])] = strings.TrimSpace(rec[1])
	}
	return m, nil
}
