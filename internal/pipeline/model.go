package pipeline

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/pepdiff/pepdiff/internal/expr"
	"github.com/pepdiff/pepdiff/internal/infer"
	"github.com/pepdiff/pepdiff/internal/lmm"
	"github.com/pepdiff/pepdiff/internal/report"
	"github.com/pepdiff/pepdiff/internal/summarize"
)

// summarizeStage collapses each protein group into one expression row.
// Groups with fewer peptides than the configured minimum are dropped.
func (p *Pipeline) summarizeStage(set *expr.Set) (*expr.Set, error) {
	method, err := summarize.ByName(p.cfg.Summarize)
	if err != nil {
		return nil, err
	}
	ids, rows := set.Groups()
	var kept []string
	for _, id := range ids {
		if len(rows[id]) >= p.cfg.MinPeptides {
			kept = append(kept, id)
		}
	}

	ns := set.NumSamples()
	prot := &expr.Set{Samples: append([]expr.Sample(nil), set.Samples...)}
	if len(kept) == 0 {
		p.log.Warn().Msg("no groups to summarize")
		return prot, nil
	}

	sums := make([][]float64, len(kept))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				id := kept[k]
				s, err := method.Summarize(groupMatrix(set, rows[id]))
				if err != nil {
					p.log.Warn().Str("group", id).Err(err).Msg("summarization failed")
					s = nanRow(ns)
				}
				sums[k] = s
			}
		}()
	}
	for k := range kept {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	prot.X = mat.NewDense(len(kept), ns, nil)
	prot.Features = make([]expr.Feature, len(kept))
	for k, id := range kept {
		prot.X.SetRow(k, sums[k])
		prot.Features[k] = collapseFeatures(set, id, rows[id])
	}
	p.log.Info().
		Int("groups", len(kept)).
		Int("dropped_small", len(ids)-len(kept)).
		Str("method", method.Name()).
		Msg("summarization done")
	return prot, nil
}

// modelStage fits every group of the working matrix and tests the
// configured contrasts.
func (p *Pipeline) modelStage(work *expr.Set, ids []string, rows map[string][]int, run *report.Run) ([]report.Group, error) {
	formulas := make([]lmm.Formula, len(p.cfg.Formulas))
	for i, s := range p.cfg.Formulas {
		f, err := lmm.Parse(s)
		if err != nil {
			return nil, err
		}
		formulas[i] = f
		run.Formulas = append(run.Formulas, f.String())
	}
	contrasts, err := p.cfg.AllContrasts()
	if err != nil {
		return nil, err
	}
	if len(contrasts) == 0 {
		contrasts = pairwiseContrasts(work.Conditions())
	}
	for _, c := range contrasts {
		run.Contrasts = append(run.Contrasts, c.Name)
	}

	fits := make([]groupFit, len(ids))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Threads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				id := ids[k]
				fit := groupFit{meta: groupMeta(work, id, rows[id])}
				m, idx, err := lmm.FitAny(groupData(work, rows[id]), formulas)
				if err != nil {
					fit.err = err
					p.log.Debug().Str("group", id).Err(err).Msg("no formula fitted")
				} else {
					fit.model = m
					p.log.Debug().Str("group", id).Int("formula", idx).Msg("fitted")
				}
				fits[k] = fit
			}
		}()
	}
	for k := range ids {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	return p.inferStage(fits, contrasts, run), nil
}

type groupFit struct {
	meta  report.Group
	model *lmm.Model
	err   error
}

// inferStage moderates the group variances, tests the contrasts and
// adjusts the p-values per contrast across all groups.
func (p *Pipeline) inferStage(fits []groupFit, contrasts []infer.Contrast, run *report.Run) []report.Group {
	s2 := make([]float64, len(fits))
	df := make([]float64, len(fits))
	var pooled float64
	for k, f := range fits {
		s2[k], df[k] = math.NaN(), math.NaN()
		if f.model != nil {
			s2[k] = f.model.Sigma2
			df[k] = f.model.DFRes
			pooled += f.model.DFRes
		}
	}
	prior, post := infer.SqueezeVar(s2, df)
	run.PriorDF = report.Finite(prior.DF)
	run.PriorS02 = report.Finite(prior.S02)

	groups := make([]report.Group, len(fits))
	for k, f := range fits {
		g := f.meta
		if f.err != nil {
			g.FitError = f.err.Error()
		} else {
			g.Formula = f.model.Formula.String()
			g.Sigma2 = report.Finite(f.model.Sigma2)
			g.DF = report.Finite(f.model.DFRes)
		}
		groups[k] = g
	}

	type cell struct {
		group int
		res   report.ContrastResult
	}
	for _, c := range contrasts {
		pvals := nanRow(len(fits))
		var cells []cell
		for k, f := range fits {
			if f.model == nil {
				continue
			}
			est, vu, err := f.model.Contrast("condition", c.Weights)
			if err != nil {
				p.log.Debug().Str("group", f.meta.ID).Str("contrast", c.Name).Err(err).Msg("contrast skipped")
				continue
			}
			se := math.Sqrt(post[k] * vu)
			if math.IsNaN(se) || se <= 0 {
				continue
			}
			// Total degrees of freedom are capped at the pooled
			// residual degrees of freedom over all groups.
			dfTotal := math.Min(f.model.DFRes+prior.DF, pooled)
			t := est / se
			pv := infer.PValue(t, dfTotal)
			if math.IsNaN(pv) {
				continue
			}
			pvals[k] = pv
			cells = append(cells, cell{group: k, res: report.ContrastResult{
				Name: c.Name, LogFC: est, SE: se, T: t, DF: dfTotal, P: pv,
			}})
		}
		q := infer.BHAdjust(pvals)
		for _, cl := range cells {
			r := cl.res
			r.Q = q[cl.group]
			if math.IsNaN(r.Q) {
				continue
			}
			r.Significant = r.Q <= p.cfg.FDR
			groups[cl.group].Contrasts = append(groups[cl.group].Contrasts, r)
		}
	}

	fitted := 0
	for _, f := range fits {
		if f.model != nil {
			fitted++
		}
	}
	p.log.Info().
		Int("fitted", fitted).
		Int("failed", len(fits)-fitted).
		Int("contrasts", len(contrasts)).
		Msg("modeling done")
	return groups
}

// groupData flattens the observed cells of one group into model data
// with condition, sample and feature variables.
func groupData(s *expr.Set, rows []int) lmm.Data {
	var y []float64
	var cond, samp, feat []string
	for _, i := range rows {
		for j := 0; j < s.NumSamples(); j++ {
			if !s.Observed(i, j) {
				continue
			}
			y = append(y, s.X.At(i, j))
			cond = append(cond, s.Samples[j].Condition)
			samp = append(samp, s.Samples[j].Name)
			feat = append(feat, s.Features[i].ID)
		}
	}
	return lmm.Data{Y: y, Vars: map[string][]string{
		"condition": cond,
		"sample":    samp,
		"feature":   feat,
	}}
}

func groupMatrix(s *expr.Set, rows []int) *mat.Dense {
	y := mat.NewDense(len(rows), s.NumSamples(), nil)
	for k, i := range rows {
		y.SetRow(k, s.X.RawRowView(i))
	}
	return y
}

// collapseFeatures merges the rows of one group into a single
// annotation. Flags hold when any member row holds them.
func collapseFeatures(s *expr.Set, id string, rows []int) expr.Feature {
	first := s.Features[rows[0]]
	f := expr.Feature{
		ID:       id,
		Group:    id,
		Members:  first.Members,
		Leading:  first.Leading,
		GroupIDs: first.GroupIDs,
	}
	for _, i := range rows {
		g := s.Features[i]
		if g.Peptides > 0 {
			f.Peptides += g.Peptides
		} else {
			f.Peptides++
		}
		f.Reverse = f.Reverse || g.Reverse
		f.Contaminant = f.Contaminant || g.Contaminant
		f.OnlyBySite = f.OnlyBySite || g.OnlyBySite
		f.Human = f.Human || g.Human
		f.Ecoli = f.Ecoli || g.Ecoli
	}
	return f
}

func groupMeta(s *expr.Set, id string, rows []int) report.Group {
	f := collapseFeatures(s, id, rows)
	return report.Group{
		ID:          id,
		Members:     f.Members,
		Leading:     f.Leading,
		NPeptides:   f.Peptides,
		Human:       f.Human,
		Ecoli:       f.Ecoli,
		Reverse:     f.Reverse,
		Contaminant: f.Contaminant,
		OnlyBySite:  f.OnlyBySite,
	}
}

// pairwiseContrasts builds every pairwise difference of the sorted
// condition labels.
func pairwiseContrasts(conditions []string) []infer.Contrast {
	var out []infer.Contrast
	for i := 0; i < len(conditions); i++ {
		for j := i + 1; j < len(conditions); j++ {
			out = append(out, infer.Contrast{
				Name:    conditions[j] + " - " + conditions[i],
				Weights: map[string]float64{conditions[j]: 1, conditions[i]: -1},
			})
		}
	}
	return out
}

func nanRow(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}
