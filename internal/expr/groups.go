package expr

import (
	"sort"

	"github.com/pepdiff/pepdiff/internal/fasta"
	"github.com/pepdiff/pepdiff/internal/maxquant"
)

type groupFlags struct {
	reverse     bool
	contaminant bool
	onlyBySite  bool
}

func (a groupFlags) or(b groupFlags) groupFlags {
	return groupFlags{
		reverse:     a.reverse || b.reverse,
		contaminant: a.contaminant || b.contaminant,
		onlyBySite:  a.onlyBySite || b.onlyBySite,
	}
}

// AnnotateGroups reconciles peptide flags with proteinGroups metadata.
// The group compositions of the two tables may disagree, so groups are
// decomposed into member accessions before joining: a peptide inherits
// a flag when any of its members, or its numeric group id, carries it.
func (s *Set) AnnotateGroups(groups []maxquant.ProteinGroup) {
	byMember := make(map[string]groupFlags)
	byID := make(map[string]groupFlags)
	for _, g := range groups {
		f := groupFlags{g.Reverse, g.Contaminant, g.OnlyBySite}
		if g.ID != "" {
			byID[g.ID] = byID[g.ID].or(f)
		}
		for _, m := range maxquant.SplitIDs(g.ProteinIDs) {
			byMember[m] = byMember[m].or(f)
		}
		for _, m := range maxquant.SplitIDs(g.MajorityIDs) {
			byMember[m] = byMember[m].or(f)
		}
	}
	for i := range s.Features {
		ft := &s.Features[i]
		f := groupFlags{ft.Reverse, ft.Contaminant, ft.OnlyBySite}
		for _, id := range maxquant.SplitIDs(ft.GroupIDs) {
			f = f.or(byID[id])
		}
		for _, m := range ft.Members {
			f = f.or(byMember[m])
		}
		ft.Reverse = f.reverse
		ft.Contaminant = f.contaminant
		ft.OnlyBySite = f.onlyBySite
	}
}

// AnnotateSpecies resolves the species flags of every feature against
// the reference sets. A nil set matches nothing, so every feature ends
// up with a definite flag pair.
func (s *Set) AnnotateSpecies(human, ecoli *fasta.Set) {
	for i := range s.Features {
		s.Features[i].Human = human.MatchAny(s.Features[i].Members)
		s.Features[i].Ecoli = ecoli.MatchAny(s.Features[i].Members)
	}
}

// MinimalGroups keeps only the smallest protein group consistent with
// each accession: groups are visited by member count, and a group
// survives only if none of its members is already claimed by a smaller
// surviving group. Peptides of dropped groups are removed. Returns the
// number of peptides dropped.
func (s *Set) MinimalGroups() int {
	type group struct {
		id      string
		members []string
	}
	seen := make(map[string]bool)
	var gs []group
	for _, f := range s.Features {
		if !seen[f.Group] {
			seen[f.Group] = true
			gs = append(gs, group{f.Group, f.Members})
		}
	}
	sort.Slice(gs, func(i, j int) bool {
		if len(gs[i].members) != len(gs[j].members) {
			return len(gs[i].members) < len(gs[j].members)
		}
		return gs[i].id < gs[j].id
	})
	claimed := make(map[string]bool)
	keep := make(map[string]bool, len(gs))
	for _, g := range gs {
		ok := true
		for _, m := range g.members {
			if claimed[m] {
				ok = false
				break
			}
		}
		if ok {
			keep[g.id] = true
			for _, m := range g.members {
				claimed[m] = true
			}
		}
	}
	return s.KeepFeatures(func(_ int, f Feature) bool { return keep[f.Group] })
}

// RegroupByLeading rekeys every feature to its leading razor protein,
// making it the unit for filtering, summarization and modeling.
// Features without a leading razor protein keep their group.
func (s *Set) RegroupByLeading() {
	for i := range s.Features {
		f := &s.Features[i]
		if f.Leading != "" {
			f.Group = f.Leading
			f.Members = []string{f.Leading}
		}
	}
}
