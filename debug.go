// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/pepdiff/pepdiff/internal/expr"
	"github.com/pepdiff/pepdiff/internal/pipeline"
)

var debugGroups *string // Print expression values for matching groups

func init() {
	debugGroups = flag.String("debug", "",
		"Print the expression values of every protein `group` whose id contains the given string")
}

// debugDumpGroups prints the peptide and protein level expression
// values of the selected groups, so that a surprising test result can
// be traced back through summarization and preprocessing.
func debugDumpGroups(res *pipeline.Result) {
	if *debugGroups == `` {
		return
	}
	debugDumpSet("peptide", res.Peptides)
	debugDumpSet("protein", res.Proteins)
}

func debugDumpSet(kind string, s *expr.Set) {
	if s == nil {
		return
	}
	for i, f := range s.Features {
		if !strings.Contains(f.Group, *debugGroups) {
			continue
		}
		fmt.Printf("%s %s %s", kind, f.Group, f.ID)
		for j := range s.Samples {
			fmt.Printf(" %s:%.4f", s.Samples[j].Name, s.X.At(i, j))
		}
		fmt.Printf("\n")
	}
}
