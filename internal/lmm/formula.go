// Package lmm fits linear mixed models with random intercepts by
// restricted maximum likelihood.
package lmm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Formula describes a model of the response as a fixed intercept plus
// random intercepts, one per grouping variable.
type Formula struct {
	Response string
	Terms    []string
}

// ErrFormulaSyntax means a model formula could not be parsed
var ErrFormulaSyntax = errors.New("lmm: bad formula")

var termRe = regexp.MustCompile(`^\(\s*1\s*\|\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\)$`)

// Parse reads a formula of the form
//
//	response ~ (1|var) + (1|var2)
//
// Only random intercept terms are supported. A bare 1 on the right
// hand side stands for the fixed intercept, which is always included.
func Parse(s string) (Formula, error) {
	var f Formula
	parts := strings.Split(s, "~")
	if len(parts) != 2 {
		return f, fmt.Errorf("%w: %q", ErrFormulaSyntax, s)
	}
	f.Response = strings.TrimSpace(parts[0])
	if f.Response == "" || strings.ContainsAny(f.Response, " \t") {
		return f, fmt.Errorf("%w: bad response in %q", ErrFormulaSyntax, s)
	}
	seen := make(map[string]bool)
	for _, tok := range strings.Split(parts[1], "+") {
		tok = strings.TrimSpace(tok)
		if tok == "1" {
			continue
		}
		m := termRe.FindStringSubmatch(tok)
		if m == nil {
			return f, fmt.Errorf("%w: term %q in %q", ErrFormulaSyntax, tok, s)
		}
		name := m[1]
		if seen[name] {
			return f, fmt.Errorf("%w: duplicate term %q in %q", ErrFormulaSyntax, name, s)
		}
		seen[name] = true
		f.Terms = append(f.Terms, name)
	}
	return f, nil
}

// String renders the formula in its canonical form.
func (f Formula) String() string {
	if len(f.Terms) == 0 {
		return f.Response + " ~ 1"
	}
	terms := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		terms[i] = "(1|" + t + ")"
	}
	return f.Response + " ~ " + strings.Join(terms, " + ")
}

// HasTerm reports whether the formula contains a random intercept for
// the named grouping variable.
func (f Formula) HasTerm(name string) bool {
	for _, t := range f.Terms {
		if t == name {
			return true
		}
	}
	return false
}
