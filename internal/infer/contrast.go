package infer

import (
	"errors"
	"fmt"
	"strings"
)

// Contrast is a named linear combination of condition levels.
type Contrast struct {
	Name    string
	Weights map[string]float64
}

// ErrContrastSyntax means a contrast definition could not be parsed
var ErrContrastSyntax = errors.New("infer: bad contrast")

// ParseContrast reads a difference of two condition names, like
// "treated - control". The first condition gets weight 1, the second
// weight -1.
func ParseContrast(s string) (Contrast, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Contrast{}, fmt.Errorf("%w: %q is not of the form A - B", ErrContrastSyntax, s)
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" || a == b {
		return Contrast{}, fmt.Errorf("%w: %q", ErrContrastSyntax, s)
	}
	return Contrast{
		Name:    a + " - " + b,
		Weights: map[string]float64{a: 1, b: -1},
	}, nil
}

// ParseContrasts reads a list of contrast definitions.
func ParseContrasts(defs []string) ([]Contrast, error) {
	out := make([]Contrast, 0, len(defs))
	for _, d := range defs {
		c, err := ParseContrast(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// FromMatrix builds contrasts from an explicit weight matrix with one
// row per condition level and one named column per contrast. Zero
// weights are dropped.
func FromMatrix(levels, names []string, coefs [][]float64) ([]Contrast, error) {
	if len(names) != len(coefs) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrContrastSyntax, len(names), len(coefs))
	}
	seen := make(map[string]bool, len(levels))
	for _, l := range levels {
		if seen[l] {
			return nil, fmt.Errorf("%w: duplicate level %q", ErrContrastSyntax, l)
		}
		seen[l] = true
	}
	out := make([]Contrast, 0, len(names))
	for i, name := range names {
		if len(coefs[i]) != len(levels) {
			return nil, fmt.Errorf("%w: column %q has %d weights for %d levels",
				ErrContrastSyntax, name, len(coefs[i]), len(levels))
		}
		w := make(map[string]float64)
		for j, c := range coefs[i] {
			if c != 0 {
				w[levels[j]] = c
			}
		}
		if len(w) == 0 {
			return nil, fmt.Errorf("%w: column %q is all zero", ErrContrastSyntax, name)
		}
		out = append(out, Contrast{Name: name, Weights: w})
	}
	return out, nil
}
