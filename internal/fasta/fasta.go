package fasta

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// Set is the collection of sequence identifiers found in the headers of
// a FASTA file. It serves species-membership lookups by exact
// identifier match; sequence data is not kept.
type Set struct {
	acc map[string]struct{}
}

// Read collects the identifiers of all header lines. Gzip compressed
// input is detected from its magic bytes. Both the full first header
// token and, for UniProt-style headers, the embedded accession are
// recorded.
func Read(r io.Reader) (*Set, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("fasta: open: %w", err)
		}
		defer gz.Close()
		return scan(gz)
	}
	return scan(br)
}

func scan(r io.Reader) (*Set, error) {
	s := &Set{acc: make(map[string]struct{})}
	sc := bufio.NewScanner(r)
	// Single-line sequences can be long
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, ">") {
			continue
		}
		id := line[1:]
		if i := strings.IndexAny(id, " \t"); i >= 0 {
			id = id[:i]
		}
		if id == "" {
			continue
		}
		s.acc[id] = struct{}{}
		if a := Accession(id); a != id {
			s.acc[a] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("fasta: scan: %w", err)
	}
	return s, nil
}

// Accession extracts the accession from a UniProt-style identifier such
// as sp|P12345|ALBU_HUMAN. Other identifiers are returned unchanged.
func Accession(id string) string {
	parts := strings.Split(id, "|")
	if len(parts) >= 3 && parts[1] != "" {
		return parts[1]
	}
	return id
}

// Len returns the number of distinct identifiers in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.acc)
}

// Has reports whether id, or the accession embedded in it, is in the
// set. A nil set matches nothing.
func (s *Set) Has(id string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.acc[id]; ok {
		return true
	}
	_, ok := s.acc[Accession(id)]
	return ok
}

// MatchAny reports whether any of ids is in the set.
func (s *Set) MatchAny(ids []string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}
