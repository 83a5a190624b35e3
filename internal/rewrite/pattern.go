package rewrite

import (
	"sort"

	"vecsplit/internal/ir"
)

// Pattern matches a single operation and rewrites it.
type Pattern interface {
	Name() string
	// Benefit orders patterns; higher is tried first.
	Benefit() int
	// MatchAndRewrite returns false with a nil error when the pattern does
	// not apply, in which case the program must be left untouched.
	MatchAndRewrite(rw *Rewriter, op ir.OpID) (bool, error)
}

// PatternSet is a collection of patterns ordered by benefit.
type PatternSet struct {
	patterns []Pattern
}

// NewPatternSet creates a set holding patterns.
func NewPatternSet(patterns ...Pattern) *PatternSet {
	s := &PatternSet{}
	for _, p := range patterns {
		s.Add(p)
	}
	return s
}

// Add inserts p, keeping insertion order among equal benefits.
func (s *PatternSet) Add(p Pattern) {
	s.patterns = append(s.patterns, p)
	sort.SliceStable(s.patterns, func(i, j int) bool {
		return s.patterns[i].Benefit() > s.patterns[j].Benefit()
	})
}

// Patterns returns the patterns in application order.
func (s *PatternSet) Patterns() []Pattern {
	return s.patterns
}

func (s *PatternSet) Len() int {
	return len(s.patterns)
}
