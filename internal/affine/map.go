package affine

import (
	"fmt"
	"strings"
)

// Map is a multi-result affine map (d0, ..., dN-1) -> (e0, ..., eK-1).
type Map struct {
	NumDims int
	Results []Expr
}

// NewMap builds a map over numDims dimensions.
func NewMap(numDims int, results ...Expr) Map {
	return Map{NumDims: numDims, Results: results}
}

// MinorIdentity returns (d0, ..., dN-1) -> (dN-K, ..., dN-1), the map that
// lines the K results up with the trailing K dimensions.
func MinorIdentity(numDims, numResults int) Map {
	results := make([]Expr, numResults)
	for i := range results {
		results[i] = Dim(numDims - numResults + i)
	}
	return Map{NumDims: numDims, Results: results}
}

// IsMinorIdentity reports whether m is MinorIdentity(m.NumDims, len(m.Results)).
func (m Map) IsMinorIdentity() bool {
	if len(m.Results) > m.NumDims {
		return false
	}
	lead := m.NumDims - len(m.Results)
	for i, r := range m.Results {
		d, ok := r.AsDim()
		if !ok || d != lead+i {
			return false
		}
	}
	return true
}

// IsProjectedPermutation reports whether every result is either a distinct
// dimension or the constant 0 (a broadcast).
func (m Map) IsProjectedPermutation() bool {
	seen := make(map[int]bool)
	for _, r := range m.Results {
		if c, ok := r.IsConstant(); ok && c == 0 {
			continue
		}
		d, ok := r.AsDim()
		if !ok || seen[d] || d >= m.NumDims {
			return false
		}
		seen[d] = true
	}
	return true
}

// Eval evaluates every result.
func (m Map) Eval(dims []int64) []int64 {
	out := make([]int64, len(m.Results))
	for i, r := range m.Results {
		out[i] = r.Eval(dims)
	}
	return out
}

// Replace substitutes dims into every result and returns a map over
// numDims dimensions.
func (m Map) Replace(dims []Expr, numDims int) Map {
	results := make([]Expr, len(m.Results))
	for i, r := range m.Results {
		results[i] = r.Replace(dims)
	}
	return Map{NumDims: numDims, Results: results}
}

// ConstantResults returns the results as constants when every one of them is.
func (m Map) ConstantResults() ([]int64, bool) {
	out := make([]int64, len(m.Results))
	for i, r := range m.Results {
		c, ok := r.IsConstant()
		if !ok {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

// Equal reports structural equality.
func (m Map) Equal(o Map) bool {
	if m.NumDims != o.NumDims || len(m.Results) != len(o.Results) {
		return false
	}
	for i := range m.Results {
		if !m.Results[i].Equal(o.Results[i]) {
			return false
		}
	}
	return true
}

func (m Map) String() string {
	dims := make([]string, m.NumDims)
	for i := range dims {
		dims[i] = fmt.Sprintf("d%d", i)
	}
	results := make([]string, len(m.Results))
	for i, r := range m.Results {
		results[i] = r.String()
	}
	return fmt.Sprintf("affine_map<(%s) -> (%s)>", strings.Join(dims, ", "), strings.Join(results, ", "))
}
