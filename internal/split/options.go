package split

import (
	"strings"

	"github.com/pkg/errors"
)

// Strategy selects how a transfer is split.
type Strategy int

const (
	// None disables the transform.
	None Strategy = iota
	// ForceInBounds marks every dimension in-bounds without any check.
	ForceInBounds
	// CopyBuffer handles the slow path with linalg.fill and memref.copy of
	// the overlapping region.
	CopyBuffer
	// ReissueAndBuffer handles the slow path by reissuing the original
	// masked transfer against the scratch buffer.
	ReissueAndBuffer
)

var strategyNames = map[Strategy]string{
	None:             "none",
	ForceInBounds:    "force-in-bounds",
	CopyBuffer:       "copy-buffer",
	ReissueAndBuffer: "reissue-and-buffer",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy resolves a strategy name as printed by String.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return None, errors.Errorf("unknown split strategy %q", name)
}

// Options configures Split.
type Options struct {
	Strategy Strategy
}

// DefaultOptions uses the copy-based slow path.
func DefaultOptions() Options {
	return Options{Strategy: CopyBuffer}
}
