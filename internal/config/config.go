// Package config loads .vecsplit.yaml, which selects the split strategy,
// which transfers to split, and the passes to run around it.
package config

import (
	"bytes"
	"io"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"vecsplit/internal/ir"
	"vecsplit/internal/rewrite"
	"vecsplit/internal/split"
)

// FileName is the configuration file looked up by the CLI.
const FileName = ".vecsplit.yaml"

// Pass names accepted in the passes list.
const (
	PassSplit           = "split"
	PassConstantFolding = "constant-folding"
	PassCSE             = "cse"
	PassDeadCode        = "dce"
)

var knownPasses = []string{PassSplit, PassConstantFolding, PassCSE, PassDeadCode}

type Config struct {
	Strategy string       `yaml:"strategy"`
	Benefit  int          `yaml:"benefit"`
	Filter   FilterConfig `yaml:"filter"`
	Greedy   GreedyConfig `yaml:"greedy"`
	Passes   []string     `yaml:"passes"`
}

// FilterConfig restricts which transfers are split. Empty fields accept
// everything.
type FilterConfig struct {
	// Functions are path.Match patterns on the enclosing function name.
	Functions []string `yaml:"functions"`
	// MaxVectorElements skips transfers of larger vectors, since their
	// scratch buffer would not fit a stack frame comfortably. Zero means no
	// limit.
	MaxVectorElements int64 `yaml:"max_vector_elements"`
	// Kinds is a subset of "read" and "write".
	Kinds []string `yaml:"kinds"`
}

type GreedyConfig struct {
	TopDown       bool `yaml:"top_down"`
	MaxIterations int  `yaml:"max_iterations"`
	MaxRewrites   int  `yaml:"max_rewrites"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	greedy := rewrite.DefaultGreedyConfig()
	return &Config{
		Strategy: split.DefaultOptions().Strategy.String(),
		Benefit:  1,
		Greedy: GreedyConfig{
			TopDown:       greedy.TopDown,
			MaxIterations: greedy.MaxIterations,
			MaxRewrites:   greedy.MaxRewrites,
		},
		Passes: []string{PassSplit, PassConstantFolding, PassCSE, PassDeadCode},
	}
}

// Load reads path on top of Default. A missing file is not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := split.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if c.Benefit < 0 {
		return errors.Errorf("benefit must not be negative, got %d", c.Benefit)
	}
	if c.Greedy.MaxIterations <= 0 {
		return errors.Errorf("greedy.max_iterations must be positive, got %d", c.Greedy.MaxIterations)
	}
	if c.Greedy.MaxRewrites < 0 {
		return errors.Errorf("greedy.max_rewrites must not be negative, got %d", c.Greedy.MaxRewrites)
	}
	if c.Filter.MaxVectorElements < 0 {
		return errors.Errorf("filter.max_vector_elements must not be negative, got %d", c.Filter.MaxVectorElements)
	}
	for _, pattern := range c.Filter.Functions {
		if _, err := path.Match(pattern, ""); err != nil {
			return errors.Wrapf(err, "filter.functions: %q", pattern)
		}
	}
	for _, kind := range c.Filter.Kinds {
		if kind != "read" && kind != "write" {
			return errors.Errorf("filter.kinds: unknown transfer kind %q", kind)
		}
	}
	for _, name := range c.Passes {
		if !isKnownPass(name) {
			return errors.Errorf("passes: unknown pass %q (known: %s)", name, strings.Join(knownPasses, ", "))
		}
	}
	return nil
}

func isKnownPass(name string) bool {
	for _, known := range knownPasses {
		if name == known {
			return true
		}
	}
	return false
}

// Options returns the split options. Validate must have succeeded.
func (c *Config) Options() (split.Options, error) {
	strategy, err := split.ParseStrategy(c.Strategy)
	if err != nil {
		return split.Options{}, err
	}
	return split.Options{Strategy: strategy}, nil
}

func (c *Config) GreedyConfig() rewrite.GreedyConfig {
	return rewrite.GreedyConfig{
		TopDown:       c.Greedy.TopDown,
		MaxIterations: c.Greedy.MaxIterations,
		MaxRewrites:   c.Greedy.MaxRewrites,
	}
}

// SplitFilter builds the filter described by c.Filter, or nil when it
// accepts every transfer.
func (c *Config) SplitFilter() split.Filter {
	f := c.Filter
	if len(f.Functions) == 0 && f.MaxVectorElements == 0 && len(f.Kinds) == 0 {
		return nil
	}
	return func(xfer ir.TransferOp) bool {
		if len(f.Kinds) > 0 && !containsKind(f.Kinds, xfer.Kind) {
			return false
		}
		if f.MaxVectorElements > 0 && elements(xfer.VectorType()) > f.MaxVectorElements {
			return false
		}
		if len(f.Functions) > 0 && !matchesAny(f.Functions, enclosingFunc(xfer)) {
			return false
		}
		return true
	}
}

func containsKind(kinds []string, kind ir.TransferKind) bool {
	want := "read"
	if kind == ir.TransferWrite {
		want = "write"
	}
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func elements(vt *ir.VectorType) int64 {
	n := int64(1)
	for _, d := range vt.Shape {
		n *= d
	}
	return n
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func enclosingFunc(xfer ir.TransferOp) string {
	for _, anc := range xfer.P.Ancestors(xfer.ID) {
		if o := xfer.P.Op(anc); o.Kind == ir.OpFunc {
			return o.Attrs.Symbol
		}
	}
	return ""
}

// Pipeline builds the configured passes in order.
func (c *Config) Pipeline() (*rewrite.Pipeline, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	pipeline := rewrite.NewPipeline()
	for _, name := range c.Passes {
		switch name {
		case PassSplit:
			pipeline.AddPass(&rewrite.PatternPass{
				Patterns: rewrite.NewPatternSet(split.NewFullPartialRewriter(opts, c.SplitFilter(), c.Benefit)),
				Config:   c.GreedyConfig(),
			})
		case PassConstantFolding:
			pipeline.AddPass(&rewrite.ConstantFolding{})
		case PassCSE:
			pipeline.AddPass(&rewrite.CommonSubexpressionElimination{})
		case PassDeadCode:
			pipeline.AddPass(&rewrite.DeadCodeElimination{})
		default:
			return nil, errors.Errorf("unknown pass %q", name)
		}
	}
	return pipeline, nil
}
