package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsplit/internal/config"
	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
	"vecsplit/internal/split"
)

const src = `func @kernel_a(%A: memref<?xf32>, %i: index, %pad: f32) -> (vector<4xf32>) {
  %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return(%v)
}
func @other(%A: memref<?xf32>, %i: index, %pad: f32) -> (vector<64xf32>) {
  %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<64xf32>
  func.return(%v)
}
`

func parse(t *testing.T) *ir.Program {
	t.Helper()
	p, errs := parser.ParseSource("config.mlir", src)
	require.Empty(t, errs)
	return p
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, split.DefaultOptions(), opts)
	assert.Nil(t, cfg.SplitFilter())
	assert.Equal(t, []string{"split", "constant-folding", "cse", "dce"}, cfg.Passes)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(`
strategy: Reissue-And-Buffer
benefit: 4
greedy:
  max_rewrites: 3
passes: [split, dce]
`))
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, split.ReissueAndBuffer, opts.Strategy)
	assert.Equal(t, 4, cfg.Benefit)
	assert.Equal(t, 3, cfg.GreedyConfig().MaxRewrites)
	// Keys left out keep their default.
	assert.Equal(t, 10, cfg.GreedyConfig().MaxIterations)

	pipeline, err := cfg.Pipeline()
	require.NoError(t, err)
	require.Len(t, pipeline.Passes(), 2)
	assert.Equal(t, "patterns", pipeline.Passes()[0].Name())
	assert.Equal(t, "dce", pipeline.Passes()[1].Name())
}

func TestParseEmpty(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown strategy", "strategy: fastest", `unknown split strategy "fastest"`},
		{"negative benefit", "benefit: -1", "benefit must not be negative"},
		{"zero iterations", "greedy: {max_iterations: 0}", "max_iterations must be positive"},
		{"bad glob", "filter: {functions: ['[']}", "filter.functions"},
		{"bad kind", "filter: {kinds: [load]}", `unknown transfer kind "load"`},
		{"unknown pass", "passes: [inline]", `unknown pass "inline"`},
		{"unknown key", "stratgy: none", "field stratgy not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	file := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(file, []byte("strategy: none\n"), 0o644))
	cfg, err = config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Strategy)

	require.NoError(t, os.WriteFile(file, []byte("benefit: [\n"), 0o644))
	_, err = config.Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), file)
}

func TestSplitFilter(t *testing.T) {
	p := parse(t)

	cfg := config.Default()
	cfg.Filter.Functions = []string{"kernel_*"}
	assert.Len(t, split.Candidates(p, cfg.SplitFilter()), 1)

	cfg = config.Default()
	cfg.Filter.MaxVectorElements = 16
	candidates := split.Candidates(p, cfg.SplitFilter())
	require.Len(t, candidates, 1)
	fn, _ := p.LookupFunc("kernel_a")
	assert.True(t, p.IsAncestor(fn, candidates[0]))

	cfg = config.Default()
	cfg.Filter.Kinds = []string{"write"}
	assert.Empty(t, split.Candidates(p, cfg.SplitFilter()))
}

func TestPipelineSplitsConfiguredTransfers(t *testing.T) {
	p := parse(t)
	cfg, err := config.Parse([]byte("filter: {functions: [kernel_a]}\n"))
	require.NoError(t, err)

	pipeline, err := cfg.Pipeline()
	require.NoError(t, err)
	changed, err := pipeline.Run(p)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Empty(t, ir.Verify(p))

	allocas := 0
	for _, op := range p.Collect() {
		if p.Op(op).Kind == ir.OpAlloca {
			allocas++
		}
	}
	assert.Equal(t, 1, allocas)
}
