package rewrite_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsplit/internal/interp"
	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
	"vecsplit/internal/rewrite"
)

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	p, errs := parser.ParseSource(t.Name()+".mlir", src)
	require.Empty(t, errs)
	require.Empty(t, ir.Verify(p))
	return p
}

func countKind(p *ir.Program, kind ir.OpKind) int {
	n := 0
	for _, op := range p.Collect() {
		if p.Op(op).Kind == kind {
			n++
		}
	}
	return n
}

// addZero folds arith.addi(x, 0) to x.
type addZero struct {
	benefit int
	calls   int
}

func (a *addZero) Name() string { return "add-zero" }
func (a *addZero) Benefit() int { return a.benefit }

func (a *addZero) MatchAndRewrite(rw *rewrite.Rewriter, op ir.OpID) (bool, error) {
	a.calls++
	p := rw.Program()
	o := p.Op(op)
	if o.Kind != ir.OpAddI {
		return false, nil
	}
	if c, ok := p.ConstantInt(o.Operands[1]); !ok || c != 0 {
		return false, nil
	}
	rw.ReplaceOp(op, []ir.ValueID{o.Operands[0]})
	return true, nil
}

type failing struct{}

func (failing) Name() string { return "failing" }
func (failing) Benefit() int { return 0 }
func (failing) MatchAndRewrite(rw *rewrite.Rewriter, op ir.OpID) (bool, error) {
	if rw.Program().Op(op).Kind == ir.OpReturn {
		return false, errors.New("boom")
	}
	return false, nil
}

const addZeroSrc = `func @f(%x: index) -> (index) {
  %c0 = arith.constant() <{value = 0}> : index
  %a = arith.addi(%x, %c0) : index
  %b = arith.addi(%a, %c0) : index
  func.return(%b)
}
`

func TestApplyPatternsGreedily(t *testing.T) {
	p := mustParse(t, addZeroSrc)
	res, err := rewrite.ApplyPatternsGreedily(p, rewrite.NewPatternSet(&addZero{benefit: 1}), rewrite.DefaultGreedyConfig())
	require.NoError(t, err)
	assert.Equal(t, rewrite.GreedyResult{Converged: true, Iterations: 2, Rewrites: 2}, res)

	want := `func @f(%x: index) -> (index) {
  %c0 = arith.constant() <{value = 0}> : index
  func.return(%x)
}
`
	if diff := cmp.Diff(want, ir.Print(p)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGreedyMaxRewrites(t *testing.T) {
	p := mustParse(t, addZeroSrc)
	cfg := rewrite.DefaultGreedyConfig()
	cfg.MaxRewrites = 1
	res, err := rewrite.ApplyPatternsGreedily(p, rewrite.NewPatternSet(&addZero{benefit: 1}), cfg)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Rewrites)
	assert.Equal(t, 1, countKind(p, ir.OpAddI))
}

func TestGreedyBottomUp(t *testing.T) {
	p := mustParse(t, addZeroSrc)
	cfg := rewrite.DefaultGreedyConfig()
	cfg.TopDown = false
	res, err := rewrite.ApplyPatternsGreedily(p, rewrite.NewPatternSet(&addZero{benefit: 1}), cfg)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 2, res.Rewrites)
	assert.Equal(t, 0, countKind(p, ir.OpAddI))
}

func TestGreedyPropagatesErrors(t *testing.T) {
	p := mustParse(t, addZeroSrc)
	_, err := rewrite.ApplyPatternsGreedily(p, rewrite.NewPatternSet(failing{}), rewrite.DefaultGreedyConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern failing on func.return")
	assert.Equal(t, "boom", errors.Cause(err).Error())
}

func TestPatternSetOrdersByBenefit(t *testing.T) {
	low := &addZero{benefit: 1}
	high := &addZero{benefit: 5}
	set := rewrite.NewPatternSet(low, failing{}, high)
	require.Equal(t, 3, set.Len())
	assert.Same(t, high, set.Patterns()[0])
	assert.Same(t, low, set.Patterns()[1])

	// The higher benefit pattern wins every match, so the other is only
	// consulted for ops it rejects.
	p := mustParse(t, addZeroSrc)
	_, err := rewrite.ApplyPatternsGreedily(p, rewrite.NewPatternSet(low, high), rewrite.DefaultGreedyConfig())
	require.NoError(t, err)
	assert.Greater(t, high.calls, 0)
	assert.Less(t, low.calls, high.calls)
}

func TestConstantFoldingAndDCE(t *testing.T) {
	p := mustParse(t, `func @g() -> (index, i1) {
  %c3 = arith.constant() <{value = 3}> : index
  %c4 = arith.constant() <{value = 4}> : index
  %s = arith.addi(%c3, %c4) : index
  %m = affine.min(%s) <{map = affine_map<(d0) -> (d0, 5)>}> : index
  %ok = arith.cmpi(%m, %c4) <{predicate = sgt}> : i1
  %buf = memref.alloca() <{alignment = 32}> : memref<4xf32>
  func.return(%m, %ok)
}
`)
	pipeline := rewrite.NewPipeline(&rewrite.ConstantFolding{}, &rewrite.DeadCodeElimination{})
	changed, err := pipeline.Run(p)
	require.NoError(t, err)
	assert.True(t, changed)

	want := `func @g() -> (index, i1) {
  %0 = arith.constant() <{value = 5}> : index
  %1 = arith.constant() <{value = true}> : i1
  func.return(%0, %1)
}
`
	if diff := cmp.Diff(want, ir.Print(p)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	changed, err = pipeline.Run(p)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDeadCodeEliminationRemovesChains(t *testing.T) {
	p := mustParse(t, `func @chain(%x: index) -> (index) {
  %a = arith.addi(%x, %x) : index
  %b = arith.addi(%a, %a) : index
  %c = arith.muli(%b, %a) : index
  %d = arith.subi(%c, %b) : index
  %buf = memref.alloca() <{alignment = 32}> : memref<4xf32>
  %live = arith.addi(%x, %a) : index
  func.return(%live)
}
`)
	changed, err := (&rewrite.DeadCodeElimination{}).Apply(p)
	require.NoError(t, err)
	assert.True(t, changed)

	want := `func @chain(%x: index) -> (index) {
  %a = arith.addi(%x, %x) : index
  %live = arith.addi(%x, %a) : index
  func.return(%live)
}
`
	if diff := cmp.Diff(want, ir.Print(p)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, ir.Verify(p))
}

func TestConstantFoldingStaticDim(t *testing.T) {
	p := mustParse(t, `func @d(%A: memref<6x?xf32>) -> (index, index) {
  %d0 = memref.dim(%A) <{dim = 0}> : index
  %d1 = memref.dim(%A) <{dim = 1}> : index
  func.return(%d0, %d1)
}
`)
	changed, err := (&rewrite.ConstantFolding{}).Apply(p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, countKind(p, ir.OpDim))

	out, err := interp.Run(p, "d", interp.NewFloatMemRef([]int64{6, 3}, make([]float64, 18)))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(6), int64(3)}, out)
}

func TestCommonSubexpressionElimination(t *testing.T) {
	p := mustParse(t, `func @h(%x: index, %c: i1) -> (index) {
  %a = arith.addi(%x, %x) : index
  %b = arith.addi(%x, %x) : index
  %r = scf.if(%c) : index {
    %d = arith.addi(%x, %x) : index
    scf.yield(%d)
  } {
    scf.yield(%b)
  }
  %s = arith.addi(%a, %r) : index
  func.return(%s)
}
`)
	changed, err := (&rewrite.CommonSubexpressionElimination{}).Apply(p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, countKind(p, ir.OpAddI))
	require.Empty(t, ir.Verify(p))

	out, err := interp.Run(p, "h", int64(3), true)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(12)}, out)
}

func TestPatternPass(t *testing.T) {
	p := mustParse(t, addZeroSrc)
	pass := &rewrite.PatternPass{
		Patterns: rewrite.NewPatternSet(&addZero{benefit: 1}),
		Config:   rewrite.DefaultGreedyConfig(),
	}
	assert.Equal(t, "patterns", pass.Name())
	assert.Contains(t, pass.Description(), "1 rewrite patterns")

	changed, err := rewrite.NewPipeline(pass, &rewrite.DeadCodeElimination{}).Run(p)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 0, countKind(p, ir.OpConstant))
}
