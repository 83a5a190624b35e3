package split_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsplit/internal/interp"
	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
	"vecsplit/internal/rewrite"
	"vecsplit/internal/split"
)

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	p, errs := parser.ParseSource(t.Name()+".mlir", src)
	require.Empty(t, errs)
	require.Empty(t, ir.Verify(p))
	return p
}

func transfers(p *ir.Program) []ir.OpID {
	var out []ir.OpID
	for _, op := range p.Collect() {
		if _, ok := ir.AsTransfer(p, op); ok {
			out = append(out, op)
		}
	}
	return out
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

func splitFirst(t *testing.T, p *ir.Program, strategy split.Strategy) ir.OpID {
	t.Helper()
	xfers := transfers(p)
	require.NotEmpty(t, xfers)
	ifOp, err := split.Split(rewrite.NewRewriter(p), xfers[0], split.Options{Strategy: strategy})
	require.NoError(t, err)
	require.Empty(t, ir.Verify(p), "\n%s", ir.Print(p))
	return ifOp
}

const staticRead = `func @f(%A: memref<8xf32>, %pad: f32) -> (vector<4xf32>) {
  %c2 = arith.constant() <{value = 2}> : index
  %v = vector.transfer_read(%A, %c2, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return(%v)
}
`

func TestStaticallyInBoundsIsNotApplicable(t *testing.T) {
	p := mustParse(t, staticRead)
	before := ir.Print(p)
	numOps := p.NumOps()

	for _, s := range []split.Strategy{split.CopyBuffer, split.ReissueAndBuffer} {
		_, err := split.Split(rewrite.NewRewriter(p), transfers(p)[0], split.Options{Strategy: s})
		require.Error(t, err)
		assert.True(t, split.IsNotApplicable(err), err.Error())
	}
	assert.Equal(t, numOps, p.NumOps())
	assert.Equal(t, before, ir.Print(p))
}

const readSrc = `func @read(%A: memref<5x6xf32>, %i: index, %j: index, %pad: f32) -> (vector<4x4xf32>) {
  %v = vector.transfer_read(%A, %i, %j, %pad) <{in_bounds = [false, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}> : vector<4x4xf32>
  func.return(%v)
}
`

const writeSrc = `func @write(%A: memref<5x6xf32>, %v: vector<4x4xf32>, %i: index, %j: index) {
  vector.transfer_write(%v, %A, %i, %j) <{in_bounds = [false, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}>
  func.return()
}
`

func TestSplitReadMatchesMaskedRead(t *testing.T) {
	for _, strategy := range []split.Strategy{split.CopyBuffer, split.ReissueAndBuffer} {
		t.Run(strategy.String(), func(t *testing.T) {
			original := mustParse(t, readSrc)
			transformed := mustParse(t, readSrc)
			ifOp := splitFirst(t, transformed, strategy)
			require.NotEqual(t, ir.NoOp, ifOp)
			assert.Equal(t, ir.OpIf, transformed.Op(ifOp).Kind)

			xfer, ok := ir.AsTransfer(transformed, transfers(transformed)[len(transfers(transformed))-1])
			require.True(t, ok)
			assert.Equal(t, []bool{true, true}, xfer.InBounds())

			a := interp.NewFloatMemRef([]int64{5, 6}, interp.Iota(30, 0))
			for i := int64(0); i <= 5; i++ {
				for j := int64(0); j <= 6; j++ {
					want, err := interp.Run(original, "read", a, i, j, -1.0)
					require.NoError(t, err)
					got, err := interp.Run(transformed, "read", a, i, j, -1.0)
					require.NoError(t, err, "i=%d j=%d", i, j)
					assert.Equal(t, want[0].(*interp.Vector).Floats(), got[0].(*interp.Vector).Floats(), "i=%d j=%d", i, j)
				}
			}
		})
	}
}

func TestSplitWriteMatchesMaskedWrite(t *testing.T) {
	for _, strategy := range []split.Strategy{split.CopyBuffer, split.ReissueAndBuffer} {
		t.Run(strategy.String(), func(t *testing.T) {
			original := mustParse(t, writeSrc)
			transformed := mustParse(t, writeSrc)
			splitFirst(t, transformed, strategy)

			v := &interp.Vector{Shape: []int64{4, 4}, Data: interp.Floats(interp.Iota(16, 1)...)}
			for i := int64(0); i <= 5; i++ {
				for j := int64(0); j <= 6; j++ {
					want := interp.NewFloatMemRef([]int64{5, 6}, interp.Iota(30, 100))
					got := interp.NewFloatMemRef([]int64{5, 6}, interp.Iota(30, 100))
					_, err := interp.Run(original, "write", want, v, i, j)
					require.NoError(t, err)
					_, err = interp.Run(transformed, "write", got, v, i, j)
					require.NoError(t, err, "i=%d j=%d", i, j)
					assert.Equal(t, want.Floats(), got.Floats(), "i=%d j=%d", i, j)
				}
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	p := mustParse(t, writeSrc)
	splitFirst(t, p, split.CopyBuffer)
	assert.Equal(t, 0, countKind(p, ir.OpTransferRead))
	assert.Equal(t, 1, countKind(p, ir.OpTransferWrite))

	a := interp.NewFloatMemRef([]int64{5, 6}, make([]float64, 30))
	v := &interp.Vector{Shape: []int64{4, 4}, Data: interp.Floats(interp.Iota(16, 1)...)}
	_, err := interp.Run(p, "write", a, v, int64(3), int64(4))
	require.NoError(t, err)

	want := make([]float64, 30)
	want[3*6+4], want[3*6+5] = 1, 2
	want[4*6+4], want[4*6+5] = 5, 6
	assert.Equal(t, want, a.Floats())
}

const condSrc = `func @cond(%A: memref<8x?xf32>, %j: index, %pad: f32) -> (i1) {
  %c2 = arith.constant() <{value = 2}> : index
  %t = arith.constant() <{value = true}> : i1
  %v = vector.transfer_read(%A, %c2, %j, %pad) <{in_bounds = [false, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}> : vector<4x4xf32>
  func.return(%t)
}
`

func TestInBoundsConditionOmitsStaticChecks(t *testing.T) {
	p := mustParse(t, condSrc)
	fn, _ := p.LookupFunc("cond")
	body := p.Body(fn)
	xfer, ok := ir.AsTransfer(p, transfers(p)[0])
	require.True(t, ok)

	cond, ok := split.InBoundsCondition(ir.NewBuilder(p), xfer)
	require.True(t, ok)

	// Only the dynamic dimension is checked.
	assert.Equal(t, 1, countKind(p, ir.OpCmpI))
	assert.Equal(t, 0, countKind(p, ir.OpAndI))
	check := p.Op(p.DefiningOp(cond))
	assert.Equal(t, ir.OpCmpI, check.Kind)
	assert.Equal(t, ir.PredSLE, check.Attrs.Predicate)
	sum := p.Op(p.DefiningOp(check.Operands[0]))
	assert.Equal(t, ir.OpAffineApply, sum.Kind)
	assert.Equal(t, []int64{7}, sum.Attrs.Map.Eval([]int64{3}))
	dim := p.Op(p.DefiningOp(check.Operands[1]))
	assert.Equal(t, ir.OpDim, dim.Kind)
	assert.Equal(t, 1, dim.Attrs.Dim)

	ret := body.Ops[len(body.Ops)-1]
	p.SetOperand(ret, 0, cond)
	require.Empty(t, ir.Verify(p))

	a := interp.NewFloatMemRef([]int64{8, 6}, interp.Iota(48, 0))
	for j, want := range map[int64]bool{0: true, 2: true, 3: false, 6: false} {
		out, err := interp.Run(p, "cond", a, j, 0.0)
		require.NoError(t, err)
		assert.Equal(t, want, out[0], "j=%d", j)
	}
}

func TestInBoundsConditionFoldsAway(t *testing.T) {
	p := mustParse(t, staticRead)
	numOps := p.NumOps()
	xfer, _ := ir.AsTransfer(p, transfers(p)[0])

	cond, ok := split.InBoundsCondition(ir.NewBuilder(p), xfer)
	assert.False(t, ok)
	assert.Equal(t, ir.NoValue, cond)
	assert.Equal(t, numOps, p.NumOps())
}

func TestInBoundsConditionCombinesDimensions(t *testing.T) {
	p := mustParse(t, readSrc)
	xfer, _ := ir.AsTransfer(p, transfers(p)[0])

	_, ok := split.InBoundsCondition(ir.NewBuilder(p), xfer)
	require.True(t, ok)
	assert.Equal(t, 2, countKind(p, ir.OpCmpI))
	assert.Equal(t, 1, countKind(p, ir.OpAndI))
	// Static extents need no memref.dim.
	assert.Equal(t, 0, countKind(p, ir.OpDim))
}

func TestInBoundsConditionSkipsInBoundsDims(t *testing.T) {
	p := mustParse(t, `func @partial(%A: memref<?x?xf32>, %i: index, %j: index, %pad: f32) -> (vector<4x4xf32>) {
  %v = vector.transfer_read(%A, %i, %j, %pad) <{in_bounds = [true, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}> : vector<4x4xf32>
  func.return(%v)
}
`)
	xfer, _ := ir.AsTransfer(p, transfers(p)[0])

	cond, ok := split.InBoundsCondition(ir.NewBuilder(p), xfer)
	require.True(t, ok)
	assert.Equal(t, 1, countKind(p, ir.OpCmpI))
	assert.Equal(t, 0, countKind(p, ir.OpAndI))
	require.Equal(t, 1, countKind(p, ir.OpDim))

	check := p.Op(p.DefiningOp(cond))
	require.Equal(t, ir.OpCmpI, check.Kind)
	dim := p.Op(p.DefiningOp(check.Operands[1]))
	assert.Equal(t, ir.OpDim, dim.Kind)
	assert.Equal(t, 1, dim.Attrs.Dim)
}

// The subview gives the source a dynamic offset, so the fast and slow paths
// only meet at a fully dynamic strided type.
const stridedReadSrc = `func @read(%A: memref<8x9xf32>, %o: index, %i: index, %j: index, %pad: f32) -> (vector<4x4xf32>) {
  %sv = memref.subview(%A, %o) <{static_offsets = [?, 1], static_sizes = [6, 7], static_strides = [1, 1]}> : memref<6x7xf32, strided<[9, 1], offset: ?>>
  %v = vector.transfer_read(%sv, %i, %j, %pad) <{in_bounds = [true, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}> : vector<4x4xf32>
  func.return(%v)
}
`

const stridedWriteSrc = `func @write(%A: memref<8x9xf32>, %v: vector<4x4xf32>, %o: index, %i: index, %j: index) {
  %sv = memref.subview(%A, %o) <{static_offsets = [?, 1], static_sizes = [6, 7], static_strides = [1, 1]}> : memref<6x7xf32, strided<[9, 1], offset: ?>>
  vector.transfer_write(%v, %sv, %i, %j) <{in_bounds = [true, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}>
  func.return()
}
`

func TestSplitStridedPartiallyInBounds(t *testing.T) {
	const unified = "memref<?x?xf32, strided<[?, 1], offset: ?>>"
	v := &interp.Vector{Shape: []int64{4, 4}, Data: interp.Floats(interp.Iota(16, 1)...)}

	for _, strategy := range []split.Strategy{split.CopyBuffer, split.ReissueAndBuffer} {
		t.Run("read/"+strategy.String(), func(t *testing.T) {
			original := mustParse(t, stridedReadSrc)
			transformed := mustParse(t, stridedReadSrc)
			splitFirst(t, transformed, strategy)
			assert.Contains(t, ir.Print(transformed), unified)
			assert.Equal(t, 1, countKind(transformed, ir.OpCmpI))

			a := interp.NewFloatMemRef([]int64{8, 9}, interp.Iota(72, 0))
			// Dimension 0 is flagged in bounds, so i stays within it.
			for o := int64(0); o <= 2; o++ {
				for i := int64(0); i <= 2; i++ {
					for j := int64(0); j <= 7; j++ {
						want, err := interp.Run(original, "read", a, o, i, j, -1.0)
						require.NoError(t, err)
						got, err := interp.Run(transformed, "read", a, o, i, j, -1.0)
						require.NoError(t, err, "o=%d i=%d j=%d", o, i, j)
						assert.Equal(t, want[0].(*interp.Vector).Floats(), got[0].(*interp.Vector).Floats(), "o=%d i=%d j=%d", o, i, j)
					}
				}
			}
		})

		t.Run("write/"+strategy.String(), func(t *testing.T) {
			original := mustParse(t, stridedWriteSrc)
			transformed := mustParse(t, stridedWriteSrc)
			splitFirst(t, transformed, strategy)
			assert.Contains(t, ir.Print(transformed), unified)

			for o := int64(0); o <= 2; o++ {
				for i := int64(0); i <= 2; i++ {
					for j := int64(0); j <= 7; j++ {
						want := interp.NewFloatMemRef([]int64{8, 9}, interp.Iota(72, 100))
						got := interp.NewFloatMemRef([]int64{8, 9}, interp.Iota(72, 100))
						_, err := interp.Run(original, "write", want, v, o, i, j)
						require.NoError(t, err)
						_, err = interp.Run(transformed, "write", got, v, o, i, j)
						require.NoError(t, err, "o=%d i=%d j=%d", o, i, j)
						assert.Equal(t, want.Floats(), got.Floats(), "o=%d i=%d j=%d", o, i, j)
					}
				}
			}
		})
	}
}

func TestOverlapSizing(t *testing.T) {
	p := mustParse(t, `func @read(%A: memref<10xf32>, %i: index, %pad: f32) -> (vector<4xf32>) {
  %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return(%v)
}
`)
	splitFirst(t, p, split.CopyBuffer)

	var mins []ir.OpID
	for _, op := range p.Collect() {
		if p.Op(op).Kind == ir.OpAffineMin {
			mins = append(mins, op)
		}
	}
	require.Len(t, mins, 1)
	m := p.Op(mins[0])
	require.Len(t, m.Operands, 1)
	fn, _ := p.LookupFunc("read")
	assert.Equal(t, p.Body(fn).Args[1], m.Operands[0])
	assert.Equal(t, []int64{2, 4}, m.Attrs.Map.Eval([]int64{8}))
	assert.Equal(t, []int64{5, 4}, m.Attrs.Map.Eval([]int64{5}))
	assert.Equal(t, 2, countKind(p, ir.OpSubView))

	a := interp.NewFloatMemRef([]int64{10}, interp.Iota(10, 0))
	out, err := interp.Run(p, "read", a, int64(8), -1.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 9, -1, -1}, out[0].(*interp.Vector).Floats())
}

const nestedSrc = `func @nested(%A: memref<?xf32>, %n: index, %pad: f32) {
  %c0 = arith.constant() <{value = 0}> : index
  %c1 = arith.constant() <{value = 1}> : index
  scf.for(%c0, %n, %c1) {
    ^bb(%i: index):
    scf.for(%c0, %n, %c1) {
      ^bb(%j: index):
      %v = vector.transfer_read(%A, %j, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
      scf.yield()
    }
    scf.yield()
  }
  func.return()
}
`

func TestScopeHoistsOutOfLoops(t *testing.T) {
	p := mustParse(t, nestedSrc)
	fn, _ := p.LookupFunc("nested")
	xfer := transfers(p)[0]

	scope, err := split.AllocationScope(p, xfer)
	require.NoError(t, err)
	assert.Equal(t, fn, scope)

	splitFirst(t, p, split.CopyBuffer)
	first := p.Op(p.Body(fn).Ops[0])
	assert.Equal(t, ir.OpAlloca, first.Kind)
	assert.Equal(t, int64(32), first.Attrs.Alignment)
	assert.Equal(t, "memref<4xf32>", p.TypeOf(first.Results[0]).String())
	assert.Equal(t, 1, countKind(p, ir.OpAlloca))
}

func TestScopeStopsAtNonLoop(t *testing.T) {
	p := mustParse(t, `func @scoped(%A: memref<?xf32>, %n: index, %pad: f32, %c: i1) {
  %c0 = arith.constant() <{value = 0}> : index
  %c1 = arith.constant() <{value = 1}> : index
  scf.for(%c0, %n, %c1) {
    ^bb(%i: index):
    memref.alloca_scope() {
      %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
      scf.yield()
    }
    scf.yield()
  }
  scf.if(%c) {
    scf.for(%c0, %n, %c1) {
      ^bb(%k: index):
      %w = vector.transfer_read(%A, %k, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
      scf.yield()
    }
    scf.yield()
  } {
    scf.yield()
  }
  func.return()
}
`)
	xfers := transfers(p)
	require.Len(t, xfers, 2)

	scope, err := split.AllocationScope(p, xfers[0])
	require.NoError(t, err)
	assert.Equal(t, ir.OpAllocaScope, p.Op(scope).Kind)

	_, err = split.AllocationScope(p, xfers[1])
	require.Error(t, err)
	assert.True(t, split.IsContractViolation(err))

	before := ir.Print(p)
	_, err = split.Split(rewrite.NewRewriter(p), xfers[1], split.DefaultOptions())
	assert.True(t, split.IsContractViolation(err))
	assert.Equal(t, before, ir.Print(p))
}

func TestRejectionsNeverAllocate(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "masked",
			src: `func @f(%A: memref<?xf32>, %i: index, %pad: f32, %m: vector<4xi1>) {
  %v = vector.transfer_read(%A, %i, %pad, %m) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return()
}
`,
		},
		{
			name: "transposed",
			src: `func @f(%A: memref<?x?xf32>, %i: index, %pad: f32) {
  %v = vector.transfer_read(%A, %i, %i, %pad) <{in_bounds = [false, false], permutation_map = affine_map<(d0, d1) -> (d1, d0)>}> : vector<4x4xf32>
  func.return()
}
`,
		},
		{
			name: "all in bounds",
			src: `func @f(%A: memref<?xf32>, %i: index, %pad: f32) {
  %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [true], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return()
}
`,
		},
		{
			name: "under scf.if",
			src: `func @f(%A: memref<?xf32>, %i: index, %pad: f32, %c: i1) {
  scf.if(%c) {
    %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
    scf.yield()
  } {
    scf.yield()
  }
  func.return()
}
`,
		},
		{
			name: "static",
			src:  staticRead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustParse(t, tt.src)
			before := ir.Print(p)
			for _, s := range []split.Strategy{split.None, split.CopyBuffer, split.ReissueAndBuffer} {
				_, err := split.Split(rewrite.NewRewriter(p), transfers(p)[0], split.Options{Strategy: s})
				require.Error(t, err)
				assert.True(t, split.IsNotApplicable(err), "%s: %v", s, err)
			}
			assert.Equal(t, 0, countKind(p, ir.OpAlloca))
			assert.Equal(t, before, ir.Print(p))
		})
	}
}

func TestRankMismatchIsContractViolation(t *testing.T) {
	p := mustParse(t, `func @f(%A: memref<?x?xf32>, %i: index, %pad: f32) {
  %v = vector.transfer_read(%A, %i, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0, d1) -> (d1)>}> : vector<4xf32>
  func.return()
}
`)
	xfer := transfers(p)[0]
	require.NoError(t, split.Precondition(p, xfer))

	_, err := split.Split(rewrite.NewRewriter(p), xfer, split.DefaultOptions())
	assert.True(t, split.IsContractViolation(err))

	ok, err := split.NewFullPartialRewriter(split.DefaultOptions(), nil, 1).MatchAndRewrite(rewrite.NewRewriter(p), xfer)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, countKind(p, ir.OpAlloca))
}

func TestForceInBounds(t *testing.T) {
	p := mustParse(t, readSrc)
	numOps := p.NumOps()
	ifOp, err := split.Split(rewrite.NewRewriter(p), transfers(p)[0], split.Options{Strategy: split.ForceInBounds})
	require.NoError(t, err)
	assert.Equal(t, ir.NoOp, ifOp)
	assert.Equal(t, numOps, p.NumOps())

	xfer, _ := ir.AsTransfer(p, transfers(p)[0])
	assert.Equal(t, []bool{true, true}, xfer.InBounds())
}

func TestSplitOutputRoundTrips(t *testing.T) {
	for _, src := range []string{readSrc, writeSrc, nestedSrc} {
		for _, strategy := range []split.Strategy{split.CopyBuffer, split.ReissueAndBuffer} {
			p := mustParse(t, src)
			splitFirst(t, p, strategy)
			printed := ir.Print(p)

			reparsed, errs := parser.ParseSource("split.mlir", printed)
			require.Empty(t, errs, printed)
			require.Empty(t, ir.Verify(reparsed))
			if diff := cmp.Diff(printed, ir.Print(reparsed)); diff != "" {
				t.Errorf("%s: print(parse(split)) mismatch (-want +got):\n%s", strategy, diff)
			}
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []split.Strategy{split.None, split.ForceInBounds, split.CopyBuffer, split.ReissueAndBuffer} {
		got, err := split.ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := split.ParseStrategy(" Copy-Buffer ")
	require.NoError(t, err)
	assert.Equal(t, split.CopyBuffer, got)

	_, err = split.ParseStrategy("vector-transfer")
	assert.Error(t, err)
	assert.Equal(t, "unknown", split.Strategy(42).String())
}
