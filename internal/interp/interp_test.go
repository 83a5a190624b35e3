package interp_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsplit/internal/interp"
	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
)

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	p, errs := parser.ParseSource(t.Name()+".mlir", src)
	require.Empty(t, errs)
	require.Empty(t, ir.Verify(p))
	return p
}

const maskedRead = `func @read(%A: memref<?xf32>, %i: index, %pad: f32) -> (vector<4xf32>) {
  %v = vector.transfer_read(%A, %i, %pad) <{in_bounds = [false], permutation_map = affine_map<(d0) -> (d0)>}> : vector<4xf32>
  func.return(%v)
}
`

func TestMaskedReadPads(t *testing.T) {
	p := mustParse(t, maskedRead)
	a := interp.NewFloatMemRef([]int64{6}, interp.Iota(6, 0))

	out, err := interp.Run(p, "read", a, int64(4), -1.0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float64{4, 5, -1, -1}, out[0].(*interp.Vector).Floats())

	out, err = interp.Run(p, "read", a, int64(1), -1.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, out[0].(*interp.Vector).Floats())
}

func TestInBoundsFlagIsChecked(t *testing.T) {
	p := mustParse(t, maskedRead)
	fn, _ := p.LookupFunc("read")
	xfer, ok := ir.AsTransfer(p, p.Body(fn).Ops[0])
	require.True(t, ok)
	xfer.SetInBounds([]bool{true})

	a := interp.NewFloatMemRef([]int64{6}, interp.Iota(6, 0))
	_, err := interp.Run(p, "read", a, int64(4), -1.0)
	require.Error(t, err)
	assert.Equal(t, interp.ErrOutOfBounds, errors.Cause(err))

	_, err = interp.Run(p, "read", a, int64(2), -1.0)
	assert.NoError(t, err)
}

func TestMaskedWriteSkipsOutOfBoundsLanes(t *testing.T) {
	p := mustParse(t, `func @write(%A: memref<3x3xf32>, %v: vector<2x2xf32>, %i: index) {
  vector.transfer_write(%v, %A, %i, %i) <{in_bounds = [false, false], permutation_map = affine_map<(d0, d1) -> (d0, d1)>}>
  func.return()
}
`)
	a := interp.NewFloatMemRef([]int64{3, 3}, make([]float64, 9))
	v := &interp.Vector{Shape: []int64{2, 2}, Data: interp.Floats(1, 2, 3, 4)}

	_, err := interp.Run(p, "write", a, v, int64(2))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 0, 1}, a.Floats())
}

func TestSubViewCopy(t *testing.T) {
	p := mustParse(t, `func @copy(%A: memref<4x4xf32>, %B: memref<2x2xf32>) {
  %c1 = arith.constant() <{value = 1}> : index
  %sv = memref.subview(%A, %c1) <{static_offsets = [?, 2], static_sizes = [2, 2], static_strides = [1, 1]}> : memref<2x2xf32, strided<[4, 1], offset: ?>>
  memref.copy(%sv, %B)
  func.return()
}
`)
	a := interp.NewFloatMemRef([]int64{4, 4}, interp.Iota(16, 0))
	b := interp.NewFloatMemRef([]int64{2, 2}, make([]float64, 4))

	_, err := interp.Run(p, "copy", a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7, 10, 11}, b.Floats())
}

func TestTypeCastRoundTrip(t *testing.T) {
	p := mustParse(t, `func @buf(%v: vector<2x2xf32>) -> (vector<2x2xf32>) {
  %b = memref.alloca() <{alignment = 32}> : memref<2x2xf32>
  %t = vector.type_cast(%b) : memref<vector<2x2xf32>>
  memref.store(%v, %t)
  %r = memref.load(%t) : vector<2x2xf32>
  func.return(%r)
}
`)
	v := &interp.Vector{Shape: []int64{2, 2}, Data: interp.Floats(1, 2, 3, 4)}
	out, err := interp.Run(p, "buf", v)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, out[0].(*interp.Vector).Floats())
}

func TestAffineMinAndControlFlow(t *testing.T) {
	p := mustParse(t, `func @f(%i: index, %n: index) -> (index, index) {
  %m = affine.min(%i) <{map = affine_map<(d0) -> (-d0 + 10, 4)>}> : index
  %ok = arith.cmpi(%i, %n) <{predicate = slt}> : i1
  %r = scf.if(%ok) : index {
    scf.yield(%m)
  } {
    %c0 = arith.constant() <{value = 0}> : index
    scf.yield(%c0)
  }
  func.return(%m, %r)
}
`)
	out, err := interp.Run(p, "f", int64(8), int64(9))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(2)}, out)

	out, err = interp.Run(p, "f", int64(3), int64(2))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(4), int64(0)}, out)
}

func TestCastChecksRuntimeLayout(t *testing.T) {
	p := mustParse(t, `func @cast(%A: memref<?xf32>) {
  %c = memref.cast(%A) : memref<4xf32>
  func.return()
}
`)
	_, err := interp.Run(p, "cast", interp.NewFloatMemRef([]int64{4}, make([]float64, 4)))
	assert.NoError(t, err)

	_, err = interp.Run(p, "cast", interp.NewFloatMemRef([]int64{6}, make([]float64, 6)))
	assert.Error(t, err)
}
