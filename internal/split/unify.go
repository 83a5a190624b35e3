package split

import (
	"vecsplit/internal/ir"
)

// CastCompatibleMemRefType returns a type that both a and b can be
// memref.cast to. When they are already cast compatible that type is a.
// Otherwise every disagreeing size, stride or offset becomes dynamic; ranks
// and element types must match and both layouts must be strided.
func CastCompatibleMemRefType(a, b *ir.MemRefType) (*ir.MemRefType, bool) {
	if ir.CastCompatible(a, b) {
		return a, true
	}
	if a.Rank() != b.Rank() || !ir.TypesEqual(a.Elem, b.Elem) {
		return nil, false
	}
	aStrides, aOffset, ok := a.StridesAndOffset()
	if !ok {
		return nil, false
	}
	bStrides, bOffset, ok := b.StridesAndOffset()
	if !ok {
		return nil, false
	}

	shape := make([]int64, a.Rank())
	strides := make([]int64, a.Rank())
	for i := range shape {
		shape[i] = unify(a.Shape[i], b.Shape[i])
		strides[i] = unify(aStrides[i], bStrides[i])
	}
	return &ir.MemRefType{
		Shape:  shape,
		Elem:   a.Elem,
		Layout: &ir.StridedLayout{Strides: strides, Offset: unify(aOffset, bOffset)},
	}, true
}

func unify(a, b int64) int64 {
	if a == b {
		return a
	}
	return ir.Dynamic
}
