package split

import (
	"vecsplit/internal/affine"
	"vecsplit/internal/ir"
)

// InBoundsCondition builds, right before the transfer, the i1 value that is
// true when every dimension not flagged in-bounds fits in the source:
//
//	index + vectorSize <= dim(source)
//
// Checks that hold statically are omitted. ok is false when every check
// folded away, in which case nothing was created.
func InBoundsCondition(b *ir.Builder, xfer ir.TransferOp) (cond ir.ValueID, ok bool) {
	saved := b.InsertionPoint()
	defer b.RestoreInsertionPoint(saved)
	b.SetInsertionPointBefore(xfer.ID)

	vt := xfer.VectorType()
	indices := xfer.Indices()
	source := xfer.Source()
	cond = ir.NoValue

	xfer.ZipResultAndIndexing(func(resultIdx, indicesIdx int) {
		if xfer.IsDimInBounds(resultIdx) {
			return
		}
		// index + vector size
		sum := b.ComposedFoldedAffineApply(
			affine.NewMap(1, affine.Dim(0).AddConst(vt.Shape[resultIdx])),
			[]ir.Fold{ir.FoldValue(indices[indicesIdx])})
		extent := xfer.ShapedType().Shape[indicesIdx]

		s, sumStatic := b.AsStatic(sum)
		if sumStatic && !ir.IsDynamic(extent) && s <= extent {
			return
		}
		dim := b.MixedSize(source, indicesIdx)
		check := b.CmpI(ir.PredSLE, b.Materialize(sum), b.Materialize(dim))
		if cond == ir.NoValue {
			cond = check
		} else {
			cond = b.AndI(cond, check)
		}
	})
	return cond, cond != ir.NoValue
}
