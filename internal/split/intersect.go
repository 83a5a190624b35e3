package split

import (
	"github.com/pkg/errors"

	"vecsplit/internal/affine"
	"vecsplit/internal/ir"
)

// SubViewIntersection builds the two views covering the part of the
// transfer that lies inside the source: one over the source at the
// transfer indices and one over buffer at zero offsets. Both have the sizes
//
//	min(dim(source, i) - index[i], dim(buffer, i))
//
// with unit strides. The source view is returned first.
func SubViewIntersection(b *ir.Builder, xfer ir.TransferOp, buffer ir.ValueID) (sourceView, bufferView ir.ValueID, err error) {
	source := xfer.Source()
	rank := xfer.ShapedType().Rank()
	bufferRank := b.P.TypeOf(buffer).(*ir.MemRefType).Rank()
	if rank != bufferRank {
		return ir.NoValue, ir.NoValue, contractViolation("source rank %d does not match buffer rank %d", rank, bufferRank)
	}
	indices := xfer.Indices()

	sizes := make([]ir.Fold, 0, rank)
	for i := 0; i < xfer.LeadingShapedRank(); i++ {
		sizes = append(sizes, ir.FoldValue(indices[i]))
	}
	// (d0, d1, d2) -> (d0 - d1, d2)
	overlap := affine.NewMap(3, affine.Dim(0).Sub(affine.Dim(1)), affine.Dim(2))
	xfer.ZipResultAndIndexing(func(resultIdx, indicesIdx int) {
		sizes = append(sizes, b.ComposedFoldedAffineMin(overlap, []ir.Fold{
			b.MixedSize(source, indicesIdx),
			ir.FoldValue(indices[indicesIdx]),
			b.MixedSize(buffer, resultIdx),
		}))
	})

	offsets := make([]ir.Fold, rank)
	zeros := make([]ir.Fold, rank)
	ones := make([]ir.Fold, rank)
	for i := range offsets {
		offsets[i] = ir.FoldValue(indices[i])
		zeros[i] = ir.FoldStatic(0)
		ones[i] = ir.FoldStatic(1)
	}

	sourceView, err = b.SubView(source, offsets, sizes, ones)
	if err != nil {
		return ir.NoValue, ir.NoValue, errors.Wrap(err, "source intersection")
	}
	bufferView, err = b.SubView(buffer, zeros, sizes, ones)
	if err != nil {
		return ir.NoValue, ir.NoValue, errors.Wrap(err, "buffer intersection")
	}
	return sourceView, bufferView, nil
}
