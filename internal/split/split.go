// Package split rewrites vector transfers that may access memory out of
// bounds into a fast path, taken when the whole vector fits in the source,
// and a slow path that goes through a scratch buffer of one vector. Both
// paths end in a transfer whose dimensions are all in bounds.
//
// For a read the result looks like:
//
//	%view, %i, %j = scf.if(%inBounds) {
//	  scf.yield(%A, %i, %j)
//	} {
//	  linalg.fill(%pad, %buf)
//	  memref.copy(<intersection of %A>, <intersection of %buf>)
//	  scf.yield(memref.cast(%buf), %c0, %c0)
//	}
//	%v = vector.transfer_read(%view, %i, %j, %pad) <{in_bounds = [true, true]}>
package split

import (
	"github.com/tliron/commonlog"

	"vecsplit/internal/ir"
	"vecsplit/internal/rewrite"
)

var log = commonlog.GetLogger("vecsplit.split")

// Scratch buffers are aligned for the widest vector loads.
const bufferAlignment = 32

// Precondition reports, as an ErrNotApplicable cause, why op cannot be
// split. It does not look at the mask or at the ranks: those are checked by
// Split.
func Precondition(p *ir.Program, op ir.OpID) error {
	xfer, ok := ir.AsTransfer(p, op)
	if !ok {
		return notApplicable("%s is not a vector transfer", p.Op(op).Kind)
	}
	if xfer.TransferRank() == 0 {
		return notApplicable("zero-rank transfer")
	}
	if perm := xfer.PermutationMap(); !perm.IsMinorIdentity() {
		return notApplicable("permutation map %s is not a minor identity", perm)
	}
	if !xfer.HasOutOfBoundsDim() {
		return notApplicable("every dimension is in bounds")
	}
	// Splitting produces transfers directly under scf.if; skipping them
	// keeps the rewrite from applying to its own output.
	if parent := p.ParentOp(op); parent != ir.NoOp && p.Op(parent).Kind == ir.OpIf {
		return notApplicable("transfer is directly nested in scf.if")
	}
	return nil
}

// Split applies the strategy in opts to the transfer op. For CopyBuffer and
// ReissueAndBuffer it returns the first scf.if it created; ForceInBounds
// updates op in place and returns ir.NoOp.
//
// An ErrNotApplicable cause means the program was not modified. Calling
// Split on a transfer whose source and vector ranks differ, or that has no
// enclosing allocation scope, is an ErrContractViolation.
func Split(rw *rewrite.Rewriter, op ir.OpID, opts Options) (ir.OpID, error) {
	p := rw.Program()
	if opts.Strategy == None {
		return ir.NoOp, notApplicable("split strategy is %s", opts.Strategy)
	}
	xfer, ok := ir.AsTransfer(p, op)
	if !ok {
		return ir.NoOp, notApplicable("%s is not a vector transfer", p.Op(op).Kind)
	}

	if opts.Strategy == ForceInBounds {
		if xfer.TransferRank() == 0 {
			return ir.NoOp, notApplicable("zero-rank transfer")
		}
		rw.UpdateInPlace(op, func() {
			xfer.SetInBounds(ir.AllInBounds(xfer.TransferRank()))
		})
		return ir.NoOp, nil
	}

	if err := Precondition(p, op); err != nil {
		return ir.NoOp, err
	}
	if xfer.Mask() != ir.NoValue {
		return ir.NoOp, notApplicable("masked transfers are not supported")
	}
	if sr, vr := xfer.ShapedType().Rank(), xfer.TransferRank(); sr != vr {
		return ir.NoOp, contractViolation("source rank %d does not match vector rank %d", sr, vr)
	}

	// Everything that can refuse runs before the first op is created.
	scope, err := AllocationScope(p, op)
	if err != nil {
		return ir.NoOp, err
	}
	vt := xfer.VectorType()
	bufferType := &ir.MemRefType{Shape: append([]int64(nil), vt.Shape...), Elem: vt.Elem}
	compatible, ok := CastCompatibleMemRefType(xfer.ShapedType(), bufferType)
	if !ok {
		return ir.NoOp, notApplicable("no common memref type for %s and %s", xfer.ShapedType(), bufferType)
	}

	defer rw.Guard()()
	loc := p.Op(op).Loc
	rw.Loc = loc
	cond, ok := InBoundsCondition(rw.Builder, xfer)
	if !ok {
		return ir.NoOp, notApplicable("in-bounds condition is statically true")
	}

	rw.SetInsertionPointToStart(p.Op(scope).Regions[0])
	rw.Loc = p.Op(scope).Loc
	buffer := rw.Alloca(bufferType, bufferAlignment)
	rw.Loc = loc
	rw.SetInsertionPointBefore(op)

	s := &splitter{rw: rw, xfer: xfer, strategy: opts.Strategy, cond: cond, compatible: compatible, buffer: buffer}
	var ifOp ir.OpID
	if xfer.Kind == ir.TransferRead {
		ifOp, err = s.read()
	} else {
		ifOp, err = s.write()
	}
	if err != nil {
		return ir.NoOp, err
	}
	rw.NotifyCreated()
	log.Debugf("split %s at %s with %s", xfer.Kind, loc, opts.Strategy)
	return ifOp, nil
}

type splitter struct {
	rw         *rewrite.Rewriter
	xfer       ir.TransferOp
	strategy   Strategy
	cond       ir.ValueID
	compatible *ir.MemRefType
	buffer     ir.ValueID
}

func (s *splitter) resultTypes() []ir.Type {
	types := []ir.Type{s.compatible}
	for i := 0; i < s.xfer.TransferRank(); i++ {
		types = append(types, ir.Index())
	}
	return types
}

// fastPath yields the source, cast to the common type if needed, and the
// original indices.
func (s *splitter) fastPath(b *ir.Builder) []ir.ValueID {
	view := s.xfer.Source()
	if !ir.TypesEqual(s.compatible, s.xfer.ShapedType()) {
		view = b.Cast(view, s.compatible)
	}
	return append([]ir.ValueID{view}, s.xfer.Indices()...)
}

// bufferPath yields the scratch buffer, cast to the common type if needed,
// and zero indices.
func (s *splitter) bufferPath(b *ir.Builder, zero ir.ValueID) []ir.ValueID {
	view := s.buffer
	if !ir.TypesEqual(s.compatible, b.P.TypeOf(s.buffer)) {
		view = b.Cast(view, s.compatible)
	}
	out := []ir.ValueID{view}
	for i := 0; i < s.xfer.TransferRank(); i++ {
		out = append(out, zero)
	}
	return out
}

func (s *splitter) read() (ir.OpID, error) {
	rw, xfer := s.rw, s.xfer
	zero := rw.ConstantIndex(0)

	var err error
	ifOp := rw.If(s.cond, s.resultTypes(), s.fastPath, func(b *ir.Builder) []ir.ValueID {
		switch s.strategy {
		case ReissueAndBuffer:
			clone := b.Clone(xfer.ID, nil)
			b.Store(b.P.Op(clone).Results[0], b.TypeCast(s.buffer), nil)
		default:
			b.Fill(xfer.Padding(), s.buffer)
			var src, dst ir.ValueID
			src, dst, err = SubViewIntersection(b, xfer, s.buffer)
			if err == nil {
				b.Copy(src, dst)
			}
		}
		return s.bufferPath(b, zero)
	})
	if err != nil {
		return ir.NoOp, err
	}

	results := rw.P.Op(ifOp).Results
	rw.UpdateInPlace(xfer.ID, func() {
		xfer.SetSource(results[0])
		xfer.SetIndices(results[1:])
		xfer.SetInBounds(ir.AllInBounds(xfer.TransferRank()))
	})
	return ifOp, nil
}

func (s *splitter) write() (ir.OpID, error) {
	rw, xfer := s.rw, s.xfer
	zero := rw.ConstantIndex(0)

	ifOp := rw.If(s.cond, s.resultTypes(), s.fastPath, func(b *ir.Builder) []ir.ValueID {
		return s.bufferPath(b, zero)
	})
	results := rw.P.Op(ifOp).Results

	// Unconditional in-bounds write to whichever destination was chosen.
	full, _ := ir.AsTransfer(rw.P, rw.Clone(xfer.ID, nil))
	full.SetSource(results[0])
	full.SetIndices(results[1:])
	full.SetInBounds(ir.AllInBounds(xfer.TransferRank()))

	// Slow path: move what landed in the buffer to the source.
	var err error
	notInBounds := rw.Not(s.cond)
	rw.If(notInBounds, nil, func(b *ir.Builder) []ir.ValueID {
		switch s.strategy {
		case ReissueAndBuffer:
			vec := b.Load(b.TypeCast(s.buffer), nil)
			reissued, _ := ir.AsTransfer(b.P, b.Clone(xfer.ID, nil))
			reissued.SetVector(vec)
		default:
			var src, dst ir.ValueID
			src, dst, err = SubViewIntersection(b, xfer, s.buffer)
			if err == nil {
				b.Copy(dst, src)
			}
		}
		return nil
	}, nil)
	if err != nil {
		return ir.NoOp, err
	}

	rw.EraseOp(xfer.ID)
	return ifOp, nil
}
