package ir

import (
	"fmt"

	"github.com/pkg/errors"

	"vecsplit/internal/affine"
)

// InsertionPoint is a position inside a region: before an op, or at the end
// when Before is NoOp.
type InsertionPoint struct {
	Region *Region
	Before OpID
}

// Builder creates operations at an insertion point. Every constructor inserts
// the new op and returns its result (or the op itself when it has none).
type Builder struct {
	P   *Program
	Loc Location

	ip InsertionPoint
}

// NewBuilder creates a builder with no insertion point.
func NewBuilder(p *Program) *Builder {
	return &Builder{P: p, ip: InsertionPoint{Before: NoOp}}
}

func (b *Builder) SetInsertionPointBefore(op OpID) {
	b.ip = InsertionPoint{Region: b.P.Op(op).Parent, Before: op}
}

func (b *Builder) SetInsertionPointToStart(r *Region) {
	next := NoOp
	if len(r.Ops) > 0 {
		next = r.Ops[0]
	}
	b.ip = InsertionPoint{Region: r, Before: next}
}

func (b *Builder) SetInsertionPointToEnd(r *Region) {
	b.ip = InsertionPoint{Region: r, Before: NoOp}
}

// InsertionPoint returns the current position so it can be restored.
func (b *Builder) InsertionPoint() InsertionPoint { return b.ip }

func (b *Builder) RestoreInsertionPoint(ip InsertionPoint) { b.ip = ip }

// Insert places a detached op at the insertion point.
func (b *Builder) Insert(op OpID) OpID {
	if b.ip.Region == nil {
		panic("ir: builder has no insertion point")
	}
	if b.ip.Before == NoOp {
		b.P.Append(b.ip.Region, op)
	} else {
		b.P.InsertBefore(b.ip.Before, op)
	}
	return op
}

// Create builds and inserts an op.
func (b *Builder) Create(kind OpKind, operands []ValueID, resultTypes []Type, numRegions int, attrs Attributes) OpID {
	op := b.P.NewOp(kind, operands, resultTypes, numRegions, attrs)
	b.P.Op(op).Loc = b.Loc
	return b.Insert(op)
}

func (b *Builder) create1(kind OpKind, operands []ValueID, result Type, attrs Attributes) ValueID {
	op := b.Create(kind, operands, []Type{result}, 0, attrs)
	return b.P.Op(op).Results[0]
}

// Clone inserts a deep copy of op, remapping operands through m.
func (b *Builder) Clone(op OpID, m *Mapping) OpID {
	c := b.P.Clone(op, m)
	b.P.Op(c).Loc = b.P.Op(op).Loc
	return b.Insert(c)
}

// Constants

func (b *Builder) Constant(value any, t Type) ValueID {
	return b.create1(OpConstant, nil, t, Attributes{Value: value})
}

func (b *Builder) ConstantIndex(v int64) ValueID {
	return b.Constant(v, Index())
}

func (b *Builder) ConstantBool(v bool) ValueID {
	return b.Constant(v, I1())
}

// Arithmetic

func (b *Builder) AddI(lhs, rhs ValueID) ValueID {
	return b.create1(OpAddI, []ValueID{lhs, rhs}, b.P.TypeOf(lhs), Attributes{})
}

func (b *Builder) CmpI(pred Predicate, lhs, rhs ValueID) ValueID {
	return b.create1(OpCmpI, []ValueID{lhs, rhs}, I1(), Attributes{Predicate: pred})
}

func (b *Builder) AndI(lhs, rhs ValueID) ValueID {
	return b.create1(OpAndI, []ValueID{lhs, rhs}, b.P.TypeOf(lhs), Attributes{})
}

func (b *Builder) XOrI(lhs, rhs ValueID) ValueID {
	return b.create1(OpXOrI, []ValueID{lhs, rhs}, b.P.TypeOf(lhs), Attributes{})
}

// Not negates an i1 value as xori(v, true).
func (b *Builder) Not(v ValueID) ValueID {
	return b.XOrI(v, b.ConstantBool(true))
}

// Affine

// Fold is either a static integer or an index value; a value that may have
// been folded to a constant at build time.
type Fold struct {
	Value  ValueID
	Static int64
}

func FoldStatic(c int64) Fold { return Fold{Value: NoValue, Static: c} }

func FoldValue(v ValueID) Fold { return Fold{Value: v} }

func (f Fold) IsStatic() bool { return f.Value == NoValue }

func (f Fold) String() string {
	if f.IsStatic() {
		return fmt.Sprintf("%d", f.Static)
	}
	return fmt.Sprintf("%%%d", f.Value)
}

// AsStatic returns the constant behind f, looking through arith.constant.
func (b *Builder) AsStatic(f Fold) (int64, bool) {
	if f.IsStatic() {
		return f.Static, true
	}
	return b.P.ConstantInt(f.Value)
}

// Materialize turns f into an index value.
func (b *Builder) Materialize(f Fold) ValueID {
	if f.IsStatic() {
		return b.ConstantIndex(f.Static)
	}
	return f.Value
}

func (b *Builder) AffineApply(m affine.Map, operands []ValueID) ValueID {
	return b.create1(OpAffineApply, operands, Index(), Attributes{Map: &m})
}

func (b *Builder) AffineMin(m affine.Map, operands []ValueID) ValueID {
	return b.create1(OpAffineMin, operands, Index(), Attributes{Map: &m})
}

// composer rewrites map operands into a canonical form: constants are folded
// into the expressions, affine.apply producers are composed in, and the
// remaining values become deduplicated dimensions.
type composer struct {
	p      *Program
	values []ValueID
	dimOf  map[ValueID]int
}

func (c *composer) exprFor(f Fold) affine.Expr {
	if f.IsStatic() {
		return affine.Const(f.Static)
	}
	v := f.Value
	if k, ok := c.p.ConstantInt(v); ok {
		return affine.Const(k)
	}
	if def := c.p.DefiningOp(v); def != NoOp {
		op := c.p.Op(def)
		if op.Kind == OpAffineApply && len(op.Attrs.Map.Results) == 1 {
			inner := make([]affine.Expr, len(op.Operands))
			for i, operand := range op.Operands {
				inner[i] = c.exprFor(FoldValue(operand))
			}
			return op.Attrs.Map.Results[0].Replace(inner)
		}
	}
	if d, ok := c.dimOf[v]; ok {
		return affine.Dim(d)
	}
	d := len(c.values)
	c.values = append(c.values, v)
	c.dimOf[v] = d
	return affine.Dim(d)
}

func (b *Builder) compose(m affine.Map, operands []Fold) ([]affine.Expr, *composer) {
	c := &composer{p: b.P, dimOf: make(map[ValueID]int)}
	dims := make([]affine.Expr, len(operands))
	for i, f := range operands {
		dims[i] = c.exprFor(f)
	}
	results := make([]affine.Expr, len(m.Results))
	for i, r := range m.Results {
		results[i] = r.Replace(dims)
	}
	return results, c
}

// ComposedFoldedAffineApply evaluates the single-result map m over operands,
// folding to a static result when every input is constant. Otherwise one
// affine.apply is created over the composed expression.
func (b *Builder) ComposedFoldedAffineApply(m affine.Map, operands []Fold) Fold {
	results, c := b.compose(m, operands)
	expr := results[0]
	if k, ok := expr.IsConstant(); ok {
		return FoldStatic(k)
	}
	if d, ok := expr.AsDim(); ok {
		return FoldValue(c.values[d])
	}
	return FoldValue(b.AffineApply(affine.NewMap(len(c.values), expr), c.values))
}

// ComposedFoldedAffineMin is the affine.min counterpart of
// ComposedFoldedAffineApply. Constant results collapse into their minimum.
func (b *Builder) ComposedFoldedAffineMin(m affine.Map, operands []Fold) Fold {
	results, c := b.compose(m, operands)
	var exprs []affine.Expr
	var minConst int64
	haveConst := false
	for _, r := range results {
		if k, ok := r.IsConstant(); ok {
			if !haveConst || k < minConst {
				minConst = k
			}
			haveConst = true
			continue
		}
		dup := false
		for _, e := range exprs {
			if e.Equal(r) {
				dup = true
				break
			}
		}
		if !dup {
			exprs = append(exprs, r)
		}
	}
	if len(exprs) == 0 {
		return FoldStatic(minConst)
	}
	if haveConst {
		exprs = append(exprs, affine.Const(minConst))
	}
	return FoldValue(b.AffineMin(affine.NewMap(len(c.values), exprs...), c.values))
}

// MemRef

func (b *Builder) Dim(source ValueID, dim int) ValueID {
	return b.create1(OpDim, []ValueID{source}, Index(), Attributes{Dim: dim})
}

// MixedSize returns the extent of dimension dim of source: static when the
// type knows it, a memref.dim otherwise.
func (b *Builder) MixedSize(source ValueID, dim int) Fold {
	mt := b.P.TypeOf(source).(*MemRefType)
	if d := mt.Shape[dim]; !IsDynamic(d) {
		return FoldStatic(d)
	}
	return FoldValue(b.Dim(source, dim))
}

func (b *Builder) Alloca(t *MemRefType, alignment int64) ValueID {
	return b.create1(OpAlloca, nil, t, Attributes{Alignment: alignment})
}

func (b *Builder) Cast(v ValueID, t Type) ValueID {
	return b.create1(OpCast, []ValueID{v}, t, Attributes{})
}

// SubView creates a memref.subview. Static entries are recorded in the
// attributes; dynamic ones become operands in the order offsets, sizes,
// strides.
func (b *Builder) SubView(source ValueID, offsets, sizes, strides []Fold) (ValueID, error) {
	mt, ok := b.P.TypeOf(source).(*MemRefType)
	if !ok {
		return NoValue, errors.Errorf("subview source has type %s", b.P.TypeOf(source))
	}
	operands := []ValueID{source}
	split := func(fs []Fold) []int64 {
		out := make([]int64, len(fs))
		for i, f := range fs {
			if k, ok := b.AsStatic(f); ok {
				out[i] = k
				continue
			}
			out[i] = Dynamic
			operands = append(operands, f.Value)
		}
		return out
	}
	staticOffsets := split(offsets)
	staticSizes := split(sizes)
	staticStrides := split(strides)
	rt, err := InferSubViewType(mt, staticOffsets, staticSizes, staticStrides)
	if err != nil {
		return NoValue, err
	}
	return b.create1(OpSubView, operands, rt, Attributes{
		StaticOffsets: staticOffsets,
		StaticSizes:   staticSizes,
		StaticStrides: staticStrides,
	}), nil
}

func (b *Builder) Copy(src, dst ValueID) OpID {
	return b.Create(OpCopy, []ValueID{src, dst}, nil, 0, Attributes{})
}

func (b *Builder) Fill(value, dst ValueID) OpID {
	return b.Create(OpFill, []ValueID{value, dst}, nil, 0, Attributes{})
}

func (b *Builder) Load(mem ValueID, indices []ValueID) ValueID {
	mt := b.P.TypeOf(mem).(*MemRefType)
	return b.create1(OpLoad, append([]ValueID{mem}, indices...), mt.Elem, Attributes{})
}

func (b *Builder) Store(value, mem ValueID, indices []ValueID) OpID {
	return b.Create(OpStore, append([]ValueID{value, mem}, indices...), nil, 0, Attributes{})
}

// TypeCast views a statically shaped memref as a rank-0 memref holding one
// vector of the same shape.
func (b *Builder) TypeCast(mem ValueID) ValueID {
	mt := b.P.TypeOf(mem).(*MemRefType)
	vt := &VectorType{Shape: append([]int64(nil), mt.Shape...), Elem: mt.Elem}
	return b.create1(OpTypeCast, []ValueID{mem}, &MemRefType{Elem: vt}, Attributes{})
}

// Vector transfers

// TransferRead creates a vector.transfer_read. mask may be NoValue and perm
// may be nil for the minor identity.
func (b *Builder) TransferRead(vt *VectorType, source ValueID, indices []ValueID, padding, mask ValueID, perm *affine.Map, inBounds []bool) ValueID {
	operands := append([]ValueID{source}, indices...)
	operands = append(operands, padding)
	if mask != NoValue {
		operands = append(operands, mask)
	}
	return b.create1(OpTransferRead, operands, vt, transferAttrs(perm, inBounds))
}

// TransferWrite creates a vector.transfer_write.
func (b *Builder) TransferWrite(vector, source ValueID, indices []ValueID, mask ValueID, perm *affine.Map, inBounds []bool) OpID {
	operands := append([]ValueID{vector, source}, indices...)
	if mask != NoValue {
		operands = append(operands, mask)
	}
	return b.Create(OpTransferWrite, operands, nil, 0, transferAttrs(perm, inBounds))
}

func transferAttrs(perm *affine.Map, inBounds []bool) Attributes {
	a := Attributes{InBounds: append([]bool(nil), inBounds...)}
	if perm != nil {
		m := *perm
		a.PermutationMap = &m
	}
	return a
}

// Structured control flow

// If creates an scf.if. The region callbacks build the arm bodies and return
// the values to yield; a nil elseFn produces an else arm that only yields.
func (b *Builder) If(cond ValueID, resultTypes []Type, thenFn, elseFn func(b *Builder) []ValueID) OpID {
	op := b.Create(OpIf, []ValueID{cond}, resultTypes, 2, Attributes{})
	saved := b.ip
	for i, fn := range []func(*Builder) []ValueID{thenFn, elseFn} {
		b.SetInsertionPointToEnd(b.P.Op(op).Regions[i])
		var yielded []ValueID
		if fn != nil {
			yielded = fn(b)
		}
		b.Yield(yielded)
	}
	b.ip = saved
	return op
}

func (b *Builder) Yield(values []ValueID) OpID {
	return b.Create(OpYield, values, nil, 0, Attributes{})
}

// For creates an scf.for from lb to ub by step. body receives the
// induction variable.
func (b *Builder) For(lb, ub, step ValueID, body func(b *Builder, iv ValueID)) OpID {
	op := b.Create(OpFor, []ValueID{lb, ub, step}, nil, 1, Attributes{})
	r := b.P.Op(op).Regions[0]
	iv := b.P.AddRegionArg(r, Index())
	saved := b.ip
	b.SetInsertionPointToEnd(r)
	if body != nil {
		body(b, iv)
	}
	b.Yield(nil)
	b.ip = saved
	return op
}

// AllocaScope creates a memref.alloca_scope with no results.
func (b *Builder) AllocaScope(body func(b *Builder)) OpID {
	op := b.Create(OpAllocaScope, nil, nil, 1, Attributes{})
	saved := b.ip
	b.SetInsertionPointToEnd(b.P.Op(op).Regions[0])
	if body != nil {
		body(b)
	}
	b.Yield(nil)
	b.ip = saved
	return op
}

func (b *Builder) Return(values []ValueID) OpID {
	return b.Create(OpReturn, values, nil, 0, Attributes{})
}
