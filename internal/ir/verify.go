package ir

import (
	"fmt"
)

// VerifyError is a structural problem found in a program.
type VerifyError struct {
	Op      OpID
	Kind    OpKind
	Loc     Location
	Message string
}

func (e *VerifyError) Error() string {
	if e.Loc.IsKnown() {
		return fmt.Sprintf("%d:%d: %s: %s", e.Loc.Line, e.Loc.Column, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

type verifier struct {
	p      *Program
	errs   []*VerifyError
	scopes []map[ValueID]bool
}

// Verify checks operand arity and types, region terminators and that every
// operand is defined before use in the same or an enclosing region.
func Verify(p *Program) []*VerifyError {
	v := &verifier{p: p}
	for _, fn := range p.Funcs {
		v.verifyFunc(fn)
	}
	return v.errs
}

func (v *verifier) errorf(op OpID, format string, args ...interface{}) {
	o := v.p.Op(op)
	v.errs = append(v.errs, &VerifyError{
		Op:      op,
		Kind:    o.Kind,
		Loc:     o.Loc,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *verifier) visible(id ValueID) bool {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if v.scopes[i][id] {
			return true
		}
	}
	return false
}

func (v *verifier) verifyFunc(fn OpID) {
	o := v.p.Op(fn)
	if o.Kind != OpFunc || len(o.Regions) != 1 {
		v.errorf(fn, "top-level op must be a func.func with one region")
		return
	}
	v.verifyRegion(fn, o.Regions[0], OpReturn)
	body := o.Regions[0]
	if n := len(body.Ops); n > 0 {
		ret := v.p.Op(body.Ops[n-1])
		if ret.Kind == OpReturn {
			v.checkTypes(body.Ops[n-1], "returned", ret.Operands, o.Attrs.ResultTypes)
		}
	}
}

func (v *verifier) verifyRegion(owner OpID, r *Region, terminator OpKind) {
	scope := make(map[ValueID]bool)
	for _, a := range r.Args {
		scope[a] = true
	}
	v.scopes = append(v.scopes, scope)
	defer func() { v.scopes = v.scopes[:len(v.scopes)-1] }()

	for i, op := range r.Ops {
		o := v.p.Op(op)
		for _, operand := range o.Operands {
			if !v.visible(operand) {
				v.errorf(op, "operand %%%d does not dominate its use", operand)
			}
		}
		if o.Kind.IsTerminator() && i != len(r.Ops)-1 {
			v.errorf(op, "terminator must be the last op of its region")
		}
		v.verifyOp(op)
		for _, res := range o.Results {
			scope[res] = true
		}
	}
	if len(r.Ops) == 0 || v.p.Op(r.Ops[len(r.Ops)-1]).Kind != terminator {
		v.errorf(owner, "region must end with %s", terminator)
	}
}

func (v *verifier) checkTypes(op OpID, what string, values []ValueID, types []Type) {
	if len(values) != len(types) {
		v.errorf(op, "%s %d values, expected %d", what, len(values), len(types))
		return
	}
	for i, val := range values {
		if !TypesEqual(v.p.TypeOf(val), types[i]) {
			v.errorf(op, "%s value #%d has type %s, expected %s", what, i, v.p.TypeOf(val), types[i])
		}
	}
}

func (v *verifier) arity(op OpID, operands, results int) bool {
	o := v.p.Op(op)
	if len(o.Operands) != operands || len(o.Results) != results {
		v.errorf(op, "expects %d operands and %d results, got %d and %d",
			operands, results, len(o.Operands), len(o.Results))
		return false
	}
	return true
}

func (v *verifier) memref(op OpID, val ValueID) (*MemRefType, bool) {
	mt, ok := v.p.TypeOf(val).(*MemRefType)
	if !ok {
		v.errorf(op, "expects a memref, got %s", v.p.TypeOf(val))
	}
	return mt, ok
}

func (v *verifier) indices(op OpID, vals []ValueID) {
	for _, idx := range vals {
		if !IsIndex(v.p.TypeOf(idx)) {
			v.errorf(op, "index operand has type %s", v.p.TypeOf(idx))
		}
	}
}

func (v *verifier) resultTypes(op OpID) []Type {
	o := v.p.Op(op)
	out := make([]Type, len(o.Results))
	for i, r := range o.Results {
		out[i] = v.p.TypeOf(r)
	}
	return out
}

func (v *verifier) verifyOp(op OpID) {
	o := v.p.Op(op)
	switch o.Kind {
	case OpFunc:
		v.errorf(op, "func.func must be top-level")

	case OpReturn:
		if len(o.Regions) != 0 {
			v.errorf(op, "func.return has no regions")
		}

	case OpConstant:
		if !v.arity(op, 0, 1) {
			return
		}
		t := v.p.TypeOf(o.Results[0])
		switch o.Attrs.Value.(type) {
		case int64:
			if !IsIntegerLike(t) {
				v.errorf(op, "integer constant of type %s", t)
			}
		case bool:
			if !IsBool(t) {
				v.errorf(op, "boolean constant of type %s", t)
			}
		case float64:
			if _, ok := t.(*FloatType); !ok {
				v.errorf(op, "float constant of type %s", t)
			}
		default:
			v.errorf(op, "unsupported constant value %v", o.Attrs.Value)
		}

	case OpAddI, OpSubI, OpMulI, OpAndI, OpXOrI, OpAddF:
		if !v.arity(op, 2, 1) {
			return
		}
		t := v.p.TypeOf(o.Operands[0])
		v.checkTypes(op, "operand", o.Operands[1:], []Type{t})
		v.checkTypes(op, "result", o.Results, []Type{t})

	case OpCmpI:
		if !v.arity(op, 2, 1) {
			return
		}
		if !IsIntegerLike(v.p.TypeOf(o.Operands[0])) {
			v.errorf(op, "compares %s values", v.p.TypeOf(o.Operands[0]))
		}
		v.checkTypes(op, "operand", o.Operands[1:], []Type{v.p.TypeOf(o.Operands[0])})
		if !IsBool(v.p.TypeOf(o.Results[0])) {
			v.errorf(op, "result must be i1")
		}

	case OpAffineApply, OpAffineMin:
		if !v.arity(op, len(o.Operands), 1) {
			return
		}
		if o.Attrs.Map == nil {
			v.errorf(op, "missing map")
			return
		}
		if o.Attrs.Map.NumDims != len(o.Operands) {
			v.errorf(op, "map has %d dims for %d operands", o.Attrs.Map.NumDims, len(o.Operands))
		}
		if o.Kind == OpAffineApply && len(o.Attrs.Map.Results) != 1 {
			v.errorf(op, "map must have one result")
		}
		if len(o.Attrs.Map.Results) == 0 {
			v.errorf(op, "map has no results")
		}
		v.indices(op, o.Operands)

	case OpFor, OpAffineFor:
		if !v.arity(op, 3, 0) {
			return
		}
		v.indices(op, o.Operands)
		if len(o.Regions) != 1 || len(o.Regions[0].Args) != 1 || !IsIndex(v.p.TypeOf(o.Regions[0].Args[0])) {
			v.errorf(op, "expects one region with an index induction variable")
			return
		}
		v.verifyRegion(op, o.Regions[0], OpYield)

	case OpIf:
		if len(o.Operands) != 1 || !IsBool(v.p.TypeOf(o.Operands[0])) {
			v.errorf(op, "expects one i1 condition")
		}
		if len(o.Regions) != 2 {
			v.errorf(op, "expects two regions")
			return
		}
		types := v.resultTypes(op)
		for _, r := range o.Regions {
			v.verifyRegion(op, r, OpYield)
			if n := len(r.Ops); n > 0 {
				if y := r.Ops[n-1]; v.p.Op(y).Kind == OpYield {
					v.checkTypes(y, "yielded", v.p.Op(y).Operands, types)
				}
			}
		}

	case OpAllocaScope:
		if len(o.Regions) != 1 {
			v.errorf(op, "expects one region")
			return
		}
		v.verifyRegion(op, o.Regions[0], OpYield)

	case OpYield:
		parent := v.p.ParentOp(op)
		if parent == NoOp || v.p.Op(parent).Kind == OpFunc {
			v.errorf(op, "must be nested in a structured op")
		}

	case OpAlloca:
		if !v.arity(op, 0, 1) {
			return
		}
		if mt, ok := v.memref(op, o.Results[0]); ok && !mt.HasStaticShape() {
			v.errorf(op, "allocates dynamic shape %s", mt)
		}

	case OpCast:
		if !v.arity(op, 1, 1) {
			return
		}
		src, ok1 := v.memref(op, o.Operands[0])
		dst, ok2 := v.memref(op, o.Results[0])
		if ok1 && ok2 && !CastCompatible(src, dst) {
			v.errorf(op, "%s is not cast-compatible with %s", src, dst)
		}

	case OpDim:
		if !v.arity(op, 1, 1) {
			return
		}
		if mt, ok := v.memref(op, o.Operands[0]); ok && (o.Attrs.Dim < 0 || o.Attrs.Dim >= mt.Rank()) {
			v.errorf(op, "dim %d out of range for %s", o.Attrs.Dim, mt)
		}

	case OpSubView:
		v.verifySubView(op)

	case OpCopy:
		if !v.arity(op, 2, 0) {
			return
		}
		src, ok1 := v.memref(op, o.Operands[0])
		dst, ok2 := v.memref(op, o.Operands[1])
		if ok1 && ok2 && (src.Rank() != dst.Rank() || !TypesEqual(src.Elem, dst.Elem)) {
			v.errorf(op, "copies %s into %s", src, dst)
		}

	case OpFill:
		if !v.arity(op, 2, 0) {
			return
		}
		if mt, ok := v.memref(op, o.Operands[1]); ok && !TypesEqual(mt.Elem, v.p.TypeOf(o.Operands[0])) {
			v.errorf(op, "fills %s with %s", mt, v.p.TypeOf(o.Operands[0]))
		}

	case OpLoad, OpStore:
		memPos, results := 0, 1
		if o.Kind == OpStore {
			memPos, results = 1, 0
		}
		if len(o.Operands) <= memPos || len(o.Results) != results {
			v.errorf(op, "malformed operand list")
			return
		}
		mt, ok := v.memref(op, o.Operands[memPos])
		if !ok {
			return
		}
		if len(o.Operands)-memPos-1 != mt.Rank() {
			v.errorf(op, "expects %d indices", mt.Rank())
		}
		v.indices(op, o.Operands[memPos+1:])
		val := o.Operands[0]
		if o.Kind == OpLoad {
			val = o.Results[0]
		}
		if !TypesEqual(v.p.TypeOf(val), mt.Elem) {
			v.errorf(op, "element type %s does not match %s", v.p.TypeOf(val), mt.Elem)
		}

	case OpTypeCast:
		if !v.arity(op, 1, 1) {
			return
		}
		src, ok := v.memref(op, o.Operands[0])
		if !ok {
			return
		}
		want := &MemRefType{Elem: &VectorType{Shape: src.Shape, Elem: src.Elem}}
		if !src.HasStaticShape() || !TypesEqual(v.p.TypeOf(o.Results[0]), want) {
			v.errorf(op, "cannot view %s as %s", src, v.p.TypeOf(o.Results[0]))
		}

	case OpTransferRead, OpTransferWrite:
		v.verifyTransfer(op)
	}
}

func (v *verifier) verifySubView(op OpID) {
	o := v.p.Op(op)
	if len(o.Operands) < 1 || len(o.Results) != 1 {
		v.errorf(op, "malformed operand list")
		return
	}
	src, ok := v.memref(op, o.Operands[0])
	if !ok {
		return
	}
	dynamic := 0
	for _, list := range [][]int64{o.Attrs.StaticOffsets, o.Attrs.StaticSizes, o.Attrs.StaticStrides} {
		for _, s := range list {
			if IsDynamic(s) {
				dynamic++
			}
		}
	}
	if dynamic != len(o.Operands)-1 {
		v.errorf(op, "expects %d dynamic operands, got %d", dynamic, len(o.Operands)-1)
	}
	v.indices(op, o.Operands[1:])
	want, err := InferSubViewType(src, o.Attrs.StaticOffsets, o.Attrs.StaticSizes, o.Attrs.StaticStrides)
	if err != nil {
		v.errorf(op, "%v", err)
		return
	}
	if got := v.p.TypeOf(o.Results[0]); !TypesEqual(got, want) {
		v.errorf(op, "result type %s, expected %s", got, want)
	}
}

func (v *verifier) verifyTransfer(op OpID) {
	o := v.p.Op(op)
	xfer, _ := AsTransfer(v.p, op)
	srcPos := 0
	if xfer.Kind == TransferWrite {
		srcPos = 1
		if len(o.Results) != 0 || len(o.Operands) < 2 {
			v.errorf(op, "malformed operand list")
			return
		}
	} else if len(o.Results) != 1 || len(o.Operands) < 2 {
		v.errorf(op, "malformed operand list")
		return
	}
	st, ok := v.memref(op, o.Operands[srcPos])
	if !ok {
		return
	}
	vt := xfer.VectorType()
	if vt == nil {
		v.errorf(op, "expects a vector, got %s", v.p.TypeOf(xfer.Vector()))
		return
	}
	fixed := srcPos + 1 + st.Rank()
	if xfer.Kind == TransferRead {
		fixed++
	}
	if n := len(o.Operands); n != fixed && n != fixed+1 {
		v.errorf(op, "expects %d indices for %s", st.Rank(), st)
		return
	}
	v.indices(op, xfer.Indices())
	if !TypesEqual(vt.Elem, st.Elem) {
		v.errorf(op, "vector element %s does not match memref element %s", vt.Elem, st.Elem)
	}
	if pad := xfer.Padding(); pad != NoValue && !TypesEqual(v.p.TypeOf(pad), st.Elem) {
		v.errorf(op, "padding has type %s, expected %s", v.p.TypeOf(pad), st.Elem)
	}
	if vt.Rank() > st.Rank() {
		v.errorf(op, "vector rank %d exceeds memref rank %d", vt.Rank(), st.Rank())
		return
	}
	perm := xfer.PermutationMap()
	if perm.NumDims != st.Rank() || len(perm.Results) != vt.Rank() || !perm.IsProjectedPermutation() {
		v.errorf(op, "invalid permutation map %s", perm)
	}
	if flags := o.Attrs.InBounds; flags != nil && len(flags) != vt.Rank() {
		v.errorf(op, "expects %d in_bounds flags, got %d", vt.Rank(), len(flags))
	}
	if mask := xfer.Mask(); mask != NoValue {
		mt, ok := v.p.TypeOf(mask).(*VectorType)
		if !ok || !IsBool(mt.Elem) || len(mt.Shape) != vt.Rank() {
			v.errorf(op, "mask must be a vector of i1 matching the transfer, got %s", v.p.TypeOf(mask))
		}
	}
}
