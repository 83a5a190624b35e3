package ir

import (
	"fmt"

	"github.com/pkg/errors"

	"vecsplit/internal/affine"
)

// OpKind names an operation. The set is closed: the parser, verifier,
// printer and interpreter all switch over it.
type OpKind string

const (
	OpFunc   OpKind = "func.func"
	OpReturn OpKind = "func.return"

	OpConstant OpKind = "arith.constant"
	OpAddI     OpKind = "arith.addi"
	OpSubI     OpKind = "arith.subi"
	OpMulI     OpKind = "arith.muli"
	OpAddF     OpKind = "arith.addf"
	OpCmpI     OpKind = "arith.cmpi"
	OpAndI     OpKind = "arith.andi"
	OpXOrI     OpKind = "arith.xori"

	OpAffineApply OpKind = "affine.apply"
	OpAffineMin   OpKind = "affine.min"
	OpAffineFor   OpKind = "affine.for"

	OpFor   OpKind = "scf.for"
	OpIf    OpKind = "scf.if"
	OpYield OpKind = "scf.yield"

	OpAllocaScope OpKind = "memref.alloca_scope"
	OpAlloca      OpKind = "memref.alloca"
	OpCast        OpKind = "memref.cast"
	OpDim         OpKind = "memref.dim"
	OpSubView     OpKind = "memref.subview"
	OpCopy        OpKind = "memref.copy"
	OpLoad        OpKind = "memref.load"
	OpStore       OpKind = "memref.store"

	OpFill OpKind = "linalg.fill"

	OpTypeCast      OpKind = "vector.type_cast"
	OpTransferRead  OpKind = "vector.transfer_read"
	OpTransferWrite OpKind = "vector.transfer_write"
)

var knownKinds = make(map[OpKind]bool)

func init() {
	for _, k := range []OpKind{
		OpFunc, OpReturn,
		OpConstant, OpAddI, OpSubI, OpMulI, OpAddF, OpCmpI, OpAndI, OpXOrI,
		OpAffineApply, OpAffineMin, OpAffineFor,
		OpFor, OpIf, OpYield,
		OpAllocaScope, OpAlloca, OpCast, OpDim, OpSubView, OpCopy, OpLoad, OpStore,
		OpFill,
		OpTypeCast, OpTransferRead, OpTransferWrite,
	} {
		knownKinds[k] = true
	}
}

// LookupKind resolves an operation name.
func LookupKind(name string) (OpKind, bool) {
	k := OpKind(name)
	return k, knownKinds[k]
}

// IsAutomaticAllocationScope reports whether allocas placed directly in the
// kind's region are released when the op exits.
func (k OpKind) IsAutomaticAllocationScope() bool {
	return k == OpFunc || k == OpAllocaScope
}

// IsLoop reports whether the kind's region may execute more than once.
func (k OpKind) IsLoop() bool {
	return k == OpFor || k == OpAffineFor
}

// IsTerminator reports whether the kind ends a region.
func (k OpKind) IsTerminator() bool {
	return k == OpYield || k == OpReturn
}

// Predicate is an integer comparison predicate.
type Predicate string

const (
	PredEQ  Predicate = "eq"
	PredNE  Predicate = "ne"
	PredSLT Predicate = "slt"
	PredSLE Predicate = "sle"
	PredSGT Predicate = "sgt"
	PredSGE Predicate = "sge"
	PredULT Predicate = "ult"
	PredULE Predicate = "ule"
	PredUGT Predicate = "ugt"
	PredUGE Predicate = "uge"
)

// ParsePredicate resolves a predicate mnemonic.
func ParsePredicate(s string) (Predicate, bool) {
	switch p := Predicate(s); p {
	case PredEQ, PredNE, PredSLT, PredSLE, PredSGT, PredSGE, PredULT, PredULE, PredUGT, PredUGE:
		return p, true
	}
	return "", false
}

// EvalIntBinary evaluates an integer or i1 binary arith op.
func EvalIntBinary(kind OpKind, a, b any) (any, error) {
	if x, ok := a.(bool); ok {
		y := b.(bool)
		switch kind {
		case OpAndI:
			return x && y, nil
		case OpXOrI:
			return x != y, nil
		}
		return nil, errors.Errorf("%s on i1", kind)
	}
	x, y := a.(int64), b.(int64)
	switch kind {
	case OpAddI:
		return x + y, nil
	case OpSubI:
		return x - y, nil
	case OpMulI:
		return x * y, nil
	case OpAndI:
		return x & y, nil
	}
	return x ^ y, nil
}

// Eval applies the predicate to two integers.
func (pred Predicate) Eval(a, b int64) bool {
	ua, ub := uint64(a), uint64(b)
	switch pred {
	case PredEQ:
		return a == b
	case PredNE:
		return a != b
	case PredSLT:
		return a < b
	case PredSLE:
		return a <= b
	case PredSGT:
		return a > b
	case PredSGE:
		return a >= b
	case PredULT:
		return ua < ub
	case PredULE:
		return ua <= ub
	case PredUGT:
		return ua > ub
	}
	return ua >= ub
}

// Attributes carries every per-op property. Each kind reads only the fields
// that concern it.
type Attributes struct {
	Symbol      string // func.func
	ResultTypes []Type // func.func

	Value any // arith.constant: int64, float64 or bool

	Predicate Predicate // arith.cmpi

	Map *affine.Map // affine.apply, affine.min

	PermutationMap *affine.Map // vector.transfer_*
	InBounds       []bool      // vector.transfer_*

	Dim int // memref.dim

	StaticOffsets []int64 // memref.subview
	StaticSizes   []int64
	StaticStrides []int64

	Alignment int64 // memref.alloca
}

func (a Attributes) clone() Attributes {
	out := a
	if a.ResultTypes != nil {
		out.ResultTypes = append([]Type(nil), a.ResultTypes...)
	}
	if a.InBounds != nil {
		out.InBounds = append([]bool(nil), a.InBounds...)
	}
	if a.Map != nil {
		m := *a.Map
		out.Map = &m
	}
	if a.PermutationMap != nil {
		m := *a.PermutationMap
		out.PermutationMap = &m
	}
	out.StaticOffsets = append([]int64(nil), a.StaticOffsets...)
	out.StaticSizes = append([]int64(nil), a.StaticSizes...)
	out.StaticStrides = append([]int64(nil), a.StaticStrides...)
	return out
}

// Location is a source position, when the op came from text.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) IsKnown() bool { return l.Line > 0 }

func (l Location) String() string {
	if !l.IsKnown() {
		return "unknown location"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}
