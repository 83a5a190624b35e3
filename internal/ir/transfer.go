package ir

import (
	"vecsplit/internal/affine"
)

// TransferKind distinguishes the two vector transfer variants.
type TransferKind int

const (
	TransferRead TransferKind = iota
	TransferWrite
)

func (k TransferKind) String() string {
	if k == TransferWrite {
		return "write"
	}
	return "read"
}

// TransferOp is a view over a vector.transfer_read or vector.transfer_write.
//
// Operand layout:
//
//	read:  source, indices..., padding, [mask]
//	write: vector, source, indices..., [mask]
//
// There is one index per source dimension.
type TransferOp struct {
	P    *Program
	ID   OpID
	Kind TransferKind
}

// AsTransfer returns the transfer view of op, if op is a transfer.
func AsTransfer(p *Program, op OpID) (TransferOp, bool) {
	switch p.Op(op).Kind {
	case OpTransferRead:
		return TransferOp{P: p, ID: op, Kind: TransferRead}, true
	case OpTransferWrite:
		return TransferOp{P: p, ID: op, Kind: TransferWrite}, true
	}
	return TransferOp{}, false
}

func (t TransferOp) op() *Operation { return t.P.Op(t.ID) }

func (t TransferOp) sourcePos() int {
	if t.Kind == TransferWrite {
		return 1
	}
	return 0
}

// Source is the memref being read or written.
func (t TransferOp) Source() ValueID {
	return t.op().Operands[t.sourcePos()]
}

// ShapedType is the type of the source.
func (t TransferOp) ShapedType() *MemRefType {
	mt, _ := t.P.TypeOf(t.Source()).(*MemRefType)
	return mt
}

// Indices returns one index per source dimension.
func (t TransferOp) Indices() []ValueID {
	start := t.sourcePos() + 1
	n := 0
	if st := t.ShapedType(); st != nil {
		n = st.Rank()
	}
	out := make([]ValueID, n)
	copy(out, t.op().Operands[start:start+n])
	return out
}

// Padding is the value read for out-of-bounds lanes, NoValue for writes.
func (t TransferOp) Padding() ValueID {
	if t.Kind == TransferWrite {
		return NoValue
	}
	return t.op().Operands[1+len(t.Indices())]
}

func (t TransferOp) maskPos() int {
	pos := t.sourcePos() + 1 + len(t.Indices())
	if t.Kind == TransferRead {
		pos++
	}
	return pos
}

// Mask returns the explicit mask operand, or NoValue.
func (t TransferOp) Mask() ValueID {
	pos := t.maskPos()
	if pos < len(t.op().Operands) {
		return t.op().Operands[pos]
	}
	return NoValue
}

// Vector is the read result or the written value.
func (t TransferOp) Vector() ValueID {
	if t.Kind == TransferWrite {
		return t.op().Operands[0]
	}
	return t.op().Results[0]
}

func (t TransferOp) VectorType() *VectorType {
	vt, _ := t.P.TypeOf(t.Vector()).(*VectorType)
	return vt
}

// TransferRank is the rank of the vector.
func (t TransferOp) TransferRank() int {
	return t.VectorType().Rank()
}

// LeadingShapedRank is the number of source dimensions not covered by the
// vector.
func (t TransferOp) LeadingShapedRank() int {
	return t.ShapedType().Rank() - t.TransferRank()
}

// PermutationMap returns the source-to-vector dimension map. When the
// attribute is absent it is the minor identity.
func (t TransferOp) PermutationMap() affine.Map {
	if m := t.op().Attrs.PermutationMap; m != nil {
		return *m
	}
	return affine.MinorIdentity(t.ShapedType().Rank(), t.TransferRank())
}

// InBounds returns the per vector dimension in-bounds flags.
func (t TransferOp) InBounds() []bool {
	out := make([]bool, t.TransferRank())
	copy(out, t.op().Attrs.InBounds)
	return out
}

// IsDimInBounds reports whether vector dimension i is flagged in-bounds.
func (t TransferOp) IsDimInBounds(i int) bool {
	flags := t.op().Attrs.InBounds
	return i < len(flags) && flags[i]
}

// HasOutOfBoundsDim reports whether any vector dimension may go out of
// bounds.
func (t TransferOp) HasOutOfBoundsDim() bool {
	for i := 0; i < t.TransferRank(); i++ {
		if !t.IsDimInBounds(i) {
			return true
		}
	}
	return false
}

// ZipResultAndIndexing calls fn for every vector dimension with the source
// dimension it maps to. Broadcast results are skipped.
func (t TransferOp) ZipResultAndIndexing(fn func(resultIdx, indicesIdx int)) {
	for i, r := range t.PermutationMap().Results {
		if d, ok := r.AsDim(); ok {
			fn(i, d)
		}
	}
}

// SetInBounds replaces the in-bounds flags.
func (t TransferOp) SetInBounds(flags []bool) {
	t.op().Attrs.InBounds = append([]bool(nil), flags...)
}

// SetSource replaces the source operand.
func (t TransferOp) SetSource(v ValueID) {
	t.P.SetOperand(t.ID, t.sourcePos(), v)
}

// SetIndices replaces the index operands.
func (t TransferOp) SetIndices(indices []ValueID) {
	start := t.sourcePos() + 1
	for i, v := range indices {
		t.P.SetOperand(t.ID, start+i, v)
	}
}

// SetVector replaces the written value of a transfer write.
func (t TransferOp) SetVector(v ValueID) {
	if t.Kind == TransferWrite {
		t.P.SetOperand(t.ID, 0, v)
	}
}

// AllInBounds returns n true flags.
func AllInBounds(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}
