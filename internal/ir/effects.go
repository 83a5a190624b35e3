package ir

// Effects describe what an operation does to memory. Passes use them to
// decide what may be folded, moved or dropped.

// MemoryEffectType categorizes memory access patterns
type MemoryEffectType string

const (
	MemoryEffectRead     MemoryEffectType = "read"     // Reads from memory
	MemoryEffectWrite    MemoryEffectType = "write"    // Writes to memory
	MemoryEffectAllocate MemoryEffectType = "allocate" // Allocates memory region
)

// Effect represents one side effect of an operation
type Effect interface {
	EffectKind() string
}

// MemoryEffectOp is an effect on the memref passed as operand Operand.
// Operand is -1 for a fresh allocation (the effect is on the result).
type MemoryEffectOp struct {
	Type    MemoryEffectType
	Operand int
}

func (m *MemoryEffectOp) EffectKind() string { return "memory" }

// PureEffect indicates no side effects
type PureEffect struct{}

func (p *PureEffect) EffectKind() string { return "pure" }

// ControlEffect marks ops whose effects are those of their regions, or that
// transfer control.
type ControlEffect struct{}

func (c *ControlEffect) EffectKind() string { return "control" }

// GetEffects returns the effects of op.
func (p *Program) GetEffects(op OpID) []Effect {
	o := p.Op(op)
	switch o.Kind {
	case OpConstant, OpAddI, OpSubI, OpMulI, OpAddF, OpCmpI, OpAndI, OpXOrI,
		OpAffineApply, OpAffineMin, OpCast, OpDim, OpSubView, OpTypeCast:
		return []Effect{&PureEffect{}}

	case OpAlloca:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectAllocate, Operand: -1}}

	case OpLoad:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectRead, Operand: 0}}

	case OpStore:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectWrite, Operand: 1}}

	case OpCopy:
		return []Effect{
			&MemoryEffectOp{Type: MemoryEffectRead, Operand: 0},
			&MemoryEffectOp{Type: MemoryEffectWrite, Operand: 1},
		}

	case OpFill:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectWrite, Operand: 1}}

	case OpTransferRead:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectRead, Operand: 0}}

	case OpTransferWrite:
		return []Effect{&MemoryEffectOp{Type: MemoryEffectWrite, Operand: 1}}
	}
	// func, return, yield, if, for, alloca_scope
	return []Effect{&ControlEffect{}}
}

// IsPure reports whether op has no side effects and can be dropped when its
// results are unused.
func (p *Program) IsPure(op OpID) bool {
	for _, e := range p.GetEffects(op) {
		if _, ok := e.(*PureEffect); !ok {
			return false
		}
	}
	return true
}

// IsTriviallyDead reports whether op can be erased: it is pure, or only
// allocates, and none of its results are used. It walks the program once per
// result; passes that test many ops should use IsTriviallyDeadWith.
func (p *Program) IsTriviallyDead(op OpID) bool {
	return p.isTriviallyDead(op, p.HasUses)
}

// IsTriviallyDeadWith is IsTriviallyDead with uses looked up in counts, as
// returned by UseCounts.
func (p *Program) IsTriviallyDeadWith(op OpID, counts map[ValueID]int) bool {
	return p.isTriviallyDead(op, func(v ValueID) bool { return counts[v] > 0 })
}

func (p *Program) isTriviallyDead(op OpID, used func(ValueID) bool) bool {
	for _, e := range p.GetEffects(op) {
		switch eff := e.(type) {
		case *PureEffect:
		case *MemoryEffectOp:
			if eff.Type != MemoryEffectAllocate {
				return false
			}
		default:
			return false
		}
	}
	for _, r := range p.Op(op).Results {
		if used(r) {
			return false
		}
	}
	return true
}

// WritesTo reports whether op may write the memref v (directly through an
// operand; aliasing views are not tracked).
func (p *Program) WritesTo(op OpID, v ValueID) bool {
	o := p.Op(op)
	for _, e := range p.GetEffects(op) {
		if m, ok := e.(*MemoryEffectOp); ok && m.Type == MemoryEffectWrite && o.Operands[m.Operand] == v {
			return true
		}
	}
	return false
}
