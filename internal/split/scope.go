package split

import (
	"vecsplit/internal/ir"
)

// AllocationScope finds where the scratch buffer of op is allocated: the
// outermost automatic allocation scope reachable from op by climbing through
// loops only. Allocas inside a loop body are not released per iteration, so
// the walk stops at the first ancestor that is not a loop.
func AllocationScope(p *ir.Program, op ir.OpID) (ir.OpID, error) {
	scope := ir.NoOp
	for _, parent := range p.Ancestors(op) {
		kind := p.Op(parent).Kind
		if kind.IsAutomaticAllocationScope() {
			scope = parent
		}
		if !kind.IsLoop() {
			break
		}
	}
	if scope == ir.NoOp {
		return ir.NoOp, ErrNoAllocationScope
	}
	if n := len(p.Op(scope).Regions); n != 1 {
		return ir.NoOp, contractViolation("allocation scope %s has %d regions", p.Op(scope).Kind, n)
	}
	return scope, nil
}
