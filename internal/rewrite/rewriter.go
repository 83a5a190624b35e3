package rewrite

import (
	"github.com/tliron/commonlog"

	"vecsplit/internal/ir"
)

var log = commonlog.GetLogger("vecsplit.rewrite")

// Rewriter is the builder handed to patterns. Every mutation that goes
// through it is counted so drivers can tell whether anything changed.
type Rewriter struct {
	*ir.Builder

	changes int
}

// NewRewriter creates a rewriter over p with no insertion point.
func NewRewriter(p *ir.Program) *Rewriter {
	return &Rewriter{Builder: ir.NewBuilder(p)}
}

// Program returns the program being rewritten.
func (r *Rewriter) Program() *ir.Program {
	return r.P
}

// UpdateInPlace runs fn, which modifies op without replacing it.
func (r *Rewriter) UpdateInPlace(op ir.OpID, fn func()) {
	fn()
	r.changes++
	log.Debugf("updated %s in place", r.P.Op(op).Kind)
}

// EraseOp removes op and everything nested in it.
func (r *Rewriter) EraseOp(op ir.OpID) {
	log.Debugf("erasing %s", r.P.Op(op).Kind)
	r.P.Erase(op)
	r.changes++
}

// ReplaceOp rewires the results of op to values and erases op.
func (r *Rewriter) ReplaceOp(op ir.OpID, values []ir.ValueID) {
	for i, res := range r.P.Op(op).Results {
		r.P.ReplaceAllUsesWith(res, values[i])
	}
	r.EraseOp(op)
}

// Guard saves the insertion point; the returned func restores it.
func (r *Rewriter) Guard() func() {
	saved := r.InsertionPoint()
	return func() { r.RestoreInsertionPoint(saved) }
}

// Changes returns the number of counted mutations so far.
func (r *Rewriter) Changes() int {
	return r.changes
}

// NotifyCreated records that ops were created outside of UpdateInPlace.
func (r *Rewriter) NotifyCreated() {
	r.changes++
}
