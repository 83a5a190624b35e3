package rewrite

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"vecsplit/internal/ir"
)

// Pass is a single whole-program transformation.
type Pass interface {
	Name() string
	Description() string
	// Apply returns true if changes were made.
	Apply(program *ir.Program) (bool, error)
}

// Pipeline manages the sequence of passes.
type Pipeline struct {
	passes []Pass
}

// NewPipeline creates an empty pipeline.
func NewPipeline(passes ...Pass) *Pipeline {
	p := &Pipeline{}
	for _, pass := range passes {
		p.AddPass(pass)
	}
	return p
}

// AddPass appends a pass to the pipeline.
func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

func (p *Pipeline) Passes() []Pass {
	return p.passes
}

// Run executes all passes on the program in order and reports whether any
// of them changed it.
func (p *Pipeline) Run(program *ir.Program) (bool, error) {
	log.Infof("running %d passes", len(p.passes))

	changedAny := false
	for _, pass := range p.passes {
		log.Debugf("%s: %s", pass.Name(), pass.Description())
		changed, err := pass.Apply(program)
		if err != nil {
			return changedAny, errors.Wrapf(err, "pass %s", pass.Name())
		}
		if changed {
			log.Infof("%s: applied", pass.Name())
			changedAny = true
		} else {
			log.Debugf("%s: no changes needed", pass.Name())
		}
	}
	return changedAny, nil
}

// PatternPass applies a pattern set with the greedy driver.
type PatternPass struct {
	Patterns *PatternSet
	Config   GreedyConfig
}

func (pp *PatternPass) Name() string {
	return "patterns"
}

func (pp *PatternPass) Description() string {
	return fmt.Sprintf("Applies %d rewrite patterns greedily", pp.Patterns.Len())
}

func (pp *PatternPass) Apply(program *ir.Program) (bool, error) {
	res, err := ApplyPatternsGreedily(program, pp.Patterns, pp.Config)
	if err != nil {
		return false, err
	}
	if !res.Converged {
		log.Warningf("pattern application did not converge after %d iterations", res.Iterations)
	}
	return res.Rewrites > 0, nil
}

// ConstantFolding evaluates integer arithmetic, affine maps and static
// memref.dim at compile time and replaces them with arith.constant.
type ConstantFolding struct{}

func (cf *ConstantFolding) Name() string {
	return "constant-folding"
}

func (cf *ConstantFolding) Description() string {
	return "Evaluates constant expressions at compile time and replaces with literals"
}

func (cf *ConstantFolding) Apply(program *ir.Program) (bool, error) {
	rw := NewRewriter(program)
	for _, op := range program.Collect() {
		if program.IsErased(op) {
			continue
		}
		value, ok := cf.fold(program, op)
		if !ok {
			continue
		}
		o := program.Op(op)
		rw.SetInsertionPointBefore(op)
		rw.Loc = o.Loc
		c := rw.Constant(value, program.TypeOf(o.Results[0]))
		rw.ReplaceOp(op, []ir.ValueID{c})
	}
	return rw.Changes() > 0, nil
}

func (cf *ConstantFolding) fold(program *ir.Program, op ir.OpID) (any, bool) {
	o := program.Op(op)
	consts := make([]any, len(o.Operands))
	for i, v := range o.Operands {
		c, ok := program.ConstantValue(v)
		if !ok && o.Kind != ir.OpDim {
			return nil, false
		}
		consts[i] = c
	}

	switch o.Kind {
	case ir.OpAddI, ir.OpSubI, ir.OpMulI, ir.OpAndI, ir.OpXOrI:
		v, err := ir.EvalIntBinary(o.Kind, consts[0], consts[1])
		return v, err == nil

	case ir.OpCmpI:
		a, ok1 := consts[0].(int64)
		b, ok2 := consts[1].(int64)
		if !ok1 || !ok2 {
			return nil, false
		}
		return o.Attrs.Predicate.Eval(a, b), true

	case ir.OpAffineApply, ir.OpAffineMin:
		dims := make([]int64, len(consts))
		for i, c := range consts {
			k, ok := c.(int64)
			if !ok {
				return nil, false
			}
			dims[i] = k
		}
		results := o.Attrs.Map.Eval(dims)
		m := results[0]
		for _, r := range results[1:] {
			m = min(m, r)
		}
		return m, true

	case ir.OpDim:
		mt, ok := program.TypeOf(o.Operands[0]).(*ir.MemRefType)
		if !ok || o.Attrs.Dim >= mt.Rank() || ir.IsDynamic(mt.Shape[o.Attrs.Dim]) {
			return nil, false
		}
		return mt.Shape[o.Attrs.Dim], true
	}
	return nil, false
}

// DeadCodeElimination removes ops whose results are unused and that have no
// effect besides allocation.
type DeadCodeElimination struct{}

func (dce *DeadCodeElimination) Name() string {
	return "dce"
}

func (dce *DeadCodeElimination) Description() string {
	return "Removes unused pure operations and allocations"
}

func (dce *DeadCodeElimination) Apply(program *ir.Program) (bool, error) {
	rw := NewRewriter(program)
	for {
		before := rw.Changes()
		ops := program.Collect()
		uses := program.UseCounts()
		// Reverse order erases users before their operands, so a dead chain
		// goes in one sweep once the counts are released.
		for i := len(ops) - 1; i >= 0; i-- {
			op := ops[i]
			if program.IsErased(op) || !program.IsTriviallyDeadWith(op, uses) {
				continue
			}
			for _, operand := range program.Op(op).Operands {
				uses[operand]--
			}
			rw.EraseOp(op)
		}
		if rw.Changes() == before {
			break
		}
	}
	return rw.Changes() > 0, nil
}

// CommonSubexpressionElimination merges identical pure ops. An op is
// replaced by an equivalent one earlier in the same region or in an
// enclosing region.
type CommonSubexpressionElimination struct{}

func (cse *CommonSubexpressionElimination) Name() string {
	return "cse"
}

func (cse *CommonSubexpressionElimination) Description() string {
	return "Eliminates redundant computations of the same pure expression"
}

func (cse *CommonSubexpressionElimination) Apply(program *ir.Program) (bool, error) {
	rw := NewRewriter(program)
	for _, fn := range program.Funcs {
		cse.optimizeRegion(rw, program.Body(fn), map[string]ir.OpID{})
	}
	return rw.Changes() > 0, nil
}

func (cse *CommonSubexpressionElimination) optimizeRegion(rw *Rewriter, r *ir.Region, outer map[string]ir.OpID) {
	program := rw.Program()
	known := make(map[string]ir.OpID, len(outer))
	for k, v := range outer {
		known[k] = v
	}

	for _, op := range append([]ir.OpID(nil), r.Ops...) {
		o := program.Op(op)
		for _, nested := range o.Regions {
			cse.optimizeRegion(rw, nested, known)
		}
		if len(o.Results) == 0 || !program.IsPure(op) {
			continue
		}
		key := cse.key(program, op)
		if prev, ok := known[key]; ok {
			rw.ReplaceOp(op, program.Op(prev).Results)
			continue
		}
		known[key] = op
	}
}

func (cse *CommonSubexpressionElimination) key(program *ir.Program, op ir.OpID) string {
	o := program.Op(op)
	var sb strings.Builder
	sb.WriteString(string(o.Kind))
	for _, v := range o.Operands {
		fmt.Fprintf(&sb, " %d", v)
	}
	sb.WriteString(" {" + ir.AttrString(program, op) + "}")
	for _, r := range o.Results {
		sb.WriteString(" " + program.TypeOf(r).String())
	}
	return sb.String()
}
