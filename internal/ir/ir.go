package ir

// The IR is an arena of operations and values addressed by integer handles.
// Operations own single-block regions; a region lists the operations it
// contains in program order. Rewrites clone, insert and erase through the
// Program so that handles stay valid for the lifetime of the program.

import (
	"fmt"
)

type ValueID int
type OpID int

const (
	NoValue ValueID = -1
	NoOp    OpID    = -1
)

// Value is an SSA value: either an operation result or a region argument.
type Value struct {
	ID    ValueID
	Type  Type
	Name  string  // name hint from the textual form, if any
	Def   OpID    // defining op, NoOp for region arguments
	Index int     // result or argument position
	Owner *Region // owning region for region arguments
}

// Operation is one node of the program.
type Operation struct {
	ID       OpID
	Kind     OpKind
	Operands []ValueID
	Results  []ValueID
	Regions  []*Region
	Attrs    Attributes
	Loc      Location
	Parent   *Region
	erased   bool
}

// Region is a single block of operations with optional arguments.
type Region struct {
	Owner OpID
	Args  []ValueID
	Ops   []OpID
}

// Program owns every operation and value. Funcs lists the top-level
// func.func operations in declaration order.
type Program struct {
	values []*Value
	ops    []*Operation
	Funcs  []OpID
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{}
}

func (p *Program) Op(id OpID) *Operation {
	return p.ops[id]
}

func (p *Program) Value(id ValueID) *Value {
	return p.values[id]
}

// TypeOf returns the type of a value.
func (p *Program) TypeOf(id ValueID) Type {
	return p.values[id].Type
}

// NumOps returns the arena size, including erased operations.
func (p *Program) NumOps() int {
	return len(p.ops)
}

// IsErased reports whether op has been erased.
func (p *Program) IsErased(op OpID) bool {
	return p.ops[op].erased
}

func (p *Program) newValue(t Type, def OpID, index int, owner *Region) ValueID {
	id := ValueID(len(p.values))
	p.values = append(p.values, &Value{ID: id, Type: t, Def: def, Index: index, Owner: owner})
	return id
}

// NewOp creates a detached operation. The caller inserts it with one of the
// Insert methods (or through a Builder).
func (p *Program) NewOp(kind OpKind, operands []ValueID, resultTypes []Type, numRegions int, attrs Attributes) OpID {
	id := OpID(len(p.ops))
	op := &Operation{
		ID:       id,
		Kind:     kind,
		Operands: append([]ValueID(nil), operands...),
		Attrs:    attrs,
	}
	p.ops = append(p.ops, op)
	for i, t := range resultTypes {
		op.Results = append(op.Results, p.newValue(t, id, i, nil))
	}
	for i := 0; i < numRegions; i++ {
		op.Regions = append(op.Regions, &Region{Owner: id})
	}
	return id
}

// AddRegionArg appends an argument of type t to region r.
func (p *Program) AddRegionArg(r *Region, t Type) ValueID {
	v := p.newValue(t, NoOp, len(r.Args), r)
	r.Args = append(r.Args, v)
	return v
}

// AddFunc creates a top-level function with the given signature.
func (p *Program) AddFunc(name string, argTypes, resultTypes []Type) OpID {
	fn := p.NewOp(OpFunc, nil, nil, 1, Attributes{Symbol: name, ResultTypes: resultTypes})
	body := p.ops[fn].Regions[0]
	for _, t := range argTypes {
		p.AddRegionArg(body, t)
	}
	p.Funcs = append(p.Funcs, fn)
	return fn
}

// LookupFunc finds a function by name.
func (p *Program) LookupFunc(name string) (OpID, bool) {
	for _, fn := range p.Funcs {
		if p.ops[fn].Attrs.Symbol == name {
			return fn, true
		}
	}
	return NoOp, false
}

// Body returns the first region of op.
func (p *Program) Body(op OpID) *Region {
	return p.ops[op].Regions[0]
}

func (p *Program) insertAt(r *Region, pos int, op OpID) {
	o := p.ops[op]
	if o.Parent != nil {
		panic(fmt.Sprintf("ir: op %d (%s) is already inserted", op, o.Kind))
	}
	r.Ops = append(r.Ops, NoOp)
	copy(r.Ops[pos+1:], r.Ops[pos:])
	r.Ops[pos] = op
	o.Parent = r
}

// Append inserts op at the end of r.
func (p *Program) Append(r *Region, op OpID) {
	p.insertAt(r, len(r.Ops), op)
}

// Prepend inserts op at the start of r.
func (p *Program) Prepend(r *Region, op OpID) {
	p.insertAt(r, 0, op)
}

// InsertBefore inserts op immediately before anchor.
func (p *Program) InsertBefore(anchor, op OpID) {
	r := p.ops[anchor].Parent
	p.insertAt(r, p.indexIn(r, anchor), op)
}

// InsertAfter inserts op immediately after anchor.
func (p *Program) InsertAfter(anchor, op OpID) {
	r := p.ops[anchor].Parent
	p.insertAt(r, p.indexIn(r, anchor)+1, op)
}

func (p *Program) indexIn(r *Region, op OpID) int {
	for i, o := range r.Ops {
		if o == op {
			return i
		}
	}
	panic(fmt.Sprintf("ir: op %d not found in its parent region", op))
}

// Erase removes op (and everything nested in it) from the program. Results
// of an erased op must no longer be used.
func (p *Program) Erase(op OpID) {
	o := p.ops[op]
	if o.Parent != nil {
		r := o.Parent
		i := p.indexIn(r, op)
		r.Ops = append(r.Ops[:i], r.Ops[i+1:]...)
		o.Parent = nil
	}
	p.markErased(op)
}

func (p *Program) markErased(op OpID) {
	o := p.ops[op]
	o.erased = true
	for _, r := range o.Regions {
		for _, nested := range r.Ops {
			p.markErased(nested)
		}
	}
}

// ParentOp returns the operation owning the region that contains op.
func (p *Program) ParentOp(op OpID) OpID {
	r := p.ops[op].Parent
	if r == nil {
		return NoOp
	}
	return r.Owner
}

// Ancestors returns the enclosing operations of op, nearest first.
func (p *Program) Ancestors(op OpID) []OpID {
	var out []OpID
	for parent := p.ParentOp(op); parent != NoOp; parent = p.ParentOp(parent) {
		out = append(out, parent)
	}
	return out
}

// IsAncestor reports whether anc encloses op.
func (p *Program) IsAncestor(anc, op OpID) bool {
	for _, a := range p.Ancestors(op) {
		if a == anc {
			return true
		}
	}
	return false
}

// Collect returns every live operation in pre-order.
func (p *Program) Collect() []OpID {
	var out []OpID
	for _, f := range p.Funcs {
		out = p.collect(f, out)
	}
	return out
}

func (p *Program) collect(op OpID, out []OpID) []OpID {
	out = append(out, op)
	for _, r := range p.ops[op].Regions {
		for _, nested := range r.Ops {
			out = p.collect(nested, out)
		}
	}
	return out
}

// Users returns the live operations that use v as an operand.
func (p *Program) Users(v ValueID) []OpID {
	var out []OpID
	for _, op := range p.Collect() {
		for _, operand := range p.ops[op].Operands {
			if operand == v {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

// HasUses reports whether any live operation uses v.
func (p *Program) HasUses(v ValueID) bool {
	return len(p.Users(v)) > 0
}

// UseCounts returns, in a single walk, how many operand slots of live
// operations refer to each value. Values with no uses are absent.
func (p *Program) UseCounts() map[ValueID]int {
	counts := make(map[ValueID]int)
	for _, op := range p.Collect() {
		for _, operand := range p.ops[op].Operands {
			counts[operand]++
		}
	}
	return counts
}

// SetOperand replaces operand i of op.
func (p *Program) SetOperand(op OpID, i int, v ValueID) {
	p.ops[op].Operands[i] = v
}

// ReplaceAllUsesWith rewires every use of from to to.
func (p *Program) ReplaceAllUsesWith(from, to ValueID) {
	for _, op := range p.Collect() {
		o := p.ops[op]
		for i, operand := range o.Operands {
			if operand == from {
				o.Operands[i] = to
			}
		}
	}
}

// DefiningOp returns the op producing v, or NoOp for region arguments.
func (p *Program) DefiningOp(v ValueID) OpID {
	return p.values[v].Def
}

// ConstantValue returns the attribute of v's defining arith.constant.
func (p *Program) ConstantValue(v ValueID) (any, bool) {
	def := p.values[v].Def
	if def == NoOp || p.ops[def].Kind != OpConstant {
		return nil, false
	}
	return p.ops[def].Attrs.Value, true
}

// ConstantInt returns the integer value of v when it is an integer constant.
func (p *Program) ConstantInt(v ValueID) (int64, bool) {
	c, ok := p.ConstantValue(v)
	if !ok {
		return 0, false
	}
	i, ok := c.(int64)
	return i, ok
}

// Mapping records value substitutions for cloning.
type Mapping struct {
	values map[ValueID]ValueID
}

func NewMapping() *Mapping {
	return &Mapping{values: make(map[ValueID]ValueID)}
}

// Map records that from is replaced by to.
func (m *Mapping) Map(from, to ValueID) {
	m.values[from] = to
}

// MapAll maps from[i] to to[i].
func (m *Mapping) MapAll(from, to []ValueID) {
	for i := range from {
		m.values[from[i]] = to[i]
	}
}

// Lookup returns the replacement of v, or v itself.
func (m *Mapping) Lookup(v ValueID) ValueID {
	if m != nil {
		if to, ok := m.values[v]; ok {
			return to
		}
	}
	return v
}

// Clone creates a detached deep copy of op. Operands are remapped through m,
// and the clone's results and region arguments are recorded in m.
func (p *Program) Clone(op OpID, m *Mapping) OpID {
	if m == nil {
		m = NewMapping()
	}
	src := p.ops[op]
	operands := make([]ValueID, len(src.Operands))
	for i, v := range src.Operands {
		operands[i] = m.Lookup(v)
	}
	resultTypes := make([]Type, len(src.Results))
	for i, r := range src.Results {
		resultTypes[i] = p.values[r].Type
	}
	id := p.NewOp(src.Kind, operands, resultTypes, len(src.Regions), src.Attrs.clone())
	dst := p.ops[id]
	dst.Loc = src.Loc
	m.MapAll(src.Results, dst.Results)
	for i, r := range src.Regions {
		nr := dst.Regions[i]
		for _, arg := range r.Args {
			m.Map(arg, p.AddRegionArg(nr, p.values[arg].Type))
		}
		for _, nested := range r.Ops {
			p.Append(nr, p.Clone(nested, m))
		}
	}
	return id
}
