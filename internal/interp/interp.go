// Package interp executes IR functions over concrete buffers. It implements
// the masked semantics of vector transfers, so it can check that a rewritten
// function observes the same values as the original.
package interp

import (
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"vecsplit/internal/ir"
)

var log = commonlog.GetLogger("vecsplit.interp")

var (
	// ErrOutOfBounds is returned for an access outside a memref that the IR
	// did not declare as possibly out of bounds.
	ErrOutOfBounds = errors.New("out-of-bounds access")

	ErrUnsupported = errors.New("unsupported operation")
)

// Interpreter evaluates one program. It is not safe for concurrent use.
type Interpreter struct {
	p   *ir.Program
	env map[ir.ValueID]any

	// MaxSteps bounds the number of executed ops; 0 means unlimited.
	MaxSteps int
	steps    int
}

func New(p *ir.Program) *Interpreter {
	return &Interpreter{p: p, env: make(map[ir.ValueID]any)}
}

// Run executes function name with args and returns its results.
func Run(p *ir.Program, name string, args ...any) ([]any, error) {
	return New(p).Call(name, args...)
}

// Call executes function name with args and returns its results.
func (in *Interpreter) Call(name string, args ...any) ([]any, error) {
	fn, ok := in.p.LookupFunc(name)
	if !ok {
		return nil, errors.Errorf("no function @%s", name)
	}
	body := in.p.Body(fn)
	if len(args) != len(body.Args) {
		return nil, errors.Errorf("@%s takes %d arguments, got %d", name, len(body.Args), len(args))
	}
	for i, a := range body.Args {
		if mt, ok := in.p.TypeOf(a).(*ir.MemRefType); ok {
			m, isMem := args[i].(*MemRef)
			if !isMem {
				return nil, errors.Errorf("argument %d of @%s must be a memref", i, name)
			}
			if err := conforms(mt, m); err != nil {
				return nil, errors.Wrapf(err, "argument %d of @%s", i, name)
			}
		}
		in.env[a] = args[i]
	}
	return in.execRegion(body)
}

func (in *Interpreter) operands(o *ir.Operation) []any {
	out := make([]any, len(o.Operands))
	for i, v := range o.Operands {
		out[i] = in.env[v]
	}
	return out
}

func (in *Interpreter) ints(vs []ir.ValueID) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i], _ = in.env[v].(int64)
	}
	return out
}

func (in *Interpreter) execRegion(r *ir.Region) ([]any, error) {
	for _, op := range r.Ops {
		o := in.p.Op(op)
		if o.Kind.IsTerminator() {
			return in.operands(o), nil
		}
		if err := in.exec(op); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (in *Interpreter) set(o *ir.Operation, values ...any) {
	for i, r := range o.Results {
		in.env[r] = values[i]
	}
}

func (in *Interpreter) exec(op ir.OpID) error {
	o := in.p.Op(op)
	in.steps++
	if in.MaxSteps > 0 && in.steps > in.MaxSteps {
		return errors.Errorf("step limit %d exceeded", in.MaxSteps)
	}
	log.Debugf("exec %s", o.Kind)
	args := in.operands(o)

	switch o.Kind {
	case ir.OpConstant:
		in.set(o, o.Attrs.Value)

	case ir.OpAddI, ir.OpSubI, ir.OpMulI, ir.OpAndI, ir.OpXOrI:
		v, err := ir.EvalIntBinary(o.Kind, args[0], args[1])
		if err != nil {
			return err
		}
		in.set(o, v)

	case ir.OpAddF:
		in.set(o, args[0].(float64)+args[1].(float64))

	case ir.OpCmpI:
		in.set(o, o.Attrs.Predicate.Eval(args[0].(int64), args[1].(int64)))

	case ir.OpAffineApply:
		in.set(o, o.Attrs.Map.Eval(in.ints(o.Operands))[0])

	case ir.OpAffineMin:
		results := o.Attrs.Map.Eval(in.ints(o.Operands))
		m := results[0]
		for _, r := range results[1:] {
			m = min(m, r)
		}
		in.set(o, m)

	case ir.OpFor, ir.OpAffineFor:
		lb, ub, step := args[0].(int64), args[1].(int64), args[2].(int64)
		if step <= 0 {
			return errors.Errorf("%s with non-positive step %d", o.Kind, step)
		}
		body := o.Regions[0]
		for iv := lb; iv < ub; iv += step {
			in.env[body.Args[0]] = iv
			if _, err := in.execRegion(body); err != nil {
				return err
			}
		}

	case ir.OpIf:
		arm := o.Regions[1]
		if args[0].(bool) {
			arm = o.Regions[0]
		}
		yielded, err := in.execRegion(arm)
		if err != nil {
			return err
		}
		in.set(o, yielded...)

	case ir.OpAllocaScope:
		if _, err := in.execRegion(o.Regions[0]); err != nil {
			return err
		}

	case ir.OpAlloca:
		mt := in.p.TypeOf(o.Results[0]).(*ir.MemRefType)
		data := make([]any, product(mt.Shape))
		for i := range data {
			data[i] = zeroValue(mt.Elem)
		}
		in.set(o, NewMemRef(mt.Shape, data))

	case ir.OpCast:
		m := args[0].(*MemRef)
		if err := conforms(in.p.TypeOf(o.Results[0]).(*ir.MemRefType), m); err != nil {
			return errors.Wrap(err, "memref.cast")
		}
		in.set(o, m)

	case ir.OpDim:
		in.set(o, args[0].(*MemRef).Shape[o.Attrs.Dim])

	case ir.OpSubView:
		v, err := in.subview(o)
		if err != nil {
			return err
		}
		in.set(o, v)

	case ir.OpCopy:
		src, dst := args[0].(*MemRef), args[1].(*MemRef)
		if !equalShape(src.Shape, dst.Shape) {
			return errors.Errorf("memref.copy between shapes %v and %v", src.Shape, dst.Shape)
		}
		forEachIndex(src.Shape, func(idx []int64) {
			dst.Buf.Data[dst.linear(idx)] = src.Buf.Data[src.linear(idx)]
		})

	case ir.OpFill:
		dst := args[1].(*MemRef)
		forEachIndex(dst.Shape, func(idx []int64) {
			dst.Buf.Data[dst.linear(idx)] = args[0]
		})

	case ir.OpLoad:
		v, err := in.load(args[0].(*MemRef), in.ints(o.Operands[1:]))
		if err != nil {
			return err
		}
		in.set(o, v)

	case ir.OpStore:
		return in.store(args[0], args[1].(*MemRef), in.ints(o.Operands[2:]))

	case ir.OpTypeCast:
		m := args[0].(*MemRef)
		in.set(o, &MemRef{Buf: m.Buf, Offset: m.Offset, Strides: m.Strides, VectorShape: m.Shape})

	case ir.OpTransferRead, ir.OpTransferWrite:
		xfer, _ := ir.AsTransfer(in.p, op)
		return in.transfer(xfer)

	default:
		return errors.Wrapf(ErrUnsupported, "%s", o.Kind)
	}
	return nil
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (in *Interpreter) subview(o *ir.Operation) (*MemRef, error) {
	src := in.env[o.Operands[0]].(*MemRef)
	dynamic := in.ints(o.Operands[1:])
	next := 0
	resolve := func(static []int64) []int64 {
		out := make([]int64, len(static))
		for i, s := range static {
			if ir.IsDynamic(s) {
				out[i] = dynamic[next]
				next++
			} else {
				out[i] = s
			}
		}
		return out
	}
	offsets := resolve(o.Attrs.StaticOffsets)
	sizes := resolve(o.Attrs.StaticSizes)
	strides := resolve(o.Attrs.StaticStrides)

	view := &MemRef{Buf: src.Buf, Offset: src.Offset, Shape: sizes, Strides: make([]int64, len(sizes))}
	for i := range sizes {
		if sizes[i] < 0 || offsets[i] < 0 {
			return nil, errors.Wrapf(ErrOutOfBounds, "subview dim %d: offset %d size %d", i, offsets[i], sizes[i])
		}
		if sizes[i] > 0 && offsets[i]+(sizes[i]-1)*strides[i] >= src.Shape[i] {
			return nil, errors.Wrapf(ErrOutOfBounds, "subview dim %d: offset %d size %d exceeds %d",
				i, offsets[i], sizes[i], src.Shape[i])
		}
		view.Offset += offsets[i] * src.Strides[i]
		view.Strides[i] = src.Strides[i] * strides[i]
	}
	return view, nil
}

func (in *Interpreter) load(m *MemRef, idx []int64) (any, error) {
	if m.VectorShape != nil {
		v := &Vector{Shape: m.VectorShape, Data: make([]any, 0, product(m.VectorShape))}
		forEachIndex(m.VectorShape, func(vi []int64) {
			v.Data = append(v.Data, m.Buf.Data[m.linear(vi)])
		})
		return v, nil
	}
	if !m.inBounds(idx) {
		return nil, errors.Wrapf(ErrOutOfBounds, "memref.load at %v of shape %v", idx, m.Shape)
	}
	return m.Buf.Data[m.linear(idx)], nil
}

func (in *Interpreter) store(value any, m *MemRef, idx []int64) error {
	if m.VectorShape != nil {
		v := value.(*Vector)
		i := 0
		forEachIndex(m.VectorShape, func(vi []int64) {
			m.Buf.Data[m.linear(vi)] = v.Data[i]
			i++
		})
		return nil
	}
	if !m.inBounds(idx) {
		return errors.Wrapf(ErrOutOfBounds, "memref.store at %v of shape %v", idx, m.Shape)
	}
	m.Buf.Data[m.linear(idx)] = value
	return nil
}

// transfer executes a masked vector transfer. A lane is active when its
// mask bit (if any) is set and every source index is in bounds. Inactive
// read lanes take the padding value and inactive write lanes are skipped. A
// lane that is out of bounds along a dimension flagged in-bounds is an
// error.
func (in *Interpreter) transfer(xfer ir.TransferOp) error {
	src := in.env[xfer.Source()].(*MemRef)
	base := in.ints(xfer.Indices())
	vt := xfer.VectorType()
	perm := xfer.PermutationMap()

	var mask *Vector
	if m := xfer.Mask(); m != ir.NoValue {
		mask = in.env[m].(*Vector)
	}

	var out *Vector
	var written *Vector
	if xfer.Kind == ir.TransferRead {
		out = &Vector{Shape: vt.Shape, Data: make([]any, 0, vt.NumElements())}
	} else {
		written = in.env[xfer.Vector()].(*Vector)
	}
	pad := any(nil)
	if p := xfer.Padding(); p != ir.NoValue {
		pad = in.env[p]
	}

	lane := 0
	var failure error
	forEachIndex(vt.Shape, func(vi []int64) {
		if failure != nil {
			return
		}
		idx := append([]int64(nil), base...)
		active := true
		for r, res := range perm.Results {
			d, ok := res.AsDim()
			if !ok {
				continue
			}
			idx[d] += vi[r]
			if idx[d] < 0 || idx[d] >= src.Shape[d] {
				if xfer.IsDimInBounds(r) {
					failure = errors.Wrapf(ErrOutOfBounds,
						"%s lane %v at %v exceeds %v along in-bounds dim %d", xfer.Kind, vi, idx, src.Shape, r)
					return
				}
				active = false
			}
		}
		if active && !src.inBounds(idx) {
			failure = errors.Wrapf(ErrOutOfBounds, "%s lane %v at %v exceeds %v", xfer.Kind, vi, idx, src.Shape)
			return
		}
		if mask != nil && !mask.Data[lane].(bool) {
			active = false
		}
		if xfer.Kind == ir.TransferRead {
			if active {
				out.Data = append(out.Data, src.Buf.Data[src.linear(idx)])
			} else {
				out.Data = append(out.Data, pad)
			}
		} else if active {
			src.Buf.Data[src.linear(idx)] = written.Data[lane]
		}
		lane++
	})
	if failure != nil {
		return failure
	}
	if out != nil {
		in.env[xfer.Vector()] = out
	}
	return nil
}
