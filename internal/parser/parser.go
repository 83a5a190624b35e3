package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"

	"vecsplit/grammar"
	"vecsplit/internal/affine"
	"vecsplit/internal/ir"
)

type Position struct {
	Line   int // 1-based
	Column int // 1-based
	Offset int // 0-based absolute index in input
}

type ParseError struct {
	Message  string
	Position Position
	// Syntax is set for grammar errors, as opposed to errors found while
	// lowering a well-formed file.
	Syntax bool
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Position.Line, e.Position.Column, e.Message)
}

// ParseSource parses textual IR and lowers it to an ir.Program. Syntax errors
// stop at the first one; lowering errors are collected per op.
func ParseSource(path string, source string) (*ir.Program, []ParseError) {
	tree, err := grammar.ParseString(path, source)
	if err != nil {
		return nil, []ParseError{fromParticiple(err)}
	}
	l := &lowerer{p: ir.NewProgram(), file: path}
	for _, fn := range tree.Funcs {
		l.lowerFunc(fn)
	}
	return l.p, l.errors
}

func fromParticiple(err error) ParseError {
	if pe, ok := err.(participle.Error); ok {
		return ParseError{Message: pe.Message(), Position: position(pe.Position()), Syntax: true}
	}
	return ParseError{Message: err.Error(), Syntax: true}
}

func position(pos lexer.Position) Position {
	return Position{Line: pos.Line, Column: pos.Column, Offset: pos.Offset}
}

type lowerer struct {
	p      *ir.Program
	file   string
	scopes []map[string]ir.ValueID
	errors []ParseError
}

func (l *lowerer) errorAt(pos lexer.Position, format string, args ...interface{}) {
	l.errors = append(l.errors, ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: position(pos),
	})
}

func (l *lowerer) push() { l.scopes = append(l.scopes, make(map[string]ir.ValueID)) }
func (l *lowerer) pop() { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *lowerer) define(pos lexer.Position, ref string, v ir.ValueID) {
	name := strings.TrimPrefix(ref, "%")
	scope := l.scopes[len(l.scopes)-1]
	if _, exists := scope[name]; exists {
		l.errorAt(pos, "redefinition of %s", ref)
	}
	scope[name] = v
	l.p.Value(v).Name = name
}

func (l *lowerer) lookup(name string) (ir.ValueID, bool) {
	name = strings.TrimPrefix(name, "%")
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if v, ok := l.scopes[i][name]; ok {
			return v, true
		}
	}
	return ir.NoValue, false
}

func (l *lowerer) location(pos lexer.Position) ir.Location {
	return ir.Location{File: l.file, Line: pos.Line, Column: pos.Column}
}

func (l *lowerer) lowerFunc(fn *grammar.Func) {
	name := strings.TrimPrefix(fn.Name, "@")
	if _, exists := l.p.LookupFunc(name); exists {
		l.errorAt(fn.Pos, "redefinition of function @%s", name)
		return
	}
	argTypes := make([]ir.Type, len(fn.Params))
	for i, param := range fn.Params {
		argTypes[i] = l.lowerType(param.Type)
	}
	resultTypes := make([]ir.Type, len(fn.Results))
	for i, t := range fn.Results {
		resultTypes[i] = l.lowerType(t)
	}
	id := l.p.AddFunc(name, argTypes, resultTypes)
	l.p.Op(id).Loc = l.location(fn.Pos)

	body := l.p.Body(id)
	l.push()
	defer l.pop()
	for i, param := range fn.Params {
		l.define(param.Pos, param.Name, body.Args[i])
	}
	for _, op := range fn.Body {
		l.lowerOp(body, op)
	}
}

func (l *lowerer) lowerOp(parent *ir.Region, op *grammar.Op) {
	kind, ok := ir.LookupKind(op.Name)
	if !ok {
		l.errorAt(op.Pos, "unknown operation %q", op.Name)
		return
	}
	if kind == ir.OpFunc {
		l.errorAt(op.Pos, "func.func must be declared at top level")
		return
	}
	if len(op.Results) != len(op.Types) {
		l.errorAt(op.Pos, "%s declares %d results but %d types", op.Name, len(op.Results), len(op.Types))
		return
	}

	operands := make([]ir.ValueID, 0, len(op.Operands))
	for _, ref := range op.Operands {
		v, ok := l.lookup(ref)
		if !ok {
			l.errorAt(op.Pos, "use of undefined value %s", ref)
			return
		}
		operands = append(operands, v)
	}
	resultTypes := make([]ir.Type, len(op.Types))
	for i, t := range op.Types {
		resultTypes[i] = l.lowerType(t)
	}
	attrs, ok := l.lowerAttrs(kind, op.Attrs)
	if !ok {
		return
	}

	id := l.p.NewOp(kind, operands, resultTypes, len(op.Regions), attrs)
	l.p.Op(id).Loc = l.location(op.Pos)
	l.p.Append(parent, id)

	for i, region := range op.Regions {
		r := l.p.Op(id).Regions[i]
		l.push()
		for _, arg := range region.Args {
			l.define(arg.Pos, arg.Name, l.p.AddRegionArg(r, l.lowerType(arg.Type)))
		}
		for _, nested := range region.Ops {
			l.lowerOp(r, nested)
		}
		l.pop()
	}

	for i, ref := range op.Results {
		l.define(op.Pos, ref, l.p.Op(id).Results[i])
	}
}

func (l *lowerer) lowerAttrs(kind ir.OpKind, attrs []*grammar.Attr) (ir.Attributes, bool) {
	var out ir.Attributes
	ok := true
	fail := func(a *grammar.Attr, format string, args ...interface{}) {
		l.errorAt(a.Pos, "attribute %s: %s", a.Key, fmt.Sprintf(format, args...))
		ok = false
	}
	for _, a := range attrs {
		v := a.Value
		switch a.Key {
		case "value":
			if v.Scalar == nil {
				fail(a, "expected a scalar")
				continue
			}
			switch s := v.Scalar; {
			case s.Float != nil:
				out.Value = *s.Float
			case s.Int != nil:
				out.Value = *s.Int
			case s.Bool != nil:
				out.Value = *s.Bool == "true"
			default:
				fail(a, "expected a number or boolean")
			}

		case "predicate":
			if v.Scalar == nil || v.Scalar.Ident == nil {
				fail(a, "expected a predicate name")
				continue
			}
			pred, known := ir.ParsePredicate(*v.Scalar.Ident)
			if !known {
				fail(a, "unknown predicate %q", *v.Scalar.Ident)
				continue
			}
			out.Predicate = pred

		case "dim", "alignment":
			if v.Scalar == nil || v.Scalar.Int == nil {
				fail(a, "expected an integer")
				continue
			}
			if a.Key == "dim" {
				out.Dim = int(*v.Scalar.Int)
			} else {
				out.Alignment = *v.Scalar.Int
			}

		case "map", "permutation_map":
			if v.Map == nil {
				fail(a, "expected an affine_map")
				continue
			}
			m, err := lowerMap(v.Map)
			if err != nil {
				fail(a, "%v", err)
				continue
			}
			if a.Key == "map" {
				out.Map = &m
			} else {
				out.PermutationMap = &m
			}

		case "in_bounds":
			if v.List == nil {
				fail(a, "expected a list of booleans")
				continue
			}
			flags := make([]bool, 0, len(v.List.Items))
			for _, item := range v.List.Items {
				if item.Bool == nil {
					fail(a, "expected a list of booleans")
					break
				}
				flags = append(flags, *item.Bool == "true")
			}
			out.InBounds = flags

		case "static_offsets", "static_sizes", "static_strides":
			if v.List == nil {
				fail(a, "expected a list of integers")
				continue
			}
			entries := make([]int64, 0, len(v.List.Items))
			for _, item := range v.List.Items {
				e, good := staticEntry(item)
				if !good {
					fail(a, "expected integers or ?")
					break
				}
				entries = append(entries, e)
			}
			switch a.Key {
			case "static_offsets":
				out.StaticOffsets = entries
			case "static_sizes":
				out.StaticSizes = entries
			default:
				out.StaticStrides = entries
			}

		default:
			fail(a, "unknown attribute for %s", kind)
		}
	}
	return out, ok
}

func staticEntry(s *grammar.Scalar) (int64, bool) {
	switch {
	case s.Dynamic:
		return ir.Dynamic, true
	case s.Int != nil:
		return *s.Int, true
	}
	return 0, false
}

func lowerMap(m *grammar.AffineMap) (affine.Map, error) {
	dims := make(map[string]int, len(m.Dims))
	for i, d := range m.Dims {
		if _, dup := dims[d]; dup {
			return affine.Map{}, errors.Errorf("duplicate dimension %s", d)
		}
		dims[d] = i
	}
	results := make([]affine.Expr, len(m.Results))
	for i, r := range m.Results {
		e, err := lowerTerm(r.Head, dims)
		if err != nil {
			return affine.Map{}, err
		}
		if r.Neg {
			e = e.Scale(-1)
		}
		for _, tail := range r.Tail {
			t, err := lowerTerm(tail.Term, dims)
			if err != nil {
				return affine.Map{}, err
			}
			if tail.Op == "-" {
				e = e.Sub(t)
			} else {
				e = e.Add(t)
			}
		}
		results[i] = e
	}
	return affine.NewMap(len(m.Dims), results...), nil
}

func lowerTerm(t *grammar.AffineTerm, dims map[string]int) (affine.Expr, error) {
	if t.Const != nil {
		return affine.Const(*t.Const), nil
	}
	pos, ok := dims[t.Dim.Name]
	if !ok {
		return affine.Expr{}, errors.Errorf("unknown dimension %s", t.Dim.Name)
	}
	e := affine.Dim(pos)
	if t.Dim.Scale != nil {
		e = e.Scale(*t.Dim.Scale)
	}
	return e, nil
}

func (l *lowerer) lowerType(t *grammar.Type) ir.Type {
	switch {
	case t.Vector != nil:
		shape := make([]int64, len(t.Vector.Dims))
		for i, d := range t.Vector.Dims {
			shape[i] = l.shapeDim(t.Pos, d)
			if ir.IsDynamic(shape[i]) {
				l.errorAt(t.Pos, "vector dimensions must be static")
			}
		}
		return &ir.VectorType{Shape: shape, Elem: l.lowerType(t.Vector.Elem)}

	case t.MemRef != nil:
		shape := make([]int64, len(t.MemRef.Dims))
		for i, d := range t.MemRef.Dims {
			shape[i] = l.shapeDim(t.Pos, d)
		}
		mt := &ir.MemRefType{Shape: shape, Elem: l.lowerType(t.MemRef.Elem)}
		if layout := t.MemRef.Layout; layout != nil {
			strides := make([]int64, len(layout.Strides))
			for i, s := range layout.Strides {
				e, ok := staticEntry(s)
				if !ok {
					l.errorAt(t.Pos, "invalid stride")
				}
				strides[i] = e
			}
			var offset int64
			if layout.Offset != nil {
				e, ok := staticEntry(layout.Offset)
				if !ok {
					l.errorAt(t.Pos, "invalid offset")
				}
				offset = e
			}
			if len(strides) != len(shape) {
				l.errorAt(t.Pos, "layout has %d strides for rank %d", len(strides), len(shape))
			}
			mt.Layout = &ir.StridedLayout{Offset: offset, Strides: strides}
		}
		return mt
	}

	switch name := t.Scalar; {
	case name == "index":
		return ir.Index()
	case strings.HasPrefix(name, "i"):
		if bits, err := strconv.Atoi(name[1:]); err == nil && bits > 0 {
			return &ir.IntType{Bits: bits}
		}
	case strings.HasPrefix(name, "f"):
		if bits, err := strconv.Atoi(name[1:]); err == nil && (bits == 16 || bits == 32 || bits == 64) {
			return &ir.FloatType{Bits: bits}
		}
	}
	l.errorAt(t.Pos, "unknown type %q", t.Scalar)
	return ir.Index()
}

func (l *lowerer) shapeDim(pos lexer.Position, d string) int64 {
	d = strings.TrimSuffix(d, "x")
	if d == "?" {
		return ir.Dynamic
	}
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		l.errorAt(pos, "invalid dimension %q", d)
	}
	return n
}
