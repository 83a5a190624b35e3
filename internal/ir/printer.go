package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer provides pretty-printing for IR
type Printer struct {
	indent  int
	output  strings.Builder
	program *Program
	names   map[ValueID]string
	used    map[string]bool
	next    int
}

// NewPrinter creates a new IR printer
func NewPrinter(program *Program) *Printer {
	return &Printer{program: program}
}

// Print returns the textual form of an IR program
func Print(program *Program) string {
	p := NewPrinter(program)
	for i, fn := range program.Funcs {
		if i > 0 {
			p.writeLine("")
		}
		p.printFunction(fn)
	}
	return p.output.String()
}

// PrintOp returns the textual form of a single op (and its regions). Values
// are numbered locally, so names may differ from a whole-program print.
func PrintOp(program *Program, op OpID) string {
	p := NewPrinter(program)
	p.reset()
	p.printOp(op)
	return strings.TrimRight(p.output.String(), "\n")
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) reset() {
	p.names = make(map[ValueID]string)
	p.used = make(map[string]bool)
	p.next = 0
}

// name returns the printed name of v, assigning one on first sight. Name
// hints are kept when they are unique within the function.
func (p *Printer) name(v ValueID) string {
	if n, ok := p.names[v]; ok {
		return n
	}
	hint := p.program.Value(v).Name
	if hint == "" || p.used[hint] {
		for {
			hint = strconv.Itoa(p.next)
			p.next++
			if !p.used[hint] {
				break
			}
		}
	}
	p.used[hint] = true
	p.names[v] = hint
	return hint
}

func (p *Printer) valueString(v ValueID) string {
	return "%" + p.name(v)
}

func (p *Printer) valueList(vs []ValueID) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = p.valueString(v)
	}
	return strings.Join(parts, ", ")
}

func typeList(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// printFunction prints one func.func
func (p *Printer) printFunction(fn OpID) {
	p.reset()
	o := p.program.Op(fn)
	body := o.Regions[0]
	params := make([]string, len(body.Args))
	for i, a := range body.Args {
		// Function arguments default to %argN rather than plain numbers.
		if p.program.Value(a).Name == "" && !p.used[fmt.Sprintf("arg%d", i)] {
			p.names[a] = fmt.Sprintf("arg%d", i)
			p.used[p.names[a]] = true
		}
		params[i] = fmt.Sprintf("%s: %s", p.valueString(a), p.program.TypeOf(a))
	}
	sig := fmt.Sprintf("func @%s(%s)", o.Attrs.Symbol, strings.Join(params, ", "))
	if len(o.Attrs.ResultTypes) > 0 {
		sig += fmt.Sprintf(" -> (%s)", typeList(o.Attrs.ResultTypes))
	}
	p.writeLine("%s {", sig)
	p.indent++
	for _, op := range body.Ops {
		p.printOp(op)
	}
	p.indent--
	p.writeLine("}")
}

// printOp prints one operation in the generic form
//
//	%r0, %r1 = kind(%a, %b) <{attrs}> : t0, t1 { region } { region }
func (p *Printer) printOp(op OpID) {
	o := p.program.Op(op)
	var sb strings.Builder
	if len(o.Results) > 0 {
		sb.WriteString(p.valueList(o.Results))
		sb.WriteString(" = ")
	}
	sb.WriteString(string(o.Kind))
	sb.WriteString("(")
	sb.WriteString(p.valueList(o.Operands))
	sb.WriteString(")")
	if attrs := p.attrString(o); attrs != "" {
		sb.WriteString(" <{")
		sb.WriteString(attrs)
		sb.WriteString("}>")
	}
	if len(o.Results) > 0 {
		types := make([]Type, len(o.Results))
		for i, r := range o.Results {
			types[i] = p.program.TypeOf(r)
		}
		sb.WriteString(" : ")
		sb.WriteString(typeList(types))
	}
	if len(o.Regions) == 0 {
		p.writeLine("%s", sb.String())
		return
	}
	p.writeLine("%s {", sb.String())
	for i, r := range o.Regions {
		if i > 0 {
			p.writeLine("} {")
		}
		p.indent++
		if len(r.Args) > 0 {
			args := make([]string, len(r.Args))
			for j, a := range r.Args {
				args[j] = fmt.Sprintf("%s: %s", p.valueString(a), p.program.TypeOf(a))
			}
			p.writeLine("^bb(%s):", strings.Join(args, ", "))
		}
		for _, nested := range r.Ops {
			p.printOp(nested)
		}
		p.indent--
	}
	p.writeLine("}")
}

// AttrString renders the attribute dictionary of op without the braces.
func AttrString(program *Program, op OpID) string {
	return NewPrinter(program).attrString(program.Op(op))
}

func (p *Printer) attrString(o *Operation) string {
	var attrs []string
	add := func(name, value string) {
		attrs = append(attrs, name+" = "+value)
	}
	a := o.Attrs
	switch o.Kind {
	case OpConstant:
		add("value", constantString(a.Value))
	case OpCmpI:
		add("predicate", string(a.Predicate))
	case OpDim:
		add("dim", strconv.Itoa(a.Dim))
	case OpAffineApply, OpAffineMin:
		if a.Map != nil {
			add("map", a.Map.String())
		}
	case OpTransferRead, OpTransferWrite:
		xfer, _ := AsTransfer(p.program, o.ID)
		flags := make([]string, xfer.TransferRank())
		for i := range flags {
			flags[i] = strconv.FormatBool(xfer.IsDimInBounds(i))
		}
		add("in_bounds", "["+strings.Join(flags, ", ")+"]")
		add("permutation_map", xfer.PermutationMap().String())
	case OpSubView:
		add("static_offsets", staticList(a.StaticOffsets))
		add("static_sizes", staticList(a.StaticSizes))
		add("static_strides", staticList(a.StaticStrides))
	case OpAlloca:
		if a.Alignment != 0 {
			add("alignment", strconv.FormatInt(a.Alignment, 10))
		}
	}
	return strings.Join(attrs, ", ")
}

func constantString(v any) string {
	switch c := v.(type) {
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	case float64:
		s := strconv.FormatFloat(c, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}

func staticList(vs []int64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = dimString(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
