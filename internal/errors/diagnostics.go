package errors

import (
	"fmt"

	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
	"vecsplit/internal/split"
)

// DiagnosticBuilder provides a fluent interface for creating diagnostics
type DiagnosticBuilder struct {
	err CompilerError
}

// NewDiagnostic creates a builder for an error, or for a warning when code
// is a W code
func NewDiagnostic(code, message string, pos Position) *DiagnosticBuilder {
	level := Error
	if IsWarning(code) {
		level = Warning
	}
	return &DiagnosticBuilder{
		err: CompilerError{
			Level:    level,
			Code:     code,
			Message:  message,
			Position: pos,
			Length:   1,
		},
	}
}

// WithLevel overrides the level derived from the code
func (b *DiagnosticBuilder) WithLevel(level ErrorLevel) *DiagnosticBuilder {
	b.err.Level = level
	return b
}

// WithLength sets the length of the marked span
func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.err.Length = length
	return b
}

func (b *DiagnosticBuilder) WithSuggestion(message string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message})
	return b
}

func (b *DiagnosticBuilder) WithReplacement(message, replacement string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message, Replacement: replacement})
	return b
}

func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.err.HelpText = help
	return b
}

// Build returns the completed diagnostic
func (b *DiagnosticBuilder) Build() CompilerError {
	return b.err
}

// FromLocation converts an op location to a Position
func FromLocation(loc ir.Location) Position {
	return Position{Line: loc.Line, Column: loc.Column}
}

// ParseErrors converts parser errors to diagnostics
func ParseErrors(errs []parser.ParseError) []CompilerError {
	out := make([]CompilerError, 0, len(errs))
	for _, e := range errs {
		pos := Position{Line: e.Position.Line, Column: e.Position.Column}
		if e.Syntax {
			out = append(out, NewDiagnostic(ErrorSyntax, e.Message, pos).
				WithHelp("operations are written as `%r = dialect.op(%a, ...) <{attrs}> : type`").
				Build())
			continue
		}
		out = append(out, NewDiagnostic(ErrorInvalidIR, e.Message, pos).Build())
	}
	return out
}

// VerifyErrors converts verifier errors to diagnostics. code is
// ErrorVerify for input files and ErrorVerifyAfterTransform for output.
func VerifyErrors(code string, errs []*ir.VerifyError) []CompilerError {
	out := make([]CompilerError, 0, len(errs))
	for _, e := range errs {
		out = append(out, NewDiagnostic(code, fmt.Sprintf("%s: %s", e.Kind, e.Message), FromLocation(e.Loc)).
			WithLength(len(e.Kind)).
			Build())
	}
	return out
}

// TransformError converts an error returned while transforming a program
func TransformError(loc ir.Location, err error) CompilerError {
	if split.IsContractViolation(err) {
		return NewDiagnostic(ErrorContractViolation, err.Error(), FromLocation(loc)).
			WithNote("the split requires matching source and vector ranks and an enclosing func.func or memref.alloca_scope").
			Build()
	}
	return NewDiagnostic(ErrorTransformFailed, err.Error(), FromLocation(loc)).Build()
}

// SplitCandidate notes a transfer that will be split
func SplitCandidate(p *ir.Program, op ir.OpID, strategy split.Strategy) CompilerError {
	o := p.Op(op)
	return NewDiagnostic(NoteSplitCandidate, fmt.Sprintf("%s will be split with strategy %s", o.Kind, strategy), FromLocation(o.Loc)).
		WithLevel(Note).
		WithLength(len(o.Kind)).
		Build()
}

// NotSplit warns about a transfer that may access memory out of bounds but
// that the split leaves alone. reason is the error from split.Eligibility.
func NotSplit(p *ir.Program, op ir.OpID, reason error) CompilerError {
	o := p.Op(op)
	b := NewDiagnostic(WarningNotSplit, fmt.Sprintf("%s is not split", o.Kind), FromLocation(o.Loc)).
		WithLength(len(o.Kind)).
		WithNote(reason.Error())
	if xfer, ok := ir.AsTransfer(p, op); ok && xfer.Mask() != ir.NoValue {
		b.WithSuggestion("drop the mask if the access pattern allows it")
	}
	return b.Build()
}

// TransferNotes reports every transfer of p that may go out of bounds,
// with SplitCandidate when the split would rewrite it and NotSplit
// otherwise. Nothing is reported as a candidate for the None strategy.
func TransferNotes(p *ir.Program, opts split.Options, filter split.Filter) []CompilerError {
	var notes []CompilerError
	for _, op := range p.Collect() {
		xfer, ok := ir.AsTransfer(p, op)
		if !ok || !xfer.HasOutOfBoundsDim() {
			continue
		}
		if reason := split.Eligibility(p, op, filter); reason != nil {
			notes = append(notes, NotSplit(p, op, reason))
			continue
		}
		if opts.Strategy != split.None {
			notes = append(notes, SplitCandidate(p, op, opts.Strategy))
		}
	}
	return notes
}
