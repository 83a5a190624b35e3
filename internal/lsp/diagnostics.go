package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"vecsplit/internal/config"
	diag "vecsplit/internal/errors"
	"vecsplit/internal/ir"
	"vecsplit/internal/parser"
)

// analyze parses and verifies text and reports every transfer that may go
// out of bounds: as information when it will be split, as a hint when it
// will not. The program is nil unless it parsed and verified.
func analyze(path, text string, cfg *config.Config) (*ir.Program, []protocol.Diagnostic) {
	program, parseErrs := parser.ParseSource(path, text)
	if len(parseErrs) > 0 {
		return nil, ConvertCompilerErrors(diag.ParseErrors(parseErrs))
	}
	if verifyErrs := ir.Verify(program); len(verifyErrs) > 0 {
		return nil, ConvertCompilerErrors(diag.VerifyErrors(diag.ErrorVerify, verifyErrs))
	}

	opts, err := cfg.Options()
	if err != nil {
		log.Warningf("%s: %s", path, err)
		return program, nil
	}
	return program, ConvertCompilerErrors(diag.TransferNotes(program, opts, cfg.SplitFilter()))
}

// ConvertCompilerErrors transforms diagnostics into LSP diagnostics for IDE
// display. Notes become information and warnings become hints: neither is a
// problem in the file, they describe what the transform will do.
func ConvertCompilerErrors(errs []diag.CompilerError) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic

	for _, e := range errs {
		line := uint32(0)
		start := uint32(0)
		if e.Position.IsKnown() {
			line = uint32(e.Position.Line - 1)     // Convert to 0-based indexing
			start = uint32(e.Position.Column - 1) // Convert to 0-based indexing
		}
		length := e.Length
		if length <= 0 {
			length = 1
		}

		message := e.Message
		for _, note := range e.Notes {
			message += "\nnote: " + note
		}
		if e.HelpText != "" {
			message += "\nhelp: " + e.HelpText
		}

		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: start},
				End:   protocol.Position{Line: line, Character: start + uint32(length)},
			},
			Severity: ptrSeverity(severity(e.Level)),
			Code:     &protocol.IntegerOrString{Value: e.Code},
			Source:   ptrString("vecsplit"),
			Message:  message,
		})
	}

	return diagnostics
}

func severity(level diag.ErrorLevel) protocol.DiagnosticSeverity {
	switch level {
	case diag.Warning:
		return protocol.DiagnosticSeverityHint
	case diag.Note, diag.Help:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
