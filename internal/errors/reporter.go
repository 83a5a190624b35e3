package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a diagnostic
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// Position is a 1-based location in an IR source file. A zero Line means
// the location is unknown, which is the case for ops created by a transform.
type Position struct {
	Line   int
	Column int
}

func (p Position) IsKnown() bool { return p.Line > 0 }

// CompilerError is a diagnostic with a code, a location and optional notes
type CompilerError struct {
	Level       ErrorLevel
	Code        string   // Code like E0100
	Message     string   // Primary message
	Position    Position // Location in source
	Length      int      // Length of the problematic region
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

func (e CompilerError) Error() string {
	if e.Position.IsKnown() {
		return fmt.Sprintf("%d:%d: %s[%s]: %s", e.Position.Line, e.Position.Column, e.Level, e.Code, e.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Level, e.Code, e.Message)
}

// Suggestion represents a suggested fix
type Suggestion struct {
	Message     string
	Replacement string // optional
}

// ErrorReporter formats diagnostics against the source they refer to
type ErrorReporter struct {
	filename string
	lines    []string
}

// NewErrorReporter creates a new error reporter for a file
func NewErrorReporter(filename, source string) *ErrorReporter {
	return &ErrorReporter{
		filename: filename,
		lines:    strings.Split(source, "\n"),
	}
}

// FormatAll formats every diagnostic followed by a one-line summary. The
// summary is omitted when there is nothing to report.
func (er *ErrorReporter) FormatAll(errs []CompilerError) string {
	var result strings.Builder
	var errorCount, warningCount int
	for _, err := range errs {
		result.WriteString(er.FormatError(err))
		switch err.Level {
		case Error:
			errorCount++
		case Warning:
			warningCount++
		}
	}
	if errorCount > 0 || warningCount > 0 {
		result.WriteString(fmt.Sprintf("%s: %d error(s), %d warning(s)\n", er.filename, errorCount, warningCount))
	}
	return result.String()
}

// FormatError formats a diagnostic with the offending line and a marker
func (er *ErrorReporter) FormatError(err CompilerError) string {
	var result strings.Builder

	levelColor := levelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	// Header: error[E0100]: message
	if err.Code != "" {
		result.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(err.Level)), err.Code, err.Message))
	} else {
		result.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(err.Level)), err.Message))
	}

	lineNumberWidth := lineNumberWidth(err.Position.Line)
	indent := strings.Repeat(" ", lineNumberWidth)

	if !err.Position.IsKnown() {
		result.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), er.filename))
	} else {
		result.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n",
			indent, dim("-->"), er.filename, err.Position.Line, err.Position.Column))
		result.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

		if err.Position.Line <= len(er.lines) {
			result.WriteString(fmt.Sprintf("%s %s %s\n",
				bold(fmt.Sprintf("%*d", lineNumberWidth, err.Position.Line)),
				dim("│"),
				er.lines[err.Position.Line-1]))
			result.WriteString(fmt.Sprintf("%s %s %s\n",
				indent, dim("│"), createMarker(err.Position.Column, err.Length, err.Level)))
		}
	}

	for i, suggestion := range err.Suggestions {
		cyan := color.New(color.FgCyan).SprintFunc()
		if i == 0 {
			result.WriteString(fmt.Sprintf("%s %s %s: %s\n", indent, cyan("help"), cyan("try"), suggestion.Message))
		} else {
			result.WriteString(fmt.Sprintf("%s %s %s\n", indent, cyan("    "), suggestion.Message))
		}
		if suggestion.Replacement != "" {
			result.WriteString(fmt.Sprintf("%s %s %s\n", indent, cyan("│"), cyan(suggestion.Replacement)))
		}
	}

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note))
	}

	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		result.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), helpColor("help:"), err.HelpText))
	}

	result.WriteString("\n")
	return result.String()
}

func levelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

// createMarker creates the underline marker under the reported column
func createMarker(column, length int, level ErrorLevel) string {
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", max(0, column-1))
	return spaces + levelColor(level)(strings.Repeat("^", length))
}

func lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3 // minimum width for visual alignment
	}
	return width
}
