package errors

// Diagnostic codes for vecsplit
// These codes are used by the CLI and the language server so that the same
// problem is reported with the same identifier everywhere.
//
// Code ranges:
// E0100-E0199: Parser errors
// E0200-E0299: Verifier errors
// E0300-E0399: Transform errors
// W0800-W0899: Transform notes and warnings

const (
	// Parser errors (E0100-E0199)

	// E0100: Input does not match the textual IR grammar
	ErrorSyntax = "E0100"

	// E0101: Well-formed text that does not lower to a program
	// (unknown ops, undefined values, bad attributes or types)
	ErrorInvalidIR = "E0101"

	// Verifier errors (E0200-E0299)

	// E0200: Structural verification failure
	ErrorVerify = "E0200"

	// E0201: Program is no longer valid after a transform
	ErrorVerifyAfterTransform = "E0201"

	// Transform errors (E0300-E0399)

	// E0300: Split called on a transfer it should not have been given
	ErrorContractViolation = "E0300"

	// E0301: Any other failure raised while transforming
	ErrorTransformFailed = "E0301"

	// Notes (W0800-W0899)

	// W0800: Transfer will be split
	NoteSplitCandidate = "W0800"

	// W0801: Transfer may access memory out of bounds but will not be split
	WarningNotSplit = "W0801"
)

// GetErrorDescription returns a human-readable description of the code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorSyntax:
		return "Input does not match the textual IR grammar"
	case ErrorInvalidIR:
		return "Operation, value, attribute or type could not be resolved"
	case ErrorVerify:
		return "Program failed structural verification"
	case ErrorVerifyAfterTransform:
		return "Program failed verification after a transform"
	case ErrorContractViolation:
		return "Transform was applied to an operation outside its contract"
	case ErrorTransformFailed:
		return "Transform failed"
	case NoteSplitCandidate:
		return "Transfer will be split into an in-bounds and an out-of-bounds path"
	case WarningNotSplit:
		return "Transfer may access memory out of bounds and is not split"
	default:
		return "Unknown error code"
	}
}

// IsWarning returns true if the code represents a note or warning rather than an error
func IsWarning(code string) bool {
	return code != "" && code[0] == 'W'
}

// GetErrorCategory returns the category of the code
func GetErrorCategory(code string) string {
	switch {
	case code >= "E0100" && code < "E0200":
		return "Parser"
	case code >= "E0200" && code < "E0300":
		return "Verifier"
	case code >= "E0300" && code < "E0400":
		return "Transform"
	case IsWarning(code):
		return "Note"
	default:
		return "Unknown"
	}
}
