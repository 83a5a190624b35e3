package split

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotApplicable is the cause of every refusal to split. The program
	// is left unchanged whenever it is returned.
	ErrNotApplicable = errors.New("full/partial split not applicable")

	// ErrContractViolation is the cause of calls that the caller should
	// have filtered out.
	ErrContractViolation = errors.New("full/partial split contract violation")
)

// ErrNoAllocationScope is returned when no automatic allocation scope
// encloses the transfer.
var ErrNoAllocationScope = errors.Wrap(ErrContractViolation, "no enclosing automatic allocation scope")

func notApplicable(format string, args ...any) error {
	return errors.Wrapf(ErrNotApplicable, format, args...)
}

func contractViolation(format string, args ...any) error {
	return errors.Wrapf(ErrContractViolation, format, args...)
}

// IsNotApplicable reports whether err is a refusal rather than a failure.
func IsNotApplicable(err error) bool {
	return err != nil && errors.Cause(err) == ErrNotApplicable
}

// IsContractViolation reports whether err comes from a call the caller
// should have filtered out.
func IsContractViolation(err error) bool {
	return err != nil && errors.Cause(err) == ErrContractViolation
}
