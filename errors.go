package savigp

import (
	"fmt"

	"github.com/pkg/errors"
)

//////
// Const, vars, types.
//////

var (
	// ErrInvalidArgument is the kind of every precondition violation: shape
	// mismatches between X and Y, split sizes out of range, prediction lists
	// that do not line up with their model names, unknown parameter groups,
	// malformed configuration or CSV content.
	//
	// Check for it with errors.Is:
	//
	//	if errors.Is(err, savigp.ErrInvalidArgument) {
	//	    // fix the caller
	//	}
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIOFailure is the kind of every filesystem failure (permission denied,
	// disk full, missing file on read). No retry is attempted.
	ErrIOFailure = errors.New("io failure")
)

// ioError keeps the underlying cause reachable through Unwrap while also
// matching ErrIOFailure.
type ioError struct {
	msg   string
	cause error
}

func (e *ioError) Error() string { return e.msg + ": " + e.cause.Error() }

func (e *ioError) Unwrap() error { return e.cause }

func (e *ioError) Is(target error) bool { return target == ErrIOFailure }

//////
// Helper functions.
//////

func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

func ioFailure(cause error, format string, args ...interface{}) error {
	return errors.WithStack(&ioError{msg: fmt.Sprintf(format, args...), cause: cause})
}
