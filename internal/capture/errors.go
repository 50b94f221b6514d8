package capture

import (
	"context"
	"errors"
	"fmt"
)

// CodeError carries a backend failure code.
type CodeError struct {
	Code int
	Err  error
}

func (e *CodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture failed with code %d", e.Code)
	}
	return fmt.Sprintf("capture failed with code %d: %v", e.Code, e.Err)
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the failure code from err. Deadline errors map to CodeTimedOut and
// anything without a code is an internal error.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimedOut
	}
	return ErrorInternal
}
