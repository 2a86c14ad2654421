package domain

import (
	"errors"
	"fmt"
)

// InputError reports a malformed candidate, surface, or out-of-range
// coordinate. Callers should fail fast; nothing downstream runs.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Reason)
}

// NewInputError builds an InputError for the named field.
func NewInputError(field, format string, args ...interface{}) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// CapacityError is a typed admission rejection carrying the numeric overage.
// Rejections never mutate bin state; callers may retry with a smaller cost.
type CapacityError struct {
	Requested float64 // candidate cost
	Committed float64 // capital already in the bin
	Ceiling   float64 // ceiling selected for this admission
	Gate      string  // which admission gate produced the rejection
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded (%s gate): committed %.2f + requested %.2f > ceiling %.2f (overage %.2f)",
		e.Gate, e.Committed, e.Requested, e.Ceiling, e.Overage())
}

// Overage returns the amount by which the admission would breach the ceiling.
func (e *CapacityError) Overage() float64 {
	return e.Committed + e.Requested - e.Ceiling
}

// IsCapacityExceeded reports whether err is (or wraps) a CapacityError.
func IsCapacityExceeded(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// StaleStateError flags a caller operating on cross-session state without an
// explicit reset or snapshot restore.
type StaleStateError struct {
	SessionDay string
	Today      string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale session state: session opened %s, current day %s; reset or restore required",
		e.SessionDay, e.Today)
}

// IsStaleState reports whether err is (or wraps) a StaleStateError.
func IsStaleState(err error) bool {
	var se *StaleStateError
	return errors.As(err, &se)
}
