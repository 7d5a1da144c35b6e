package pattern

import (
	"errors"
	"fmt"
)

// ErrMalformedInput is the sentinel for scores, signals or labels outside
// their declared ranges.
var ErrMalformedInput = errors.New("malformed input")

// InputError describes a single out-of-range field.
type InputError struct {
	Field string
	Value any
	Err   error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input: %s=%v: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed input: %s=%v", e.Field, e.Value)
}

// Is lets errors.Is(err, ErrMalformedInput) match any InputError.
func (e *InputError) Is(target error) bool { return target == ErrMalformedInput }

func (e *InputError) Unwrap() error { return e.Err }
