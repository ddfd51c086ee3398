package types

import (
	"errors"
	"fmt"
)

// ErrUpstream marks a failed call to an embedding or language model provider.
var ErrUpstream = errors.New("upstream call failed")

// ValidationError reports a malformed call into a vector index.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DecodeError reports a file whose bytes are not valid UTF-8 text.
type DecodeError struct {
	Path   string
	Offset int // byte offset of the first invalid sequence
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode %s as UTF-8 text (invalid byte at offset %d)", e.Path, e.Offset)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDecode reports whether err is or wraps a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
