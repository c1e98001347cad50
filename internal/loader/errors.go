package loader

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrTensorNotFound   = errors.New("tensor not found")
	ErrUnsupportedDType = errors.New("unsupported dtype")
	ErrHeaderTooLarge   = errors.New("header exceeds maximum size")
)

// ValidationError provides detailed information about a malformed file.
type ValidationError struct {
	Type    string // Type of error (e.g., "out_of_bounds", "size_mismatch")
	Tensor  string // Tensor name involved, if any
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
