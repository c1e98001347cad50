package engine

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when an image tensor does not have the
// compiled [1, H, W, 3] shape.
var ErrShapeMismatch = errors.New("image shape mismatch")

// NumericalError reports a NaN or Inf in the loss or gradient.
type NumericalError struct {
	What  string  // "loss" or "gradient"
	Index int     // Flat gradient index; -1 for the loss
	Value float64 // The offending value
}

// Error implements the error interface.
func (e *NumericalError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("non-finite %s: %v", e.What, e.Value)
	}
	return fmt.Sprintf("non-finite %s at index %d: %v", e.What, e.Index, e.Value)
}
