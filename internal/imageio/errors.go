package imageio

import "fmt"

// IOError reports a failure to read, decode, encode or write an image file.
type IOError struct {
	Op   string // "open", "decode", "encode", "write"
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("image %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}
