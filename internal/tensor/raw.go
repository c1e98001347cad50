package tensor

import (
	"fmt"
	"math"
)

// RawTensor is the low-level tensor representation: a dense, row-major
// float64 buffer plus its shape.
//
// Tensors produced by backend operations never share storage with their
// inputs, so a tensor recorded on a gradient tape keeps the value it had
// during the forward pass.
type RawTensor struct {
	data   []float64
	shape  Shape
	stride []int
}

// NewRaw creates a new zero-filled RawTensor with the given shape.
func NewRaw(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]float64, shape.NumElements()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// Data returns the underlying storage.
// WARNING: Direct access to underlying memory. Mutating it after the tensor
// has been recorded on a tape corrupts the backward pass.
func (r *RawTensor) Data() []float64 {
	return r.data
}

// Item returns the single value of a one-element tensor.
// Panics if the tensor holds more than one element.
func (r *RawTensor) Item() float64 {
	if len(r.data) != 1 {
		panic(fmt.Sprintf("item: tensor has %d elements, want 1", len(r.data)))
	}
	return r.data[0]
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]float64, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
	}
}

// Flatten returns a copy of the tensor's values as a flat slice.
func (r *RawTensor) Flatten() []float64 {
	out := make([]float64, len(r.data))
	copy(out, r.data)
	return out
}

// FirstNonFinite returns the flat index of the first NaN or Inf value,
// or -1 if every value is finite.
func (r *RawTensor) FirstNonFinite() int {
	for i, v := range r.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

// String returns a short description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor%s", r.shape)
}
