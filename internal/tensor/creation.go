package tensor

import "fmt"

// Zeros creates a tensor filled with zeros.
// Panics on an invalid shape.
func Zeros(shape Shape) *RawTensor {
	raw, err := NewRaw(shape)
	if err != nil {
		panic(err)
	}
	return raw
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64) *RawTensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Scalar creates a one-element tensor of shape [1].
func Scalar(value float64) *RawTensor {
	return Full(Shape{1}, value)
}

// FromSlice creates a tensor with the given shape from a copy of data.
//
// Example:
//
//	t, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})
func FromSlice(data []float64, shape Shape) (*RawTensor, error) {
	raw, err := NewRaw(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != raw.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %s (%d elements)",
			len(data), shape, raw.NumElements())
	}
	copy(raw.data, data)
	return raw, nil
}
