package ops

import "github.com/born-ml/born-style/internal/tensor"

// MaxPool2DOp represents a 2D max pooling operation for autodiff.
//
// Forward: output = MaxPool2D(input, kernelSize, stride)
//
// Backward: the gradient flows only to the position that held the maximum
// in each pooling window.
type MaxPool2DOp struct {
	input      *tensor.RawTensor
	output     *tensor.RawTensor
	kernelSize int
	stride     int
	maxIndices []int // Flat indices of max positions for gradient routing
}

// NewMaxPool2DOp creates a new MaxPool2D operation.
// The max indices must come from the same forward input.
func NewMaxPool2DOp(input, output *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *MaxPool2DOp {
	return &MaxPool2DOp{
		input:      input,
		output:     output,
		kernelSize: kernelSize,
		stride:     stride,
		maxIndices: maxIndices,
	}
}

// Inputs returns the input tensors.
func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *MaxPool2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward routes the output gradient to the stored max positions.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.MaxPool2DBackward(op.input, outputGrad, op.maxIndices, op.kernelSize, op.stride)
	return []*tensor.RawTensor{inputGrad}
}
