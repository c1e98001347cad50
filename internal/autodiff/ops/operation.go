// Package ops defines operation interfaces and implementations for automatic differentiation.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by the backend (or the loss package for loss terms)
//   - Backward pass: computes gradients for inputs given output gradient
//
// Supported operations:
//   - AddOp, SubOp, MulScalarOp: element-wise arithmetic
//   - ReshapeOp, TransposeOp, CatOp, NarrowOp: layout changes
//   - Conv2DOp, AddBiasOp, MaxPool2DOp, ReLUOp: convolutional network layers
//   - ContentLossOp, StyleLossOp, SmoothnessOp: scalar loss terms
//
// Network parameters are frozen: Conv2DOp and AddBiasOp only propagate
// gradients to their data input.
package ops

import "github.com/born-ml/born-style/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	// A nil entry marks an input that receives no gradient.
	//
	// Example for AddOp:
	//   inputs: [a, b]
	//   outputGrad: dL/d(a+b)
	//   returns: [dL/d(a+b), dL/d(a+b)] (gradient flows equally to both inputs)
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
