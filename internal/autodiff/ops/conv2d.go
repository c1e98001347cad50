package ops

import "github.com/born-ml/born-style/internal/tensor"

// Conv2DOp records a 2D convolution with a frozen kernel.
//
// Forward: output = Conv2D(input, kernel, stride, padding)
//
// Backward:
//   - d_input: transposed convolution of d_output with the kernel
//   - d_kernel: not computed; the kernel is a constant
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		input:   input,
		kernel:  kernel,
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Inputs returns the input tensors [input, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes ∂L/∂input [N, C_in, H, W] from ∂L/∂output
// [N, C_out, H_out, W_out].
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad, nil}
}

// AddBiasOp records a per-channel bias addition with a frozen bias.
type AddBiasOp struct {
	input  *tensor.RawTensor
	bias   *tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddBiasOp creates a new AddBiasOp.
func NewAddBiasOp(input, bias, output *tensor.RawTensor) *AddBiasOp {
	return &AddBiasOp{input: input, bias: bias, output: output}
}

// Backward passes the gradient through to the input unchanged.
func (op *AddBiasOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, nil}
}

// Inputs returns the input tensors [input, bias].
func (op *AddBiasOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input, op.bias} }

// Output returns the output tensor.
func (op *AddBiasOp) Output() *tensor.RawTensor { return op.output }
