package ops

import (
	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/tensor"
)

// ContentLossOp records the content term Σ(gen − content)² as a [1] tensor.
// The content features are a constant and receive no gradient.
type ContentLossOp struct {
	content *tensor.RawTensor
	gen     *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewContentLossOp creates a new ContentLossOp.
func NewContentLossOp(content, gen, output *tensor.RawTensor) *ContentLossOp {
	return &ContentLossOp{content: content, gen: gen, output: output}
}

// Backward computes ∂L/∂gen = ∂L/∂output · 2(gen − content).
func (op *ContentLossOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := backend.MulScalar(loss.ContentGrad(op.content, op.gen), outputGrad.Item())
	return []*tensor.RawTensor{nil, grad}
}

// Inputs returns the input tensors [content, gen].
func (op *ContentLossOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.content, op.gen}
}

// Output returns the output tensor.
func (op *ContentLossOp) Output() *tensor.RawTensor { return op.output }

// StyleLossOp records the normalized Gram distance of one layer as a [1]
// tensor. The style features are a constant and receive no gradient.
type StyleLossOp struct {
	style  *tensor.RawTensor
	gen    *tensor.RawTensor
	output *tensor.RawTensor
}

// NewStyleLossOp creates a new StyleLossOp.
func NewStyleLossOp(style, gen, output *tensor.RawTensor) *StyleLossOp {
	return &StyleLossOp{style: style, gen: gen, output: output}
}

// Backward computes ∂L/∂gen through the Gram matrix of gen.
func (op *StyleLossOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := backend.MulScalar(loss.StyleGrad(op.style, op.gen), outputGrad.Item())
	return []*tensor.RawTensor{nil, grad}
}

// Inputs returns the input tensors [style, gen].
func (op *StyleLossOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.style, op.gen}
}

// Output returns the output tensor.
func (op *StyleLossOp) Output() *tensor.RawTensor { return op.output }

// SmoothnessOp records the total variation of an NHWC image as a [1] tensor.
type SmoothnessOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSmoothnessOp creates a new SmoothnessOp.
func NewSmoothnessOp(input, output *tensor.RawTensor) *SmoothnessOp {
	return &SmoothnessOp{input: input, output: output}
}

// Backward computes ∂L/∂x for the total variation term.
func (op *SmoothnessOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(loss.SmoothnessGrad(op.input), outputGrad.Item())}
}

// Inputs returns the input tensors.
func (op *SmoothnessOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns the output tensor.
func (op *SmoothnessOp) Output() *tensor.RawTensor { return op.output }
