// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking capabilities through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its own backward pass
//   - Reverse-mode AD: Computes gradients of a scalar loss using the chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := backend.ReLU(backend.Conv2D(x, kernel, 1, 1))
//	l := backend.SmoothnessLoss(y)
//	grads := backend.Backward(l)
//	dx := grads[x]
package autodiff

import (
	"fmt"

	"github.com/born-ml/born-style/internal/autodiff/ops"
	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

var _ tensor.Backend = (*AutodiffBackend[tensor.Backend])(nil)

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between evaluations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sub(a, c)
	b.tape.Record(ops.NewSubOp(a, c, result))
	return result
}

// MulScalar multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := b.inner.MulScalar(x, scalar)
	b.tape.Record(ops.NewMulScalarOp(x, result, scalar))
	return result
}

// Reshape changes the tensor shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result := b.inner.Reshape(t, newShape)
	b.tape.Record(ops.NewReshapeOp(t, result))
	return result
}

// Transpose permutes axes and records the operation.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	result := b.inner.Transpose(t, axes...)
	b.tape.Record(ops.NewTransposeOp(t, result, append([]int(nil), axes...)))
	return result
}

// Cat concatenates along dim and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	result := b.inner.Cat(tensors, dim)
	b.tape.Record(ops.NewCatOp(append([]*tensor.RawTensor(nil), tensors...), dim, result))
	return result
}

// Narrow slices along dim and records the operation.
func (b *AutodiffBackend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	result := b.inner.Narrow(x, dim, start, length)
	b.tape.Record(ops.NewNarrowOp(x, result, dim, start))
	return result
}

// NarrowBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) NarrowBackward(grad *tensor.RawTensor, inputShape tensor.Shape, dim, start int) *tensor.RawTensor {
	return b.inner.NarrowBackward(grad, inputShape, dim, start)
}

// Conv2D performs a 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	return result
}

// Conv2DInputBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	return b.inner.Conv2DInputBackward(input, kernel, grad, stride, padding)
}

// AddBias adds a per-channel bias and records the operation.
func (b *AutodiffBackend[B]) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.AddBias(x, bias)
	b.tape.Record(ops.NewAddBiasOp(x, bias, result))
	return result
}

// MaxPool2D performs max pooling and records the operation together with
// the max positions needed for the backward pass.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	result := b.inner.MaxPool2D(input, kernelSize, stride)
	if b.tape.IsRecording() {
		indices := b.inner.MaxPool2DIndices(input, kernelSize, stride)
		b.tape.Record(ops.NewMaxPool2DOp(input, result, indices, kernelSize, stride))
	}
	return result
}

// MaxPool2DIndices delegates to the inner backend.
func (b *AutodiffBackend[B]) MaxPool2DIndices(input *tensor.RawTensor, kernelSize, stride int) []int {
	return b.inner.MaxPool2DIndices(input, kernelSize, stride)
}

// MaxPool2DBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	return b.inner.MaxPool2DBackward(input, grad, maxIndices, kernelSize, stride)
}

// ReLU applies max(0, x) and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	b.tape.Record(ops.NewReLUOp(x, result))
	return result
}

// ReLUBackward delegates to the inner backend without recording.
func (b *AutodiffBackend[B]) ReLUBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.ReLUBackward(input, grad)
}

// ContentLoss computes the content term as a [1] tensor and records it.
func (b *AutodiffBackend[B]) ContentLoss(content, gen *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.Scalar(loss.Content(content, gen))
	b.tape.Record(ops.NewContentLossOp(content, gen, result))
	return result
}

// StyleLoss computes one layer's style term as a [1] tensor and records it.
func (b *AutodiffBackend[B]) StyleLoss(style, gen *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.Scalar(loss.Style(style, gen))
	b.tape.Record(ops.NewStyleLossOp(style, gen, result))
	return result
}

// SmoothnessLoss computes the total variation of an NHWC image as a [1]
// tensor and records it.
func (b *AutodiffBackend[B]) SmoothnessLoss(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.Scalar(loss.Smoothness(x))
	b.tape.Record(ops.NewSmoothnessOp(x, result))
	return result
}

// Backward computes the gradients of a scalar loss with respect to every
// recorded tensor that contributed to it.
//
// Panics if nothing was recorded or if the loss is not a single value.
func (b *AutodiffBackend[B]) Backward(lossValue *tensor.RawTensor) map[*tensor.RawTensor]*tensor.RawTensor {
	if b.tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if lossValue.NumElements() != 1 {
		panic(fmt.Sprintf("backward: loss must be a single value, got shape %v", lossValue.Shape()))
	}
	return b.tape.Backward(lossValue, tensor.Full(lossValue.Shape(), 1), b.inner)
}
