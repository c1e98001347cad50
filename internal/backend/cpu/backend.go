// Package cpu implements the float64 CPU backend used by the style transfer
// engine. Convolutions run as im2col + GEMM through gonum's BLAS.
package cpu

import (
	"fmt"

	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
type CPUBackend struct {
	par parallel.Config
}

// New creates a new CPU backend that uses every available core inside
// individual kernels.
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with explicit kernel parallelism.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition. Shapes must match.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("add", a, b)
	result := tensor.Zeros(a.Shape())
	out, x, y := result.Data(), a.Data(), b.Data()
	for i := range out {
		out[i] = x[i] + y[i]
	}
	return result
}

// Sub performs element-wise subtraction. Shapes must match.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("sub", a, b)
	result := tensor.Zeros(a.Shape())
	out, x, y := result.Data(), a.Data(), b.Data()
	for i := range out {
		out[i] = x[i] - y[i]
	}
	return result
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := tensor.Zeros(x.Shape())
	out, in := result.Data(), x.Data()
	for i := range out {
		out[i] = in[i] * scalar
	}
	return result
}

// Reshape returns a copy of t with a new shape.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: invalid shape: %v", err))
	}
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: incompatible shapes: %v -> %v (different number of elements)",
			t.Shape(), newShape))
	}

	result, err := tensor.FromSlice(t.Data(), newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

func mustSameShape(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.Shape(), b.Shape()))
	}
}
