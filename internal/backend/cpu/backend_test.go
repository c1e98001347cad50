package cpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
)

func mustFromSlice(t *testing.T, data []float64, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return raw
}

func randomTensor(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	raw := tensor.Zeros(shape)
	for i := range raw.Data() {
		raw.Data()[i] = rng.Float64()*2 - 1
	}
	return raw
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestCPUBackend_AddSubMulScalar(t *testing.T) {
	backend := New()
	a := mustFromSlice(t, []float64{1, 2, 3}, tensor.Shape{3})
	b := mustFromSlice(t, []float64{4, 5, 6}, tensor.Shape{3})

	assert.Equal(t, []float64{5, 7, 9}, backend.Add(a, b).Data())
	assert.Equal(t, []float64{-3, -3, -3}, backend.Sub(a, b).Data())
	assert.Equal(t, []float64{2, 4, 6}, backend.MulScalar(a, 2).Data())

	// Inputs are never modified.
	assert.Equal(t, []float64{1, 2, 3}, a.Data())
	assert.Panics(t, func() { backend.Add(a, tensor.Zeros(tensor.Shape{2})) })
}

func TestCPUBackend_Transpose(t *testing.T) {
	backend := New()

	// NHWC [1, 2, 2, 3] -> NCHW [1, 3, 2, 2]
	data := make([]float64, 12)
	for i := range data {
		data[i] = float64(i)
	}
	nhwc := mustFromSlice(t, data, tensor.Shape{1, 2, 2, 3})
	nchw := backend.Transpose(nhwc, 0, 3, 1, 2)

	assert.Equal(t, tensor.Shape{1, 3, 2, 2}, nchw.Shape())
	assert.Equal(t, []float64{0, 3, 6, 9, 1, 4, 7, 10, 2, 5, 8, 11}, nchw.Data())

	back := backend.Transpose(nchw, 0, 2, 3, 1)
	assert.Equal(t, data, back.Data())

	// Default reverses the axes.
	m := mustFromSlice(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, backend.Transpose(m).Data())
}

func TestCPUBackend_CatNarrow(t *testing.T) {
	backend := New()
	a := mustFromSlice(t, []float64{1, 2, 3, 4}, tensor.Shape{1, 2, 2})
	b := mustFromSlice(t, []float64{5, 6, 7, 8, 9, 10, 11, 12}, tensor.Shape{2, 2, 2})

	out := backend.Cat([]*tensor.RawTensor{a, b}, 0)
	assert.Equal(t, tensor.Shape{3, 2, 2}, out.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, out.Data())

	assert.Equal(t, a.Data(), backend.Narrow(out, 0, 0, 1).Data())
	assert.Equal(t, b.Data(), backend.Narrow(out, 0, 1, 2).Data())

	// Cat along an inner dimension interleaves rows.
	inner := backend.Cat([]*tensor.RawTensor{a, a}, 1)
	assert.Equal(t, tensor.Shape{1, 4, 2}, inner.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 1, 2, 3, 4}, inner.Data())

	middle := backend.Narrow(b, 1, 1, 1)
	assert.Equal(t, []float64{7, 8, 11, 12}, middle.Data())

	scattered := backend.NarrowBackward(middle, b.Shape(), 1, 1)
	assert.Equal(t, []float64{0, 0, 7, 8, 0, 0, 11, 12}, scattered.Data())
}

func TestCPUBackend_Conv2D_Basic(t *testing.T) {
	backend := New()

	input := mustFromSlice(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})
	kernel := mustFromSlice(t, []float64{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})

	output := backend.Conv2D(input, kernel, 1, 0)

	// [1*1+2*2+4*3+5*4, ...] = [37, 47, 67, 77]
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.InDeltaSlice(t, []float64{37, 47, 67, 77}, output.Data(), 1e-12)
}

func TestCPUBackend_Conv2D_Padding(t *testing.T) {
	backend := New()

	input := tensor.Full(tensor.Shape{1, 1, 3, 3}, 1)
	kernel := tensor.Full(tensor.Shape{1, 1, 3, 3}, 1)

	output := backend.Conv2D(input, kernel, 1, 1)

	// Corners see 4 pixels, edges 6, the centre 9.
	assert.Equal(t, tensor.Shape{1, 1, 3, 3}, output.Shape())
	assert.InDeltaSlice(t, []float64{4, 6, 4, 6, 9, 6, 4, 6, 4}, output.Data(), 1e-12)
}

func TestCPUBackend_Conv2D_SequentialMatchesParallel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	input := randomTensor(rng, tensor.Shape{3, 2, 5, 5})
	kernel := randomTensor(rng, tensor.Shape{4, 2, 3, 3})

	seq := NewWithConfig(parallel.Sequential()).Conv2D(input, kernel, 1, 1)
	par := NewWithConfig(parallel.WithWorkers(4)).Conv2D(input, kernel, 1, 1)
	assert.InDeltaSlice(t, seq.Data(), par.Data(), 1e-12)
}

// The input gradient must be the adjoint of the forward convolution:
// <conv(x), g> == <x, conv_backward(g)> for any x and g.
func TestCPUBackend_Conv2DInputBackward_Adjoint(t *testing.T) {
	backend := New()
	rng := rand.New(rand.NewSource(42))

	for _, tc := range []struct {
		stride, padding int
	}{{1, 0}, {1, 1}, {2, 1}} {
		input := randomTensor(rng, tensor.Shape{2, 3, 6, 6})
		kernel := randomTensor(rng, tensor.Shape{4, 3, 3, 3})

		out := backend.Conv2D(input, kernel, tc.stride, tc.padding)
		grad := randomTensor(rng, out.Shape())
		inputGrad := backend.Conv2DInputBackward(input, kernel, grad, tc.stride, tc.padding)

		require.Equal(t, input.Shape(), inputGrad.Shape())
		lhs := dot(out.Data(), grad.Data())
		rhs := dot(input.Data(), inputGrad.Data())
		assert.InDelta(t, lhs, rhs, 1e-9*math.Max(1, math.Abs(lhs)), "stride=%d padding=%d", tc.stride, tc.padding)
	}
}

func TestCPUBackend_AddBias(t *testing.T) {
	backend := New()
	x := tensor.Zeros(tensor.Shape{2, 2, 1, 2})
	bias := mustFromSlice(t, []float64{1, -1}, tensor.Shape{2})

	out := backend.AddBias(x, bias)
	assert.Equal(t, []float64{1, 1, -1, -1, 1, 1, -1, -1}, out.Data())
}

func TestCPUBackend_ReLU(t *testing.T) {
	backend := New()
	x := mustFromSlice(t, []float64{-2, -0.5, 0, 0.5, 2}, tensor.Shape{5})
	assert.Equal(t, []float64{0, 0, 0, 0.5, 2}, backend.ReLU(x).Data())

	grad := tensor.Full(tensor.Shape{5}, 3)
	assert.Equal(t, []float64{0, 0, 0, 3, 3}, backend.ReLUBackward(x, grad).Data())
}

func TestMaxPool2D_BasicForward(t *testing.T) {
	backend := New()

	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i + 1)
	}
	input := mustFromSlice(t, data, tensor.Shape{1, 1, 4, 4})

	output := backend.MaxPool2D(input, 2, 2)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float64{6, 8, 14, 16}, output.Data())

	indices := backend.MaxPool2DIndices(input, 2, 2)
	assert.Equal(t, []int{5, 7, 13, 15}, indices)
}

func TestMaxPool2D_Backward(t *testing.T) {
	backend := New()
	input := mustFromSlice(t, []float64{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	grad := mustFromSlice(t, []float64{5}, tensor.Shape{1, 1, 1, 1})

	indices := backend.MaxPool2DIndices(input, 2, 2)
	inputGrad := backend.MaxPool2DBackward(input, grad, indices, 2, 2)
	assert.Equal(t, []float64{0, 0, 0, 5}, inputGrad.Data())
}

func TestMaxPool2D_OddSizeDropsRemainder(t *testing.T) {
	backend := New()
	input := tensor.Full(tensor.Shape{1, 2, 5, 5}, 1)
	output := backend.MaxPool2D(input, 2, 2)
	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, output.Shape())
}
