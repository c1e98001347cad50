package cpu

import (
	"fmt"

	"github.com/born-ml/born-style/internal/tensor"
)

// Transpose permutes the dimensions of t. With no axes the dimensions are
// reversed.
//
// Example (NHWC -> NCHW):
//
//	nchw := backend.Transpose(nhwc, 0, 3, 1, 2)
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}
	result := tensor.Zeros(newShape)

	// Walk the output in row-major order and gather from the input.
	inStrides := t.Strides()
	src := t.Data()
	dst := result.Data()
	coord := make([]int, ndim)
	for i := range dst {
		srcIdx := 0
		for d := 0; d < ndim; d++ {
			srcIdx += coord[d] * inStrides[axes[d]]
		}
		dst[i] = src[srcIdx]

		for d := ndim - 1; d >= 0; d-- {
			coord[d]++
			if coord[d] < newShape[d] {
				break
			}
			coord[d] = 0
		}
	}

	return result
}

// Cat concatenates tensors along dim. All other dimensions must match.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: dimension %d out of range for %dD tensor", dim, ndim))
	}

	totalDim := 0
	for i, t := range tensors {
		tShape := t.Shape()
		if len(tShape) != ndim {
			panic(fmt.Sprintf("cat: tensor %d has %d dimensions, expected %d", i, len(tShape), ndim))
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				totalDim += tShape[d]
			} else if tShape[d] != shape[d] {
				panic(fmt.Sprintf("cat: tensor %d dimension %d is %d, expected %d", i, d, tShape[d], shape[d]))
			}
		}
	}

	outShape := shape.Clone()
	outShape[dim] = totalDim
	result := tensor.Zeros(outShape)

	// outer: product of dims before dim; each input contributes a
	// contiguous block of shape[dim]*inner values per outer index.
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	inner := 1
	for d := dim + 1; d < ndim; d++ {
		inner *= shape[d]
	}

	dst := result.Data()
	rowLen := totalDim * inner
	offset := 0
	for _, t := range tensors {
		block := t.Shape()[dim] * inner
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*rowLen+offset:o*rowLen+offset+block], src[o*block:(o+1)*block])
		}
		offset += block
	}

	return result
}

// Narrow returns the slice [start, start+length) of x along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("narrow: dimension %d out of range for %dD tensor", dim, len(shape)))
	}
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension of size %d",
			start, start+length, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result := tensor.Zeros(outShape)

	outer, inner := splitAt(shape, dim)
	src, dst := x.Data(), result.Data()
	srcRow := shape[dim] * inner
	dstRow := length * inner
	for o := 0; o < outer; o++ {
		copy(dst[o*dstRow:(o+1)*dstRow], src[o*srcRow+start*inner:o*srcRow+(start+length)*inner])
	}
	return result
}

// NarrowBackward scatters grad back into a zero tensor of inputShape at the
// position Narrow read it from.
func (cpu *CPUBackend) NarrowBackward(grad *tensor.RawTensor, inputShape tensor.Shape, dim, start int) *tensor.RawTensor {
	result := tensor.Zeros(inputShape)
	length := grad.Shape()[dim]

	outer, inner := splitAt(inputShape, dim)
	src, dst := grad.Data(), result.Data()
	dstRow := inputShape[dim] * inner
	srcRow := length * inner
	for o := 0; o < outer; o++ {
		copy(dst[o*dstRow+start*inner:o*dstRow+(start+length)*inner], src[o*srcRow:(o+1)*srcRow])
	}
	return result
}

// splitAt returns the element counts before and after dimension dim.
func splitAt(shape tensor.Shape, dim int) (outer, inner int) {
	outer, inner = 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	return outer, inner
}
