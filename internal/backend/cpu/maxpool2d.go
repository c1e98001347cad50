package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height - kernelSize) / stride + 1
//	out_width = (width - kernelSize) / stride + 1
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	N, C, H, W, HOut, WOut := poolGeometry(input.Shape(), kernelSize, stride)
	output := tensor.Zeros(tensor.Shape{N, C, HOut, WOut})

	inputData := input.Data()
	outputData := output.Data()

	parallel.ForPlanes(N, C, cpu.par, func(n, c int) {
		channelData := inputData[(n*C+c)*H*W:][:H*W]
		outPlane := outputData[(n*C+c)*HOut*WOut:][:HOut*WOut]

		for outH := 0; outH < HOut; outH++ {
			hStart := outH * stride
			for outW := 0; outW < WOut; outW++ {
				wStart := outW * stride
				maxVal := math.Inf(-1)
				for kh := 0; kh < kernelSize; kh++ {
					rowData := channelData[(hStart+kh)*W:][:W]
					for kw := 0; kw < kernelSize; kw++ {
						if v := rowData[wStart+kw]; v > maxVal {
							maxVal = v
						}
					}
				}
				outPlane[outH*WOut+outW] = maxVal
			}
		}
	})

	return output
}

// MaxPool2DIndices returns, for every pooled output element, the flat input
// index of the window maximum. Ties resolve to the first position in
// row-major window order.
func (cpu *CPUBackend) MaxPool2DIndices(input *tensor.RawTensor, kernelSize, stride int) []int {
	N, C, H, W, HOut, WOut := poolGeometry(input.Shape(), kernelSize, stride)
	inputData := input.Data()
	maxIndices := make([]int, N*C*HOut*WOut)

	outIdx := 0
	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			for outH := 0; outH < HOut; outH++ {
				for outW := 0; outW < WOut; outW++ {
					maxVal := math.Inf(-1)
					maxPos := -1
					for kh := 0; kh < kernelSize; kh++ {
						for kw := 0; kw < kernelSize; kw++ {
							idx := ((n*C+c)*H+outH*stride+kh)*W + outW*stride + kw
							if v := inputData[idx]; v > maxVal || maxPos < 0 {
								maxVal = v
								maxPos = idx
							}
						}
					}
					maxIndices[outIdx] = maxPos
					outIdx++
				}
			}
		}
	}
	return maxIndices
}

// MaxPool2DBackward routes each output gradient to the input position that
// held the window maximum; every other position receives zero.
//
// Example (2x2 pool, stride=2):
//
//	Input:  [[1, 2],  Output: [4]  Input Grad: [[0, 0],
//	         [3, 4]]                             [0, grad]]
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int, kernelSize, stride int) *tensor.RawTensor {
	if len(maxIndices) != grad.NumElements() {
		panic(fmt.Sprintf("MaxPool2DBackward: maxIndices length %d != grad elements %d", len(maxIndices), grad.NumElements()))
	}

	inputGrad := tensor.Zeros(input.Shape())
	inputGradData := inputGrad.Data()
	for i, g := range grad.Data() {
		inputGradData[maxIndices[i]] += g
	}
	return inputGrad
}

func poolGeometry(shape tensor.Shape, kernelSize, stride int) (N, C, H, W, HOut, WOut int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}

	N, C, H, W = shape[0], shape[1], shape[2], shape[3]
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}
	HOut = (H-kernelSize)/stride + 1
	WOut = (W-kernelSize)/stride + 1
	return N, C, H, W, HOut, WOut
}
