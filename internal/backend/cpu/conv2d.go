package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
)

// convGeometry holds the dimensions shared by the forward and backward
// convolution kernels.
type convGeometry struct {
	N, CIn, H, W    int
	COut, KH, KW    int
	HOut, WOut      int
	stride, padding int
}

func newConvGeometry(input, kernel *tensor.RawTensor, stride, padding int) convGeometry {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if inputShape[1] != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", inputShape[1], kernelShape[1]))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d / padding %d", stride, padding))
	}

	g := convGeometry{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.HOut, g.WOut))
	}
	return g
}

// colRows is the height of the im2col matrix: one row per kernel weight.
func (g convGeometry) colRows() int { return g.CIn * g.KH * g.KW }

// colCols is the width of the im2col matrix: one column per output pixel.
func (g convGeometry) colCols() int { return g.HOut * g.WOut }

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape: [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// For every image in the batch:
//  1. Im2col: [C_in, H, W] -> col [C_in*K_h*K_w, H_out*W_out]
//  2. GEMM:   kernel [C_out, C_in*K_h*K_w] @ col -> [C_out, H_out*W_out]
//
// The GEMM result is already the NCHW plane block of that image.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input, kernel, stride, padding)
	output := tensor.Zeros(tensor.Shape{g.N, g.COut, g.HOut, g.WOut})

	inputData := input.Data()
	outputData := output.Data()
	k := blas64.General{Rows: g.COut, Cols: g.colRows(), Stride: g.colRows(), Data: kernel.Data()}

	inPlane := g.CIn * g.H * g.W
	outPlane := g.COut * g.HOut * g.WOut

	parallel.For(g.N, cpu.par, func(n int) {
		colBuf := make([]float64, g.colRows()*g.colCols())
		im2col(colBuf, inputData[n*inPlane:(n+1)*inPlane], g)

		col := blas64.General{Rows: g.colRows(), Cols: g.colCols(), Stride: g.colCols(), Data: colBuf}
		out := blas64.General{Rows: g.COut, Cols: g.colCols(), Stride: g.colCols(), Data: outputData[n*outPlane : (n+1)*outPlane]}
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, k, col, 0, out)
	})

	return output
}

// Conv2DInputBackward computes the gradient w.r.t. the convolution input.
//
// For every image: dcol = kernelᵀ @ grad, then col2im scatters dcol back to
// the input positions each column was gathered from. Kernel gradients are
// not computed: the feature extractor's weights are frozen.
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	g := newConvGeometry(input, kernel, stride, padding)
	if want := (tensor.Shape{g.N, g.COut, g.HOut, g.WOut}); !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("Conv2DInputBackward: grad shape %v, expected %v", grad.Shape(), want))
	}

	inputGrad := tensor.Zeros(input.Shape())
	gradData := grad.Data()
	inputGradData := inputGrad.Data()
	k := blas64.General{Rows: g.COut, Cols: g.colRows(), Stride: g.colRows(), Data: kernel.Data()}

	inPlane := g.CIn * g.H * g.W
	outPlane := g.COut * g.HOut * g.WOut

	parallel.For(g.N, cpu.par, func(n int) {
		colBuf := make([]float64, g.colRows()*g.colCols())
		dOut := blas64.General{Rows: g.COut, Cols: g.colCols(), Stride: g.colCols(), Data: gradData[n*outPlane : (n+1)*outPlane]}
		dCol := blas64.General{Rows: g.colRows(), Cols: g.colCols(), Stride: g.colCols(), Data: colBuf}
		blas64.Gemm(blas.Trans, blas.NoTrans, 1, k, dOut, 0, dCol)

		col2im(inputGradData[n*inPlane:(n+1)*inPlane], colBuf, g)
	})

	return inputGrad
}

// im2col gathers the receptive field of every output pixel of one image.
// Row r = (c*K_h + kh)*K_w + kw, column p = out_h*W_out + out_w.
// Positions in the zero padding stay zero.
func im2col(colBuf, img []float64, g convGeometry) {
	cols := g.colCols()
	for c := 0; c < g.CIn; c++ {
		plane := img[c*g.H*g.W : (c+1)*g.H*g.W]
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				row := colBuf[((c*g.KH+kh)*g.KW+kw)*cols:][:cols]
				for outH := 0; outH < g.HOut; outH++ {
					h := outH*g.stride - g.padding + kh
					if h < 0 || h >= g.H {
						continue
					}
					for outW := 0; outW < g.WOut; outW++ {
						w := outW*g.stride - g.padding + kw
						if w >= 0 && w < g.W {
							row[outH*g.WOut+outW] = plane[h*g.W+w]
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it accumulates every column entry into
// the input position it was gathered from.
func col2im(imgGrad, colBuf []float64, g convGeometry) {
	cols := g.colCols()
	for c := 0; c < g.CIn; c++ {
		plane := imgGrad[c*g.H*g.W : (c+1)*g.H*g.W]
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				row := colBuf[((c*g.KH+kh)*g.KW+kw)*cols:][:cols]
				for outH := 0; outH < g.HOut; outH++ {
					h := outH*g.stride - g.padding + kh
					if h < 0 || h >= g.H {
						continue
					}
					for outW := 0; outW < g.WOut; outW++ {
						w := outW*g.stride - g.padding + kw
						if w >= 0 && w < g.W {
							plane[h*g.W+w] += row[outH*g.WOut+outW]
						}
					}
				}
			}
		}
	}
}

// AddBias adds bias[c] to every element of channel c of an [N, C, ...]
// tensor.
func (cpu *CPUBackend) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("add_bias: expected at least 2D input, got %dD", len(shape)))
	}
	channels := shape[1]
	if bias.NumElements() != channels {
		panic(fmt.Sprintf("add_bias: bias has %d elements, input has %d channels", bias.NumElements(), channels))
	}

	_, inner := splitAt(shape, 1)
	result := tensor.Zeros(shape)
	src, dst, b := x.Data(), result.Data(), bias.Data()
	for i := range dst {
		dst[i] = src[i] + b[(i/inner)%channels]
	}
	return result
}
