package loss

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/born-style/internal/tensor"
)

// featureMatrix views a [C, h, w] (or [1, C, h, w]) feature map as the
// C × (h·w) matrix of per-channel activations. The matrix shares storage
// with the tensor and must not be modified.
func featureMatrix(f *tensor.RawTensor) (*mat.Dense, int, int) {
	shape := f.Shape()
	switch {
	case len(shape) == 3:
	case len(shape) == 4 && shape[0] == 1:
		shape = shape[1:]
	default:
		panic(fmt.Sprintf("gram: expected [C,h,w] or [1,C,h,w] feature map, got %v", f.Shape()))
	}
	channels := shape[0]
	spatial := shape[1] * shape[2]
	return mat.NewDense(channels, spatial, f.Data()), channels, spatial
}

// Gram returns the channel-by-channel inner products F·Fᵀ of a feature map.
func Gram(features *tensor.RawTensor) *mat.SymDense {
	f, channels, _ := featureMatrix(features)
	g := mat.NewSymDense(channels, nil)
	g.SymOuterK(1, f)
	return g
}

// styleNorm is 4·C²·(h·w)² for a layer with the given size.
func styleNorm(channels, spatial int) float64 {
	c := float64(channels)
	s := float64(spatial)
	return 4 * c * c * s * s
}

// gramDiff returns Gram(gen) − Gram(style) and the layer normalizer.
func gramDiff(style, gen *tensor.RawTensor) (*mat.SymDense, float64) {
	mustMatch("style loss", style, gen)

	_, channels, spatial := featureMatrix(gen)
	diff := mat.NewSymDense(channels, nil)
	diff.AddSym(Gram(gen), scaled(Gram(style), -1))
	return diff, styleNorm(channels, spatial)
}

func scaled(s *mat.SymDense, f float64) *mat.SymDense {
	out := mat.NewSymDense(s.SymmetricDim(), nil)
	out.ScaleSym(f, s)
	return out
}

// Style returns Σ (G_style − G_gen)² / (4·C²·(h·w)²) for one layer.
func Style(style, gen *tensor.RawTensor) float64 {
	diff, norm := gramDiff(style, gen)

	n := diff.SymmetricDim()
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d := diff.At(i, j)
			sum += d * d
		}
	}
	return sum / norm
}

// StyleGrad returns ∂Style/∂gen = 4·(G_gen − G_style)·F_gen / (4·C²·(h·w)²),
// shaped like gen.
func StyleGrad(style, gen *tensor.RawTensor) *tensor.RawTensor {
	diff, norm := gramDiff(style, gen)
	f, _, _ := featureMatrix(gen)

	grad := tensor.Zeros(gen.Shape())
	rows, cols := f.Dims()
	out := mat.NewDense(rows, cols, grad.Data())
	out.Mul(diff, f)
	out.Scale(4/norm, out)
	return grad
}
