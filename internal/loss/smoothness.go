package loss

import (
	"fmt"
	"math"

	"github.com/born-ml/born-style/internal/tensor"
)

// smoothnessExponent is applied to the summed squared neighbour differences.
const smoothnessExponent = 1.25

// Smoothness returns the anisotropic total variation of an NHWC image:
//
//	Σ_{n, i<H−1, j<W−1, c} ((x[i,j]−x[i+1,j])² + (x[i,j]−x[i,j+1])²)^1.25
//
// The last row and column only act as neighbours; there is no wraparound.
func Smoothness(x *tensor.RawTensor) float64 {
	sum := 0.0
	forEachPixelPair(x, func(_, _, _ int, dr, dc float64) {
		sum += math.Pow(dr*dr+dc*dc, smoothnessExponent)
	})
	return sum
}

// SmoothnessGrad returns ∂Smoothness/∂x, shaped like x.
func SmoothnessGrad(x *tensor.RawTensor) *tensor.RawTensor {
	grad := tensor.Zeros(x.Shape())
	g := grad.Data()
	forEachPixelPair(x, func(idx, down, right int, dr, dc float64) {
		s := dr*dr + dc*dc
		// d/ds s^1.25 = 1.25·s^0.25, and ds/d(dr) = 2·dr.
		coef := 2 * smoothnessExponent * math.Pow(s, smoothnessExponent-1)
		g[idx] += coef * (dr + dc)
		g[down] -= coef * dr
		g[right] -= coef * dc
	})
	return grad
}

// forEachPixelPair calls f for every pixel that has both a lower and a right
// neighbour, passing the flat indices of the pixel and its neighbours and
// the two differences.
func forEachPixelPair(x *tensor.RawTensor, f func(idx, down, right int, dr, dc float64)) {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("smoothness: expected NHWC image, got %v", shape))
	}
	N, H, W, C := shape[0], shape[1], shape[2], shape[3]
	data := x.Data()

	for n := 0; n < N; n++ {
		for i := 0; i < H-1; i++ {
			for j := 0; j < W-1; j++ {
				for c := 0; c < C; c++ {
					idx := ((n*H+i)*W+j)*C + c
					down := idx + W*C
					right := idx + C
					f(idx, down, right, data[idx]-data[down], data[idx]-data[right])
				}
			}
		}
	}
}
