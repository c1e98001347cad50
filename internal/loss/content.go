package loss

import (
	"fmt"

	"github.com/born-ml/born-style/internal/tensor"
)

// Content returns Σ (gen − content)² over every element of the two feature
// tensors.
func Content(content, gen *tensor.RawTensor) float64 {
	mustMatch("content loss", content, gen)

	c, g := content.Data(), gen.Data()
	sum := 0.0
	for i := range g {
		d := g[i] - c[i]
		sum += d * d
	}
	return sum
}

// ContentGrad returns ∂Content/∂gen = 2·(gen − content).
func ContentGrad(content, gen *tensor.RawTensor) *tensor.RawTensor {
	mustMatch("content loss", content, gen)

	grad := tensor.Zeros(gen.Shape())
	c, g, out := content.Data(), gen.Data(), grad.Data()
	for i := range out {
		out[i] = 2 * (g[i] - c[i])
	}
	return grad
}

func mustMatch(what string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", what, a.Shape(), b.Shape()))
	}
}
