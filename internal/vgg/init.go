package vgg

import (
	"math"
	"math/rand"

	"github.com/born-ml/born-style/internal/tensor"
)

// WeightName returns the kernel key of a conv stage.
func WeightName(stage string) string { return stage + ".weight" }

// BiasName returns the bias key of a conv stage.
func BiasName(stage string) string { return stage + ".bias" }

// RandomWeights returns He-uniform kernels and zero biases for every conv
// stage of arch, drawn from a generator seeded with seed. The same seed
// always yields the same weights.
//
// Kernels are drawn from U(-sqrt(6/fan_in), sqrt(6/fan_in)), which keeps
// activation variance roughly constant through ReLU layers.
func RandomWeights(arch Architecture, seed int64) map[string]*tensor.RawTensor {
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	rng := rand.New(rand.NewSource(seed))
	weights := make(map[string]*tensor.RawTensor)

	in := arch.InChannels
	for _, s := range arch.Stages {
		if s.Kind != Conv {
			continue
		}
		fanIn := in * KernelSize * KernelSize
		bound := math.Sqrt(6.0 / float64(fanIn))

		kernel := tensor.Zeros(tensor.Shape{s.Filters, in, KernelSize, KernelSize})
		data := kernel.Data()
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * bound
		}
		weights[WeightName(s.Name)] = kernel
		weights[BiasName(s.Name)] = tensor.Zeros(tensor.Shape{s.Filters})
		in = s.Filters
	}
	return weights
}
