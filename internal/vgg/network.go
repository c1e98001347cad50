package vgg

import (
	"fmt"

	"github.com/born-ml/born-style/internal/tensor"
)

// Network is an Architecture with fixed parameters.
type Network struct {
	arch    Architecture
	kernels []*tensor.RawTensor // [C_out, C_in, 3, 3] per stage; nil for pools
	biases  []*tensor.RawTensor // [C_out] per stage; nil for pools
}

// New binds weights to arch. Each conv stage needs "<name>.weight", either
// OIHW [C_out, C_in, 3, 3] or Keras HWIO [3, 3, C_in, C_out], and
// "<name>.bias" [C_out]. OIHW wins when both layouts match. Extra entries
// are ignored.
func New(arch Architecture, weights map[string]*tensor.RawTensor) (*Network, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		arch:    arch,
		kernels: make([]*tensor.RawTensor, len(arch.Stages)),
		biases:  make([]*tensor.RawTensor, len(arch.Stages)),
	}
	in := arch.InChannels
	for i, s := range arch.Stages {
		if s.Kind != Conv {
			continue
		}
		kernel, err := convKernel(weights, s.Name, in, s.Filters)
		if err != nil {
			return nil, err
		}
		bias, ok := weights[BiasName(s.Name)]
		if !ok {
			return nil, fmt.Errorf("vgg: missing %s", BiasName(s.Name))
		}
		if !bias.Shape().Equal(tensor.Shape{s.Filters}) {
			return nil, fmt.Errorf("vgg: %s has shape %v, want [%d]", BiasName(s.Name), bias.Shape(), s.Filters)
		}
		n.kernels[i] = kernel
		n.biases[i] = bias.Clone()
		in = s.Filters
	}
	return n, nil
}

func convKernel(weights map[string]*tensor.RawTensor, stage string, in, out int) (*tensor.RawTensor, error) {
	name := WeightName(stage)
	w, ok := weights[name]
	if !ok {
		return nil, fmt.Errorf("vgg: missing %s", name)
	}

	oihw := tensor.Shape{out, in, KernelSize, KernelSize}
	hwio := tensor.Shape{KernelSize, KernelSize, in, out}
	switch {
	case w.Shape().Equal(oihw):
		return w.Clone(), nil
	case w.Shape().Equal(hwio):
		return transposeHWIO(w, in, out), nil
	default:
		return nil, fmt.Errorf("vgg: %s has shape %v, want %v or %v", name, w.Shape(), oihw, hwio)
	}
}

// transposeHWIO converts a [3, 3, in, out] kernel to [out, in, 3, 3].
func transposeHWIO(w *tensor.RawTensor, in, out int) *tensor.RawTensor {
	k := tensor.Zeros(tensor.Shape{out, in, KernelSize, KernelSize})
	src, dst := w.Data(), k.Data()
	for kh := 0; kh < KernelSize; kh++ {
		for kw := 0; kw < KernelSize; kw++ {
			for ci := 0; ci < in; ci++ {
				for co := 0; co < out; co++ {
					dst[((co*in+ci)*KernelSize+kh)*KernelSize+kw] = src[((kh*KernelSize+kw)*in+ci)*out+co]
				}
			}
		}
	}
	return k
}

// Architecture returns the network's architecture.
func (n *Network) Architecture() Architecture {
	return n.arch
}

// Layer resolves a layer name of this network.
func (n *Network) Layer(name string) (LayerID, error) {
	return n.arch.Layer(name)
}

// Weights returns the network parameters keyed like the input of New, in
// OIHW layout. The tensors are copies.
func (n *Network) Weights() map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for i, s := range n.arch.Stages {
		if s.Kind != Conv {
			continue
		}
		out[WeightName(s.Name)] = n.kernels[i].Clone()
		out[BiasName(s.Name)] = n.biases[i].Clone()
	}
	return out
}

// Forward runs an NHWC batch [N, H, W, C_in] through the network up to the
// deepest requested layer and returns each requested layer's NCHW
// activations [N, C, h, w]. The batch dimension is preserved.
//
// Every step goes through backend, so an autodiff backend records the
// whole pass, including the initial NHWC to NCHW transpose.
func (n *Network) Forward(backend tensor.Backend, input *tensor.RawTensor, want []LayerID) (map[LayerID]*tensor.RawTensor, error) {
	shape := input.Shape()
	if len(shape) != 4 || shape[3] != n.arch.InChannels {
		return nil, fmt.Errorf("vgg: expected [N, H, W, %d] input, got %v", n.arch.InChannels, shape)
	}

	deepest := 0
	wanted := make(map[LayerID]bool, len(want))
	for _, id := range want {
		if _, _, _, err := n.arch.OutputShape(id, shape[1], shape[2]); err != nil {
			return nil, err
		}
		wanted[id] = true
		deepest = max(deepest, id.index)
	}

	out := make(map[LayerID]*tensor.RawTensor, len(want))
	x := backend.Transpose(input, 0, 3, 1, 2)
	for i, s := range n.arch.Stages[:deepest] {
		switch s.Kind {
		case Conv:
			x = backend.Conv2D(x, n.kernels[i], 1, ConvPadding)
			x = backend.AddBias(x, n.biases[i])
			x = backend.ReLU(x)
		case Pool:
			x = backend.MaxPool2D(x, PoolSize, PoolSize)
		}
		if id := (LayerID{index: i + 1, name: s.Name}); wanted[id] {
			out[id] = x
		}
	}
	return out, nil
}
