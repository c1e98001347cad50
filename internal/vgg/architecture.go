// Package vgg implements the frozen convolutional feature extractor.
//
// A Network is a sequence of named stages: 3x3 convolutions (stride 1,
// padding 1) each followed by ReLU, and 2x2 max pools with stride 2.
// Forward runs a stacked NHWC batch through the stages on any
// tensor.Backend and returns the NCHW activations of the requested layers.
// Parameters are constants: an autodiff backend records the forward pass
// but never produces gradients for them.
package vgg

import (
	"errors"
	"fmt"
)

// ErrUnknownLayer is returned when a layer name is not part of the architecture.
var ErrUnknownLayer = errors.New("unknown layer")

// StageKind identifies the type of a stage.
type StageKind int

// Stage kinds.
const (
	Conv StageKind = iota // 3x3 convolution, stride 1, padding 1, then ReLU
	Pool                  // 2x2 max pool, stride 2
)

// String returns the stage kind name.
func (k StageKind) String() string {
	switch k {
	case Conv:
		return "conv"
	case Pool:
		return "pool"
	default:
		return fmt.Sprintf("StageKind(%d)", int(k))
	}
}

// Convolution geometry shared by every conv stage.
const (
	KernelSize  = 3
	ConvPadding = 1
	PoolSize    = 2
)

// Stage is one named step of the network.
type Stage struct {
	Name    string
	Kind    StageKind
	Filters int // Output channels; Conv only
}

// Architecture is an ordered list of stages applied to InChannels-channel images.
type Architecture struct {
	Name       string
	InChannels int
	Stages     []Stage
}

// VGG19 returns the convolutional base of VGG19 with Keras layer names
// (block1_conv1 … block5_pool).
func VGG19() Architecture {
	arch := Architecture{Name: "vgg19", InChannels: 3}
	blocks := []struct{ convs, filters int }{
		{2, 64}, {2, 128}, {4, 256}, {4, 512}, {4, 512},
	}
	for b, blk := range blocks {
		for c := 1; c <= blk.convs; c++ {
			arch.Stages = append(arch.Stages, Stage{
				Name:    fmt.Sprintf("block%d_conv%d", b+1, c),
				Kind:    Conv,
				Filters: blk.filters,
			})
		}
		arch.Stages = append(arch.Stages, Stage{Name: fmt.Sprintf("block%d_pool", b+1), Kind: Pool})
	}
	return arch
}

// Validate checks that stage names are unique and conv stages have filters.
func (a Architecture) Validate() error {
	if a.InChannels <= 0 {
		return fmt.Errorf("architecture %q: input channels must be > 0", a.Name)
	}
	if len(a.Stages) == 0 {
		return fmt.Errorf("architecture %q: no stages", a.Name)
	}
	seen := make(map[string]bool, len(a.Stages))
	for _, s := range a.Stages {
		if s.Name == "" {
			return fmt.Errorf("architecture %q: unnamed stage", a.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("architecture %q: duplicate stage %q", a.Name, s.Name)
		}
		seen[s.Name] = true
		switch s.Kind {
		case Conv:
			if s.Filters <= 0 {
				return fmt.Errorf("architecture %q: stage %q needs filters > 0", a.Name, s.Name)
			}
		case Pool:
		default:
			return fmt.Errorf("architecture %q: stage %q has unknown kind %v", a.Name, s.Name, s.Kind)
		}
	}
	return nil
}

// LayerID identifies a stage of a specific architecture. The zero value is
// not a valid layer; IDs are obtained from Architecture.Layer.
type LayerID struct {
	index int
	name  string
}

// String returns the layer name.
func (id LayerID) String() string {
	return id.name
}

// Layer resolves a layer name.
func (a Architecture) Layer(name string) (LayerID, error) {
	for i, s := range a.Stages {
		if s.Name == name {
			return LayerID{index: i + 1, name: name}, nil
		}
	}
	return LayerID{}, fmt.Errorf("%w: %q in %s", ErrUnknownLayer, name, a.Name)
}

// Layers resolves several layer names, failing on the first unknown one.
func (a Architecture) Layers(names []string) ([]LayerID, error) {
	ids := make([]LayerID, len(names))
	for i, name := range names {
		id, err := a.Layer(name)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (id LayerID) stage() int {
	return id.index - 1
}

// OutputShape returns the [C, h, w] activation shape of a layer for a
// height × width input, or an error if a pool would shrink a side to zero.
func (a Architecture) OutputShape(id LayerID, height, width int) (channels, h, w int, err error) {
	if id.index <= 0 || id.index > len(a.Stages) || a.Stages[id.stage()].Name != id.name {
		return 0, 0, 0, fmt.Errorf("%w: %q in %s", ErrUnknownLayer, id.name, a.Name)
	}
	channels, h, w = a.InChannels, height, width
	for _, s := range a.Stages[:id.index] {
		switch s.Kind {
		case Conv:
			channels = s.Filters
		case Pool:
			h, w = h/PoolSize, w/PoolSize
			if h == 0 || w == 0 {
				return 0, 0, 0, fmt.Errorf("input %dx%d is too small for stage %q", height, width, s.Name)
			}
		}
	}
	return channels, h, w, nil
}
