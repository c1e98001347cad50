// Package engine compiles the style transfer objective into a function that
// maps a candidate image to its scalar loss and gradient in one pass.
//
// Each evaluation stacks the content, style and candidate images into one
// [3, H, W, 3] batch, runs it through the feature extractor on a fresh
// gradient tape, composes the weighted loss terms and backpropagates to
// the candidate slice.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/born-style/internal/autodiff"
	"github.com/born-ml/born-style/internal/backend/cpu"
	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
	"github.com/born-ml/born-style/internal/vgg"
)

// Batch positions of the stacked input.
const (
	contentSlot = iota
	styleSlot
	generatedSlot
)

// Options configures Compile.
type Options struct {
	Network      *vgg.Network
	Content      *tensor.RawTensor // Preprocessed [1, H, W, 3]
	Style        *tensor.RawTensor // Preprocessed [1, H, W, 3]
	ContentLayer string
	StyleLayers  []string
	Weights      loss.Weights
	Parallel     parallel.Config // Zero value uses every CPU
}

// Result is the outcome of one evaluation.
type Result struct {
	Loss     float64
	Gradient *tensor.RawTensor // Shaped like the candidate
	Terms    loss.Terms
}

// Function is a compiled objective. It holds no state between evaluations
// other than its constants, but it is not safe for concurrent use.
type Function struct {
	network      *vgg.Network
	backend      *autodiff.AutodiffBackend[*cpu.CPUBackend]
	content      *tensor.RawTensor
	style        *tensor.RawTensor
	contentLayer vgg.LayerID
	styleLayers  []vgg.LayerID
	layers       []vgg.LayerID
	weights      loss.Weights
	shape        tensor.Shape
}

// Compile validates the options and builds the objective.
func Compile(opts Options) (*Function, error) {
	if opts.Network == nil {
		return nil, errors.New("compile: nil network")
	}
	if opts.Content == nil || opts.Style == nil {
		return nil, errors.New("compile: content and style images are required")
	}
	shape := opts.Content.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[3] != opts.Network.Architecture().InChannels {
		return nil, fmt.Errorf("compile: content: %w: got %v", ErrShapeMismatch, shape)
	}
	if !opts.Style.Shape().Equal(shape) {
		return nil, fmt.Errorf("compile: style: %w: got %v, want %v", ErrShapeMismatch, opts.Style.Shape(), shape)
	}
	if len(opts.StyleLayers) == 0 {
		return nil, errors.New("compile: at least one style layer is required")
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	arch := opts.Network.Architecture()
	contentLayer, err := arch.Layer(opts.ContentLayer)
	if err != nil {
		return nil, fmt.Errorf("compile: content layer: %w", err)
	}
	styleLayers, err := arch.Layers(opts.StyleLayers)
	if err != nil {
		return nil, fmt.Errorf("compile: style layers: %w", err)
	}
	layers := append([]vgg.LayerID{contentLayer}, styleLayers...)
	for _, id := range layers {
		if _, _, _, err := arch.OutputShape(id, shape[1], shape[2]); err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
	}

	par := opts.Parallel
	if par.Workers == 0 {
		par = parallel.DefaultConfig()
	}

	return &Function{
		network:      opts.Network,
		backend:      autodiff.New(cpu.NewWithConfig(par)),
		content:      opts.Content.Clone(),
		style:        opts.Style.Clone(),
		contentLayer: contentLayer,
		styleLayers:  styleLayers,
		layers:       layers,
		weights:      opts.Weights,
		shape:        shape.Clone(),
	}, nil
}

// Shape returns the [1, H, W, 3] image shape the function accepts.
func (f *Function) Shape() tensor.Shape {
	return f.shape
}

// Evaluate computes the loss at candidate and its gradient with respect to
// candidate. A NaN or Inf anywhere in the result is a *NumericalError.
func (f *Function) Evaluate(candidate *tensor.RawTensor) (Result, error) {
	if !candidate.Shape().Equal(f.shape) {
		return Result{}, fmt.Errorf("evaluate: %w: got %v, want %v", ErrShapeMismatch, candidate.Shape(), f.shape)
	}

	b := f.backend
	tape := b.Tape()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	// The tape keys gradients by tensor identity, so take a private copy.
	gen := candidate.Clone()
	stacked := b.Cat([]*tensor.RawTensor{f.content, f.style, gen}, 0)
	features, err := f.network.Forward(b, stacked, f.layers)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate: %w", err)
	}

	var terms loss.Terms
	cf := features[f.contentLayer]
	contentLoss := b.ContentLoss(b.Narrow(cf, 0, contentSlot, 1), b.Narrow(cf, 0, generatedSlot, 1))
	terms.Content = contentLoss.Item()
	total := b.MulScalar(contentLoss, f.weights.Content)

	perLayer := f.weights.PerStyleLayer(len(f.styleLayers))
	terms.Style = make([]float64, len(f.styleLayers))
	for i, id := range f.styleLayers {
		sf := features[id]
		styleLoss := b.StyleLoss(b.Narrow(sf, 0, styleSlot, 1), b.Narrow(sf, 0, generatedSlot, 1))
		terms.Style[i] = styleLoss.Item()
		total = b.Add(total, b.MulScalar(styleLoss, perLayer))
	}

	smoothness := b.SmoothnessLoss(gen)
	terms.Smoothness = smoothness.Item()
	total = b.Add(total, b.MulScalar(smoothness, f.weights.Smoothness))

	value := total.Item()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Result{}, &NumericalError{What: "loss", Index: -1, Value: value}
	}

	grad, ok := b.Backward(total)[gen]
	if !ok {
		grad = tensor.Zeros(f.shape)
	}
	if i := grad.FirstNonFinite(); i >= 0 {
		return Result{}, &NumericalError{What: "gradient", Index: i, Value: grad.Data()[i]}
	}

	return Result{Loss: value, Gradient: grad, Terms: terms}, nil
}
