package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
	"github.com/born-ml/born-style/internal/vgg"
)

func tinyNetwork(t *testing.T) *vgg.Network {
	t.Helper()
	arch := vgg.Architecture{
		Name:       "tiny",
		InChannels: 3,
		Stages: []vgg.Stage{
			{Name: "conv1", Kind: vgg.Conv, Filters: 4},
			{Name: "pool1", Kind: vgg.Pool},
			{Name: "conv2", Kind: vgg.Conv, Filters: 4},
		},
	}
	net, err := vgg.New(arch, vgg.RandomWeights(arch, 1618))
	require.NoError(t, err)
	return net
}

func randomImage(seed int64) *tensor.RawTensor {
	rng := rand.New(rand.NewSource(seed))
	x := tensor.Zeros(tensor.Shape{1, 4, 4, 3})
	for i := range x.Data() {
		x.Data()[i] = rng.Float64()*255 - 120
	}
	return x
}

func tinyOptions(t *testing.T) Options {
	return Options{
		Network:      tinyNetwork(t),
		Content:      randomImage(1),
		Style:        randomImage(2),
		ContentLayer: "conv2",
		StyleLayers:  []string{"conv1", "conv2"},
		Weights:      loss.Weights{Content: 0.005, Style: 100, Smoothness: 100},
		Parallel:     parallel.Sequential(),
	}
}

func TestCompile_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		is     error
	}{
		{"nil network", func(o *Options) { o.Network = nil }, nil},
		{"style size differs", func(o *Options) { o.Style = tensor.Zeros(tensor.Shape{1, 6, 6, 3}) }, ErrShapeMismatch},
		{"content not batched", func(o *Options) { o.Content = tensor.Zeros(tensor.Shape{4, 4, 3}) }, ErrShapeMismatch},
		{"unknown content layer", func(o *Options) { o.ContentLayer = "block5_conv2" }, vgg.ErrUnknownLayer},
		{"unknown style layer", func(o *Options) { o.StyleLayers = []string{"conv1", "bogus"} }, vgg.ErrUnknownLayer},
		{"no style layers", func(o *Options) { o.StyleLayers = nil }, nil},
		{"zero weight", func(o *Options) { o.Weights.Smoothness = 0 }, nil},
		{"too small for pool", func(o *Options) {
			o.Content = tensor.Zeros(tensor.Shape{1, 1, 1, 3})
			o.Style = tensor.Zeros(tensor.Shape{1, 1, 1, 3})
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tinyOptions(t)
			tt.mutate(&opts)
			_, err := Compile(opts)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestEvaluate_LossIsWeightedSumOfTerms(t *testing.T) {
	opts := tinyOptions(t)
	f, err := Compile(opts)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 4, 3}, f.Shape())

	res, err := f.Evaluate(randomImage(3))
	require.NoError(t, err)
	require.Len(t, res.Terms.Style, 2)
	assert.Greater(t, res.Terms.Content, 0.0)
	assert.Greater(t, res.Terms.Smoothness, 0.0)
	assert.InDelta(t, opts.Weights.Total(res.Terms), res.Loss, 1e-9*math.Abs(res.Loss))
	assert.Equal(t, tensor.Shape{1, 4, 4, 3}, res.Gradient.Shape())
}

func TestEvaluate_ContentAndStyleVanishAtReference(t *testing.T) {
	opts := tinyOptions(t)
	opts.Style = opts.Content
	f, err := Compile(opts)
	require.NoError(t, err)

	res, err := f.Evaluate(opts.Content)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Terms.Content)
	assert.Equal(t, []float64{0, 0}, res.Terms.Style)
	assert.InDelta(t, opts.Weights.Smoothness*res.Terms.Smoothness, res.Loss, 1e-9*res.Loss)
}

func TestEvaluate_Stateless(t *testing.T) {
	f, err := Compile(tinyOptions(t))
	require.NoError(t, err)
	x := randomImage(4)
	before := x.Flatten()

	a, err := f.Evaluate(x)
	require.NoError(t, err)
	_, err = f.Evaluate(randomImage(5))
	require.NoError(t, err)
	b, err := f.Evaluate(x)
	require.NoError(t, err)

	assert.Equal(t, before, x.Data(), "candidate is not modified")
	assert.Equal(t, a.Loss, b.Loss)
	assert.Equal(t, a.Gradient.Data(), b.Gradient.Data())
}

func TestEvaluate_GradientMatchesFiniteDifferences(t *testing.T) {
	f, err := Compile(tinyOptions(t))
	require.NoError(t, err)
	x := randomImage(6)

	res, err := f.Evaluate(x)
	require.NoError(t, err)

	const eps = 1e-4
	for i := range x.Data() {
		orig := x.Data()[i]
		x.Data()[i] = orig + eps
		plus, err := f.Evaluate(x)
		require.NoError(t, err)
		x.Data()[i] = orig - eps
		minus, err := f.Evaluate(x)
		require.NoError(t, err)
		x.Data()[i] = orig

		numeric := (plus.Loss - minus.Loss) / (2 * eps)
		assert.InDelta(t, numeric, res.Gradient.Data()[i], 1e-3*math.Max(1, math.Abs(numeric)), "element %d", i)
	}
}

func TestEvaluate_ShapeMismatch(t *testing.T) {
	f, err := Compile(tinyOptions(t))
	require.NoError(t, err)

	_, err = f.Evaluate(tensor.Zeros(tensor.Shape{1, 4, 4, 1}))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestEvaluate_NonFiniteLoss(t *testing.T) {
	f, err := Compile(tinyOptions(t))
	require.NoError(t, err)
	x := randomImage(7)
	x.Data()[5] = math.NaN()

	_, err = f.Evaluate(x)
	var numErr *NumericalError
	require.True(t, errors.As(err, &numErr))
	assert.Equal(t, "loss", numErr.What)
}
