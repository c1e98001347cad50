package transfer

import (
	"context"
	"errors"
	"image"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-style/internal/config"
	"github.com/born-ml/born-style/internal/engine"
	"github.com/born-ml/born-style/internal/evaluator"
	"github.com/born-ml/born-style/internal/imageio"
	"github.com/born-ml/born-style/internal/optim"
	"github.com/born-ml/born-style/internal/tensor"
	"github.com/born-ml/born-style/internal/vgg"
)

func tinyNetwork(t *testing.T) *vgg.Network {
	t.Helper()
	arch := vgg.Architecture{
		Name:       "tiny",
		InChannels: 3,
		Stages:     []vgg.Stage{{Name: "conv1", Kind: vgg.Conv, Filters: 4}},
	}
	net, err := vgg.New(arch, vgg.RandomWeights(arch, 1618))
	require.NoError(t, err)
	return net
}

func tinyConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Height, cfg.Width = 4, 4
	cfg.ContentLayer = "conv1"
	cfg.StyleLayers = []string{"conv1"}
	cfg.Rounds = 1
	cfg.MaxEvaluations = 10
	cfg.OutputDir = t.TempDir()
	cfg.OutputPrefix = "tiny"
	cfg.Workers = 1
	return cfg
}

// syntheticImage returns a preprocessed 4x4 image with pixel values in [0, 255].
func syntheticImage(seed int64) *tensor.RawTensor {
	rng := rand.New(rand.NewSource(seed))
	rgb := tensor.Zeros(tensor.Shape{1, 4, 4, 3})
	for i := range rgb.Data() {
		rgb.Data()[i] = math.Floor(rng.Float64() * 256)
	}
	return imageio.Normalize(rgb)
}

func initialLoss(t *testing.T, cfg config.Config, net *vgg.Network, content, style *tensor.RawTensor) float64 {
	t.Helper()
	fn, err := engine.Compile(engine.Options{
		Network:      net,
		Content:      content,
		Style:        style,
		ContentLayer: cfg.ContentLayer,
		StyleLayers:  cfg.StyleLayers,
		Weights:      cfg.Weights(),
	})
	require.NoError(t, err)
	res, err := fn.Evaluate(content)
	require.NoError(t, err)
	return res.Loss
}

func TestRun_SingleRoundEndToEnd(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.MaxEvaluations = 1
	net := tinyNetwork(t)
	content, style := syntheticImage(1), syntheticImage(2)

	s, err := NewSession(cfg, net, content, style)
	require.NoError(t, err)

	rounds, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tiny_at_iteration_0.png", entries[0].Name())
	assert.Equal(t, filepath.Join(cfg.OutputDir, "tiny_at_iteration_0.png"), rounds[0].Path)

	img, err := imageio.Load(rounds[0].Path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	assert.Less(t, rounds[0].Loss, initialLoss(t, cfg, net, content, style))
	assert.GreaterOrEqual(t, rounds[0].Evaluations, 1)
	assert.Equal(t, evaluator.Empty, s.eval.State())
}

func TestRun_MultipleRoundsNeverIncreaseLoss(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Rounds = 3
	cfg.MaxEvaluations = 5

	s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(3), syntheticImage(4))
	require.NoError(t, err)

	rounds, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for i := 1; i < len(rounds); i++ {
		assert.Equal(t, i, rounds[i].Index)
		assert.LessOrEqual(t, rounds[i].Loss, rounds[i-1].Loss)
	}
	for i := range rounds {
		assert.FileExists(t, s.CheckpointPath(i))
	}
}

func TestRun_DefaultBudgetLeavesEvaluatorEmpty(t *testing.T) {
	for _, budget := range []int{2, 3, 5, 20} {
		cfg := tinyConfig(t)
		cfg.MaxEvaluations = budget

		s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(21), syntheticImage(22))
		require.NoError(t, err)

		rounds, err := s.Run(context.Background())
		require.NoError(t, err, "budget %d", budget)
		require.Len(t, rounds, 1)
		assert.Equal(t, evaluator.Empty, s.eval.State())
	}
}

func TestRun_TermsDescribeReturnedPoint(t *testing.T) {
	cfg := tinyConfig(t)
	net := tinyNetwork(t)
	content, style := syntheticImage(23), syntheticImage(24)

	worse := content.Clone()
	for i := range worse.Data() {
		worse.Data()[i] += float64(i%7) * 40
	}
	fn, err := engine.Compile(engine.Options{
		Network:      net,
		Content:      content,
		Style:        style,
		ContentLayer: cfg.ContentLayer,
		StyleLayers:  cfg.StyleLayers,
		Weights:      cfg.Weights(),
	})
	require.NoError(t, err)
	atStart, err := fn.Evaluate(content)
	require.NoError(t, err)
	atWorse, err := fn.Evaluate(worse)
	require.NoError(t, err)
	want := atStart
	if atWorse.Loss < atStart.Loss {
		want = atWorse
	}

	// Evaluate the start, then a second point, and return the better one.
	m := scriptedMinimizer(func(x0 []float64, obj optim.Objective) (optim.Result, error) {
		res := optim.Result{}
		for _, x := range [][]float64{x0, worse.Flatten()} {
			f, err := obj.Func(x)
			if err != nil {
				return optim.Result{}, err
			}
			if _, err := obj.Grad(x); err != nil {
				return optim.Result{}, err
			}
			if res.X == nil || f < res.F {
				res.X, res.F = append([]float64(nil), x...), f
			}
		}
		return res, nil
	})

	s, err := NewSession(cfg, net, content, style, WithMinimizer(m))
	require.NoError(t, err)
	rounds, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rounds, 1)

	assert.InDelta(t, want.Loss, rounds[0].Loss, 1e-9*math.Abs(want.Loss))
	assert.InDelta(t, want.Terms.Content, rounds[0].Terms.Content, 1e-9*(1+want.Terms.Content))
	assert.InDelta(t, want.Terms.Smoothness, rounds[0].Terms.Smoothness, 1e-9*(1+want.Terms.Smoothness))
}

func TestRun_SaveFailureKeepsEarlierCheckpoints(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.Rounds = 3
	cfg.MaxEvaluations = 3
	boom := errors.New("disk full")
	saver := func(path string, img image.Image) error {
		if filepath.Base(path) == "tiny_at_iteration_1.png" {
			return boom
		}
		return imageio.Save(path, img)
	}

	s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(5), syntheticImage(6), WithSaver(saver))
	require.NoError(t, err)

	rounds, err := s.Run(context.Background())
	require.Len(t, rounds, 1)

	var rerr *RoundError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 1, rerr.Round)
	assert.Equal(t, StageSave, rerr.Stage)
	assert.ErrorIs(t, err, boom)
	assert.FileExists(t, s.CheckpointPath(0))
	assert.NoFileExists(t, s.CheckpointPath(2))
}

// scriptedMinimizer drives the objective through a fixed call sequence.
type scriptedMinimizer func(x0 []float64, obj optim.Objective) (optim.Result, error)

func (m scriptedMinimizer) Minimize(x0 []float64, obj optim.Objective, _ int) (optim.Result, error) {
	return m(x0, obj)
}

func TestRun_NumericalErrorAbortsRound(t *testing.T) {
	cfg := tinyConfig(t)
	m := scriptedMinimizer(func(x0 []float64, obj optim.Objective) (optim.Result, error) {
		x := append([]float64(nil), x0...)
		x[0] = math.Inf(1)
		_, err := obj.Func(x)
		return optim.Result{}, err
	})

	s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(7), syntheticImage(8), WithMinimizer(m))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	var rerr *RoundError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, rerr.Round)
	assert.Equal(t, StageOptimize, rerr.Stage)
	var nerr *engine.NumericalError
	assert.ErrorAs(t, err, &nerr)
	assert.NoFileExists(t, s.CheckpointPath(0))
}

func TestRun_ProtocolViolationIsFatal(t *testing.T) {
	cfg := tinyConfig(t)
	gradFirst := scriptedMinimizer(func(x0 []float64, obj optim.Objective) (optim.Result, error) {
		_, err := obj.Grad(x0)
		return optim.Result{}, err
	})

	s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(9), syntheticImage(10), WithMinimizer(gradFirst))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, evaluator.ErrProtocolViolation)
}

func TestRun_DanglingLossQueryIsProtocolViolation(t *testing.T) {
	cfg := tinyConfig(t)
	lossOnly := scriptedMinimizer(func(x0 []float64, obj optim.Objective) (optim.Result, error) {
		f, err := obj.Func(x0)
		return optim.Result{X: x0, F: f}, err
	})

	s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(11), syntheticImage(12), WithMinimizer(lossOnly))
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, evaluator.ErrProtocolViolation)
}

func TestRun_CanceledContext(t *testing.T) {
	cfg := tinyConfig(t)
	s, err := NewSession(cfg, tinyNetwork(t), syntheticImage(13), syntheticImage(14))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rounds, err := s.Run(ctx)
	assert.Empty(t, rounds)
	assert.ErrorIs(t, err, context.Canceled)

	var rerr *RoundError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, StageStart, rerr.Stage)
}

func TestNewSession_InitialImage(t *testing.T) {
	content, style := syntheticImage(15), syntheticImage(16)

	cfg := tinyConfig(t)
	s, err := NewSession(cfg, tinyNetwork(t), content, style)
	require.NoError(t, err)
	assert.Equal(t, content.Data(), s.Image().Data())

	cfg.Init = config.InitStyle
	s, err = NewSession(cfg, tinyNetwork(t), content, style)
	require.NoError(t, err)
	assert.Equal(t, style.Data(), s.Image().Data())

	cfg.Init = config.InitNoise
	a, err := NewSession(cfg, tinyNetwork(t), content, style)
	require.NoError(t, err)
	b, err := NewSession(cfg, tinyNetwork(t), content, style)
	require.NoError(t, err)
	assert.Equal(t, a.Image().Data(), b.Image().Data(), "noise is seeded")
	assert.NotEqual(t, content.Data(), a.Image().Data())
}

func TestNewSession_RejectsMismatchedImages(t *testing.T) {
	cfg := tinyConfig(t)
	_, err := NewSession(cfg, tinyNetwork(t), syntheticImage(1), tensor.Zeros(tensor.Shape{1, 5, 5, 3}))

	var cerr *config.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestNewSession_RejectsUnknownLayer(t *testing.T) {
	cfg := tinyConfig(t)
	cfg.StyleLayers = []string{"block1_conv1"}
	_, err := NewSession(cfg, tinyNetwork(t), syntheticImage(1), syntheticImage(2))

	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, vgg.ErrUnknownLayer)
}
