// Package transfer runs the outer optimization loop: a fixed number of
// rounds, each a bounded quasi-Newton minimization followed by a
// checkpoint image.
package transfer

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"math"
	"math/rand"
	"path/filepath"

	"github.com/born-ml/born-style/internal/config"
	"github.com/born-ml/born-style/internal/engine"
	"github.com/born-ml/born-style/internal/evaluator"
	"github.com/born-ml/born-style/internal/imageio"
	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/optim"
	"github.com/born-ml/born-style/internal/parallel"
	"github.com/born-ml/born-style/internal/tensor"
	"github.com/born-ml/born-style/internal/vgg"
)

// Round summarizes one completed round.
type Round struct {
	Index       int
	Loss        float64
	Terms       loss.Terms // Breakdown of Loss
	Status      string
	Evaluations int
	Path        string // Checkpoint file
}

// Session holds everything one run needs. It replaces process-wide state:
// the compiled objective, the evaluator cache and the generated image all
// live here, and a Session is used by one goroutine at a time.
type Session struct {
	cfg       config.Config
	fn        *engine.Function
	eval      *evaluator.Evaluator
	minimizer optim.Minimizer
	logger    *log.Logger
	save      func(path string, img image.Image) error

	// Generated Image Buffer, mean-centred BGR, flattened [1, H, W, 3].
	buffer []float64
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the progress logger. By default a Session is silent.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMinimizer replaces the default L-BFGS minimizer.
func WithMinimizer(m optim.Minimizer) Option {
	return func(s *Session) {
		if m != nil {
			s.minimizer = m
		}
	}
}

// WithSaver replaces imageio.Save for checkpoints.
func WithSaver(save func(path string, img image.Image) error) Option {
	return func(s *Session) {
		if save != nil {
			s.save = save
		}
	}
}

// NewSession validates cfg, compiles the objective for the preprocessed
// content and style images and builds the initial generated image.
func NewSession(cfg config.Config, network *vgg.Network, content, style *tensor.RawTensor, opts ...Option) (*Session, error) {
	if network == nil {
		return nil, fmt.Errorf("transfer: nil network")
	}
	if err := cfg.ValidateFor(network.Architecture()); err != nil {
		return nil, err
	}
	want := tensor.Shape{1, cfg.Height, cfg.Width, imageio.Channels}
	if !content.Shape().Equal(want) || !style.Shape().Equal(want) {
		return nil, &config.ConfigurationError{
			Field:  "height/width",
			Reason: fmt.Sprintf("images are %v and %v, want %v", content.Shape(), style.Shape(), want),
		}
	}

	fn, err := engine.Compile(engine.Options{
		Network:      network,
		Content:      content,
		Style:        style,
		ContentLayer: cfg.ContentLayer,
		StyleLayers:  cfg.StyleLayers,
		Weights:      cfg.Weights(),
		Parallel:     parallel.WithWorkers(cfg.Workers),
	})
	if err != nil {
		return nil, &config.ConfigurationError{Field: "network", Reason: err.Error(), Err: err}
	}

	s := &Session{
		cfg:       cfg,
		fn:        fn,
		eval:      evaluator.New(fn),
		minimizer: optim.NewLBFGS(),
		logger:    log.New(io.Discard, "", 0),
		save:      imageio.Save,
		buffer:    initialImage(cfg, content, style),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// initialImage returns the starting point of the optimization.
func initialImage(cfg config.Config, content, style *tensor.RawTensor) []float64 {
	switch cfg.Init {
	case config.InitStyle:
		return style.Flatten()
	case config.InitNoise:
		//nolint:gosec // Using math/rand for image initialization (not security-critical)
		rng := rand.New(rand.NewSource(cfg.Seed))
		rgb := tensor.Zeros(content.Shape())
		for i := range rgb.Data() {
			rgb.Data()[i] = rng.Float64() * 255
		}
		return imageio.Normalize(rgb).Data()
	default:
		return content.Flatten()
	}
}

// Image returns a copy of the current generated image as a mean-centred
// BGR [1, H, W, 3] tensor.
func (s *Session) Image() *tensor.RawTensor {
	t, err := tensor.FromSlice(s.buffer, s.fn.Shape())
	if err != nil {
		panic(err) // buffer length is fixed at construction
	}
	return t
}

// CheckpointPath returns the file a round's image is written to.
func (s *Session) CheckpointPath(round int) string {
	return filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%s_at_iteration_%d.png", s.cfg.OutputPrefix, round))
}

// Run performs cfg.Rounds rounds. Each round minimizes from the current
// image with a budget of cfg.MaxEvaluations objective evaluations, keeps the
// returned point and writes a checkpoint. There is no early stopping.
//
// ctx is checked before each round; a round in progress is never
// interrupted. On failure the completed rounds are returned together with
// a *RoundError.
func (s *Session) Run(ctx context.Context) ([]Round, error) {
	rounds := make([]Round, 0, s.cfg.Rounds)
	for i := 0; i < s.cfg.Rounds; i++ {
		if err := ctx.Err(); err != nil {
			return rounds, &RoundError{Round: i, Stage: StageStart, Err: err}
		}
		r, err := s.round(i)
		if err != nil {
			return rounds, err
		}
		rounds = append(rounds, r)
	}
	s.logger.Printf("Transfer complete.")
	return rounds, nil
}

func (s *Session) round(i int) (Round, error) {
	s.logger.Printf("Step %d.", i)

	// Keep the breakdown of the lowest loss seen, the point the minimizer
	// returns.
	var terms loss.Terms
	best := math.Inf(1)
	objective := optim.Objective{
		Func: func(x []float64) (float64, error) {
			f, err := s.eval.QueryLoss(x)
			if err == nil && f < best {
				best = f
				terms = s.eval.Last().Terms
			}
			return f, err
		},
		Grad: s.eval.QueryGradient,
	}
	res, err := s.minimizer.Minimize(s.buffer, objective, s.cfg.MaxEvaluations)
	if err != nil {
		return Round{}, &RoundError{Round: i, Stage: StageOptimize, Err: err}
	}
	if st := s.eval.State(); st != evaluator.Empty {
		return Round{}, &RoundError{Round: i, Stage: StageOptimize, Err: fmt.Errorf(
			"%w: minimizer returned with evaluator %s", evaluator.ErrProtocolViolation, st)}
	}
	if len(res.X) != len(s.buffer) {
		return Round{}, &RoundError{Round: i, Stage: StageOptimize, Err: fmt.Errorf(
			"minimizer returned %d values, want %d", len(res.X), len(s.buffer))}
	}
	s.buffer = append(s.buffer[:0], res.X...)
	s.logger.Printf("   Current loss value: %g (%s, %d evaluations)", res.F, res.Status, res.Evaluations)

	img, err := imageio.Deprocess(s.Image())
	if err != nil {
		return Round{}, &RoundError{Round: i, Stage: StageDeprocess, Err: err}
	}
	path := s.CheckpointPath(i)
	if err := s.save(path, img); err != nil {
		return Round{}, &RoundError{Round: i, Stage: StageSave, Err: err}
	}
	s.logger.Printf("   Image saved to %q.", path)

	return Round{
		Index:       i,
		Loss:        res.F,
		Terms:       terms,
		Status:      res.Status,
		Evaluations: res.Evaluations,
		Path:        path,
	}, nil
}
