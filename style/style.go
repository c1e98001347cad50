// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package style

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/born-ml/born-style/internal/config"
	"github.com/born-ml/born-style/internal/imageio"
	"github.com/born-ml/born-style/internal/loader"
	"github.com/born-ml/born-style/internal/tensor"
	"github.com/born-ml/born-style/internal/transfer"
	"github.com/born-ml/born-style/internal/vgg"
)

// Config holds every option of a run. See Default for the reference values.
type Config = config.Config

// ConfigurationError reports an invalid option, detected before any work starts.
type ConfigurationError = config.ConfigurationError

// Round summarizes one completed optimization round.
type Round = transfer.Round

// RoundError reports the round and stage a run failed in.
type RoundError = transfer.RoundError

// Architecture describes the convolutional base used as feature extractor.
type Architecture = vgg.Architecture

// Stage is one named conv or pool step of an Architecture.
type Stage = vgg.Stage

// Stage kinds.
const (
	Conv = vgg.Conv
	Pool = vgg.Pool
)

// Initial image modes for Config.Init.
const (
	InitContent = config.InitContent
	InitStyle   = config.InitStyle
	InitNoise   = config.InitNoise
)

// Default returns the reference configuration: a 500x500 image, 10 rounds
// with a budget of 20 evaluations, content layer block5_conv2 and the first conv
// layer of every VGG19 block as style layers.
func Default() Config {
	return config.Default()
}

// LoadConfig reads a YAML configuration file on top of Default.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// VGG19 returns the VGG19 convolutional base.
func VGG19() Architecture {
	return vgg.VGG19()
}

type options struct {
	logger *log.Logger
	arch   Architecture
}

// Option customizes Run.
type Option func(*options)

// WithLogger sets the progress logger. Run is silent by default.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithArchitecture replaces VGG19 as feature extractor. Layer names in the
// configuration and weight file must match the given architecture.
func WithArchitecture(arch Architecture) Option {
	return func(o *options) { o.arch = arch }
}

// Run loads the content and style images, builds the feature extractor and
// performs cfg.Rounds optimization rounds, writing a checkpoint after each.
//
// The completed rounds are returned even when a later round fails; the
// error is then a *RoundError. Invalid options are reported as a
// *ConfigurationError before any image is read.
func Run(ctx context.Context, cfg Config, opts ...Option) ([]Round, error) {
	o := options{logger: log.New(io.Discard, "", 0), arch: vgg.VGG19()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.arch.Validate(); err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	if err := cfg.ValidateFor(o.arch); err != nil {
		return nil, err
	}

	content, err := preprocess(cfg.ContentPath, cfg.Height, cfg.Width)
	if err != nil {
		return nil, err
	}
	style, err := preprocess(cfg.StylePath, cfg.Height, cfg.Width)
	if err != nil {
		return nil, err
	}

	weights, err := networkWeights(cfg, o.arch, o.logger)
	if err != nil {
		return nil, err
	}
	network, err := vgg.New(o.arch, weights)
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}

	session, err := transfer.NewSession(cfg, network, content, style, transfer.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return session.Run(ctx)
}

func preprocess(path string, height, width int) (*tensor.RawTensor, error) {
	img, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	return imageio.Preprocess(img, height, width)
}

func networkWeights(cfg Config, arch Architecture, logger *log.Logger) (map[string]*tensor.RawTensor, error) {
	if cfg.WeightsPath == "" {
		logger.Printf("No weights file given, using random weights (seed %d).", cfg.Seed)
		return vgg.RandomWeights(arch, cfg.Seed), nil
	}
	weights, err := loader.ReadWeights(cfg.WeightsPath)
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	logger.Printf("Loaded %d weight tensors from %s.", len(weights), cfg.WeightsPath)
	return weights, nil
}

// ExportWeights writes randomly initialized weights for arch to a float32
// SafeTensors file that Run can read back through Config.WeightsPath.
func ExportWeights(path string, arch Architecture, seed int64) error {
	metadata := map[string]string{
		"architecture": arch.Name,
		"seed":         fmt.Sprint(seed),
	}
	if err := loader.WriteSafeTensors(path, vgg.RandomWeights(arch, seed), loader.SafeTensorsF32, metadata); err != nil {
		return fmt.Errorf("style: %w", err)
	}
	return nil
}
