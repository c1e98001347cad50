// Package config holds the run configuration of a style transfer job.
//
// A Config starts from Default, is optionally overlaid with a YAML file
// (Load), then with command-line flags, and must pass Validate before any
// image is read.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/born-style/internal/loss"
	"github.com/born-ml/born-style/internal/vgg"
)

// Initial image modes.
const (
	InitContent = "content"
	InitStyle   = "style"
	InitNoise   = "noise"
)

// Config is the full set of run options.
type Config struct {
	ContentPath string `yaml:"content_path"`
	StylePath   string `yaml:"style_path"`

	// Size of the content and generated images.
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
	// Size the style image is resampled to; 0 means the content size.
	// Any other value must equal the content size.
	StyleHeight int `yaml:"style_height"`
	StyleWidth  int `yaml:"style_width"`

	ContentWeight    float64 `yaml:"content_weight"`
	StyleWeight      float64 `yaml:"style_weight"`
	SmoothnessWeight float64 `yaml:"smoothness_weight"`

	Rounds         int `yaml:"rounds"`
	MaxEvaluations int `yaml:"max_evaluations"` // Per round

	ContentLayer string   `yaml:"content_layer"`
	StyleLayers  []string `yaml:"style_layers"`

	OutputDir    string `yaml:"output_dir"`
	OutputPrefix string `yaml:"output_prefix"`

	// WeightsPath is a SafeTensors file with VGG19 weights. Empty means
	// seeded random weights.
	WeightsPath string `yaml:"weights_path"`
	Seed        int64  `yaml:"seed"`
	Init        string `yaml:"init"`
	Workers     int    `yaml:"workers"` // Kernel goroutines; 0 = one per CPU
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		ContentPath:      "nature_resize.jpg",
		StylePath:        "starry_resize.jpg",
		Height:           500,
		Width:            500,
		ContentWeight:    0.005,
		StyleWeight:      100,
		SmoothnessWeight: 100,
		Rounds:           10,
		MaxEvaluations:   20,
		ContentLayer:     "block5_conv2",
		StyleLayers: []string{
			"block1_conv1",
			"block2_conv1",
			"block3_conv1",
			"block4_conv1",
			"block5_conv1",
		},
		OutputDir:    ".",
		OutputPrefix: "my_result",
		Seed:         1618,
		Init:         InitContent,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for config loading
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer func() {
		_ = f.Close() // Read-only file
	}()
	return Decode(f)
}

// Decode reads YAML from r on top of Default.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Weights returns the loss weights.
func (c Config) Weights() loss.Weights {
	return loss.Weights{
		Content:    c.ContentWeight,
		Style:      c.StyleWeight,
		Smoothness: c.SmoothnessWeight,
	}
}

// Validate checks the configuration against the VGG19 layer names.
func (c Config) Validate() error {
	return c.ValidateFor(vgg.VGG19())
}

// ValidateFor checks the configuration against arch. The first problem
// found is returned as a *ConfigurationError.
func (c Config) ValidateFor(arch vgg.Architecture) error {
	switch {
	case c.ContentPath == "":
		return invalid("content_path", "must be set")
	case c.StylePath == "":
		return invalid("style_path", "must be set")
	case c.Height <= 0 || c.Width <= 0:
		return invalid("height/width", fmt.Sprintf("must be > 0, got %dx%d", c.Height, c.Width))
	case c.StyleHeight < 0 || c.StyleWidth < 0:
		return invalid("style_height/style_width", "must be >= 0")
	case c.StyleHeight != 0 && c.StyleHeight != c.Height,
		c.StyleWidth != 0 && c.StyleWidth != c.Width:
		return invalid("style_height/style_width", fmt.Sprintf(
			"style size %dx%d must match content size %dx%d", c.StyleHeight, c.StyleWidth, c.Height, c.Width))
	case c.Rounds < 1:
		return invalid("rounds", fmt.Sprintf("must be >= 1, got %d", c.Rounds))
	case c.MaxEvaluations < 1:
		return invalid("max_evaluations", fmt.Sprintf("must be >= 1, got %d", c.MaxEvaluations))
	case len(c.StyleLayers) == 0:
		return invalid("style_layers", "must not be empty")
	case c.OutputPrefix == "":
		return invalid("output_prefix", "must be set")
	case c.Workers < 0:
		return invalid("workers", "must be >= 0")
	}

	if err := c.Weights().Validate(); err != nil {
		return invalid("weights", err.Error())
	}

	switch c.Init {
	case InitContent, InitStyle, InitNoise:
	default:
		return invalid("init", fmt.Sprintf("must be %q, %q or %q, got %q", InitContent, InitStyle, InitNoise, c.Init))
	}

	if _, err := arch.Layer(c.ContentLayer); err != nil {
		return &ConfigurationError{Field: "content_layer", Reason: err.Error(), Err: err}
	}
	if _, err := arch.Layers(c.StyleLayers); err != nil {
		return &ConfigurationError{Field: "style_layers", Reason: err.Error(), Err: err}
	}
	return nil
}

// ConfigurationError reports an invalid option, detected before any work starts.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error // Underlying cause, if any
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func invalid(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}
