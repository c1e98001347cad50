// Package main provides the born-style command line tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/born-ml/born-style/style"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("born-style %s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	logger := log.New(os.Stderr, "", log.LstdFlags)
	err := run(ctx, os.Args[1:], os.Stderr, logger)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatal(err)
	}
}

// run parses args, then either exports random weights or performs a
// transfer. Flags given on the command line override the -config file.
func run(ctx context.Context, args []string, stderr io.Writer, logger *log.Logger) error {
	fs := flag.NewFlagSet("born-style", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "YAML configuration file (flags below override it)")
	content := fs.String("content", "", "Content image path")
	styleImg := fs.String("style", "", "Style image path")
	weights := fs.String("weights", "", "VGG19 SafeTensors weights (random weights if empty)")
	size := fs.Int("size", 0, "Output height and width in pixels")
	roundsFlag := fs.Int("rounds", 0, "Number of optimization rounds")
	maxEvals := fs.Int("maxfun", 0, "Max loss evaluations per round")
	outDir := fs.String("out", "", "Checkpoint directory")
	prefix := fs.String("prefix", "", "Checkpoint file prefix")
	layers := fs.String("style-layers", "", "Comma-separated style layers")
	initMode := fs.String("init", "", "Initial image: content, style or noise")
	seed := fs.Int64("seed", 0, "Seed for random weights and noise")
	workers := fs.Int("workers", -1, "Kernel goroutines (0 = one per CPU)")
	exportWeights := fs.String("export-weights", "", "Write random VGG19 weights to this file and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := style.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = style.LoadConfig(*cfgPath); err != nil {
			return err
		}
	}

	// Only flags given on the command line override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "content":
			cfg.ContentPath = *content
		case "style":
			cfg.StylePath = *styleImg
		case "weights":
			cfg.WeightsPath = *weights
		case "size":
			cfg.Height, cfg.Width = *size, *size
		case "rounds":
			cfg.Rounds = *roundsFlag
		case "maxfun":
			cfg.MaxEvaluations = *maxEvals
		case "out":
			cfg.OutputDir = *outDir
		case "prefix":
			cfg.OutputPrefix = *prefix
		case "style-layers":
			cfg.StyleLayers = strings.Split(*layers, ",")
		case "init":
			cfg.Init = *initMode
		case "seed":
			cfg.Seed = *seed
		case "workers":
			cfg.Workers = *workers
		}
	})

	if *exportWeights != "" {
		if err := style.ExportWeights(*exportWeights, style.VGG19(), cfg.Seed); err != nil {
			return err
		}
		logger.Printf("Random VGG19 weights (seed %d) written to %s.", cfg.Seed, *exportWeights)
		return nil
	}

	rounds, err := style.Run(ctx, cfg, style.WithLogger(logger))
	if err != nil {
		var rerr *style.RoundError
		if errors.As(err, &rerr) && len(rounds) > 0 {
			logger.Printf("Stopped after %d rounds; last checkpoint: %s", len(rounds), rounds[len(rounds)-1].Path)
		}
		return err
	}
	return nil
}
