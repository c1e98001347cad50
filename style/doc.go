// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package style provides neural style transfer for the Born ML framework.
//
// # Overview
//
// A run repaints a content image in the style of a second image. A frozen
// VGG feature extractor measures three things about a candidate image:
//   - how far its deep features are from the content image (content loss)
//   - how far its feature correlations (Gram matrices) are from the style
//     image (style loss)
//   - how noisy it is (total variation)
//
// The weighted sum is minimized over the image pixels with L-BFGS in a
// fixed number of rounds. Every round writes a checkpoint PNG named
// <prefix>_at_iteration_<round>.png.
//
// # Basic Usage
//
//	cfg := style.Default()
//	cfg.ContentPath = "nature.jpg"
//	cfg.StylePath = "starry.jpg"
//	cfg.WeightsPath = "vgg19.safetensors"
//
//	rounds, err := style.Run(context.Background(), cfg,
//	    style.WithLogger(log.New(os.Stderr, "", log.LstdFlags)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("final loss:", rounds[len(rounds)-1].Loss)
//
// # Weights
//
// Pretrained VGG19 weights are read from a SafeTensors file with one
// "<layer>.weight" kernel (OIHW or HWIO) and one "<layer>.bias" vector per
// conv layer, using Keras layer names such as block1_conv1. Without a
// weights file the network is initialized randomly from Config.Seed, which
// is useful for smoke tests but does not produce meaningful transfers.
package style
