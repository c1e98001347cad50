// Package imageio converts between image files and the mean-centred BGR
// tensors the feature extractor consumes.
//
// Tensors are NHWC with a batch of one: [1, H, W, 3]. Preprocess resizes
// with bilinear interpolation, swaps RGB to BGR and subtracts the VGG
// channel means. Deprocess reverses that, clips to [0, 255] and truncates
// to 8-bit.
package imageio
