// Package tensor provides the dense float64 tensor type and the Backend
// interface shared by the CPU kernels, the gradient tape and the style
// transfer engine.
//
// Image tensors are NHWC ([1, H, W, 3]); convolutional feature maps are
// NCHW ([N, C, H, W]).
package tensor
