// Package loss implements the three terms of the style transfer objective
// and their gradients:
//
//   - Content: squared distance between feature maps of one late layer.
//     Not normalized by the feature map size, so its effective weight
//     depends on the layer's size; the content weight is tuned for that.
//   - Style: squared distance between Gram matrices, normalized by
//     4·C²·(h·w)² and averaged over the style layers through the weights.
//   - Smoothness: anisotropic total variation of the generated image.
//
// Every function treats the reference (content or style) side as a
// constant: gradients are returned for the generated side only.
package loss
