package tensor

// Backend defines the interface that compute backends implement.
// Every operation returns a newly allocated tensor; inputs are read-only.
//
// Layout conventions:
//   - Conv2D / MaxPool2D work on NCHW tensors.
//   - Conv2D kernels are [C_out, C_in, K_h, K_w].
type Backend interface {
	// Element-wise binary operations (shapes must match exactly)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Manipulation operations
	Cat(tensors []*RawTensor, dim int) *RawTensor           // concatenate along dimension
	Narrow(x *RawTensor, dim, start, length int) *RawTensor // slice [start, start+length) along dim
	NarrowBackward(grad *RawTensor, inputShape Shape, dim, start int) *RawTensor

	// Convolutional operations
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor
	AddBias(x, bias *RawTensor) *RawTensor // bias [C] added to every [N, C, ...] channel
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor
	MaxPool2DIndices(input *RawTensor, kernelSize, stride int) []int // flat input index of each window max
	MaxPool2DBackward(input, grad *RawTensor, maxIndices []int, kernelSize, stride int) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor
	ReLUBackward(input, grad *RawTensor) *RawTensor

	// Metadata
	Name() string
}
