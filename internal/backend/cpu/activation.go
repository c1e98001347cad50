package cpu

import "github.com/born-ml/born-style/internal/tensor"

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.Zeros(x.Shape())
	out := result.Data()
	for i, v := range x.Data() {
		if v > 0 {
			out[i] = v
		}
	}
	return result
}

// ReLUBackward passes grad through where the forward input was positive.
func (cpu *CPUBackend) ReLUBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	mustSameShape("relu_backward", input, grad)
	result := tensor.Zeros(input.Shape())
	out, g := result.Data(), grad.Data()
	for i, v := range input.Data() {
		if v > 0 {
			out[i] = g[i]
		}
	}
	return result
}
