// Package loader reads and writes network weights in the SafeTensors format
// (the Hugging Face standard).
//
// Format:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw little-endian bytes]
//
// F32 and F64 tensors are decoded into float64 RawTensors; other dtypes
// are rejected with ErrUnsupportedDType.
//
// Example:
//
//	weights, err := loader.ReadWeights("vgg19.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	kernel := weights["block1_conv1.weight"]
package loader
