package loader

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/born-ml/born-style/internal/tensor"
)

// WriteSafeTensors writes tensors to a SafeTensors file with the given
// element dtype (F32 or F64). Tensors are written in alphabetical order
// by name.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, dtype SafeTensorsDType, metadata map[string]string) (err error) {
	if dtype != SafeTensorsF32 && dtype != SafeTensorsF64 {
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		raw := tensors[name]
		size := int64(raw.NumElements() * dtype.Size())
		header[name] = SafeTensorInfo{
			DType:       dtype,
			Shape:       append([]int(nil), raw.Shape()...),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for weight saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(encode(tensors[name].Data(), dtype)); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return w.Flush()
}

func encode(src []float64, dtype SafeTensorsDType) []byte {
	out := make([]byte, len(src)*dtype.Size())
	switch dtype {
	case SafeTensorsF32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
		}
	case SafeTensorsF64:
		for i, v := range src {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
	}
	return out
}
