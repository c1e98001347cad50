package imageio

import (
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/born-ml/born-style/internal/tensor"
)

// Channels is the number of colour channels in every image tensor.
const Channels = 3

// Mean pixel values of the ImageNet training set in BGR order.
var Mean = [Channels]float64{103.939, 116.779, 123.68}

// Load decodes a JPEG, PNG, BMP, TIFF or WebP file.
func Load(path string) (image.Image, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for image loading
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		_ = f.Close() // Read-only file
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &IOError{Op: "decode", Path: path, Err: err}
	}
	return img, nil
}

// Resize scales img to width × height with bilinear interpolation.
func Resize(img image.Image, height, width int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToTensor returns the RGB values of img, in [0, 255], as a [1, H, W, 3]
// tensor.
func ToTensor(img *image.NRGBA) *tensor.RawTensor {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	t := tensor.Zeros(tensor.Shape{1, h, w, Channels})
	data := t.Data()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < Channels; c++ {
				data[(y*w+x)*Channels+c] = float64(row[x*4+c])
			}
		}
	}
	return t
}

// Normalize converts an RGB [.., 3] tensor to mean-centred BGR.
func Normalize(rgb *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.Zeros(rgb.Shape())
	src, dst := rgb.Data(), out.Data()
	for i := 0; i+Channels <= len(src); i += Channels {
		for c := 0; c < Channels; c++ {
			dst[i+c] = src[i+Channels-1-c] - Mean[c]
		}
	}
	return out
}

// Unnormalize is the exact inverse of Normalize: it adds the means back
// and swaps BGR to RGB. Values are not clipped.
func Unnormalize(bgr *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.Zeros(bgr.Shape())
	src, dst := bgr.Data(), out.Data()
	for i := 0; i+Channels <= len(src); i += Channels {
		for c := 0; c < Channels; c++ {
			dst[i+Channels-1-c] = src[i+c] + Mean[c]
		}
	}
	return out
}

// Preprocess resizes img to height × width and returns it as a mean-centred
// BGR [1, height, width, 3] tensor.
func Preprocess(img image.Image, height, width int) (*tensor.RawTensor, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("preprocess: invalid size %dx%d", height, width)
	}
	return Normalize(ToTensor(Resize(img, height, width))), nil
}

// Deprocess converts a mean-centred BGR [1, H, W, 3] tensor back to an
// 8-bit RGB image. Values are clipped to [0, 255] and truncated.
func Deprocess(t *tensor.RawTensor) (*image.NRGBA, error) {
	shape := t.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[3] != Channels {
		return nil, fmt.Errorf("deprocess: expected [1, H, W, %d] tensor, got %v", Channels, shape)
	}
	h, w := shape[1], shape[2]

	rgb := Unnormalize(t).Data()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < Channels; c++ {
				row[x*4+c] = clipByte(rgb[(y*w+x)*Channels+c])
			}
			row[x*4+3] = 0xff
		}
	}
	return img, nil
}

// clipByte clips v to [0, 255] and truncates toward zero. NaN maps to 0.
func clipByte(v float64) uint8 {
	switch {
	case !(v > 0):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

// Save writes img as PNG. The file is written to a temporary sibling and
// renamed into place, so path never holds a partial image.
func Save(path string, img image.Image) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := png.Encode(tmp, img); err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
