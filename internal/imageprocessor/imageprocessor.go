// Package imageprocessor turns uploaded scans into model input tensors.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	// Decoders for the formats accepted at the upload boundary.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

// Channels is the number of color channels fed to the model (RGB).
const Channels = 3

// ErrEmptyImage is returned for zero-byte uploads or zero-area images.
var ErrEmptyImage = errors.New("image is empty")

// Tensor is a dense float32 tensor in row-major (NHWC) order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Len returns the number of elements implied by Shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Zeros returns a zero-valued batch of one square RGB image.
func Zeros(size int) Tensor {
	return Tensor{
		Shape: []int{1, size, size, Channels},
		Data:  make([]float32, size*size*Channels),
	}
}

// Decode parses raw upload bytes into an image and reports the format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Preprocess converts img to RGB, resamples it to size x size with a
// Catmull-Rom kernel, scales intensities to [0,1] and returns it as a batch
// of one with shape [1, size, size, 3]. Alpha is dropped.
func Preprocess(img image.Image, size int) (Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return Tensor{}, ErrEmptyImage
	}
	if size <= 0 {
		return Tensor{}, fmt.Errorf("invalid target size %d", size)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), opaque(img), img.Bounds(), draw.Src, nil)

	t := Tensor{
		Shape: []int{1, size, size, Channels},
		Data:  make([]float32, 0, size*size*Channels),
	}
	for y := 0; y < size; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+size*4]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+4]
			t.Data = append(t.Data,
				float32(px[0])/255,
				float32(px[1])/255,
				float32(px[2])/255,
			)
		}
	}
	return t, nil
}

// opaque strips the alpha channel the way an RGB conversion does: color
// values are kept as stored, not composited against a background.
func opaque(img image.Image) image.Image {
	switch src := img.(type) {
	case *image.NRGBA:
		if src.Stride == 4*src.Bounds().Dx() {
			out := image.NewNRGBA(src.Bounds())
			copy(out.Pix, src.Pix)
			for i := 3; i < len(out.Pix); i += 4 {
				out.Pix[i] = 0xff
			}
			return out
		}
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return img
	}

	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
