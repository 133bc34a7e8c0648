package imageprocessor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessShapeAndRange(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 64, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 64; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 6), B: 128, A: 255})
		}
	}

	tensor, err := Preprocess(src, 32)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 32, 32, 3}, tensor.Shape)
	assert.Len(t, tensor.Data, 32*32*3)
	assert.Equal(t, tensor.Len(), len(tensor.Data))
	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
}

func TestPreprocessWhiteImageNormalizesToOne(t *testing.T) {
	tensor, err := Preprocess(solid(10, 10, color.White), 8)
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestPreprocessGrayscaleBecomesRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range gray.Pix {
		gray.Pix[i] = 51
	}

	tensor, err := Preprocess(gray, 4)
	require.NoError(t, err)
	require.Len(t, tensor.Data, 4*4*3)
	for i := 0; i < len(tensor.Data); i += 3 {
		assert.InDelta(t, 0.2, tensor.Data[i], 5e-3)
		assert.InDelta(t, tensor.Data[i], tensor.Data[i+1], 1e-6)
		assert.InDelta(t, tensor.Data[i], tensor.Data[i+2], 1e-6)
	}
}

func TestPreprocessDropsAlpha(t *testing.T) {
	tensor, err := Preprocess(solid(4, 4, color.NRGBA{R: 255, A: 0}), 4)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tensor.Data[0], 1e-6, "red must survive a transparent pixel")
	assert.InDelta(t, 0.0, tensor.Data[1], 1e-6)
}

func TestPreprocessRejectsEmptyInput(t *testing.T) {
	_, err := Preprocess(nil, 8)
	assert.True(t, errors.Is(err, ErrEmptyImage))

	_, err = Preprocess(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 8)
	assert.True(t, errors.Is(err, ErrEmptyImage))

	_, err = Preprocess(solid(2, 2, color.Black), 0)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 3, color.Black)))

	img, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 3, img.Bounds().Dx())

	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestZeros(t *testing.T) {
	z := Zeros(5)
	assert.Equal(t, []int{1, 5, 5, 3}, z.Shape)
	assert.Len(t, z.Data, 75)
}
