package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	return img
}

func getJPEGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, getTestImage(), nil))
	return buf.Bytes()
}

func getPNGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, getTestImage()))
	return buf.Bytes()
}

func TestResize(t *testing.T) {
	for _, interp := range []Interpolation{
		InterpolationNearest, InterpolationBilinear, InterpolationBicubic, InterpolationLanczos,
	} {
		t.Run(string(interp), func(t *testing.T) {
			resized, err := Resize(getTestImage(), 416, 416, interp)
			require.NoError(t, err)
			assert.Equal(t, 416, resized.Bounds().Dx(), "width should match the target")
			assert.Equal(t, 416, resized.Bounds().Dy(), "height should match the target")
		})
	}
}

func TestResizeErrors(t *testing.T) {
	_, err := Resize(getTestImage(), 0, 10, InterpolationBilinear)
	assert.Error(t, err, "zero width should be rejected")

	_, err = Resize(getTestImage(), 10, 10, Interpolation("sinc"))
	assert.Error(t, err, "unknown interpolation should be rejected")
}

func TestResizeImageToImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"jpeg", getJPEGBytes(t)},
		{"png", getPNGBytes(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ResizeImageToImage(tt.data, 52, 26)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 52, 26), img.Bounds())
		})
	}

	_, err := ResizeImageToImage([]byte("not an image"), 10, 10)
	assert.Error(t, err)
}
