package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	img, meta, err := Decode(getJPEGBytes(t))
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, meta.Format)
	assert.Equal(t, 100, meta.Width)
	assert.Equal(t, 80, meta.Height)
	assert.Equal(t, 100, img.Bounds().Dx())

	_, meta, err = Decode(getPNGBytes(t))
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, meta.Format)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, ParseFormat(".JPG"))
	assert.Equal(t, FormatJPEG, ParseFormat("jpeg"))
	assert.Equal(t, FormatWebP, ParseFormat("webp"))
	assert.Equal(t, FormatBMP, ParseFormat(".bmp"))
	assert.Equal(t, ImageFormat(""), ParseFormat(".tiff"))
}
