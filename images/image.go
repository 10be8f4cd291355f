// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Register the decoders that the standard library does not ship.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when there are no bytes to decode.
var ErrEmptyImage = errors.New("image data is empty")

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// Decode decodes an encoded image buffer, honouring the EXIF orientation tag.
//
// Arguments:
//   - data: The encoded image (JPEG, PNG, GIF, BMP or WebP).
//
// Returns:
//   - image.Image: The decoded image.
//   - *Image: The buffer with its detected format and dimensions.
//   - error: ErrEmptyImage or a decoding error.
func Decode(data []byte) (image.Image, *Image, error) {
	if len(data) == 0 {
		return nil, nil, ErrEmptyImage
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "unrecognized image")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to decode %s image", name)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, nil, errors.Errorf("invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}

	return img, &Image{
		Format: ParseFormat(name),
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
