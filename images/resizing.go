package images

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Interpolation selects the resampling kernel used when resizing.
type Interpolation string

const (
	// InterpolationNearest is nearest-neighbor resampling.
	InterpolationNearest Interpolation = "nearest"
	// InterpolationBilinear is bilinear resampling.
	InterpolationBilinear Interpolation = "bilinear"
	// InterpolationBicubic is bicubic resampling.
	InterpolationBicubic Interpolation = "bicubic"
	// InterpolationLanczos is Lanczos-3 resampling.
	InterpolationLanczos Interpolation = "lanczos"
)

func (i Interpolation) function() (resize.InterpolationFunction, error) {
	switch i {
	case InterpolationNearest:
		return resize.NearestNeighbor, nil
	case InterpolationBilinear, "":
		return resize.Bilinear, nil
	case InterpolationBicubic:
		return resize.Bicubic, nil
	case InterpolationLanczos:
		return resize.Lanczos3, nil
	default:
		return 0, errors.Errorf("unknown interpolation %q", i)
	}
}

// Validate reports whether the interpolation is known.
func (i Interpolation) Validate() error {
	_, err := i.function()
	return err
}

// Resize stretches img to exactly width x height, ignoring the aspect ratio.
//
// Arguments:
//   - img: The image to resize.
//   - width: The target width.
//   - height: The target height.
//   - interp: The resampling kernel.
//
// Returns:
//   - image.Image: The resized image.
//   - error: An error if the target size or the interpolation is invalid.
func Resize(img image.Image, width, height int, interp Interpolation) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid target size: %dx%d", width, height)
	}

	fn, err := interp.function()
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return img, nil
	}

	return resize.Resize(uint(width), uint(height), img, fn), nil
}

// ResizeImageToImage decodes an encoded buffer and resizes it.
//
// Arguments:
//   - data: The encoded image bytes.
//   - width: The target width.
//   - height: The target height.
//
// Returns:
//   - image.Image: The resized image.
//   - error: An error if the image fails to decode or resize.
func ResizeImageToImage(data []byte, width, height int) (image.Image, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Resize(img, width, height, InterpolationBilinear)
}
