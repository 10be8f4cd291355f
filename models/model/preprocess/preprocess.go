// Package preprocess converts decoded images into model input tensors.
package preprocess

import (
	"image"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputWidth is the expected width of the model input.
	InputWidth int `json:"input_width" yaml:"input_width"`
	// InputHeight is the expected height of the model input.
	InputHeight int `json:"input_height" yaml:"input_height"`
	// InputChannels is the number of channels (1 for grayscale, 3 for color).
	InputChannels int `json:"input_channels" yaml:"input_channels"`
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType `json:"normalization" yaml:"normalization"`
	// MeanValues for standardization (if NormalizationType is standardize).
	MeanValues []float32 `json:"mean" yaml:"mean"`
	// StdValues for standardization (if NormalizationType is standardize).
	StdValues []float32 `json:"std" yaml:"std"`
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder `json:"channel_order" yaml:"channel_order"`
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
	// Interpolation is the resampling kernel used to stretch the image.
	Interpolation images.Interpolation `json:"interpolation" yaml:"interpolation"`
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType string

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = "none"
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne NormalizationType = "zero_to_one"
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne NormalizationType = "minus_one_to_one"
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize NormalizationType = "standardize"
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder string

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX and OpenVINO).
	ChannelOrderCHW ChannelOrder = "chw"
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC ChannelOrder = "hwc"
)

// ColorMode defines the color space of the image.
type ColorMode string

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = "rgb"
	// ColorModeBGR is BGR color mode (common for OpenCV and OpenVINO models).
	ColorModeBGR ColorMode = "bgr"
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale ColorMode = "grayscale"
)

// Validate checks the configuration for internal consistency.
func (c *ModelConfig) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return errors.Errorf("invalid input size %dx%d", c.InputWidth, c.InputHeight)
	}

	switch c.ColorMode {
	case ColorModeGrayscale:
		if c.InputChannels != 1 {
			return errors.Errorf("grayscale input needs 1 channel, got %d", c.InputChannels)
		}
	case ColorModeRGB, ColorModeBGR:
		if c.InputChannels != 3 {
			return errors.Errorf("%s input needs 3 channels, got %d", c.ColorMode, c.InputChannels)
		}
	default:
		return errors.Errorf("unknown color mode %q", c.ColorMode)
	}

	switch c.ChannelOrder {
	case ChannelOrderCHW, ChannelOrderHWC:
	default:
		return errors.Errorf("unknown channel order %q", c.ChannelOrder)
	}

	switch c.NormalizationType {
	case NormalizeNone, NormalizeZeroToOne, NormalizeMinusOneToOne:
	case NormalizeStandardize:
		if len(c.MeanValues) != c.InputChannels || len(c.StdValues) != c.InputChannels {
			return errors.Errorf("standardize needs %d mean and std values", c.InputChannels)
		}
		for _, s := range c.StdValues {
			if s == 0 {
				return errors.New("std values must be non-zero")
			}
		}
	default:
		return errors.Errorf("unknown normalization %q", c.NormalizationType)
	}

	return c.Interpolation.Validate()
}

// PreprocessingResult contains the preprocessed image data and metadata.
type PreprocessingResult struct {
	// Tensor is the model input, shaped [1, C, H, W] or [1, H, W, C].
	Tensor *tensor.Dense
	// OriginalWidth is the source image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the source image height before preprocessing.
	OriginalHeight int
	// ScaleX is source width / model input width.
	ScaleX float64
	// ScaleY is source height / model input height.
	ScaleY float64
}

// Preprocessor handles image preprocessing for detection models.
type Preprocessor struct {
	config *ModelConfig
	logger logrus.FieldLogger
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//   - logger: Receives debug output; nil disables it.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: An error if the configuration is invalid.
//
// @example
//
//	preprocessor, err := NewPreprocessor(GetYOLOv3Config(416, 416), logrus.StandardLogger())
func NewPreprocessor(config *ModelConfig, logger logrus.FieldLogger) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("preprocess config is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid preprocess config")
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		logger = discard
	}

	return &Preprocessor{config: config, logger: logger}, nil
}

// Shape returns the batch-of-one input tensor shape in the configured channel order.
func (c *ModelConfig) Shape() []int {
	if c.ChannelOrder == ChannelOrderHWC {
		return []int{1, c.InputHeight, c.InputWidth, c.InputChannels}
	}
	return []int{1, c.InputChannels, c.InputHeight, c.InputWidth}
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() ModelConfig {
	return *p.config
}

// Preprocess stretches img to the model input size and lays it out as a float32 tensor.
//
// The aspect ratio is not preserved: the decoder maps boxes back with independent
// horizontal and vertical scale factors.
//
// Arguments:
//   - img: The decoded source image.
//
// Returns:
//   - *PreprocessingResult: The tensor and the source-to-model scale factors.
//   - error: An error if the image is empty or cannot be resized.
func (p *Preprocessor) Preprocess(img image.Image) (*PreprocessingResult, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	resized, err := images.Resize(img, p.config.InputWidth, p.config.InputHeight, p.config.Interpolation)
	if err != nil {
		return nil, errors.Wrap(err, "resize failed")
	}

	data := p.imageToTensor(resized)
	p.normalize(data)

	shape := p.config.Shape()

	p.logger.WithFields(logrus.Fields{
		"model":  p.config.Name,
		"source": []int{bounds.Dx(), bounds.Dy()},
		"shape":  shape,
	}).Debug("preprocessed image")

	return &PreprocessingResult{
		Tensor:         tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)),
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		ScaleX:         float64(bounds.Dx()) / float64(p.config.InputWidth),
		ScaleY:         float64(bounds.Dy()) / float64(p.config.InputHeight),
	}, nil
}

// imageToTensor converts a model-sized image to raw 0-255 float32 values.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	data := make([]float32, plane*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r8 := float32(uint8(r >> 8))
			g8 := float32(uint8(g >> 8))
			b8 := float32(uint8(b >> 8))

			if p.config.InputChannels == 1 {
				gray := 0.299*r8 + 0.587*g8 + 0.114*b8
				data[y*width+x] = gray
				continue
			}

			ch0, ch1, ch2 := r8, g8, b8
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch1, ch2 = b8, g8, r8
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				data[y*width+x] = ch0
				data[plane+y*width+x] = ch1
				data[2*plane+y*width+x] = ch2
			} else {
				data[idx] = ch0
				data[idx+1] = ch1
				data[idx+2] = ch2
				idx += 3
			}
		}
	}

	return data
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(data []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range data {
			data[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range data {
			data[i] = (data[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		pixels := len(data) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]
			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixels
				for i := 0; i < pixels; i++ {
					data[offset+i] = (data[offset+i] - mean) / std
				}
			} else {
				for i := c; i < len(data); i += channels {
					data[i] = (data[i] - mean) / std
				}
			}
		}
	}
}

// GetYOLOv3Config returns the configuration of a darknet-converted YOLOv3 model:
// BGR planes of raw 0-255 values, stretched to the input size.
//
// Arguments:
//   - width: The model input width (typically 416).
//   - height: The model input height (typically 416).
//
// Returns:
//   - *ModelConfig: A configured ModelConfig for YOLOv3.
func GetYOLOv3Config(width, height int) *ModelConfig {
	return &ModelConfig{
		Name:              "yolov3",
		InputWidth:        width,
		InputHeight:       height,
		InputChannels:     3,
		NormalizationType: NormalizeNone,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeBGR,
		Interpolation:     images.InterpolationBilinear,
	}
}

// GetYOLOv3ONNXConfig returns the configuration used by most ONNX YOLOv3 exports:
// RGB planes scaled to [0, 1].
func GetYOLOv3ONNXConfig(width, height int) *ModelConfig {
	config := GetYOLOv3Config(width, height)
	config.ColorMode = ColorModeRGB
	config.NormalizationType = NormalizeZeroToOne
	return config
}
