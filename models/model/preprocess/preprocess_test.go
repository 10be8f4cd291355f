package preprocess

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solidImage returns a w x h image filled with c.
func solidImage(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// TestPreprocessYOLOv3 validates the darknet layout: BGR planes of raw values.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestPreprocessYOLOv3(t *testing.T) {
	p, err := NewPreprocessor(GetYOLOv3Config(416, 416), nil)
	require.NoError(t, err)

	result, err := p.Preprocess(solidImage(832, 624, color.RGBA{R: 200, G: 100, B: 50, A: 255}))
	require.NoError(t, err, "preprocessing should succeed with valid input")

	assert.Equal(t, []int{1, 3, 416, 416}, []int(result.Tensor.Shape()), "tensor shape should be NCHW")
	assert.Equal(t, 832, result.OriginalWidth)
	assert.Equal(t, 624, result.OriginalHeight)
	assert.InDelta(t, 2.0, result.ScaleX, 1e-12)
	assert.InDelta(t, 1.5, result.ScaleY, 1e-12)

	data := result.Tensor.Data().([]float32)
	plane := 416 * 416
	require.Len(t, data, 3*plane)
	assert.InDelta(t, 50, data[0], 1, "first plane is blue")
	assert.InDelta(t, 100, data[plane], 1, "second plane is green")
	assert.InDelta(t, 200, data[2*plane+plane-1], 1, "third plane is red")
}

func TestPreprocessONNXNormalization(t *testing.T) {
	p, err := NewPreprocessor(GetYOLOv3ONNXConfig(32, 32), nil)
	require.NoError(t, err)

	result, err := p.Preprocess(solidImage(64, 64, color.RGBA{R: 255, G: 0, B: 51, A: 255}))
	require.NoError(t, err)

	data := result.Tensor.Data().([]float32)
	for _, v := range data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	assert.InDelta(t, 1.0, data[0], 1e-3, "first plane is red")
	assert.InDelta(t, 0.2, data[2*32*32], 1e-2, "third plane is blue")
}

func TestPreprocessHWCAndGrayscale(t *testing.T) {
	hwc := GetYOLOv3Config(8, 4)
	hwc.ChannelOrder = ChannelOrderHWC
	p, err := NewPreprocessor(hwc, nil)
	require.NoError(t, err)

	result, err := p.Preprocess(solidImage(8, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 8, 3}, []int(result.Tensor.Shape()))
	assert.Equal(t, []float32{30, 20, 10}, result.Tensor.Data().([]float32)[:3])

	gray := &ModelConfig{
		Name: "gray", InputWidth: 4, InputHeight: 4, InputChannels: 1,
		NormalizationType: NormalizeStandardize, MeanValues: []float32{100}, StdValues: []float32{2},
		ChannelOrder: ChannelOrderCHW, ColorMode: ColorModeGrayscale,
	}
	p, err = NewPreprocessor(gray, nil)
	require.NoError(t, err)

	result, err = p.Preprocess(solidImage(4, 4, color.RGBA{R: 104, G: 104, B: 104, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 4}, []int(result.Tensor.Shape()))
	assert.InDelta(t, 2.0, result.Tensor.Data().([]float32)[0], 1e-3)
}

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ModelConfig)
	}{
		{"zero width", func(c *ModelConfig) { c.InputWidth = 0 }},
		{"unknown color mode", func(c *ModelConfig) { c.ColorMode = "hsv" }},
		{"channel mismatch", func(c *ModelConfig) { c.InputChannels = 1 }},
		{"unknown order", func(c *ModelConfig) { c.ChannelOrder = "nhwc" }},
		{"unknown normalization", func(c *ModelConfig) { c.NormalizationType = "log" }},
		{"standardize without stats", func(c *ModelConfig) { c.NormalizationType = NormalizeStandardize }},
		{"unknown interpolation", func(c *ModelConfig) { c.Interpolation = "sinc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetYOLOv3Config(416, 416)
			tt.mutate(config)
			_, err := NewPreprocessor(config, nil)
			assert.Error(t, err)
		})
	}

	_, err := NewPreprocessor(nil, nil)
	assert.Error(t, err)
}

func TestPreprocessRejectsEmptyImage(t *testing.T) {
	p, err := NewPreprocessor(GetYOLOv3Config(416, 416), nil)
	require.NoError(t, err)

	_, err = p.Preprocess(nil)
	assert.Error(t, err)

	_, err = p.Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}
