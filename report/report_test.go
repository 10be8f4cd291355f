package report

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detection(class int, label string, confidence, cx, cy, w, h float64) postprocess.Detection {
	return postprocess.Detection{
		Candidate: postprocess.Candidate{CX: cx, CY: cy, W: w, H: h, Class: class, Confidence: confidence},
		Label:     label,
	}
}

func TestGroupByFirstAppearance(t *testing.T) {
	entities := Group([]postprocess.Detection{
		detection(2, "car", 0.91234, 10.9, 20.2, 30.5, 40.99),
		detection(0, "person", 0.5, 1, 2, 3, 4),
		detection(2, "car", 0.3336, 5, 6, 7, 8),
	})

	require.Len(t, entities, 2)
	assert.Equal(t, "car", entities[0].Class)
	assert.Equal(t, "person", entities[1].Class)
	assert.Equal(t, []Instance{
		{Confidence: 0.912, CX: 10, CY: 20, W: 30, H: 40},
		{Confidence: 0.334, CX: 5, CY: 6, W: 7, H: 8},
	}, entities[0].Details)
}

func TestGroupKeysOnClass(t *testing.T) {
	// A labels file with a blank or repeated line gives two classes the same label.
	entities := Group([]postprocess.Detection{
		detection(3, "", 0.9, 1, 1, 1, 1),
		detection(7, "", 0.8, 2, 2, 2, 2),
		detection(3, "", 0.7, 3, 3, 3, 3),
	})

	require.Len(t, entities, 2)
	assert.Len(t, entities[0].Details, 2)
	assert.Len(t, entities[1].Details, 1)
	assert.Equal(t, 2, entities[1].Details[0].CX)
}

func TestGroupEmpty(t *testing.T) {
	entities := Group(nil)
	require.NotNil(t, entities)

	out, err := json.Marshal(entities)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out), "no detections still serializes as an array")
}

func TestBuild(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	captured := time.Unix(1700000000, 500)

	resp, err := Build(BuildArgs{
		CapturedAt:    captured,
		CameraTime:    1234567 * time.Microsecond,
		InferenceTime: 87654 * time.Microsecond,
		Detections:    []postprocess.Detection{detection(16, "dog", 0.77777, 100, 50, 20, 10)},
		Annotated:     img,
	})
	require.NoError(t, err)

	d := resp.Detect
	assert.Equal(t, DefaultTool, d.Tool)
	assert.Equal(t, int64(1700000000), d.Date)
	assert.Equal(t, 1.235, d.CamTime)
	assert.Equal(t, 0.088, d.InfTime)
	require.Len(t, d.Entities, 1)
	assert.Equal(t, 0.778, d.Entities[0].Details[0].Confidence)

	raw, err := base64.StdEncoding.DecodeString(d.Image)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	var generic map[string]map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	for _, key := range []string{"tool", "date", "camtime", "inf-time", "entities", "image"} {
		assert.Contains(t, generic["detect"], key)
	}
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(BuildArgs{})
	assert.Error(t, err)

	_, err = Build(BuildArgs{Annotated: image.NewRGBA(image.Rect(0, 0, 1, 1)), Quality: 101})
	assert.Error(t, err)
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 0.123, Round3(0.12345))
	assert.Equal(t, 1.0, Round3(0.9999))
	assert.Equal(t, 0.0, Round3(0))
}
