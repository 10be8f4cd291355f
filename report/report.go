// Package report builds the detection response payload.
package report

import (
	"bytes"
	"encoding/base64"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
)

// DefaultTool is the tool name reported by the service.
const DefaultTool = "openvino"

// DefaultJPEGQuality is the quality of the embedded annotated image.
const DefaultJPEGQuality = 95

// Instance is one detection of a class, in model-input pixels.
type Instance struct {
	Confidence float64 `json:"confidence"`
	CX         int     `json:"cx"`
	CY         int     `json:"cy"`
	W          int     `json:"w"`
	H          int     `json:"h"`
}

// Entity groups the instances of one class.
type Entity struct {
	Class   string     `json:"eclass"`
	Details []Instance `json:"details"`
}

// Detect is the body of a successful response.
type Detect struct {
	Tool string `json:"tool"`
	// Date is the capture time in Unix seconds.
	Date int64 `json:"date"`
	// CamTime is the image acquisition time in seconds.
	CamTime float64 `json:"camtime"`
	// InfTime is the pipeline time in seconds.
	InfTime  float64  `json:"inf-time"`
	Entities []Entity `json:"entities"`
	// Image is the annotated image as base64 JPEG.
	Image string `json:"image"`
}

// Response is the success envelope.
type Response struct {
	Detect Detect `json:"detect"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BuildArgs is the input of Build.
type BuildArgs struct {
	Tool          string
	CapturedAt    time.Time
	CameraTime    time.Duration
	InferenceTime time.Duration
	Detections    []postprocess.Detection
	Annotated     image.Image
	// Quality is the JPEG quality, 1-100. Zero uses DefaultJPEGQuality.
	Quality int
}

// Build packages detections and the annotated image into a Response.
//
// Entities appear in the order their class is first seen; each entity lists its
// instances in detection order.
func Build(args BuildArgs) (*Response, error) {
	if args.Annotated == nil {
		return nil, errors.New("annotated image is required")
	}
	if args.Tool == "" {
		args.Tool = DefaultTool
	}
	if args.Quality == 0 {
		args.Quality = DefaultJPEGQuality
	}
	if args.Quality < 1 || args.Quality > 100 {
		return nil, errors.Errorf("jpeg quality must be in [1, 100], got %d", args.Quality)
	}

	encoded, err := EncodeJPEG(args.Annotated, args.Quality)
	if err != nil {
		return nil, err
	}

	return &Response{
		Detect: Detect{
			Tool:     args.Tool,
			Date:     args.CapturedAt.Unix(),
			CamTime:  Round3(args.CameraTime.Seconds()),
			InfTime:  Round3(args.InferenceTime.Seconds()),
			Entities: Group(args.Detections),
			Image:    encoded,
		},
	}, nil
}

// Group collects detections into entities by class index, in order of first
// appearance. Two classes sharing a label stay separate entities.
func Group(detections []postprocess.Detection) []Entity {
	entities := []Entity{}
	index := map[int]int{}

	for _, det := range detections {
		i, ok := index[det.Class]
		if !ok {
			i = len(entities)
			index[det.Class] = i
			entities = append(entities, Entity{Class: det.Label})
		}
		entities[i].Details = append(entities[i].Details, Instance{
			Confidence: Round3(det.Confidence),
			CX:         int(det.CX),
			CY:         int(det.CY),
			W:          int(det.W),
			H:          int(det.H),
		})
	}
	return entities
}

// EncodeJPEG encodes img as JPEG and returns it base64 encoded.
func EncodeJPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", errors.Wrap(err, "failed to encode annotated image")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Round3 rounds to three decimals, half away from zero.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
