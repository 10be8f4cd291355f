// Package model - Definitions for detection model handles.
package model

import (
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/yolov3"
	"github.com/pkg/errors"
)

// Family is the label family a model was trained on.
type Family string

const (
	// ModelFamilyCOCO is the 80 COCO classes, zero-based, no background.
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyVOC is the 20 Pascal VOC classes, zero-based, no background.
	ModelFamilyVOC Family = "voc"
	// ModelFamilyCustom is a model whose labels come only from a labels file.
	ModelFamilyCustom Family = "custom"
)

// Name is the unique identifier of a model architecture.
type Name string

const (
	// ModelNameYOLOv3 is the three-scale YOLOv3 detector.
	ModelNameYOLOv3 Name = "yolov3"
	// ModelNameYOLOv3Tiny is the two-scale YOLOv3-tiny detector.
	ModelNameYOLOv3Tiny Name = "yolov3-tiny"
)

// Output describes one region output of the network.
type Output struct {
	// Name is the output node (ONNX) or layer (OpenVINO IR) name.
	Name string `json:"name" yaml:"name"`
	// Side is the grid side S of the output.
	Side int `json:"side" yaml:"side"`
}

// Handle is a loaded model description: everything the pipeline needs besides the
// inference backend itself.
type Handle struct {
	Name    Name
	Family  Family
	Path    string
	Weights string
	// Labels are indexed by class.
	Labels  []string
	Coords  int
	Classes int
	Anchors yolov3.AnchorSet
	// Outputs are the region outputs in the order the backend returns them.
	Outputs    []Output
	Activate   bool
	Precision  Precision
	Preprocess preprocess.ModelConfig
}

// Validate checks that labels, anchors and outputs agree with each other.
func (h *Handle) Validate() error {
	if h.Coords <= 0 || h.Classes <= 0 {
		return errors.Errorf("coords and classes must be positive, got %d and %d", h.Coords, h.Classes)
	}
	if len(h.Labels) != h.Classes {
		return errors.Errorf("model has %d classes but %d labels", h.Classes, len(h.Labels))
	}
	if err := h.Anchors.Validate(); err != nil {
		return errors.Wrap(err, "invalid anchors")
	}
	if len(h.Outputs) == 0 {
		return errors.New("model has no outputs")
	}
	for _, out := range h.Outputs {
		if _, err := h.Anchors.Group(out.Side); err != nil {
			return errors.Wrapf(err, "output %q", out.Name)
		}
	}
	if err := h.Preprocess.Validate(); err != nil {
		return errors.Wrap(err, "invalid preprocessing")
	}
	return nil
}

// Label returns the label of a class index, or "" when out of range.
func (h *Handle) Label(class int) string {
	if class < 0 || class >= len(h.Labels) {
		return ""
	}
	return h.Labels[class]
}

// OutputNames returns the output names in backend order.
func (h *Handle) OutputNames() []string {
	names := make([]string, len(h.Outputs))
	for i, out := range h.Outputs {
		names[i] = out.Name
	}
	return names
}

// Channels returns the channel count of an output: anchors x (coords + classes + 1).
func (h *Handle) Channels() int {
	return h.Anchors.PerScale * (h.Coords + h.Classes + 1)
}

// DecodeArgs returns the decoder parameters for a source image.
func (h *Handle) DecodeArgs(threshold float64, sourceWidth, sourceHeight int) yolov3.DecodeArgs {
	return yolov3.DecodeArgs{
		Anchors:       h.Anchors,
		Coords:        h.Coords,
		Classes:       h.Classes,
		Threshold:     threshold,
		ResizedWidth:  h.Preprocess.InputWidth,
		ResizedHeight: h.Preprocess.InputHeight,
		SourceWidth:   sourceWidth,
		SourceHeight:  sourceHeight,
		Activate:      h.Activate,
	}
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name    Name   `json:"name" yaml:"name"`
	Family  Family `json:"family" yaml:"family"`
	Path    string `json:"path" yaml:"path"`
	Weights string `json:"weights" yaml:"weights"`
	// Labels is a labels file, one class per line. Empty uses the family's built-in labels.
	Labels string `json:"labels" yaml:"labels"`
	// Classes overrides the class count of the preset.
	Classes int `json:"classes" yaml:"classes"`
	// Outputs overrides the output names and sides of the preset.
	Outputs []Output `json:"outputs" yaml:"outputs"`
	// Anchors overrides the anchor list as flat w,h pairs.
	Anchors []float64 `json:"anchors" yaml:"anchors"`
	// AnchorOffsets overrides the side to first-anchor mapping.
	AnchorOffsets map[int]int `json:"anchor_offsets" yaml:"anchor_offsets"`
	// AnchorsPerScale overrides the anchors per cell.
	AnchorsPerScale int `json:"anchors_per_scale" yaml:"anchors_per_scale"`
	// Activate applies the logistic function while decoding raw-logit exports.
	Activate bool `json:"activate" yaml:"activate"`
	// Precision is passed to backends that support it.
	Precision Precision `json:"precision" yaml:"precision"`
	// Preprocess overrides the preprocessing preset when non-nil.
	Preprocess *preprocess.ModelConfig `json:"preprocess" yaml:"preprocess"`
	// InputWidth, InputHeight override the preset input size.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
}
