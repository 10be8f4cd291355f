// Package models - registry for models.
package models

import (
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/yolov3"
	"github.com/pkg/errors"
)

// preset is the built-in description of an architecture.
type preset struct {
	family   model.Family
	classes  int
	input    int
	anchors  func() yolov3.AnchorSet
	outputs  []model.Output
	activate bool
}

var presets = map[model.Name]preset{
	model.ModelNameYOLOv3: {
		family:  model.ModelFamilyCOCO,
		classes: 80,
		input:   416,
		anchors: yolov3.DefaultAnchors,
		outputs: []model.Output{
			{Name: "detector/yolo-v3/Conv_6/BiasAdd/YoloRegion", Side: 13},
			{Name: "detector/yolo-v3/Conv_14/BiasAdd/YoloRegion", Side: 26},
			{Name: "detector/yolo-v3/Conv_22/BiasAdd/YoloRegion", Side: 52},
		},
	},
	model.ModelNameYOLOv3Tiny: {
		family:  model.ModelFamilyCOCO,
		classes: 80,
		input:   416,
		anchors: yolov3.TinyAnchors,
		outputs: []model.Output{
			{Name: "detector/yolo-v3-tiny/Conv_9/BiasAdd/YoloRegion", Side: 13},
			{Name: "detector/yolo-v3-tiny/Conv_12/BiasAdd/YoloRegion", Side: 26},
		},
	},
}

// Names returns the registered architecture names.
func Names() []model.Name {
	return []model.Name{model.ModelNameYOLOv3, model.ModelNameYOLOv3Tiny}
}

// NewModel builds a model handle from a registered preset and the caller's overrides.
//
// Labels come from args.Labels when set, otherwise from the family's built-in set.
// The resulting handle is validated, so an anchor group missing for one of the
// outputs or a label count that disagrees with the class count is reported here,
// before any inference runs.
//
// Arguments:
//   - args: Model selection and overrides.
//
// Returns:
//   - *model.Handle: The validated handle.
//   - error: An error if the model is unknown or the configuration is inconsistent.
//
// Example:
//
// ```go
//
//	handle, err := NewModel(model.NewModelArgs{
//	    Name:   model.ModelNameYOLOv3,
//	    Path:   "/models/yolov3.xml",
//	    Labels: "/models/coco.labels",
//	})
//
// ```
func NewModel(args model.NewModelArgs) (*model.Handle, error) {
	p, ok := presets[args.Name]
	if !ok {
		return nil, errors.Errorf("unsupported model name: %s", args.Name)
	}

	handle := &model.Handle{
		Name:      args.Name,
		Family:    p.family,
		Path:      args.Path,
		Weights:   args.Weights,
		Coords:    yolov3.DefaultCoords,
		Classes:   p.classes,
		Anchors:   p.anchors(),
		Outputs:   p.outputs,
		Activate:  p.activate || args.Activate,
		Precision: args.Precision,
	}

	if args.Family != "" {
		handle.Family = args.Family
	}
	if args.Classes > 0 {
		handle.Classes = args.Classes
	}
	if len(args.Outputs) > 0 {
		handle.Outputs = args.Outputs
	}

	if len(args.Anchors) > 0 || len(args.AnchorOffsets) > 0 || args.AnchorsPerScale > 0 {
		flat := args.Anchors
		if len(flat) == 0 {
			for _, a := range handle.Anchors.Anchors {
				flat = append(flat, a.Width, a.Height)
			}
		}
		offsets := args.AnchorOffsets
		if len(offsets) == 0 {
			offsets = handle.Anchors.Offsets
		}
		perScale := args.AnchorsPerScale
		if perScale == 0 {
			perScale = handle.Anchors.PerScale
		}
		anchors, err := yolov3.NewAnchorSet(flat, perScale, offsets)
		if err != nil {
			return nil, errors.Wrap(err, "invalid anchor override")
		}
		handle.Anchors = anchors
	}

	if args.Preprocess != nil {
		handle.Preprocess = *args.Preprocess
	} else {
		width, height := p.input, p.input
		if args.InputWidth > 0 {
			width = args.InputWidth
		}
		if args.InputHeight > 0 {
			height = args.InputHeight
		}
		handle.Preprocess = *preprocess.GetYOLOv3Config(width, height)
	}
	handle.Preprocess.Name = string(args.Name)

	labels, err := resolveLabels(args.Labels, handle.Family)
	if err != nil {
		return nil, err
	}
	handle.Labels = labels

	if err := args.Precision.Validate(); err != nil {
		return nil, err
	}
	if err := handle.Validate(); err != nil {
		return nil, errors.Wrapf(err, "model %s", args.Name)
	}

	return handle, nil
}

func resolveLabels(path string, family model.Family) ([]string, error) {
	if path != "" {
		return LoadLabels(path)
	}
	return LookupLabels(family)
}
