package yolov3

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrMalformedTensor is returned when an output does not have the region layout.
var ErrMalformedTensor = errors.New("malformed region tensor")

// DefaultThreshold is the objectness and per-class confidence floor used while decoding.
const DefaultThreshold = 0.7

// DefaultCoords is the number of box coordinates per anchor (tx, ty, tw, th).
const DefaultCoords = 4

// DecodeArgs carries everything the decoder needs besides the tensor itself.
type DecodeArgs struct {
	Anchors       AnchorSet
	Coords        int
	Classes       int
	Threshold     float64
	ResizedWidth  int
	ResizedHeight int
	SourceWidth   int
	SourceHeight  int
	// Activate applies the logistic function to tx, ty, objectness and class scores.
	// Leave it off for outputs that already went through a region layer.
	Activate bool
}

func (a DecodeArgs) validate() error {
	if a.Coords <= 0 || a.Classes <= 0 {
		return errors.Errorf("coords and classes must be positive, got %d and %d", a.Coords, a.Classes)
	}
	if a.ResizedWidth <= 0 || a.ResizedHeight <= 0 || a.SourceWidth <= 0 || a.SourceHeight <= 0 {
		return errors.Errorf("invalid dimensions: resized %dx%d, source %dx%d",
			a.ResizedWidth, a.ResizedHeight, a.SourceWidth, a.SourceHeight)
	}
	return nil
}

// EntryIndex locates a field inside a flattened region output.
//
// The output is laid out as [anchor][field][cell], where field 0..coords-1 are box
// terms, field coords is objectness and the classes follow.
//
// Arguments:
//   - side: The grid side S.
//   - coords: Box terms per anchor.
//   - classes: Number of classes K.
//   - location: n*S*S + cell, where n is the anchor within the group.
//   - entry: The field index.
//
// Returns:
//   - int: The flat offset.
func EntryIndex(side, coords, classes, location, entry int) int {
	area := side * side
	n := location / area
	loc := location % area
	return n*area*(coords+classes+1) + entry*area + loc
}

// Decode turns one region output into candidates in model-input pixel space.
//
// Cells are visited row-major, then anchors in group order, then classes ascending.
// A cell/anchor whose objectness is below the threshold is skipped without reading its
// class scores; otherwise one candidate is emitted per class whose objectness times
// class score reaches the threshold.
//
// Arguments:
//   - t: A float32 tensor shaped (1, A*(coords+K+1), S, S).
//   - args: Decoding parameters.
//
// Returns:
//   - []postprocess.Candidate: Candidates in emission order.
//   - error: ErrUnknownSide, ErrMalformedTensor or an argument error.
func Decode(t tensor.Tensor, args DecodeArgs) ([]postprocess.Candidate, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrap(ErrMalformedTensor, "nil tensor")
	}

	shape := t.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[2] != shape[3] || shape[2] <= 0 {
		return nil, errors.Wrapf(ErrMalformedTensor, "unexpected shape %v", shape)
	}
	side := shape[2]

	anchors, err := args.Anchors.Group(side)
	if err != nil {
		return nil, err
	}

	blob, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedTensor, "expected float32 data, got %T", t.Data())
	}

	fields := args.Coords + args.Classes + 1
	if shape[1] != len(anchors)*fields {
		return nil, errors.Wrapf(ErrMalformedTensor, "%d channels, want %d anchors x %d fields",
			shape[1], len(anchors), fields)
	}
	area := side * side
	if len(blob) < shape[1]*area {
		return nil, errors.Wrapf(ErrMalformedTensor, "%d values for shape %v", len(blob), shape)
	}

	activate := func(v float32) float32 { return v }
	if args.Activate {
		activate = logistic
	}

	scaleX := float64(args.SourceWidth) / float64(args.ResizedWidth)
	scaleY := float64(args.SourceHeight) / float64(args.ResizedHeight)

	var candidates []postprocess.Candidate
	for i := 0; i < area; i++ {
		row := i / side
		col := i % side

		for n, anchor := range anchors {
			location := n*area + i

			objectness := float64(activate(blob[EntryIndex(side, args.Coords, args.Classes, location, args.Coords)]))
			if objectness < args.Threshold {
				continue
			}

			box := EntryIndex(side, args.Coords, args.Classes, location, 0)
			tx := float64(activate(blob[box]))
			ty := float64(activate(blob[box+area]))
			tw := float64(blob[box+2*area])
			th := float64(blob[box+3*area])

			cx := (float64(col) + tx) / float64(side) * float64(args.ResizedWidth)
			cy := (float64(row) + ty) / float64(side) * float64(args.ResizedHeight)
			w := math.Exp(tw) * anchor.Width
			h := math.Exp(th) * anchor.Height

			for j := 0; j < args.Classes; j++ {
				class := float64(activate(blob[EntryIndex(side, args.Coords, args.Classes, location, args.Coords+1+j)]))
				confidence := objectness * class
				if confidence < args.Threshold {
					continue
				}

				candidates = append(candidates, postprocess.Candidate{
					CX:         cx,
					CY:         cy,
					W:          w,
					H:          h,
					Class:      j,
					Confidence: confidence,
					ScaleX:     scaleX,
					ScaleY:     scaleY,
				})
			}
		}
	}

	return candidates, nil
}

func logistic(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}
