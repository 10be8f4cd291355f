// Package yolov3 decodes raw YOLOv3 region outputs into detection candidates.
package yolov3

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownSide is returned when an output grid side has no anchor group.
var ErrUnknownSide = errors.New("no anchor group configured for grid side")

// Anchor is a prior box size in model-input pixels.
type Anchor struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// AnchorSet maps every output grid side to a contiguous group of anchors.
type AnchorSet struct {
	// Anchors are the ordered prior sizes.
	Anchors []Anchor `json:"anchors" yaml:"anchors"`
	// PerScale is the number of anchors predicted per cell at each scale.
	PerScale int `json:"per_scale" yaml:"per_scale"`
	// Offsets maps a grid side to the index of the first anchor of its group.
	Offsets map[int]int `json:"offsets" yaml:"offsets"`
}

// NewAnchorSet builds an anchor set from a flat w,h list.
//
// Arguments:
//   - flat: Anchor sizes as w0,h0,w1,h1,...
//   - perScale: Anchors per cell.
//   - offsets: Grid side to first-anchor index.
//
// Returns:
//   - AnchorSet: The validated set.
//   - error: An error if the list is odd-sized or an offset is out of range.
func NewAnchorSet(flat []float64, perScale int, offsets map[int]int) (AnchorSet, error) {
	if len(flat)%2 != 0 {
		return AnchorSet{}, errors.Errorf("anchor list must hold w,h pairs, got %d values", len(flat))
	}

	anchors := make([]Anchor, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		anchors = append(anchors, Anchor{Width: flat[i], Height: flat[i+1]})
	}

	set := AnchorSet{Anchors: anchors, PerScale: perScale, Offsets: offsets}
	if err := set.Validate(); err != nil {
		return AnchorSet{}, err
	}
	return set, nil
}

// Validate checks that every configured group lies inside the anchor list.
func (s AnchorSet) Validate() error {
	if s.PerScale <= 0 {
		return errors.Errorf("anchors per scale must be positive, got %d", s.PerScale)
	}
	if len(s.Offsets) == 0 {
		return errors.New("anchor set has no grid sides")
	}
	for _, a := range s.Anchors {
		if a.Width <= 0 || a.Height <= 0 {
			return errors.Errorf("anchor sizes must be positive, got %vx%v", a.Width, a.Height)
		}
	}
	for side, offset := range s.Offsets {
		if side <= 0 {
			return errors.Errorf("grid side must be positive, got %d", side)
		}
		if offset < 0 || offset+s.PerScale > len(s.Anchors) {
			return errors.Errorf("anchor group for side %d (offset %d, %d anchors) exceeds %d anchors",
				side, offset, s.PerScale, len(s.Anchors))
		}
	}
	return nil
}

// Group returns the anchors used by an output of the given grid side.
func (s AnchorSet) Group(side int) ([]Anchor, error) {
	offset, ok := s.Offsets[side]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSide, "side %d", side)
	}
	if offset < 0 || offset+s.PerScale > len(s.Anchors) {
		return nil, errors.Errorf("anchor group for side %d out of range", side)
	}
	return s.Anchors[offset : offset+s.PerScale], nil
}

// Sides returns the configured grid sides, coarsest first.
func (s AnchorSet) Sides() []int {
	sides := make([]int, 0, len(s.Offsets))
	for side := range s.Offsets {
		sides = append(sides, side)
	}
	sort.Ints(sides)
	return sides
}

// COCOAnchors are the YOLOv3-416 priors trained on COCO.
var COCOAnchors = []float64{10, 13, 16, 30, 33, 23, 30, 61, 62, 45, 59, 119, 116, 90, 156, 198, 373, 326}

// TinyCOCOAnchors are the YOLOv3-tiny priors trained on COCO.
var TinyCOCOAnchors = []float64{10, 14, 23, 27, 37, 58, 81, 82, 135, 169, 344, 319}

// DefaultAnchors returns the YOLOv3 anchor set: the 13x13 grid uses the largest
// priors and the 52x52 grid the smallest.
func DefaultAnchors() AnchorSet {
	set, _ := NewAnchorSet(COCOAnchors, 3, map[int]int{13: 6, 26: 3, 52: 0})
	return set
}

// TinyAnchors returns the YOLOv3-tiny anchor set.
func TinyAnchors() AnchorSet {
	set, _ := NewAnchorSet(TinyCOCOAnchors, 3, map[int]int{13: 3, 26: 1})
	return set
}
