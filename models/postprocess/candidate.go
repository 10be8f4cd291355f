// Package postprocess - Postprocessing utilities for detection models.
package postprocess

import "github.com/nvr-ai/go-detect/images"

// Candidate is one decoded (cell, anchor, class) proposal.
//
// The geometry is kept in model-input pixel space. ScaleX and ScaleY map it back to
// the source image (source size / model input size).
type Candidate struct {
	// CX, CY are the box center in model-input pixels.
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	// W, H are the box size in model-input pixels.
	W float64 `json:"w"`
	H float64 `json:"h"`
	// Class is the class index in [0, K).
	Class int `json:"class"`
	// Confidence is objectness * class probability. Zero marks a suppressed entry.
	Confidence float64 `json:"confidence"`
	// ScaleX, ScaleY convert model-input pixels to source pixels.
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

// Box maps the candidate to a source-image pixel box.
//
// The corners are truncated toward zero and the far corner is derived from the near
// corner plus the scaled size, so xmax-xmin always equals int(w*ScaleX) rounding aside.
func (c Candidate) Box() images.Rect {
	xmin := int((c.CX - c.W/2) * c.ScaleX)
	ymin := int((c.CY - c.H/2) * c.ScaleY)
	return images.Rect{
		X1: xmin,
		Y1: ymin,
		X2: int(float64(xmin) + c.W*c.ScaleX),
		Y2: int(float64(ymin) + c.H*c.ScaleY),
	}
}

// Suppressed reports whether the candidate was zeroed by NMS.
func (c Candidate) Suppressed() bool {
	return c.Confidence == 0
}

// Detection is a surviving candidate with its source-space box and resolved label.
type Detection struct {
	Candidate
	// Box is the source-image pixel box.
	Box images.Rect `json:"box"`
	// Label is the human-readable class name.
	Label string `json:"label"`
}
