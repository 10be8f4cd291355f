package detector

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"
)

// AnnotateOptions controls how detections are drawn.
type AnnotateOptions struct {
	// Outline is the box and label background colour.
	Outline color.RGBA
	// Text is the label text colour.
	Text color.RGBA
	// LineWidth is the outline width in pixels.
	LineWidth float64
	// FontSize is the label size in points.
	FontSize float64
}

// DefaultAnnotateOptions draws a 2px white outline with black 10pt labels.
func DefaultAnnotateOptions() AnnotateOptions {
	return AnnotateOptions{
		Outline:   color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Text:      color.RGBA{A: 255},
		LineWidth: 2,
		FontSize:  10,
	}
}

// Annotator draws detections onto a copy of the source image. It is safe for
// concurrent use: each call rasterizes labels with its own font.Face.
type Annotator struct {
	options AnnotateOptions
	font    *truetype.Font
}

// NewAnnotator parses the Go Regular font.
func NewAnnotator(options AnnotateOptions) (*Annotator, error) {
	if options.LineWidth <= 0 || options.FontSize <= 0 {
		return nil, errors.Errorf("line width and font size must be positive, got %v and %v",
			options.LineWidth, options.FontSize)
	}

	ttf, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse label font")
	}

	return &Annotator{
		options: options,
		font:    ttf,
	}, nil
}

// Annotate returns a copy of src with every detection drawn in order.
//
// Each detection gets an outline at its box, a filled strip above the box from
// (xmin-1, ymin-14) to (xmax+1, ymin-1) and the text " label (xx.xx%)" at
// (xmin+3, ymin-4). Later detections draw over earlier ones. src is not modified.
func (a *Annotator) Annotate(src image.Image, detections []postprocess.Detection) image.Image {
	face := truetype.NewFace(a.font, &truetype.Options{Size: a.options.FontSize})
	defer face.Close()

	dc := gg.NewContextForImage(src)
	dc.SetFontFace(face)

	for _, det := range detections {
		box := det.Box

		dc.SetColor(a.options.Outline)
		dc.SetLineWidth(a.options.LineWidth)
		dc.DrawRectangle(float64(box.X1), float64(box.Y1), float64(box.Width()), float64(box.Height()))
		dc.Stroke()

		dc.DrawRectangle(float64(box.X1-1), float64(box.Y1-14), float64(box.Width()+2), 13)
		dc.Fill()

		dc.SetColor(a.options.Text)
		dc.DrawString(Caption(det), float64(box.X1+3), float64(box.Y1-4))
	}

	return dc.Image()
}

// Caption is the label text drawn above a detection.
func Caption(det postprocess.Detection) string {
	return fmt.Sprintf(" %s (%0.2f%%)", det.Label, det.Confidence*100)
}
