package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases.
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float64
	}{
		{"Identical rectangles", Rect{0, 0, 100, 100}, Rect{0, 0, 100, 100}, 1.0},
		{"No overlap", Rect{0, 0, 100, 100}, Rect{200, 200, 300, 300}, 0.0},
		{"Touching edges", Rect{0, 0, 100, 100}, Rect{100, 0, 200, 100}, 0.0},
		{"Overlap on x only", Rect{0, 0, 100, 100}, Rect{50, 150, 150, 250}, 0.0},
		{"Quarter overlap", Rect{0, 0, 100, 100}, Rect{50, 50, 150, 150}, 2500.0 / 17500.0},
		{"Small overlap", Rect{0, 0, 100, 100}, Rect{90, 90, 190, 190}, 100.0 / 19900.0},
		{"One inside other", Rect{0, 0, 100, 100}, Rect{25, 25, 75, 75}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, 1e-9)

			// IoU(A, B) == IoU(B, A)
			assert.InDelta(t, result, CalculateIoU(tt.r2, tt.r1), 1e-12, "IoU should be symmetric")
		})
	}
}

// TestIoU_vs_ImageRectangle compares the implementation against image.Rectangle.
func TestIoU_vs_ImageRectangle(t *testing.T) {
	testCases := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"No overlap", Rect{0, 0, 100, 100}, Rect{200, 200, 300, 300}},
		{"Partial overlap", Rect{0, 0, 100, 100}, Rect{50, 50, 150, 150}},
		{"Full overlap", Rect{50, 50, 150, 150}, Rect{50, 50, 150, 150}},
		{"Large boxes", Rect{0, 0, 1920, 1080}, Rect{960, 540, 1920, 1080}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, imageRectangleIoU(tc.r1.Rectangle(), tc.r2.Rectangle()), CalculateIoU(tc.r1, tc.r2), 1e-9)
		})
	}
}

func imageRectangleIoU(r1, r2 image.Rectangle) float64 {
	intersect := r1.Intersect(r2)
	if intersect.Empty() {
		return 0
	}
	intersectArea := intersect.Dx() * intersect.Dy()
	union := r1.Dx()*r1.Dy() + r2.Dx()*r2.Dy() - intersectArea
	return float64(intersectArea) / float64(union)
}

// TestIoU_EdgeCases tests degenerate boxes and boundary conditions.
func TestIoU_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		r1   Rect
		r2   Rect
	}{
		{"Zero area rectangle 1", Rect{0, 0, 0, 0}, Rect{0, 0, 100, 100}},
		{"Zero area rectangle 2", Rect{0, 0, 100, 100}, Rect{50, 50, 50, 50}},
		{"Both zero area", Rect{0, 0, 0, 0}, Rect{0, 0, 0, 0}},
		{"Negative coordinates", Rect{-100, -100, 0, 0}, Rect{-50, -50, 50, 50}},
		{"Single pixel", Rect{0, 0, 1, 1}, Rect{0, 0, 1, 1}},
		{"Very large coordinates", Rect{0, 0, 999999, 999999}, Rect{500000, 500000, 999999, 999999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, result := range []float64{CalculateIoU(tt.r1, tt.r2), CalculateIoU(tt.r2, tt.r1)} {
				assert.GreaterOrEqual(t, result, 0.0)
				assert.LessOrEqual(t, result, 1.0)
			}
		})
	}
}

func TestRectDimensions(t *testing.T) {
	r := Rect{X1: 10, Y1: 20, X2: 40, Y2: 60}
	assert.Equal(t, 30, r.Width())
	assert.Equal(t, 40, r.Height())
	assert.Equal(t, 1200, r.Area())
	assert.Equal(t, 0, Rect{X1: 5, Y1: 5, X2: 1, Y2: 9}.Area())
	assert.Equal(t, image.Rect(10, 20, 40, 60), r.Rectangle())
}
