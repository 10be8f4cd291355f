package detector

import (
	"image/color"
	"sync"
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaption(t *testing.T) {
	det := postprocess.Detection{Candidate: postprocess.Candidate{Confidence: 0.8123}, Label: "dog"}
	assert.Equal(t, " dog (81.23%)", Caption(det))
}

func TestAnnotate(t *testing.T) {
	a, err := NewAnnotator(DefaultAnnotateOptions())
	require.NoError(t, err)

	src := solid(100, 100)
	det := postprocess.Detection{
		Candidate: postprocess.Candidate{Confidence: 0.9},
		Box:       images.Rect{X1: 10, Y1: 40, X2: 95, Y2: 90},
		Label:     "a",
	}

	out := a.Annotate(src, []postprocess.Detection{det})
	assert.Equal(t, src.Bounds(), out.Bounds())

	r, _, _, _ := out.At(10, 60).RGBA()
	assert.Greater(t, r, uint32(0x8000), "left edge of the outline")

	r, _, _, _ = out.At(93, 30).RGBA()
	assert.Greater(t, r, uint32(0x8000), "label strip above the box")

	r, _, _, _ = out.At(50, 65).RGBA()
	assert.Zero(t, r, "box interior is untouched")

	assert.Equal(t, color.RGBA{A: 255}, src.RGBAAt(10, 60))
}

func TestAnnotateNoDetections(t *testing.T) {
	a, err := NewAnnotator(DefaultAnnotateOptions())
	require.NoError(t, err)

	out := a.Annotate(solid(10, 10), nil)
	r, g, b, _ := out.At(5, 5).RGBA()
	assert.Zero(t, r+g+b)
}

func TestNewAnnotatorRejectsBadOptions(t *testing.T) {
	opts := DefaultAnnotateOptions()
	opts.FontSize = 0
	_, err := NewAnnotator(opts)
	assert.Error(t, err)
}

// TestAnnotateConcurrent shares one Annotator across goroutines; run with -race.
func TestAnnotateConcurrent(t *testing.T) {
	a, err := NewAnnotator(DefaultAnnotateOptions())
	require.NoError(t, err)

	src := solid(120, 120)
	dets := []postprocess.Detection{
		{Candidate: postprocess.Candidate{Confidence: 0.9}, Box: images.Rect{X1: 10, Y1: 40, X2: 95, Y2: 90}, Label: "person"},
		{Candidate: postprocess.Candidate{Confidence: 0.5}, Box: images.Rect{X1: 30, Y1: 20, X2: 60, Y2: 50}, Label: "car"},
	}
	want := a.Annotate(src, dets)

	const workers, iterations = 8, 20
	var wg sync.WaitGroup
	mismatches := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				out := a.Annotate(src, dets)
				for _, p := range [][2]int{{10, 60}, {93, 30}, {40, 25}, {50, 65}} {
					if out.At(p[0], p[1]) != want.At(p[0], p[1]) {
						mismatches[w]++
					}
				}
			}
		}(w)
	}
	wg.Wait()

	for w, n := range mismatches {
		assert.Zero(t, n, "worker %d", w)
	}
}
