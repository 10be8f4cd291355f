package images

import (
	"math/rand"
	"testing"
)

func BenchmarkIoU_PartialOverlap(b *testing.B) {
	r1 := Rect{0, 0, 100, 100}
	r2 := Rect{50, 50, 150, 150}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(r1, r2)
	}
}

// BenchmarkIoU_RandomPairs approximates the all-pairs pass over a frame of candidates.
func BenchmarkIoU_RandomPairs(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	boxes := make([]Rect, 256)
	for i := range boxes {
		x, y := rng.Intn(1800), rng.Intn(1000)
		boxes[i] = Rect{x, y, x + 20 + rng.Intn(200), y + 20 + rng.Intn(200)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for a := range boxes {
			for c := a + 1; c < len(boxes); c++ {
				_ = CalculateIoU(boxes[a], boxes[c])
			}
		}
	}
}
