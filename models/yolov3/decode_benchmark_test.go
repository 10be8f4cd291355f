package yolov3

import (
	"math/rand"
	"testing"
)

// BenchmarkDecode decodes a full 13x13 output with roughly one live anchor in twenty.
func BenchmarkDecode(b *testing.B) {
	const side = 13
	out, data := regionTensor(side)

	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 3; n++ {
		for row := 0; row < side; row++ {
			for col := 0; col < side; col++ {
				set(data, side, n, row, col, 0, rng.Float32())
				set(data, side, n, row, col, 1, rng.Float32())
				if rng.Intn(20) == 0 {
					set(data, side, n, row, col, 4, 0.95)
					set(data, side, n, row, col, 5, 0.9)
				}
			}
		}
	}

	a := args(1920, 1080)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(out, a); err != nil {
			b.Fatal(err)
		}
	}
}
