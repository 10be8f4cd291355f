// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
)

// DefaultIoUThreshold is the overlap at which a later candidate is suppressed.
const DefaultIoUThreshold = 0.4

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap at or above which the later candidate is zeroed.
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// ClassAware restricts suppression to candidates of the same class.
	ClassAware bool `json:"class_aware" yaml:"class_aware"`
	// RankByConfidence visits candidates in descending confidence instead of input order.
	RankByConfidence bool `json:"rank_by_confidence" yaml:"rank_by_confidence"`
}

// DefaultNMSConfig returns the positional, cross-class configuration.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: DefaultIoUThreshold}
}

// Validate checks the threshold range.
func (c NMSConfig) Validate() error {
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Errorf("iou threshold must be in (0, 1], got %v", c.IoUThreshold)
	}
	return nil
}

// Suppress applies greedy Non-Maximum Suppression in place.
//
// By default candidates are visited in input order: for every pair i < j where i is
// still live, j is zeroed when IoU(box_i, box_j) >= IoUThreshold. The earlier candidate
// always wins, regardless of class or confidence. Boxes are compared in source pixels.
//
// Arguments:
//   - candidates: The concatenated decoder output. Confidences are modified in place.
//   - config: NMS configuration.
//
// Returns:
//   - int: The number of candidates zeroed by this call.
func Suppress(candidates []Candidate, config NMSConfig) int {
	n := len(candidates)
	if n < 2 {
		return 0
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if config.RankByConfidence {
		sort.SliceStable(order, func(a, b int) bool {
			return candidates[order[a]].Confidence > candidates[order[b]].Confidence
		})
	}

	boxes := make([]images.Rect, n)
	for i := range candidates {
		boxes[i] = candidates[i].Box()
	}

	suppressed := 0
	for a := 0; a < n; a++ {
		i := order[a]
		if candidates[i].Confidence == 0 {
			continue
		}

		for b := a + 1; b < n; b++ {
			j := order[b]
			if candidates[j].Confidence == 0 {
				continue
			}
			if config.ClassAware && candidates[i].Class != candidates[j].Class {
				continue
			}
			if images.CalculateIoU(boxes[i], boxes[j]) >= config.IoUThreshold {
				candidates[j].Confidence = 0
				suppressed++
			}
		}
	}

	return suppressed
}
