package postprocess

import "github.com/samber/lo"

// DefaultDisplayThreshold is the minimum confidence reported to clients.
const DefaultDisplayThreshold = 0.2

// FilterByConfidence keeps live candidates whose confidence is at least minimum.
//
// Suppressed (zeroed) candidates are always dropped, even when minimum is 0.
// The relative order of the survivors is preserved.
func FilterByConfidence(candidates []Candidate, minimum float64) []Candidate {
	return lo.Filter(candidates, func(c Candidate, _ int) bool {
		return c.Confidence > 0 && c.Confidence >= minimum
	})
}
