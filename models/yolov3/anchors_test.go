package yolov3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAnchorGroups(t *testing.T) {
	set := DefaultAnchors()
	require.NoError(t, set.Validate())

	tests := []struct {
		side  int
		first Anchor
	}{
		{13, Anchor{116, 90}},
		{26, Anchor{30, 61}},
		{52, Anchor{10, 13}},
	}

	for _, tt := range tests {
		group, err := set.Group(tt.side)
		require.NoError(t, err)
		assert.Len(t, group, 3)
		assert.Equal(t, tt.first, group[0], "side %d", tt.side)
	}

	assert.Equal(t, []int{13, 26, 52}, set.Sides())
}

func TestTinyAnchorGroups(t *testing.T) {
	set := TinyAnchors()

	group, err := set.Group(13)
	require.NoError(t, err)
	assert.Equal(t, []Anchor{{81, 82}, {135, 169}, {344, 319}}, group)

	group, err = set.Group(26)
	require.NoError(t, err)
	assert.Equal(t, []Anchor{{23, 27}, {37, 58}, {81, 82}}, group)

	_, err = set.Group(52)
	assert.ErrorIs(t, err, ErrUnknownSide)
}

func TestNewAnchorSetErrors(t *testing.T) {
	_, err := NewAnchorSet([]float64{10, 13, 16}, 1, map[int]int{13: 0})
	assert.Error(t, err, "odd list")

	_, err = NewAnchorSet(COCOAnchors, 3, map[int]int{13: 7})
	assert.Error(t, err, "group past the end")

	_, err = NewAnchorSet(COCOAnchors, 0, map[int]int{13: 0})
	assert.Error(t, err, "zero per scale")

	_, err = NewAnchorSet(COCOAnchors, 3, nil)
	assert.Error(t, err, "no sides")

	_, err = NewAnchorSet([]float64{10, -1}, 1, map[int]int{13: 0})
	assert.Error(t, err, "negative size")
}
