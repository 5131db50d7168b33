package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPin(t *testing.T) {
	pin := NewPin("0xA", -5, 7)

	assert.Equal(t, "0xa", pin.NodeID)
	assert.Equal(t, -5.0, pin.X)
	assert.Equal(t, 7.0, pin.Y)
	assert.True(t, pin.Pinned)
}

func TestPinSetLookup(t *testing.T) {
	pins := PinSet{
		"0xa": NewPin("0xa", 1, 2),
		"0xb": {NodeID: "0xb", X: 3, Y: 4},
	}

	pos, ok := pins.Lookup("0xa")
	assert.True(t, ok)
	assert.Equal(t, 1.0, pos.X)

	_, ok = pins.Lookup("0xb")
	assert.False(t, ok, "unpinned entries are not pins")

	_, ok = pins.Lookup("0xc")
	assert.False(t, ok)
}
