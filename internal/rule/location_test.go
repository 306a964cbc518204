package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLocationDefaults(t *testing.T) {
	loc := NewLocation(0x1234, 5)
	assert.Equal(t, uint64(0x1234), loc.Offset())
	assert.Equal(t, uint8(5), loc.Size())
	assert.False(t, loc.Emitted())
	assert.False(t, loc.Patch())
	assert.False(t, loc.HasAction())
	assert.Equal(t, ActionSentinel, loc.Action())
}

func TestLocationWithEmitted(t *testing.T) {
	loc := NewLocation(0, 1)
	loc = loc.WithEmitted(true)
	assert.True(t, loc.Emitted())
	loc = loc.WithEmitted(false)
	assert.False(t, loc.Emitted())
}

func TestLocationWithPatch(t *testing.T) {
	loc := NewLocation(0, 1)
	loc = loc.WithPatch(true)
	assert.True(t, loc.Patch())
}

func TestLocationWithAction(t *testing.T) {
	loc := NewLocation(0, 1)
	loc = loc.WithAction(42)
	assert.Equal(t, 42, loc.Action())
	assert.True(t, loc.HasAction())
}

func TestLocationFieldsAreIndependent(t *testing.T) {
	loc := NewLocation(0xdeadbeef, 15)
	loc = loc.WithPatch(true).WithEmitted(true).WithAction(7)

	assert.Equal(t, uint64(0xdeadbeef), loc.Offset())
	assert.Equal(t, uint8(15), loc.Size())
	assert.True(t, loc.Patch())
	assert.True(t, loc.Emitted())
	assert.Equal(t, 7, loc.Action())
}

func TestLocationOffsetMax48Bits(t *testing.T) {
	const max48 = (uint64(1) << 48) - 1
	loc := NewLocation(max48, 15)
	assert.Equal(t, max48, loc.Offset())
}
