package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAwarenessBounds(t *testing.T) {
	a := NewAwareness(3)
	assert.Equal(t, uint32(1), a.Score())

	assert.Equal(t, uint32(1), a.Decrement(), "score never drops below 1")

	assert.Equal(t, uint32(2), a.Increment())
	assert.Equal(t, uint32(3), a.Increment())
	assert.Equal(t, uint32(3), a.Increment(), "score never exceeds max")

	assert.Equal(t, uint32(2), a.Decrement())
}

func TestNewAwarenessClampsMax(t *testing.T) {
	a := NewAwareness(0)
	assert.Equal(t, uint32(1), a.Max())
	assert.Equal(t, uint32(1), a.Increment())
}
