package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0, Clamp(-1, 0, 5))
	assert.Equal(t, 2.5, Clamp(2.5, 5.0, 0.0))
}

func TestBetween(t *testing.T) {
	assert.True(t, Between(5, 5, 10))
	assert.True(t, Between(7, 10, 5))
	assert.False(t, Between(11, 5, 10))
}

func TestMax(t *testing.T) {
	assert.Equal(t, uint32(3), Max(uint32(3), 1))
}
