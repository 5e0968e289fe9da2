package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	id := UUIDv7Generator{}.Generate()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for range 1000 {
		id := gen.Generate()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFixedGenerator_InOrder(t *testing.T) {
	gen := NewFixedGenerator("door-1", "door-2")

	assert.Equal(t, "door-1", gen.Generate())
	assert.Equal(t, "door-2", gen.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { gen.Generate() })
}
