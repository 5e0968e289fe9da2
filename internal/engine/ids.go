package engine

import (
	"sync"

	"github.com/google/uuid"
)

// InstanceIDGenerator generates identifiers for machine instances.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type InstanceIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 instance IDs, so journal
// rows sort by instance creation time.
//
// UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs for tests and golden traces.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("door-1", "door-2")
//	gen.Generate() // "door-1"
//	gen.Generate() // "door-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics once every id has been used.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
