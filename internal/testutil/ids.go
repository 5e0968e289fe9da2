package testutil

import (
	"fmt"
	"sync"
)

// FixedInstanceID is an instance ID generator that always returns itself.
// An empty value generates "test-instance".
type FixedInstanceID string

// Generate returns the fixed id.
func (id FixedInstanceID) Generate() string {
	if id == "" {
		return "test-instance"
	}
	return string(id)
}

// SequentialIDs generates "<prefix>-1", "<prefix>-2", ... for tests that
// create several instances of one machine.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator with the given prefix.
func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
