package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/engine"
	"github.com/roach88/statewire/internal/ir"
)

var (
	_ engine.InstanceIDGenerator = FixedInstanceID("")
	_ engine.InstanceIDGenerator = (*SequentialIDs)(nil)
)

func TestFixedInstanceID(t *testing.T) {
	assert.Equal(t, "door-1", FixedInstanceID("door-1").Generate())
	assert.Equal(t, "door-1", FixedInstanceID("door-1").Generate())
	assert.Equal(t, "test-instance", FixedInstanceID("").Generate())
}

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("door")

	assert.Equal(t, "door-1", gen.Generate())
	assert.Equal(t, "door-2", gen.Generate())
	assert.Equal(t, "door-3", gen.Generate())
}

func TestFixedInstanceIDNamesMachine(t *testing.T) {
	res := compiler.Build(ir.MachineSpec{
		Name:            "ABC",
		Dispatch:        ir.DispatchMode{Affinity: ir.CallingThread},
		StatesDeclared:  true,
		States:          []string{"A", "B"},
		SignalsDeclared: true,
		Signals:         []string{"X"},
		Connections:     []ir.Connection{ir.NewConnection("go", "A", "B", "X")},
	})
	require.NoError(t, res.Err())

	m, err := engine.New(res.Model, engine.NewHandlers().Guard("go", engine.Always(true)),
		engine.WithIDGenerator(FixedInstanceID("abc-1")),
		engine.WithExecutor(engine.CallingThread{}),
	)
	require.NoError(t, err)
	assert.Equal(t, "abc-1", m.InstanceID())
}
