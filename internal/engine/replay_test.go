package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
)

func replaySpec() ir.MachineSpec {
	return abcSpec(
		ir.NewConnection("go", "A", "B", "X"),
		ir.NewAutoConnection("settle", "B", "C"),
		ir.NewConnection("reset", "*", "A", "Y"),
	)
}

func journal(t *testing.T, h *Handlers) []ir.DispatchRecord {
	t.Helper()
	ctx := context.Background()
	m := newTestMachine(t, replaySpec(), h)
	m.Init(ctx, "A")
	m.Send(ctx, "X", ir.NewPayload(ir.P("n", ir.Int(1))))
	m.Send(ctx, "Y", nil)
	return m.Records()
}

func TestReplay_Deterministic(t *testing.T) {
	records := journal(t, nil)
	require.Len(t, records, 4)

	model := buildModel(t, replaySpec())
	res, err := Replay(context.Background(), model, bindAll(model, nil), records, WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.True(t, res.Deterministic(), "%v", res.Divergences)
	assert.Equal(t, "test-instance", res.InstanceID)
	require.Len(t, res.Replayed, 4)
	for i := range records {
		assert.Equal(t, records[i].Seq, res.Replayed[i].Seq)
	}
}

func TestReplay_ReportsDivergence(t *testing.T) {
	records := journal(t, nil)

	model := buildModel(t, replaySpec())
	h := bindAll(model, NewHandlers().Guard("settle", Always(false)))
	res, err := Replay(context.Background(), model, h, records, WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.False(t, res.Deterministic())
	fields := make([]string, len(res.Divergences))
	for i, d := range res.Divergences {
		fields[i] = d.Field
	}
	assert.Contains(t, fields, "kind")
	assert.Contains(t, fields, "record")
}

func TestReplay_Empty(t *testing.T) {
	model := buildModel(t, replaySpec())
	res, err := Replay(context.Background(), model, bindAll(model, nil), nil)
	require.NoError(t, err)
	assert.True(t, res.Deterministic())
}

func TestReplay_MixedInstances(t *testing.T) {
	records := journal(t, nil)
	records[2].InstanceID = "other"

	model := buildModel(t, replaySpec())
	_, err := Replay(context.Background(), model, bindAll(model, nil), records, WithLogger(discardLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to instance other")
}

func TestReplay_StartsLoopForMainThreadWork(t *testing.T) {
	ctx := context.Background()
	c := ir.NewConnection("go", "A", "B", "X")
	c.RunOnMainThread = true
	spec := abcSpec(c)

	m := newTestMachine(t, spec, nil, WithMainLoop(startLoop(t)))
	m.Init(ctx, "A")
	m.Send(ctx, "X", nil)
	records := m.Records()
	require.Len(t, records, 2)

	model := buildModel(t, spec)
	res, err := Replay(ctx, model, bindAll(model, nil), records, WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.True(t, res.Deterministic(), "%v", res.Divergences)
}
