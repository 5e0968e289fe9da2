package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
)

func TestMetrics_CountDispatches(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	h := NewHandlers().Guard("bad", failingGuard("no"))
	m := newTestMachine(t, abcSpec(
		ir.NewConnection("go", "A", "B", "X"),
		ir.NewConnection("spy", "*", "*", "*"),
		ir.NewConnection("bad", "B", "C", "X"),
	), h, WithMetrics(metrics))

	m.Init(ctx, "A")
	m.Send(ctx, "X", nil) // A -> B
	m.Send(ctx, "Y", nil) // ignored
	m.Send(ctx, "X", nil) // guard error

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches().WithLabelValues("ABC", "init", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches().WithLabelValues("ABC", "signal", "transitioned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches().WithLabelValues("ABC", "signal", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dispatches().WithLabelValues("ABC", "signal", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Transitions().WithLabelValues("ABC", "A", "B")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SpiesFired().WithLabelValues("ABC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors().WithLabelValues("ABC", "GUARD_FAILED")))
}

func TestMetrics_ErrorCodeOfWrappedRuntimeError(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := newTestMachine(t, abcSpec(ir.NewConnection("go", "A", "B", "X")), nil, WithMetrics(metrics))

	m.fail(fmt.Errorf("dispatch: %w", &RuntimeError{Code: ErrCodeCallbackFailed, Message: "boom"}))
	m.fail(errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors().WithLabelValues("ABC", "CALLBACK_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors().WithLabelValues("ABC", "UNKNOWN")))
}

func TestMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	// registering a second set on the same registry must collide
	assert.Panics(t, func() { NewMetrics(reg) })

	// nil registerer leaves collectors unregistered
	require.NotPanics(t, func() { NewMetrics(nil) })
}
