package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// abcSpec declares states A, B, C and signals X, Y with calling-thread
// dispatch.
func abcSpec(conns ...ir.Connection) ir.MachineSpec {
	return ir.MachineSpec{
		Name:            "ABC",
		Dispatch:        ir.DefaultDispatchMode(),
		States:          []string{"A", "B", "C"},
		Signals:         []string{"X", "Y"},
		Connections:     conns,
		StatesDeclared:  true,
		SignalsDeclared: true,
	}
}

func buildModel(t *testing.T, spec ir.MachineSpec) *compiler.Model {
	t.Helper()
	res := compiler.Build(spec)
	require.True(t, res.OK(), "%v", res.Err())
	return res.Model
}

// bindAll fills every unbound guard with Always(true) and every unbound
// callback with Noop.
func bindAll(m *compiler.Model, h *Handlers) *Handlers {
	if h == nil {
		h = NewHandlers()
	}
	for _, c := range m.Connections() {
		if _, ok := h.Guards[c.GuardRef()]; !ok {
			h.Guard(c.GuardRef(), Always(true))
		}
	}
	for _, cb := range m.Callbacks() {
		if _, ok := h.Callbacks[cb.Name]; !ok {
			h.Callback(cb.Name, Noop)
		}
	}
	return h
}

// recordingListener captures listener events as strings.
type recordingListener struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (l *recordingListener) OnDispatchingSignal(state, signal string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("dispatch %s:%s", state, signal))
}

func (l *recordingListener) OnChangingState(from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf("change %s->%s", from, to))
}

func (l *recordingListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
	l.events = append(l.events, "error")
}

func (l *recordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingListener) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// testMachine bundles a machine with its observers.
type testMachine struct {
	*Machine
	listener *recordingListener
	recorder *memoryRecorder
}

func newTestMachine(t *testing.T, spec ir.MachineSpec, h *Handlers, opts ...Option) *testMachine {
	t.Helper()
	model := buildModel(t, spec)
	l := &recordingListener{}
	rec := &memoryRecorder{}
	opts = append([]Option{
		WithListener(l),
		WithRecorder(rec),
		WithInstanceID("test-instance"),
		WithLogger(discardLogger()),
	}, opts...)
	m, err := New(model, bindAll(model, h), opts...)
	require.NoError(t, err)
	return &testMachine{Machine: m, listener: l, recorder: rec}
}

func (tm *testMachine) Records() []ir.DispatchRecord {
	tm.recorder.mu.Lock()
	defer tm.recorder.mu.Unlock()
	return append([]ir.DispatchRecord(nil), tm.recorder.records...)
}

func failingGuard(msg string) Guard {
	return func(context.Context, ir.Payload) (bool, error) { return false, errors.New(msg) }
}

func failingCallback(msg string) Callback {
	return func(context.Context) error { return errors.New(msg) }
}

func runtimeCode(t *testing.T, err error) RuntimeErrorCode {
	t.Helper()
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	return re.Code
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
