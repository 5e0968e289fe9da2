package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/statewire/internal/ir"
)

// EventListener observes a machine. Methods are called on the dispatch
// goroutine and must not block for long.
type EventListener interface {
	OnDispatchingSignal(state, signal string)
	OnChangingState(from, to string)
	OnError(err error)
}

// NullListener ignores every event.
type NullListener struct{}

func (NullListener) OnDispatchingSignal(string, string) {}
func (NullListener) OnChangingState(string, string)     {}
func (NullListener) OnError(error)                      {}

// Listeners fans events out to several listeners in order.
type Listeners []EventListener

func (ls Listeners) OnDispatchingSignal(state, signal string) {
	for _, l := range ls {
		l.OnDispatchingSignal(state, signal)
	}
}

func (ls Listeners) OnChangingState(from, to string) {
	for _, l := range ls {
		l.OnChangingState(from, to)
	}
}

func (ls Listeners) OnError(err error) {
	for _, l := range ls {
		l.OnError(err)
	}
}

// SlogListener logs machine events.
type SlogListener struct {
	Logger  *slog.Logger
	Machine string
}

func (l SlogListener) OnDispatchingSignal(state, signal string) {
	l.Logger.Debug("dispatching signal", "machine", l.Machine, "state", state, "signal", signal)
}

func (l SlogListener) OnChangingState(from, to string) {
	l.Logger.Info("changing state", "machine", l.Machine, "from", from, "to", to)
}

func (l SlogListener) OnError(err error) {
	l.Logger.Error("dispatch failed", "machine", l.Machine, "err", err)
}

// Recorder receives one record per dispatch cycle, in seq order.
type Recorder interface {
	Record(ctx context.Context, rec ir.DispatchRecord) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, rec ir.DispatchRecord) error

func (f RecorderFunc) Record(ctx context.Context, rec ir.DispatchRecord) error {
	return f(ctx, rec)
}
