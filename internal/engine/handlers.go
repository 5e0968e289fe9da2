package engine

import (
	"context"

	"github.com/roach88/statewire/internal/ir"
)

// Guard decides whether a connection fires for a payload. Spies are bound to
// Guards too; their result is ignored.
type Guard func(ctx context.Context, p ir.Payload) (bool, error)

// Callback runs on state entry or exit.
type Callback func(ctx context.Context) error

// Handlers binds host code to the names used in a model. Guards are keyed by
// the connection's guard reference (its name unless Guard is set); callbacks
// by callback name.
type Handlers struct {
	Guards    map[string]Guard
	Callbacks map[string]Callback
}

// NewHandlers returns an empty handler set.
func NewHandlers() *Handlers {
	return &Handlers{
		Guards:    make(map[string]Guard),
		Callbacks: make(map[string]Callback),
	}
}

// Guard binds a guard and returns h for chaining.
func (h *Handlers) Guard(name string, g Guard) *Handlers {
	h.Guards[name] = g
	return h
}

// Callback binds a callback and returns h for chaining.
func (h *Handlers) Callback(name string, cb Callback) *Handlers {
	h.Callbacks[name] = cb
	return h
}

// Always returns a guard with a constant answer.
func Always(v bool) Guard {
	return func(context.Context, ir.Payload) (bool, error) { return v, nil }
}

// Noop is a callback that does nothing.
func Noop(context.Context) error { return nil }
