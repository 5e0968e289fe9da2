package engine

import (
	"context"
	"errors"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// ErrModelNotAggregated is returned when a runtime is built over a model
// that has not been frozen by Aggregate.
var ErrModelNotAggregated = errors.New("model is not aggregated")

// GuardEvaluator evaluates the guard bound to one connection.
type GuardEvaluator func(ctx context.Context, id compiler.ConnID, p ir.Payload) (bool, error)

// Resolution is the outcome of resolving one signal.
type Resolution struct {
	// Connection is the winning transition; valid only when Matched.
	Connection compiler.ConnID
	Matched    bool

	// Spies lists the spies that fired, in firing order.
	Spies []compiler.ConnID
}

// Resolver selects the connection that handles a signal in a state.
//
// Precedence, most specific first:
//
//	local specific → local any → global specific → global any
//
// Within a tier candidates run in declaration order and the first true guard
// wins. The Resolver holds no mutable state and is safe for concurrent use.
type Resolver struct {
	model *compiler.Model
}

// NewResolver creates a resolver over a frozen model.
func NewResolver(m *compiler.Model) (*Resolver, error) {
	if m == nil || !m.Frozen() {
		return nil, ErrModelNotAggregated
	}
	return &Resolver{model: m}, nil
}

// Model returns the model the resolver reads.
func (r *Resolver) Model() *compiler.Model { return r.model }

// Tiers returns the candidate transitions for state and signal in
// precedence order.
func (r *Resolver) Tiers(state, signal string) [4][]compiler.ConnID {
	return [4][]compiler.ConnID{
		r.model.LocalTransitions(state, signal),
		r.model.LocalAnyTransitions(state),
		r.model.GlobalTransitions(signal),
		r.model.GlobalAnyTransitions(),
	}
}

// Spies returns every spy watching state and signal.
func (r *Resolver) Spies(state, signal string) []compiler.ConnID {
	var out []compiler.ConnID
	out = append(out, r.model.LocalSpies(state, signal)...)
	out = append(out, r.model.LocalAnySpies(state)...)
	out = append(out, r.model.GlobalSpies(signal)...)
	out = append(out, r.model.GlobalAnySpies()...)
	return out
}

// Resolve fires the spies for (state, signal), then picks the winning
// transition. A spy or guard failure aborts the cycle: the returned
// Resolution is unmatched and err is a GUARD_FAILED *RuntimeError.
func (r *Resolver) Resolve(ctx context.Context, state, signal string, p ir.Payload, eval GuardEvaluator) (Resolution, error) {
	res := Resolution{Connection: -1}

	for _, id := range r.Spies(state, signal) {
		if _, err := eval(ctx, id, p); err != nil {
			return res, r.guardFailure(id, state, signal, "spy", err)
		}
		res.Spies = append(res.Spies, id)
	}

	for _, tier := range r.Tiers(state, signal) {
		for _, id := range tier {
			ok, err := eval(ctx, id, p)
			if err != nil {
				return Resolution{Connection: -1, Spies: res.Spies}, r.guardFailure(id, state, signal, "guard", err)
			}
			if ok {
				res.Connection = id
				res.Matched = true
				return res, nil
			}
		}
	}
	return res, nil
}

// ResolveAuto picks the first auto connection leaving state whose guard is
// true.
func (r *Resolver) ResolveAuto(ctx context.Context, state string, p ir.Payload, eval GuardEvaluator) (Resolution, error) {
	res := Resolution{Connection: -1}
	for _, id := range r.model.AutoConnections(state) {
		ok, err := eval(ctx, id, p)
		if err != nil {
			return res, r.guardFailure(id, state, "", "auto guard", err)
		}
		if ok {
			res.Connection = id
			res.Matched = true
			return res, nil
		}
	}
	return res, nil
}

func (r *Resolver) guardFailure(id compiler.ConnID, state, signal, what string, err error) error {
	c := r.model.Connection(id)
	return &RuntimeError{
		Code:       ErrCodeGuardFailed,
		Message:    what + " failed",
		Machine:    r.model.Name(),
		State:      state,
		Signal:     signal,
		Connection: c.Name,
		Err:        err,
	}
}
