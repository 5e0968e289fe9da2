package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/statewire/internal/ir"
)

// CompileMachine parses a CUE value into a MachineSpec.
//
// The CUE value should be the machine struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`machine: Door: { ... }`)
//	spec, err := CompileMachine(v.LookupPath(cue.ParsePath("machine.Door")))
//
// Field order in the CUE source is the declaration order. Referential
// integrity is not checked here; that is the Model's job.
func CompileMachine(v cue.Value) (*ir.MachineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.MachineSpec{Dispatch: ir.DefaultDispatchMode()}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	var err error
	if spec.Dispatch, err = parseDispatch(v); err != nil {
		return nil, err
	}

	statesVal := v.LookupPath(cue.ParsePath("states"))
	if statesVal.Exists() {
		spec.StatesDeclared = true
		if spec.States, err = parseStringList(statesVal, "states"); err != nil {
			return nil, err
		}
	}

	signalsVal := v.LookupPath(cue.ParsePath("signals"))
	if signalsVal.Exists() {
		spec.SignalsDeclared = true
		if spec.Signals, err = parseStringList(signalsVal, "signals"); err != nil {
			return nil, err
		}
	}

	if spec.Connections, err = parseConnections(v); err != nil {
		return nil, err
	}

	for _, kind := range []ir.CallbackKind{ir.OnEnter, ir.OnExit} {
		cbs, err := parseCallbacks(v, kind)
		if err != nil {
			return nil, err
		}
		spec.Callbacks = append(spec.Callbacks, cbs...)
	}

	return spec, nil
}

// CompileMachines compiles every machine under the "machine" field of v.
func CompileMachines(v cue.Value) ([]ir.MachineSpec, error) {
	machinesVal := v.LookupPath(cue.ParsePath("machine"))
	if !machinesVal.Exists() {
		return nil, nil
	}

	iter, err := machinesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.MachineSpec
	for iter.Next() {
		spec, err := CompileMachine(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("machine %s: %w", iter.Label(), err)
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// parseDispatch reads the optional dispatch block.
func parseDispatch(v cue.Value) (ir.DispatchMode, error) {
	mode := ir.DefaultDispatchMode()

	dispatchVal := v.LookupPath(cue.ParsePath("dispatch"))
	if !dispatchVal.Exists() {
		return mode, nil
	}

	modeVal := dispatchVal.LookupPath(cue.ParsePath("mode"))
	if modeVal.Exists() {
		s, err := modeVal.String()
		if err != nil {
			return mode, formatCUEError(err)
		}
		mode.Affinity = ir.DispatchAffinity(s)
		if !ir.ValidAffinities[mode.Affinity] {
			return mode, &CompileError{
				Field:   "dispatch.mode",
				Message: fmt.Sprintf("invalid dispatch mode %q (must be calling-thread, main-thread, or shared-queue)", s),
				Pos:     modeVal.Pos(),
			}
		}
	}

	queueVal := dispatchVal.LookupPath(cue.ParsePath("queue"))
	if queueVal.Exists() {
		if mode.Affinity != ir.SharedQueue {
			return mode, &CompileError{
				Field:   "dispatch.queue",
				Message: "queue is only valid with shared-queue dispatch",
				Pos:     queueVal.Pos(),
			}
		}
		n, err := queueVal.Int64()
		if err != nil {
			return mode, formatCUEError(err)
		}
		if n < 0 {
			return mode, &CompileError{
				Field:   "dispatch.queue",
				Message: "queue id must be non-negative",
				Pos:     queueVal.Pos(),
			}
		}
		mode.QueueID = int(n)
	}

	return mode, nil
}

// parseConnections reads the connections struct in field order.
func parseConnections(v cue.Value) ([]ir.Connection, error) {
	connsVal := v.LookupPath(cue.ParsePath("connections"))
	if !connsVal.Exists() {
		return nil, nil
	}

	iter, err := connsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var conns []ir.Connection
	for iter.Next() {
		name := iter.Label()
		cv := iter.Value()
		field := "connections." + name

		c := ir.Connection{Name: name}
		if c.From, err = requiredString(cv, "from", field); err != nil {
			return nil, err
		}
		if c.To, err = requiredString(cv, "to", field); err != nil {
			return nil, err
		}

		sigVal := cv.LookupPath(cue.ParsePath("signals"))
		if !sigVal.Exists() {
			return nil, &CompileError{
				Field:   field + ".signals",
				Message: "signals is required (a list of names, \"*\", or \"!\")",
				Pos:     cv.Pos(),
			}
		}
		if c.Signals, err = parseSignals(sigVal, field+".signals"); err != nil {
			return nil, err
		}

		guardVal := cv.LookupPath(cue.ParsePath("guard"))
		if guardVal.Exists() {
			if c.Guard, err = guardVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if c.RunOnMainThread, err = optionalBool(cv, "main_thread"); err != nil {
			return nil, err
		}

		conns = append(conns, c)
	}
	return conns, nil
}

// parseSignals accepts a single string or a list of strings.
func parseSignals(v cue.Value, field string) ([]string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return []string{s}, nil
	case cue.ListKind:
		sigs, err := parseStringList(v, field)
		if err != nil {
			return nil, err
		}
		if len(sigs) == 0 {
			return nil, &CompileError{
				Field:   field,
				Message: "at least one signal is required",
				Pos:     v.Pos(),
			}
		}
		for _, s := range sigs {
			if (s == ir.Wildcard || s == ir.Auto) && len(sigs) > 1 {
				return nil, &CompileError{
					Field:   field,
					Message: fmt.Sprintf("%q cannot be combined with other signals", s),
					Pos:     v.Pos(),
				}
			}
		}
		return sigs, nil
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("signals must be a string or list of strings, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// parseCallbacks reads on_enter or on_exit in field order.
func parseCallbacks(v cue.Value, kind ir.CallbackKind) ([]ir.Callback, error) {
	cbVal := v.LookupPath(cue.ParsePath(string(kind)))
	if !cbVal.Exists() {
		return nil, nil
	}

	iter, err := cbVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cbs []ir.Callback
	for iter.Next() {
		name := iter.Label()
		cv := iter.Value()
		field := fmt.Sprintf("%s.%s", kind, name)

		cb := ir.Callback{Kind: kind, Name: name}
		if cb.State, err = requiredString(cv, "state", field); err != nil {
			return nil, err
		}
		if cb.RunOnMainThread, err = optionalBool(cv, "main_thread"); err != nil {
			return nil, err
		}
		cbs = append(cbs, cb)
	}
	return cbs, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a list of strings",
			Pos:     v.Pos(),
		}
	}

	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}
