package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/statewire/internal/ir"
)

// BuildResult is the outcome of building one machine.
type BuildResult struct {
	Machine     string       `json:"machine"`
	Model       *Model       `json:"-"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// OK reports whether the build produced no diagnostics. Callers must not use
// Model when OK is false.
func (r *BuildResult) OK() bool { return len(r.Diagnostics) == 0 }

// Err summarizes the diagnostics as a single error, or nil when OK.
func (r *BuildResult) Err() error {
	if r.OK() {
		return nil
	}
	lines := make([]string, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		lines[i] = d.Error()
	}
	return fmt.Errorf("machine %s has %d diagnostic(s):\n  %s",
		r.Machine, len(r.Diagnostics), strings.Join(lines, "\n  "))
}

// Build runs the whole pipeline over spec: populate, aggregate, validate.
// Every add error becomes a diagnostic so all problems surface together.
func Build(spec ir.MachineSpec) *BuildResult {
	res := &BuildResult{Machine: spec.Name}
	m := NewModel(spec.Name, spec.Dispatch)

	if spec.StatesDeclared {
		_ = m.DeclareStates()
	}
	if spec.SignalsDeclared {
		_ = m.DeclareSignals()
	}
	for _, s := range spec.States {
		res.add(spec.Name, "", m.AddState(s))
	}
	for _, s := range spec.Signals {
		res.add(spec.Name, "", m.AddSignal(s))
	}
	for _, c := range spec.Connections {
		_, err := m.AddConnection(c)
		res.add(spec.Name, c.Name, err)
	}
	for _, cb := range spec.Callbacks {
		var err error
		switch cb.Kind {
		case ir.OnEnter:
			err = m.AddOnEnter(cb)
		case ir.OnExit:
			err = m.AddOnExit(cb)
		default:
			err = fmt.Errorf("unknown callback kind %q for %s", cb.Kind, cb.Name)
		}
		res.add(spec.Name, cb.Name, err)
	}

	m.Aggregate()
	_, diags := m.Validate()
	res.Diagnostics = append(res.Diagnostics, diags...)
	res.Model = m

	if fp, err := m.Fingerprint(); err == nil {
		res.Fingerprint = fp
	}
	return res
}

// BuildAll builds every spec, preserving input order.
func BuildAll(specs []ir.MachineSpec) []*BuildResult {
	out := make([]*BuildResult, len(specs))
	for i, s := range specs {
		out[i] = Build(s)
	}
	return out
}

// add converts an add error into a diagnostic.
func (r *BuildResult) add(machine, subject string, err error) {
	if err == nil {
		return
	}
	d := Diagnostic{
		Severity: SeverityError,
		Machine:  machine,
		Subject:  subject,
		Message:  err.Error(),
	}

	var (
		autoErr *InvalidAutoConnectionError
		cbErr   *DuplicateCallbackError
		declErr *DuplicateDeclarationError
		connErr *DuplicateConnectionError
	)
	switch {
	case errors.As(err, &autoErr):
		d.Code = ErrInvalidAutoConnection
	case errors.As(err, &cbErr):
		d.Code = ErrDuplicateCallback
		d.Ref = cbErr.State
	case errors.As(err, &declErr):
		d.Code = ErrDuplicateDeclaration
		d.Ref = declErr.Name
	case errors.As(err, &connErr):
		d.Code = ErrDuplicateConnection
		d.Ref = connErr.Name
	default:
		d.Code = ErrInvalidDeclaration
	}
	r.Diagnostics = append(r.Diagnostics, d)
}
