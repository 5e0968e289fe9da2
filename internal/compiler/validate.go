package compiler

import (
	"fmt"

	"github.com/agnivade/levenshtein"

	"github.com/roach88/statewire/internal/ir"
)

// Diagnostic codes (E200-E299)
const (
	ErrMissingStates         = "E201" // no states declaration
	ErrMissingSignals        = "E202" // no signals declaration
	ErrUnknownState          = "E203" // reference to an undeclared state
	ErrUnknownSignal         = "E204" // reference to an undeclared signal
	ErrDuplicateCallback     = "E205" // second OnEnter/OnExit for one state
	ErrInvalidAutoConnection = "E206" // auto connection with wildcard from/to
	ErrDuplicateDeclaration  = "E207" // state or signal declared twice
	ErrDuplicateConnection   = "E208" // two connections share a name
	ErrInvalidDeclaration    = "E209" // model rejected the declaration
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one model violation. Diagnostics are values, not errors;
// any diagnostic makes a build unusable.
type Diagnostic struct {
	Code       string   `json:"code"`
	Severity   Severity `json:"severity"`
	Machine    string   `json:"machine"`
	Subject    string   `json:"subject,omitempty"` // offending connection or callback
	Ref        string   `json:"ref,omitempty"`     // the bad reference
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", d.Code, d.Machine, d.Message)
	if d.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", d.Suggestion)
	}
	return msg
}

// Validate checks referential integrity and returns every violation found.
// It never stops at the first problem.
func (m *Model) Validate() (bool, []Diagnostic) {
	var diags []Diagnostic

	if !m.statesDeclared {
		diags = append(diags, Diagnostic{
			Code:     ErrMissingStates,
			Severity: SeverityWarning,
			Machine:  m.name,
			Message:  "no states declared",
		})
	}
	if !m.signalsDeclared {
		diags = append(diags, Diagnostic{
			Code:     ErrMissingSignals,
			Severity: SeverityWarning,
			Machine:  m.name,
			Message:  "no signals declared",
		})
	}

	for _, c := range m.conns {
		diags = append(diags, m.checkState(c.Name, "from", c.From)...)
		diags = append(diags, m.checkState(c.Name, "to", c.To)...)
		if c.IsAuto() || c.IsWildcardSignal() {
			continue
		}
		for _, sig := range c.SignalSet() {
			if m.signalSet[sig] {
				continue
			}
			diags = append(diags, Diagnostic{
				Code:       ErrUnknownSignal,
				Severity:   SeverityWarning,
				Machine:    m.name,
				Subject:    c.Name,
				Ref:        sig,
				Message:    fmt.Sprintf("connection %s uses undeclared signal %s", c.Name, sig),
				Suggestion: suggest(sig, m.signals),
			})
		}
	}

	for _, cb := range m.callbacks {
		if m.stateSet[cb.State] {
			continue
		}
		diags = append(diags, Diagnostic{
			Code:       ErrUnknownState,
			Severity:   SeverityWarning,
			Machine:    m.name,
			Subject:    cb.Name,
			Ref:        cb.State,
			Message:    fmt.Sprintf("%s callback %s targets undeclared state %s", cb.Kind, cb.Name, cb.State),
			Suggestion: suggest(cb.State, m.states),
		})
	}

	return len(diags) == 0, diags
}

// checkState validates one from/to reference. Wildcards are skipped.
func (m *Model) checkState(subject, field, state string) []Diagnostic {
	if state == ir.Wildcard || m.stateSet[state] {
		return nil
	}
	return []Diagnostic{{
		Code:       ErrUnknownState,
		Severity:   SeverityWarning,
		Machine:    m.name,
		Subject:    subject,
		Ref:        state,
		Message:    fmt.Sprintf("connection %s %s undeclared state %s", subject, field, state),
		Suggestion: suggest(state, m.states),
	}}
}

// suggest returns the closest candidate to ref, or "" when nothing is close.
// Ties go to the earliest declared candidate.
func suggest(ref string, candidates []string) string {
	best := ""
	bestDist := max(2, len(ref)/3) + 1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(ref, c)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
