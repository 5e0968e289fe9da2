package harness

import "github.com/roach88/statewire/internal/ir"

// StepOutcome is what one step produced.
type StepOutcome struct {
	Signal string   `json:"signal"`
	State  string   `json:"state"`
	Errors []string `json:"errors,omitempty"` // runtime error codes
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	InstanceID string `json:"instance_id"`

	// Trace is the journal of the run, in seq order.
	Trace []ir.DispatchRecord `json:"trace"`

	Steps []StepOutcome `json:"steps"`

	// FinalState is the machine state after the last step.
	FinalState string `json:"final_state"`

	// Errors holds failed expectations and assertions. Empty if Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []ir.DispatchRecord{},
		Steps:  []StepOutcome{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Failures counts records whose cycle failed.
func (r *Result) Failures() int {
	n := 0
	for _, rec := range r.Trace {
		if rec.Error != "" {
			n++
		}
	}
	return n
}
