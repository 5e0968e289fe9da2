package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxAutoSteps bounds chained auto transitions per entry.
const DefaultMaxAutoSteps = 100

// QuotaEnforcer counts auto steps in one chain and enforces a limit.
//
// A chain starts when a state is entered (by Init or a signal) and lasts
// while auto connections keep switching state. Without a limit an auto loop
// (A → B → A) would never return control to the caller.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates an enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
func (q *QuotaEnforcer) Check(instanceID string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			InstanceID: instanceID,
			Steps:      q.current,
			Limit:      q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when an auto chain exceeds the limit.
type StepsExceededError struct {
	InstanceID string
	Steps      int
	Limit      int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("instance %s exceeded max auto steps: %d steps > %d limit",
		e.InstanceID, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
