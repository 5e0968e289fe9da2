package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLoopStopped is returned when work is handed to a stopped main loop or
// closed shared queue.
var ErrLoopStopped = errors.New("dispatch loop stopped")

// RuntimeError represents a failure detected while dispatching.
//
// Runtime errors never escape Send or Init; they are delivered to the
// EventListener and journaled on the dispatch record.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	Machine    string
	State      string
	Signal     string
	Connection string // connection or callback name

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeGuardFailed indicates a guard or spy returned an error or panicked.
	ErrCodeGuardFailed RuntimeErrorCode = "GUARD_FAILED"

	// ErrCodeCallbackFailed indicates OnEnter or OnExit failed.
	ErrCodeCallbackFailed RuntimeErrorCode = "CALLBACK_FAILED"

	// ErrCodeUnknownSignal indicates a signal outside the declared set.
	ErrCodeUnknownSignal RuntimeErrorCode = "UNKNOWN_SIGNAL"

	// ErrCodeUnknownState indicates Init with an undeclared state.
	ErrCodeUnknownState RuntimeErrorCode = "UNKNOWN_STATE"

	// ErrCodeNotInitialized indicates Send before Init.
	ErrCodeNotInitialized RuntimeErrorCode = "NOT_INITIALIZED"

	// ErrCodeAutoStepsExceeded indicates a chain of autos hit MaxAutoSteps.
	ErrCodeAutoStepsExceeded RuntimeErrorCode = "AUTO_STEPS_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var ctx []string
	if e.Machine != "" {
		ctx = append(ctx, "machine="+e.Machine)
	}
	if e.State != "" {
		ctx = append(ctx, "state="+e.State)
	}
	if e.Signal != "" {
		ctx = append(ctx, "signal="+e.Signal)
	}
	if e.Connection != "" {
		ctx = append(ctx, "handler="+e.Connection)
	}

	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsGuardError reports whether err is a guard or spy failure.
func IsGuardError(err error) bool { return hasCode(err, ErrCodeGuardFailed) }

// IsCallbackError reports whether err is an OnEnter/OnExit failure.
func IsCallbackError(err error) bool { return hasCode(err, ErrCodeCallbackFailed) }

// IsUnknownSignalError reports whether err is an undeclared signal.
func IsUnknownSignalError(err error) bool { return hasCode(err, ErrCodeUnknownSignal) }

// IsNotInitializedError reports whether err is a Send before Init.
func IsNotInitializedError(err error) bool { return hasCode(err, ErrCodeNotInitialized) }

// IsAutoStepsError reports whether err is an exceeded auto chain.
// Matches both the RuntimeError code and a bare StepsExceededError.
func IsAutoStepsError(err error) bool {
	return hasCode(err, ErrCodeAutoStepsExceeded) || IsStepsExceededError(err)
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// protect runs fn and converts a panic into a *PanicError.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
