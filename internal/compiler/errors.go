package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrModelFrozen is returned by Add* after Aggregate has been called.
var ErrModelFrozen = errors.New("model is frozen")

// CompileError represents a front-end error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// InvalidAutoConnectionError is returned when an auto connection uses a
// wildcard for its from or to state.
type InvalidAutoConnectionError struct {
	Connection string
	From       string
	To         string
}

func (e *InvalidAutoConnectionError) Error() string {
	return fmt.Sprintf("auto connection must specify concrete from and to: %s (%s -> %s)",
		e.Connection, e.From, e.To)
}

// InvalidSignalSetError is returned when a connection's signal set is empty
// or mixes a sentinel with other signals.
type InvalidSignalSetError struct {
	Connection string
	Reason     string
}

func (e *InvalidSignalSetError) Error() string {
	return fmt.Sprintf("invalid signal set for connection %s: %s", e.Connection, e.Reason)
}

// DuplicateCallbackError is returned when a state already has a callback of
// the same kind.
type DuplicateCallbackError struct {
	Kind      string
	State     string
	Existing  string
	Duplicate string
}

func (e *DuplicateCallbackError) Error() string {
	return fmt.Sprintf("%s callback already added for state %s (%s) - duplicate: %s",
		e.Kind, e.State, e.Existing, e.Duplicate)
}

// DuplicateDeclarationError is returned when a state or signal is declared
// twice.
type DuplicateDeclarationError struct {
	Kind string // "state" or "signal"
	Name string
}

func (e *DuplicateDeclarationError) Error() string {
	return fmt.Sprintf("duplicate %s declaration: %s", e.Kind, e.Name)
}

// DuplicateConnectionError is returned when two connections share a name.
type DuplicateConnectionError struct {
	Name string
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("duplicate connection name: %s", e.Name)
}

// IsInvalidAutoConnection reports whether err is an InvalidAutoConnectionError.
func IsInvalidAutoConnection(err error) bool {
	var target *InvalidAutoConnectionError
	return errors.As(err, &target)
}

// IsDuplicateCallback reports whether err is a DuplicateCallbackError.
func IsDuplicateCallback(err error) bool {
	var target *DuplicateCallbackError
	return errors.As(err, &target)
}
