package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Format(t *testing.T) {
	err := &RuntimeError{
		Code:       ErrCodeGuardFailed,
		Message:    "guard failed",
		Machine:    "Door",
		State:      "Closed",
		Signal:     "Push",
		Connection: "open",
		Err:        errors.New("boom"),
	}

	assert.Equal(t,
		"GUARD_FAILED: guard failed (machine=Door, state=Closed, signal=Push, handler=open): boom",
		err.Error())
}

func TestRuntimeError_Helpers(t *testing.T) {
	tests := []struct {
		code  RuntimeErrorCode
		check func(error) bool
	}{
		{ErrCodeGuardFailed, IsGuardError},
		{ErrCodeCallbackFailed, IsCallbackError},
		{ErrCodeUnknownSignal, IsUnknownSignalError},
		{ErrCodeNotInitialized, IsNotInitializedError},
		{ErrCodeAutoStepsExceeded, IsAutoStepsError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &RuntimeError{Code: tt.code})
			assert.True(t, tt.check(err))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestProtect(t *testing.T) {
	assert.NoError(t, protect(func() error { return nil }))
	assert.ErrorIs(t, protect(func() error { return assert.AnError }), assert.AnError)

	err := protect(func() error { panic(42) })
	var pe *PanicError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, "panic: 42", err.Error())
}
