package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return s
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_DoorCycle(t *testing.T) {
	result, err := Run(loadTestScenario(t, "door_cycle"))
	require.NoError(t, err)

	assert.Equal(t, "door-1", result.InstanceID)
	assert.Equal(t, "Locked", result.FinalState)
	require.Len(t, result.Trace, 7)
	require.Len(t, result.Steps, 5)

	assert.Equal(t, ir.RecordInit, result.Trace[0].Kind)
	assert.Equal(t, "slam", result.Trace[4].Connection, "local guard false falls through to global")
	assert.Equal(t, ir.RecordAuto, result.Trace[5].Kind)
	assert.Equal(t, "settle", result.Trace[5].Connection)

	for i, rec := range result.Trace {
		assert.Equal(t, int64(i+1), rec.Seq)
		assert.Equal(t, "Door", rec.Machine)
	}
}

func TestRun_DoorFailures(t *testing.T) {
	result, err := Run(loadTestScenario(t, "door_failures"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, []string{"GUARD_FAILED"}, result.Steps[0].Errors)
	assert.Empty(t, result.Steps[1].Errors)
	assert.Equal(t, []string{"CALLBACK_FAILED"}, result.Steps[2].Errors)
	assert.Equal(t, []string{"UNKNOWN_SIGNAL"}, result.Steps[3].Errors)
	assert.Equal(t, 3, result.Failures())
}

func TestRun_AutoQuota(t *testing.T) {
	result, err := Run(loadTestScenario(t, "pinball_runaway"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "test-instance", result.InstanceID)
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, ir.RecordAuto, last.Kind)
	assert.NotEmpty(t, last.Error)
	assert.Equal(t, "Down", result.FinalState)
}

func TestRun_FailedExpectations(t *testing.T) {
	s := loadTestScenario(t, "door_cycle")
	s.Steps[0].ExpectState = "Locked"
	s.Steps[1].ExpectError = "GUARD_FAILED"
	s.Assertions = append(s.Assertions, Assertion{Type: AssertFinalState, State: "Open"})

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "step 0 (Push): expected state Locked, got Open")
	assert.Contains(t, result.Errors[1], "step 1 (Pull): expected error GUARD_FAILED")
	assert.Contains(t, result.Errors[2], "final_state")
}

func TestRun_UnexpectedRuntimeError(t *testing.T) {
	s := loadTestScenario(t, "door_cycle")
	s.Guards = map[string]any{"hasKey": map[string]any{"fail": "no key"}}
	s.Steps = []Step{{Send: "Lock"}}
	s.Assertions = []Assertion{{Type: AssertFinalState, State: "Closed"}}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected errors [GUARD_FAILED]")
}

func TestRun_UnknownStartState(t *testing.T) {
	s := loadTestScenario(t, "door_cycle")
	s.Start = "Ajar"
	s.Steps = nil
	s.Assertions = []Assertion{{Type: AssertNoErrors}}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "init Ajar: [UNKNOWN_STATE]")
	assert.Empty(t, result.Trace)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("unknown machine", func(t *testing.T) {
		s := loadTestScenario(t, "door_cycle")
		s.Machine = "Window"
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `machine "Window" not declared`)
	})

	t.Run("stub for missing guard", func(t *testing.T) {
		s := loadTestScenario(t, "door_cycle")
		s.Guards = map[string]any{"teleport": true}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bind stubs")
	})

	t.Run("float payload", func(t *testing.T) {
		s := loadTestScenario(t, "door_cycle")
		s.Steps = []Step{{Send: "Push", Payload: map[string]any{"x": 0.5}}}
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 0: payload")
	})
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "door_cycle")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := SnapshotJSON(s.Name, first)
	require.NoError(t, err)
	b, err := SnapshotJSON(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_MainThreadHandlers(t *testing.T) {
	dir := t.TempDir()
	src := `package specs

machine: Toggle: {
	states: ["Off", "On"]
	signals: ["Flip"]
	connections: {
		on:  {from: "Off", to: "On", signals: ["Flip"], main_thread: true}
		off: {from: "On", to: "Off", signals: ["Flip"]}
	}
	on_enter: {lit: {state: "On", main_thread: true}}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "toggle.cue"), []byte(src), 0o644))

	result, err := Run(&Scenario{
		Name:    "toggle",
		Specs:   dir,
		Machine: "Toggle",
		Start:   "Off",
		Steps:   []Step{{Send: "Flip", ExpectState: "On"}, {Send: "Flip", ExpectState: "Off"}},
		Assertions: []Assertion{
			{Type: AssertStatePath, States: []string{"Off", "On", "Off"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
