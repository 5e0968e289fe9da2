package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/compiler"
)

func TestCompileValidSpecs(t *testing.T) {
	res := execute(t, "compile", specsDir)
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "✓ Compiled 2 machine(s)")
	assert.Contains(t, res.stdout, "Door [calling-thread]: 4 state(s), 4 signal(s), 7 connection(s)")
	assert.Contains(t, res.stdout, "Pinball [calling-thread]: 3 state(s), 1 signal(s), 3 connection(s)")
	assert.Contains(t, res.stdout, "GLOBAL_SPY_ANY")
}

func TestCompileValidSpecsJSON(t *testing.T) {
	res := execute(t, "compile", specsDir, "--format", "json")
	require.NoError(t, res.err)

	var result CompilationResult
	resp := decodeResponse(t, res.stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Machines, 2)

	door := result.Machines[0]
	assert.Equal(t, "Door", door.Name)
	assert.Equal(t, "calling-thread", door.Dispatch)
	assert.NotEmpty(t, door.Fingerprint)
	assert.Equal(t, []string{"Closed", "Open", "Locked", "Slammed"}, door.States)
	assert.Equal(t, map[string][]string{
		"AUTO":                       {"settle"},
		"GLOBAL_SPY_ANY":             {"watch"},
		"GLOBAL_TRANSITION_SPECIFIC": {"slam"},
		"LOCAL_TRANSITION_SPECIFIC":  {"open", "close", "lock", "unlock"},
	}, door.Connections)
	assert.Len(t, door.Callbacks, 2)
}

func TestCompileOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "indices.json")

	res := execute(t, "compile", specsDir, "-o", out)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Wrote indices to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Machines, 2)
}

func TestCompileFingerprintIsStable(t *testing.T) {
	var first, second CompilationResult
	decodeResponse(t, execute(t, "compile", specsDir, "--format", "json").stdout, &first)
	decodeResponse(t, execute(t, "compile", specsDir, "--format", "json").stdout, &second)

	for i := range first.Machines {
		assert.Equal(t, first.Machines[i].Fingerprint, second.Machines[i].Fingerprint)
	}
}

func TestCompileDiagnostics(t *testing.T) {
	dir := writeSpecs(t, brokenSpecs)

	res := execute(t, "compile", dir)

	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "✗ Compilation failed")
	assert.Contains(t, res.stdout, compiler.ErrUnknownState)
	assert.Contains(t, res.stdout, compiler.ErrUnknownSignal)
}

func TestCompileDiagnosticsJSON(t *testing.T) {
	dir := writeSpecs(t, brokenSpecs)

	res := execute(t, "compile", dir, "--format", "json")
	require.Error(t, res.err)

	var diags []compiler.Diagnostic
	resp := decodeResponse(t, res.stdout, &diags)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, "Broken", d.Machine)
	}
}

func TestCompileLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		code string
	}{
		{
			name: "missing directory",
			dir:  func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") },
			code: compiler.ErrCodeNotFound,
		},
		{
			name: "no cue files",
			dir:  func(t *testing.T) string { return t.TempDir() },
			code: compiler.ErrCodeNoFiles,
		},
		{
			name: "no machines",
			dir:  func(t *testing.T) string { return writeSpecs(t, "other: 1\n") },
			code: compiler.ErrCodeNoMachines,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, "compile", tt.dir(t), "--format", "json")

			require.Error(t, res.err)
			assert.Equal(t, ExitCommandError, GetExitCode(res.err))

			resp := decodeResponse(t, res.stdout, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
