package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	specsDir     = filepath.Join("testdata", "specs")
	scenariosDir = filepath.Join("testdata", "scenarios")
)

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command with args.
func execute(t *testing.T, args ...string) cmdResult {
	t.Helper()

	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return cmdResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// decodeResponse parses a JSON envelope, decoding Data into data when
// non-nil.
func decodeResponse(t *testing.T, raw string, data any) CLIResponse {
	t.Helper()

	var env struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &env), raw)
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data), string(env.Data))
	}
	return env.CLIResponse
}

// writeSpecs writes src as the only CUE file of a fresh directory.
func writeSpecs(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "machines.cue"), []byte("package specs\n\n"+src), 0o644))
	return dir
}

const brokenSpecs = `
machine: Broken: {
	states: ["A", "B"]
	signals: ["Go"]
	connections: {
		go:   {from: "A", to: "C", signals: ["Go"]}
		stop: {from: "B", to: "A", signals: ["Stpo"]}
	}
}
`

const loopingSpecs = `
machine: Loop: {
	states: ["A", "B"]
	signals: ["Go"]
	connections: {
		ab: {from: "A", to: "B", signals: "!"}
		ba: {from: "B", to: "A", signals: "!"}
	}
}
`
