package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
	"github.com/roach88/statewire/internal/testutil"
)

func writeStubs(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stubs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunTextOutput(t *testing.T) {
	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Push", "--send", "Pull", "--instance", "door-1")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "Instance door-1 of Door")
	assert.Contains(t, res.stdout, "[1] init Closed")
	assert.Contains(t, res.stdout, "[2] signal Push Closed -> Open via open spies [watch]")
	assert.Contains(t, res.stdout, "[3] signal Pull Open -> Closed via close spies [watch]")
	assert.Contains(t, res.stdout, "Final state: Closed")
}

func TestRunJSONOutput(t *testing.T) {
	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Push:user=ann,visits=2", "--format", "json")
	require.NoError(t, res.err)

	var result RunResult
	resp := decodeResponse(t, res.stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, result.InstanceID)
	assert.Equal(t, "Open", result.FinalState)
	require.Len(t, result.Records, 2)
	assert.Equal(t, ir.NewPayload(ir.P("user", ir.String("ann")), ir.P("visits", ir.Int(2))), result.Records[1].Payload)
	assert.Empty(t, result.Errors)
}

func TestRunWithGuardStubs(t *testing.T) {
	stubs := writeStubs(t, "guards:\n  canClose: false\n")

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Push", "--send", "Pull", "--guards", stubs, "--format", "json")
	require.NoError(t, res.err)

	var result RunResult
	decodeResponse(t, res.stdout, &result)
	require.Len(t, result.Records, 4)
	assert.Equal(t, "slam", result.Records[2].Connection)
	assert.Equal(t, ir.RecordAuto, result.Records[3].Kind)
	assert.Equal(t, "settle", result.Records[3].Connection)
	assert.Equal(t, "Closed", result.FinalState)
}

func TestRunRuntimeErrorsExitOne(t *testing.T) {
	stubs := writeStubs(t, "guards:\n  hasKey: {fail: lost}\n")

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Lock", "--send", "Knock", "--guards", stubs)

	require.Error(t, res.err)
	assert.Equal(t, ExitFailure, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "✗ 2 runtime error(s)")
	assert.Contains(t, res.stdout, "GUARD_FAILED")
	assert.Contains(t, res.stdout, "UNKNOWN_SIGNAL")
	assert.Contains(t, res.stdout, "Final state: Closed")
}

func TestRunBadStubs(t *testing.T) {
	stubs := writeStubs(t, "guards:\n  noSuchGuard: true\n")

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed", "--guards", stubs)

	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "noSuchGuard")
}

func TestRunBadSend(t *testing.T) {
	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed", "--send", "Push:user")

	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, "want key=value")
}

func TestRunJournalsToSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "door.db")

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Push", "--instance", "door-9", "--db", db)
	require.NoError(t, res.err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	inst, err := st.GetInstance(ctx, "door-9")
	require.NoError(t, err)
	assert.Equal(t, "Door", inst.Machine)
	assert.NotEmpty(t, inst.Fingerprint)

	records, err := st.ReadDispatches(ctx, "door-9")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Open", records[1].NextState)
}

func TestRunRejectsJournaledInstance(t *testing.T) {
	db := filepath.Join(t.TempDir(), "door.db")
	args := []string{"run", specsDir, "-m", "Door", "--start", "Closed", "--send", "Push", "--instance", "door-9", "--db", db}

	res := execute(t, args...)
	require.NoError(t, res.err)

	res = execute(t, append(args, "--format", "json")...)
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))

	resp := decodeResponse(t, res.stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeJournal, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "instance door-9 is already journaled (2 record(s))")
}

func TestRunJournalsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Push", "--instance", "door-r", "--redis", mr.Addr(), "--redis-prefix", "t:")
	require.NoError(t, res.err)

	j := store.NewRedisJournal(mr.Addr(), "", 0, store.WithPrefix("t:"))
	defer j.Close()

	records, err := j.ReadDispatches(context.Background(), "door-r")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed", "--redis", addr)

	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.stdout, ErrCodeJournal)
}

func TestRunDispatchModes(t *testing.T) {
	tests := []struct {
		name     string
		dispatch string
	}{
		{"main thread", `{mode: "main-thread"}`},
		{"shared queue", `{mode: "shared-queue", queue: 2}`},
		{"calling thread with main-thread guard", `{mode: "calling-thread"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeSpecs(t, `
machine: Toggle: {
	dispatch: `+tt.dispatch+`
	states: ["Off", "On"]
	signals: ["Flip"]
	connections: {
		on:  {from: "Off", to: "On", signals: ["Flip"]}
		off: {from: "On", to: "Off", signals: ["Flip"], main_thread: true}
	}
}
`)
			res := execute(t, "run", dir, "--start", "Off",
				"--send", "Flip", "--send", "Flip", "--send", "Flip", "--format", "json")
			require.NoError(t, res.err)

			var result RunResult
			decodeResponse(t, res.stdout, &result)
			assert.Equal(t, "On", result.FinalState)
			assert.Len(t, result.Records, 4)
		})
	}
}

func TestRunIDGenerator(t *testing.T) {
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.NewSequentialIDs("door"),
	}
	cmd := newRunCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{specsDir, "-m", "Door", "--start", "Closed"})
	require.NoError(t, cmd.Execute())

	var result RunResult
	decodeResponse(t, out.String(), &result)
	assert.Equal(t, "door-1", result.InstanceID)
}

func TestRunServesMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrs := make(chan string, 1)
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		ready:       func(addr string) { addrs <- addr },
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{specsDir, "-m", "Door", "--start", "Closed", "--send", "Push",
		"--metrics-addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr string
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("run exited before serving metrics: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("metrics server did not start")
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body), `statewire_machine_dispatch_total{kind="signal",machine="Door",outcome="transitioned"} 1`)
	assert.Contains(t, string(body), `statewire_machine_transitions_total{from="Closed",machine="Door",to="Open"} 1`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestParseSend(t *testing.T) {
	tests := []struct {
		raw     string
		signal  string
		payload ir.Payload
		wantErr string
	}{
		{raw: "Push", signal: "Push", payload: ir.Payload{}},
		{raw: "Push:", signal: "Push", payload: ir.Payload{}},
		{
			raw:    "Lock:key=brass,tries=3,force=true",
			signal: "Lock",
			payload: ir.NewPayload(
				ir.P("key", ir.String("brass")),
				ir.P("tries", ir.Int(3)),
				ir.P("force", ir.Bool(true)),
			),
		},
		{raw: " Pull : who = bob ", signal: "Pull", payload: ir.NewPayload(ir.P("who", ir.String("bob")))},
		{raw: ":a=1", wantErr: "signal name is empty"},
		{raw: "Push:a", wantErr: "want key=value"},
		{raw: "Push:=1", wantErr: "want key=value"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSend(tt.raw)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.signal, got.signal)
			assert.Equal(t, tt.payload, got.payload)
		})
	}
}
