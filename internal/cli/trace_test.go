package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/store"
)

// seedJournal runs the door through a slam and returns the journal path.
func seedJournal(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "door.db")
	stubs := writeStubs(t, "guards:\n  canClose: false\n")

	res := execute(t, "run", specsDir, "-m", "Door", "--start", "Closed",
		"--send", "Push:user=ann", "--send", "Pull", "--guards", stubs, "--instance", "door-1", "--db", db)
	require.NoError(t, res.err)

	res = execute(t, "run", specsDir, "-m", "Pinball", "--start", "Idle", "--instance", "pin-1", "--db", db)
	require.NoError(t, res.err)
	return db
}

func TestTraceListsInstances(t *testing.T) {
	db := seedJournal(t)

	res := execute(t, "trace", "--db", db)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "door-1  Door  4 record(s) [seq 1..4]")
	assert.Contains(t, res.stdout, "pin-1  Pinball  1 record(s) [seq 1..1]")
}

func TestTraceListsInstancesJSON(t *testing.T) {
	db := seedJournal(t)

	res := execute(t, "trace", "--db", db, "--format", "json")
	require.NoError(t, res.err)

	var instances []store.InstanceSummary
	decodeResponse(t, res.stdout, &instances)
	require.Len(t, instances, 2)
	assert.ElementsMatch(t, []string{"door-1", "pin-1"}, []string{instances[0].ID, instances[1].ID})
}

func TestTraceInstance(t *testing.T) {
	db := seedJournal(t)

	res := execute(t, "trace", "--db", db, "--instance", "door-1", "--verbose")
	require.NoError(t, res.err)

	out := res.stdout
	assert.Contains(t, out, "Trace for instance door-1 (Door)")
	assert.Contains(t, out, "[3] signal Pull Open -> Slammed via slam spies [watch]")
	assert.Contains(t, out, "[4] auto Slammed -> Closed via settle")
	assert.Contains(t, out, "Payload: {user=ann}")
	assert.Contains(t, out, "Transitions: 3")
	assert.Contains(t, out, "Spies fired: 2")
}

func TestTraceInstanceJSON(t *testing.T) {
	db := seedJournal(t)

	res := execute(t, "trace", "--db", db, "--instance", "door-1", "--kind", "signal", "--format", "json")
	require.NoError(t, res.err)

	var result TraceResult
	decodeResponse(t, res.stdout, &result)
	assert.Equal(t, "Door", result.Machine)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Equal(t, ir.RecordSignal, rec.Kind)
	}
	assert.Equal(t, TraceStats{Records: 2, Signals: 2, Transitions: 2, SpiesFired: 2}, result.Stats)
}

func TestTraceErrors(t *testing.T) {
	db := seedJournal(t)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no journal", []string{"trace"}, ErrCodeJournal},
		{"unknown instance", []string{"trace", "--db", db, "--instance", "nope"}, ErrCodeJournal},
		{"bad kind", []string{"trace", "--db", db, "--instance", "door-1", "--kind", "exit"}, ErrCodeInvalidFlag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, append(tt.args, "--format", "json")...)
			require.Error(t, res.err)
			assert.Equal(t, ExitCommandError, GetExitCode(res.err))

			resp := decodeResponse(t, res.stdout, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestTraceStats(t *testing.T) {
	records := []ir.DispatchRecord{
		{Seq: 1, Kind: ir.RecordInit, State: "A", NextState: "A"},
		{Seq: 2, Kind: ir.RecordSignal, Signal: "X", State: "A", NextState: "B", Spies: []string{"s1", "s2"}},
		{Seq: 3, Kind: ir.RecordAuto, State: "B", NextState: "C"},
		{Seq: 4, Kind: ir.RecordSignal, Signal: "X", State: "C", NextState: "C", Error: "GUARD_FAILED"},
	}

	assert.Equal(t, TraceStats{Records: 4, Signals: 2, Autos: 1, Transitions: 2, SpiesFired: 2, Errors: 1}, traceStats(records))
}

func TestFormatRecord(t *testing.T) {
	tests := []struct {
		rec  ir.DispatchRecord
		want string
	}{
		{
			ir.DispatchRecord{Seq: 1, Kind: ir.RecordInit, State: "Closed", NextState: "Closed"},
			"[1] init Closed",
		},
		{
			ir.DispatchRecord{Seq: 2, Kind: ir.RecordSignal, Signal: "Push", State: "Closed", NextState: "Open", Connection: "open", Spies: []string{"a", "b"}},
			"[2] signal Push Closed -> Open via open spies [a b]",
		},
		{
			ir.DispatchRecord{Seq: 3, Kind: ir.RecordSignal, Signal: "Lock", State: "Closed", NextState: "Closed", Error: "GUARD_FAILED: boom"},
			`[3] signal Lock Closed -> Closed error "GUARD_FAILED: boom"`,
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRecord(tt.rec))
	}
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}
