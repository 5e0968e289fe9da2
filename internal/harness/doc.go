// Package harness runs YAML scenarios against compiled state machines.
//
// A scenario names a directory of CUE machine declarations, picks one
// machine, scripts its guards and callbacks, and sends a sequence of
// signals. Every dispatch cycle is journaled to an in-memory SQLite store
// and read back as the trace the assertions and golden files inspect.
//
// # Scenario Format
//
//	name: door_locks_itself
//	description: "Opening the door arms the auto lock"
//	specs: ../specs
//	machine: Door
//	instance_id: door-1
//	start: Closed
//	guards:
//	  hasKey: true
//	  canClose: {when: {force: true}}
//	  sensor: {fail: "sensor offline"}
//	callbacks:
//	  byeOpen: {fail: "stuck"}
//	steps:
//	  - send: Push
//	    payload: {user: "ann"}
//	    expect_state: Locked
//	  - send: Pull
//	    expect_error: GUARD_FAILED
//	assertions:
//	  - type: trace_contains
//	    connection: open
//	  - type: trace_order
//	    connections: [open, autoLock]
//	  - type: final_state
//	    state: Locked
//
// Guards left out of the guards map answer default_guard (true unless
// set). Callbacks left out do nothing.
//
// # Assertion Types
//
//   - trace_contains: a connection matched (or, for spies, fired) at least once
//   - trace_order: connections matched in the given order, gaps allowed
//   - trace_count: a connection matched exactly count times
//   - spy_fired: a spy fired at least once
//   - state_path: the sequence of states visited, starting with start
//   - final_state: the state after the last step
//   - no_errors: no dispatch cycle failed
//
// # Determinism
//
// Scenarios run on the calling goroutine with a deterministic clock and a
// fixed instance id, so identical scenarios produce byte-identical traces.
package harness
