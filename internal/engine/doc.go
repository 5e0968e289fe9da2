// Package engine runs state machines over a frozen compiler.Model.
//
// # Dispatch
//
// A Machine holds a current state and reacts to signals. For each signal the
// Resolver fires every matching spy (results ignored), then evaluates the
// candidate transitions tier by tier:
//
//	local specific → local any → global specific → global any
//
// The first connection whose guard returns true wins. If the winner leads to
// a different state the machine runs OnExit(old), switches, runs OnEnter(new),
// then evaluates the new state's auto connections. Chained autos are bounded
// by MaxAutoSteps.
//
// # Affinity
//
// Where dispatch runs is fixed by the model's dispatch mode:
//
//   - calling-thread: inline on the caller's goroutine
//   - main-thread: posted to a MainLoop
//   - shared-queue(id): posted to a FIFO WorkQueue shared by every machine
//     with the same id, so those machines never dispatch concurrently
//
// Guards and callbacks marked main_thread hop to the MainLoop and back.
//
// # Failures
//
// Guard, spy and callback failures (errors and panics) never escape Send.
// They are wrapped in *RuntimeError, reported to the EventListener, and the
// cycle yields no transition. Every cycle produces an ir.DispatchRecord
// stamped by a logical Clock.
package engine
