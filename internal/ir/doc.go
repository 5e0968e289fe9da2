// Package ir provides the declaration and value types shared by every
// statewire package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Declarations are plain values; the compiler never mutates them
//   - Payload values are constrained (no floats) so journals and fingerprints
//     stay deterministic
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps, for ordering
package ir
