// Package compiler turns machine declarations into frozen, validated
// connection models.
//
// The pipeline is: CUE value → ir.MachineSpec (CompileMachine) → Model
// (Add*, Aggregate) → diagnostics (Validate). Build runs every stage and
// accumulates all diagnostics instead of stopping at the first one.
package compiler
