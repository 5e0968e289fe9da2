package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statewire/internal/ir"
)

// TraceSnapshot captures the journal of one scenario run.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	InstanceID   string              `json:"instance_id"`
	FinalState   string              `json:"final_state"`
	Trace        []ir.DispatchRecord `json:"trace"`
}

// toCanonicalMap converts the snapshot into values ir.MarshalCanonical
// accepts. Empty optional fields are left out.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, rec := range s.Trace {
		m := map[string]any{
			"seq":        rec.Seq,
			"kind":       string(rec.Kind),
			"machine":    rec.Machine,
			"state":      rec.State,
			"next_state": rec.NextState,
		}
		if rec.Signal != "" {
			m["signal"] = rec.Signal
		}
		if len(rec.Payload) > 0 {
			m["payload"] = rec.Payload
		}
		if rec.Connection != "" {
			m["connection"] = rec.Connection
		}
		if len(rec.Spies) > 0 {
			spies := make([]any, len(rec.Spies))
			for j, s := range rec.Spies {
				spies[j] = s
			}
			m["spies"] = spies
		}
		if rec.Error != "" {
			m["error"] = rec.Error
		}
		trace[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"instance_id":   s.InstanceID,
		"final_state":   s.FinalState,
		"trace":         trace,
	}
}

// SnapshotJSON renders a result as canonical JSON.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{
		ScenarioName: scenarioName,
		InstanceID:   result.InstanceID,
		FinalState:   result.FinalState,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
