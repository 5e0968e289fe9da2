package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of one machine.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Specs is the directory of CUE declarations.
	Specs string `yaml:"specs"`

	// Machine selects the declared machine to run.
	Machine string `yaml:"machine"`

	// InstanceID is stamped on every record. Defaults to "test-instance".
	InstanceID string `yaml:"instance_id,omitempty"`

	// Start is the state passed to Init.
	Start string `yaml:"start"`

	// MaxAutoSteps overrides the auto connection quota when positive.
	MaxAutoSteps int `yaml:"max_auto_steps,omitempty"`

	Stubs `yaml:",inline"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step sends one signal and optionally checks its outcome.
type Step struct {
	Send    string         `yaml:"send"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// ExpectState is the state the machine must be in after the cycle
	// and any autos it triggered.
	ExpectState string `yaml:"expect_state,omitempty"`

	// ExpectError is a runtime error code the step must produce. A step
	// without it fails on any runtime error.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion is a post-run check over the trace.
type Assertion struct {
	Type        string   `yaml:"type"`
	Connection  string   `yaml:"connection,omitempty"`
	Connections []string `yaml:"connections,omitempty"`
	Count       int      `yaml:"count,omitempty"`
	State       string   `yaml:"state,omitempty"`
	States      []string `yaml:"states,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertSpyFired      = "spy_fired"
	AssertStatePath     = "state_path"
	AssertFinalState    = "final_state"
	AssertNoErrors      = "no_errors"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative specs directory resolves against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithSpecs(path, "")
}

// LoadScenarioWithSpecs is LoadScenario with a fallback specs directory,
// used when the scenario names none.
func LoadScenarioWithSpecs(path, specsDir string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject typos like "assertion:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	switch {
	case scenario.Specs == "":
		scenario.Specs = specsDir
	case !filepath.IsAbs(scenario.Specs):
		scenario.Specs = filepath.Join(filepath.Dir(path), scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by path.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if s.Machine == "" {
		return fmt.Errorf("machine is required")
	}
	if s.Start == "" {
		return fmt.Errorf("start state is required")
	}
	if s.MaxAutoSteps < 0 {
		return fmt.Errorf("max_auto_steps must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Send == "" {
			return fmt.Errorf("steps[%d]: send is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertSpyFired:
		if a.Connection == "" {
			return fmt.Errorf("assertions[%d]: connection is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Connections) == 0 {
			return fmt.Errorf("assertions[%d]: connections list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Connection == "" {
			return fmt.Errorf("assertions[%d]: connection is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertStatePath:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for state_path", index)
		}
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertNoErrors:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
