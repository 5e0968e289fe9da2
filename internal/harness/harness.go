package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/engine"
	"github.com/roach88/statewire/internal/ir"
	"github.com/roach88/statewire/internal/logging"
	"github.com/roach88/statewire/internal/store"
	"github.com/roach88/statewire/internal/testutil"
)

// Harness holds one scenario's machine and its journal.
type Harness struct {
	store   *store.Store
	machine *engine.Machine
	clock   *testutil.DeterministicClock
	errs    *errorCollector
	logger  *slog.Logger
}

// errorCollector keeps the runtime error codes of the current step.
type errorCollector struct {
	engine.NullListener
	codes []string
}

func (c *errorCollector) OnError(err error) {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		c.codes = append(c.codes, string(re.Code))
		return
	}
	c.codes = append(c.codes, err.Error())
}

func (c *errorCollector) take() []string {
	codes := c.codes
	c.codes = nil
	return codes
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes engine logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database on the calling
// goroutine, whatever dispatch mode the machine declares. Guards and
// callbacks marked main_thread hop to a loop started for the run.
//
// Execution flow:
//  1. Load the specs directory and build the named machine
//  2. Bind guard and callback stubs
//  3. Init at the start state, then send every step's signal
//  4. Read the journal back as the trace and evaluate assertions
//
// An error is returned only when the scenario cannot run at all; failed
// expectations land in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	model, fingerprint, err := buildMachine(scenario)
	if err != nil {
		return nil, err
	}

	handlers, err := scenario.Stubs.Bind(model)
	if err != nil {
		return nil, fmt.Errorf("bind stubs: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		errs:   &errorCollector{},
		logger: cfg.logger,
	}

	engineOpts := []engine.Option{
		engine.WithRecorder(st),
		engine.WithExecutor(engine.CallingThread{}),
		engine.WithClock(h.clock),
		engine.WithIDGenerator(testutil.FixedInstanceID(scenario.InstanceID)),
		engine.WithListener(h.errs),
		engine.WithLogger(cfg.logger),
	}
	if model.HasMainThreadWork() {
		loop, stop := engine.StartMainLoop(context.Background(), cfg.logger)
		defer stop()
		engineOpts = append(engineOpts, engine.WithMainLoop(loop))
	}
	if scenario.MaxAutoSteps > 0 {
		engineOpts = append(engineOpts, engine.WithMaxAutoSteps(scenario.MaxAutoSteps))
	}
	if h.machine, err = engine.New(model, handlers, engineOpts...); err != nil {
		return nil, fmt.Errorf("create machine: %w", err)
	}

	ctx := context.Background()
	inst := store.NewInstance(h.machine.InstanceID(), model.Name(), fingerprint)
	if err := st.RegisterInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("register instance: %w", err)
	}

	result := NewResult()
	result.InstanceID = h.machine.InstanceID()

	h.machine.Init(ctx, scenario.Start)
	if codes := h.errs.take(); len(codes) > 0 {
		result.AddError(fmt.Sprintf("init %s: %v", scenario.Start, codes))
	}

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	if result.Trace, err = st.ReadDispatches(ctx, result.InstanceID); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	result.FinalState = h.machine.State()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"records", len(result.Trace),
	)
	return result, nil
}

func buildMachine(s *Scenario) (*compiler.Model, string, error) {
	loaded, err := compiler.LoadDir(s.Specs)
	if err != nil {
		return nil, "", fmt.Errorf("load specs: %w", err)
	}
	spec, ok := loaded.Find(s.Machine)
	if !ok {
		return nil, "", fmt.Errorf("machine %q not declared in %s (have %v)", s.Machine, s.Specs, loaded.Names())
	}
	res := compiler.Build(spec)
	if !res.OK() {
		return nil, "", res.Err()
	}
	return res.Model, res.Fingerprint, nil
}

// executeSteps sends every step and checks its expectations.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		payload, err := ir.PayloadFromGo(step.Payload)
		if err != nil {
			return fmt.Errorf("step %d: payload: %w", i, err)
		}

		h.machine.Send(ctx, step.Send, payload)

		outcome := StepOutcome{
			Signal: step.Send,
			State:  h.machine.State(),
			Errors: h.errs.take(),
		}
		result.Steps = append(result.Steps, outcome)

		if step.ExpectState != "" && outcome.State != step.ExpectState {
			result.AddError(fmt.Sprintf("step %d (%s): expected state %s, got %s",
				i, step.Send, step.ExpectState, outcome.State))
		}

		switch {
		case step.ExpectError != "" && !slices.Contains(outcome.Errors, step.ExpectError):
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %v",
				i, step.Send, step.ExpectError, outcome.Errors))
		case step.ExpectError == "" && len(outcome.Errors) > 0:
			result.AddError(fmt.Sprintf("step %d (%s): unexpected errors %v",
				i, step.Send, outcome.Errors))
		}

		h.logger.Debug("step completed",
			"step", i,
			"signal", step.Send,
			"state", outcome.State,
			"seq", h.clock.Current(),
		)
	}
	return nil
}
