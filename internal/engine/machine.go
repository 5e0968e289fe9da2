package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// Machine is one running instance of a compiled model.
//
// All dispatch for a Machine runs through its Executor, so at most one
// signal is processed at a time. The current state is mutated only by the
// dispatch job; State may be read from any goroutine.
type Machine struct {
	model      *compiler.Model
	resolver   *Resolver
	instanceID string

	guards    []boundGuard // indexed by ConnID
	table     map[string]stateHandler
	exec      Executor
	loop      *MainLoop
	recorder  Recorder
	metrics   *Metrics
	clock     Sequencer
	logger    *slog.Logger
	autoLimit int

	mu          sync.Mutex
	state       string
	initialized bool
	listener    EventListener
}

type boundGuard struct {
	name string
	fn   Guard
	main bool
}

type boundCallback struct {
	name string
	fn   Callback
	main bool
}

// stateHandler holds the per-state entry and exit callbacks, resolved once
// at construction.
type stateHandler struct {
	enter *boundCallback
	exit  *boundCallback
}

// Option configures a Machine.
type Option func(*machineConfig)

type machineConfig struct {
	listener     EventListener
	recorder     Recorder
	executor     Executor
	loop         *MainLoop
	sharedQueues *SharedQueues
	maxAutoSteps int
	logger       *slog.Logger
	clock        Sequencer
	instanceID   string
	idGen        InstanceIDGenerator
	metrics      *Metrics
}

// WithListener sets the initial event listener.
func WithListener(l EventListener) Option {
	return func(c *machineConfig) { c.listener = l }
}

// WithRecorder journals every dispatch cycle.
func WithRecorder(r Recorder) Option {
	return func(c *machineConfig) { c.recorder = r }
}

// WithExecutor overrides the executor chosen from the dispatch mode.
func WithExecutor(e Executor) Option {
	return func(c *machineConfig) { c.executor = e }
}

// WithMainLoop sets the loop used by main-thread dispatch and by guards and
// callbacks marked main_thread.
func WithMainLoop(l *MainLoop) Option {
	return func(c *machineConfig) { c.loop = l }
}

// WithSharedQueues sets the registry used by shared-queue dispatch.
func WithSharedQueues(s *SharedQueues) Option {
	return func(c *machineConfig) { c.sharedQueues = s }
}

// WithMaxAutoSteps bounds chained auto transitions per entry.
func WithMaxAutoSteps(n int) Option {
	return func(c *machineConfig) { c.maxAutoSteps = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *machineConfig) { c.logger = l }
}

// WithClock sets the clock that stamps dispatch records.
func WithClock(clk Sequencer) Option {
	return func(c *machineConfig) { c.clock = clk }
}

// WithInstanceID fixes the instance id.
func WithInstanceID(id string) Option {
	return func(c *machineConfig) { c.instanceID = id }
}

// WithIDGenerator sets the instance id source.
func WithIDGenerator(g InstanceIDGenerator) Option {
	return func(c *machineConfig) { c.idGen = g }
}

// WithMetrics records dispatch metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *machineConfig) { c.metrics = m }
}

// New creates a machine over a frozen model. Every guard reference and
// callback in the model must be bound in h.
func New(model *compiler.Model, h *Handlers, opts ...Option) (*Machine, error) {
	resolver, err := NewResolver(model)
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = NewHandlers()
	}

	cfg := machineConfig{
		maxAutoSteps: DefaultMaxAutoSteps,
		idGen:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}
	if cfg.listener == nil {
		cfg.listener = NullListener{}
	}
	if cfg.instanceID == "" {
		cfg.instanceID = cfg.idGen.Generate()
	}

	m := &Machine{
		model:      model,
		resolver:   resolver,
		instanceID: cfg.instanceID,
		table:      make(map[string]stateHandler, len(model.States())),
		loop:       cfg.loop,
		recorder:   cfg.recorder,
		metrics:    cfg.metrics,
		clock:      cfg.clock,
		logger:     cfg.logger.With("machine", model.Name(), "instance", cfg.instanceID),
		autoLimit:  cfg.maxAutoSteps,
		listener:   cfg.listener,
	}

	conns := model.Connections()
	m.guards = make([]boundGuard, len(conns))
	for i, c := range conns {
		ref := c.GuardRef()
		g, ok := h.Guards[ref]
		if !ok {
			return nil, fmt.Errorf("connection %s: no guard bound for %q", c.Name, ref)
		}
		m.guards[i] = boundGuard{name: c.Name, fn: g, main: c.RunOnMainThread}
	}

	for _, cb := range model.Callbacks() {
		fn, ok := h.Callbacks[cb.Name]
		if !ok {
			return nil, fmt.Errorf("%s callback %s: no handler bound", cb.Kind, cb.Name)
		}
		bound := &boundCallback{name: cb.Name, fn: fn, main: cb.RunOnMainThread}
		sh := m.table[cb.State]
		if cb.Kind == ir.OnEnter {
			sh.enter = bound
		} else {
			sh.exit = bound
		}
		m.table[cb.State] = sh
	}

	if model.HasMainThreadWork() && cfg.loop == nil {
		return nil, fmt.Errorf("machine %s has main-thread guards or callbacks and requires WithMainLoop", model.Name())
	}
	if m.exec, err = chooseExecutor(model.DispatchMode(), cfg); err != nil {
		return nil, err
	}
	return m, nil
}

func chooseExecutor(mode ir.DispatchMode, cfg machineConfig) (Executor, error) {
	if cfg.executor != nil {
		return cfg.executor, nil
	}
	switch mode.Affinity {
	case ir.MainThread:
		if cfg.loop == nil {
			return nil, fmt.Errorf("dispatch mode %s requires WithMainLoop", mode)
		}
		return cfg.loop, nil
	case ir.SharedQueue:
		queues := cfg.sharedQueues
		if queues == nil {
			queues = DefaultSharedQueues
		}
		return queues.Queue(mode.QueueID), nil
	default:
		return CallingThread{}, nil
	}
}

// Name returns the machine name.
func (m *Machine) Name() string { return m.model.Name() }

// InstanceID returns the id stamped on this instance's records.
func (m *Machine) InstanceID() string { return m.instanceID }

// Model returns the compiled model.
func (m *Machine) Model() *compiler.Model { return m.model }

// State returns the current state, or "" before Init.
func (m *Machine) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialized reports whether Init has completed.
func (m *Machine) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// SetListener replaces the event listener. A nil listener discards events.
func (m *Machine) SetListener(l EventListener) {
	if l == nil {
		l = NullListener{}
	}
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// Drain waits until every Init and Send issued before the call has been
// processed.
func (m *Machine) Drain(ctx context.Context) error {
	return m.exec.Drain(ctx)
}

// Init enters start without running its OnEnter callback, then follows any
// auto connections leaving it.
func (m *Machine) Init(ctx context.Context, start string) {
	m.exec.Execute(ctx, func(ctx context.Context) {
		m.init(ctx, start)
	})
}

// Send dispatches signal with payload. Failures are reported to the
// listener, never returned.
func (m *Machine) Send(ctx context.Context, signal string, p ir.Payload) {
	if p == nil {
		p = ir.Payload{}
	}
	m.exec.Execute(ctx, func(ctx context.Context) {
		m.dispatch(ctx, signal, p)
	})
}

func (m *Machine) init(ctx context.Context, start string) {
	if !m.model.HasState(start) {
		m.fail(&RuntimeError{
			Code:    ErrCodeUnknownState,
			Message: "initial state is not declared",
			Machine: m.model.Name(),
			State:   start,
		})
		m.observeDispatch(ir.RecordInit, "error", time.Now())
		return
	}

	began := time.Now()
	m.mu.Lock()
	m.state = start
	m.initialized = true
	m.mu.Unlock()

	m.logger.Debug("machine initialized", "state", start)
	m.record(ctx, ir.DispatchRecord{
		Kind:      ir.RecordInit,
		State:     start,
		NextState: start,
	})
	m.observeDispatch(ir.RecordInit, "ok", began)
	m.runAutos(ctx, start)
}

func (m *Machine) dispatch(ctx context.Context, signal string, p ir.Payload) {
	began := time.Now()

	m.mu.Lock()
	state, ready := m.state, m.initialized
	m.mu.Unlock()

	if !ready {
		m.fail(&RuntimeError{
			Code:    ErrCodeNotInitialized,
			Message: "signal sent before Init",
			Machine: m.model.Name(),
			Signal:  signal,
		})
		m.observeDispatch(ir.RecordSignal, "error", began)
		return
	}

	m.notify(func(l EventListener) { l.OnDispatchingSignal(state, signal) })

	rec := ir.DispatchRecord{
		Kind:      ir.RecordSignal,
		State:     state,
		Signal:    signal,
		Payload:   p,
		NextState: state,
	}

	if !m.model.HasSignal(signal) {
		err := &RuntimeError{
			Code:    ErrCodeUnknownSignal,
			Message: "signal is not declared",
			Machine: m.model.Name(),
			State:   state,
			Signal:  signal,
		}
		m.fail(err)
		rec.Error = err.Error()
		m.record(ctx, rec)
		m.observeDispatch(ir.RecordSignal, "error", began)
		return
	}

	res, err := m.resolver.Resolve(ctx, state, signal, p, m.evalGuard)
	rec.Spies = m.names(res.Spies)
	if m.metrics != nil && len(res.Spies) > 0 {
		m.metrics.spiesFired.WithLabelValues(m.model.Name()).Add(float64(len(res.Spies)))
	}
	if err != nil {
		m.fail(err)
		rec.Error = err.Error()
		m.record(ctx, rec)
		m.observeDispatch(ir.RecordSignal, "error", began)
		return
	}

	outcome := "ignored"
	if res.Matched {
		c := m.model.Connection(res.Connection)
		rec.Connection = c.Name
		outcome = "matched"
		if c.To != state {
			if err := m.switchState(ctx, state, c.To, signal); err != nil {
				m.fail(err)
				rec.Error = err.Error()
				m.record(ctx, rec)
				m.observeDispatch(ir.RecordSignal, "error", began)
				return
			}
			rec.NextState = c.To
			outcome = "transitioned"
		}
	}

	m.record(ctx, rec)
	m.observeDispatch(ir.RecordSignal, outcome, began)

	if rec.Transitioned() {
		m.runAutos(ctx, rec.NextState)
	}
}

// runAutos follows auto connections from a freshly entered state until none
// fires, one leads back to the current state, or the step limit is hit.
func (m *Machine) runAutos(ctx context.Context, state string) {
	quota := NewQuotaEnforcer(m.autoLimit)

	for {
		began := time.Now()
		res, err := m.resolver.ResolveAuto(ctx, state, ir.Payload{}, m.evalGuard)
		if err != nil {
			m.fail(err)
			m.record(ctx, ir.DispatchRecord{
				Kind:      ir.RecordAuto,
				State:     state,
				NextState: state,
				Error:     err.Error(),
			})
			m.observeDispatch(ir.RecordAuto, "error", began)
			return
		}
		if !res.Matched {
			return
		}

		c := m.model.Connection(res.Connection)
		rec := ir.DispatchRecord{
			Kind:       ir.RecordAuto,
			State:      state,
			Connection: c.Name,
			NextState:  state,
		}
		if c.To == state {
			m.record(ctx, rec)
			m.observeDispatch(ir.RecordAuto, "matched", began)
			return
		}

		if err := quota.Check(m.instanceID); err != nil {
			rerr := &RuntimeError{
				Code:       ErrCodeAutoStepsExceeded,
				Message:    "auto connections did not settle",
				Machine:    m.model.Name(),
				State:      state,
				Connection: c.Name,
				Err:        err,
			}
			m.fail(rerr)
			rec.Error = rerr.Error()
			m.record(ctx, rec)
			m.observeDispatch(ir.RecordAuto, "error", began)
			return
		}

		if err := m.switchState(ctx, state, c.To, ""); err != nil {
			m.fail(err)
			rec.Error = err.Error()
			m.record(ctx, rec)
			m.observeDispatch(ir.RecordAuto, "error", began)
			return
		}

		rec.NextState = c.To
		m.record(ctx, rec)
		m.observeDispatch(ir.RecordAuto, "transitioned", began)
		state = c.To
	}
}

// switchState runs OnExit(from), moves to to, then runs OnEnter(to). An
// OnExit failure leaves the state untouched; an OnEnter failure restores
// from without a second change event and without re-running OnEnter(from).
func (m *Machine) switchState(ctx context.Context, from, to, signal string) error {
	if exit := m.table[from].exit; exit != nil {
		if err := m.runCallback(ctx, exit, ir.OnExit, from, signal); err != nil {
			return err
		}
	}

	m.notify(func(l EventListener) { l.OnChangingState(from, to) })
	m.setState(to)

	if enter := m.table[to].enter; enter != nil {
		if err := m.runCallback(ctx, enter, ir.OnEnter, to, signal); err != nil {
			m.setState(from)
			return err
		}
	}

	if m.metrics != nil {
		m.metrics.transitions.WithLabelValues(m.model.Name(), from, to).Inc()
	}
	return nil
}

func (m *Machine) setState(s string) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// evalGuard runs the guard bound to id, on the main loop when required.
func (m *Machine) evalGuard(ctx context.Context, id compiler.ConnID, p ir.Payload) (bool, error) {
	g := m.guards[id]
	var ok bool
	err := m.onAffinity(ctx, g.main, func(ctx context.Context) error {
		var err error
		ok, err = g.fn(ctx, p)
		return err
	})
	return ok, err
}

func (m *Machine) runCallback(ctx context.Context, cb *boundCallback, kind ir.CallbackKind, state, signal string) error {
	err := m.onAffinity(ctx, cb.main, cb.fn)
	if err == nil {
		return nil
	}
	return &RuntimeError{
		Code:       ErrCodeCallbackFailed,
		Message:    string(kind) + " failed",
		Machine:    m.model.Name(),
		State:      state,
		Signal:     signal,
		Connection: cb.name,
		Err:        err,
	}
}

// onAffinity runs fn on the main loop when main is set, otherwise inline.
// New guarantees a loop exists for main-thread work. Panics become
// *PanicError.
func (m *Machine) onAffinity(ctx context.Context, main bool, fn func(context.Context) error) error {
	if main {
		return m.loop.Call(ctx, func(ctx context.Context) error {
			return protect(func() error { return fn(ctx) })
		})
	}
	return protect(func() error { return fn(ctx) })
}

func (m *Machine) fail(err error) {
	m.logger.Debug("dispatch error", "err", err)
	if m.metrics != nil {
		code := "UNKNOWN"
		var re *RuntimeError
		if errors.As(err, &re) {
			code = string(re.Code)
		}
		m.metrics.errors.WithLabelValues(m.model.Name(), code).Inc()
	}
	m.notify(func(l EventListener) { l.OnError(err) })
}

// notify calls the listener, logging instead of propagating its panics.
func (m *Machine) notify(fn func(EventListener)) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()

	if err := protect(func() error { fn(l); return nil }); err != nil {
		m.logger.Warn("event listener panicked", "err", err)
	}
}

func (m *Machine) record(ctx context.Context, rec ir.DispatchRecord) {
	rec.InstanceID = m.instanceID
	rec.Machine = m.model.Name()
	rec.Seq = m.clock.Next()
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(ctx, rec); err != nil {
		m.logger.Warn("failed to record dispatch", "seq", rec.Seq, "err", err)
	}
}

func (m *Machine) observeDispatch(kind ir.RecordKind, outcome string, began time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.dispatches.WithLabelValues(m.model.Name(), string(kind), outcome).Inc()
	m.metrics.duration.WithLabelValues(m.model.Name()).Observe(time.Since(began).Seconds())
}

func (m *Machine) names(ids []compiler.ConnID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = m.model.Connection(id).Name
	}
	return out
}
