package compiler

import (
	"slices"

	"github.com/roach88/statewire/internal/ir"
)

// ConnID is a handle into the model's connection arena.
type ConnID int

// stateSignal keys the per-state, per-signal local indices.
type stateSignal struct {
	state  string
	signal string
}

// Model is the connection model of one machine.
//
// Lifecycle: populate with Add*, then call Aggregate, which freezes the model
// and derives every lookup index from the raw collections. After Aggregate
// the model is read-only and safe for concurrent readers. Slices returned by
// accessors are shared and must not be modified.
type Model struct {
	name     string
	dispatch ir.DispatchMode

	states          []string
	stateSet        map[string]bool
	statesDeclared  bool
	signals         []string
	signalSet       map[string]bool
	signalsDeclared bool

	conns      []ir.Connection
	categories []ir.Category
	byName     map[string]ConnID

	// raw holds one collection per category, in insertion order.
	raw map[ir.Category][]ConnID

	callbacks []ir.Callback
	onEnter   map[string]ir.Callback
	onExit    map[string]ir.Callback

	mainThreadWork bool
	frozen         bool

	localTransitions     map[stateSignal][]ConnID
	localAnyTransitions  map[string][]ConnID
	localSpies           map[stateSignal][]ConnID
	localAnySpies        map[string][]ConnID
	globalTransitions    map[string][]ConnID
	globalAnyTransitions []ConnID
	globalSpies          map[string][]ConnID
	globalAnySpies       []ConnID
	autos                map[string][]ConnID
}

// NewModel creates an empty model for the named machine.
func NewModel(name string, dispatch ir.DispatchMode) *Model {
	if dispatch.Affinity == "" {
		dispatch = ir.DefaultDispatchMode()
	}
	return &Model{
		name:      name,
		dispatch:  dispatch,
		stateSet:  make(map[string]bool),
		signalSet: make(map[string]bool),
		byName:    make(map[string]ConnID),
		raw:       make(map[ir.Category][]ConnID),
		onEnter:   make(map[string]ir.Callback),
		onExit:    make(map[string]ir.Callback),
	}
}

// Name returns the machine name.
func (m *Model) Name() string { return m.name }

// DeclareStates records that a states declaration exists, even if empty.
func (m *Model) DeclareStates() error {
	if m.frozen {
		return ErrModelFrozen
	}
	m.statesDeclared = true
	return nil
}

// DeclareSignals records that a signals declaration exists, even if empty.
func (m *Model) DeclareSignals() error {
	if m.frozen {
		return ErrModelFrozen
	}
	m.signalsDeclared = true
	return nil
}

// AddState declares a state. Declaration order is preserved.
func (m *Model) AddState(name string) error {
	if m.frozen {
		return ErrModelFrozen
	}
	m.statesDeclared = true
	if m.stateSet[name] {
		return &DuplicateDeclarationError{Kind: "state", Name: name}
	}
	m.stateSet[name] = true
	m.states = append(m.states, name)
	return nil
}

// AddSignal declares a signal. Declaration order is preserved.
func (m *Model) AddSignal(name string) error {
	if m.frozen {
		return ErrModelFrozen
	}
	m.signalsDeclared = true
	if m.signalSet[name] {
		return &DuplicateDeclarationError{Kind: "signal", Name: name}
	}
	m.signalSet[name] = true
	m.signals = append(m.signals, name)
	return nil
}

// AddConnection classifies c and routes it to exactly one raw collection.
func (m *Model) AddConnection(c ir.Connection) (ConnID, error) {
	if m.frozen {
		return -1, ErrModelFrozen
	}
	if _, exists := m.byName[c.Name]; exists {
		return -1, &DuplicateConnectionError{Name: c.Name}
	}
	cat, err := Classify(c)
	if err != nil {
		return -1, err
	}

	c.Signals = slices.Clone(c.Signals)
	id := ConnID(len(m.conns))
	m.conns = append(m.conns, c)
	m.categories = append(m.categories, cat)
	m.byName[c.Name] = id
	m.raw[cat] = append(m.raw[cat], id)

	if c.RunOnMainThread {
		m.mainThreadWork = true
	}
	return id, nil
}

// AddOnEnter registers the entry callback for a state.
func (m *Model) AddOnEnter(cb ir.Callback) error {
	cb.Kind = ir.OnEnter
	return m.addCallback(m.onEnter, cb)
}

// AddOnExit registers the exit callback for a state.
func (m *Model) AddOnExit(cb ir.Callback) error {
	cb.Kind = ir.OnExit
	return m.addCallback(m.onExit, cb)
}

func (m *Model) addCallback(table map[string]ir.Callback, cb ir.Callback) error {
	if m.frozen {
		return ErrModelFrozen
	}
	if existing, ok := table[cb.State]; ok {
		return &DuplicateCallbackError{
			Kind:      string(cb.Kind),
			State:     cb.State,
			Existing:  existing.Name,
			Duplicate: cb.Name,
		}
	}
	table[cb.State] = cb
	m.callbacks = append(m.callbacks, cb)
	if cb.RunOnMainThread {
		m.mainThreadWork = true
	}
	return nil
}

// Aggregate freezes the model and rebuilds every lookup index from the raw
// collections. Calling it again yields identical indices.
func (m *Model) Aggregate() {
	m.frozen = true

	m.localTransitions = make(map[stateSignal][]ConnID)
	m.localAnyTransitions = make(map[string][]ConnID)
	m.localSpies = make(map[stateSignal][]ConnID)
	m.localAnySpies = make(map[string][]ConnID)
	m.globalTransitions = make(map[string][]ConnID)
	m.globalAnyTransitions = nil
	m.globalSpies = make(map[string][]ConnID)
	m.globalAnySpies = nil
	m.autos = make(map[string][]ConnID)

	for _, id := range m.raw[ir.CategoryLocalTransitionSpecific] {
		c := m.conns[id]
		for _, sig := range c.SignalSet() {
			key := stateSignal{c.From, sig}
			m.localTransitions[key] = appendUnique(m.localTransitions[key], id)
		}
	}
	for _, id := range m.raw[ir.CategoryLocalTransitionAny] {
		from := m.conns[id].From
		m.localAnyTransitions[from] = appendUnique(m.localAnyTransitions[from], id)
	}
	for _, id := range m.raw[ir.CategoryLocalSpySpecific] {
		c := m.conns[id]
		for _, sig := range c.SignalSet() {
			key := stateSignal{c.From, sig}
			m.localSpies[key] = appendUnique(m.localSpies[key], id)
		}
	}
	for _, id := range m.raw[ir.CategoryLocalSpyAny] {
		from := m.conns[id].From
		m.localAnySpies[from] = appendUnique(m.localAnySpies[from], id)
	}
	for _, id := range m.raw[ir.CategoryGlobalTransitionSpecific] {
		for _, sig := range m.conns[id].SignalSet() {
			m.globalTransitions[sig] = appendUnique(m.globalTransitions[sig], id)
		}
	}
	for _, id := range m.raw[ir.CategoryGlobalTransitionAny] {
		m.globalAnyTransitions = appendUnique(m.globalAnyTransitions, id)
	}
	for _, id := range m.raw[ir.CategoryGlobalSpySpecific] {
		for _, sig := range m.conns[id].SignalSet() {
			m.globalSpies[sig] = appendUnique(m.globalSpies[sig], id)
		}
	}
	for _, id := range m.raw[ir.CategoryGlobalSpyAny] {
		m.globalAnySpies = appendUnique(m.globalAnySpies, id)
	}
	for _, id := range m.raw[ir.CategoryAuto] {
		from := m.conns[id].From
		m.autos[from] = appendUnique(m.autos[from], id)
	}
}

func appendUnique(list []ConnID, id ConnID) []ConnID {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

// Frozen reports whether Aggregate has been called.
func (m *Model) Frozen() bool { return m.frozen }

// States returns the declared states in declaration order.
func (m *Model) States() []string { return m.states }

// Signals returns the declared signals in declaration order.
func (m *Model) Signals() []string { return m.signals }

// StatesDeclared reports whether a states declaration exists.
func (m *Model) StatesDeclared() bool { return m.statesDeclared }

// SignalsDeclared reports whether a signals declaration exists.
func (m *Model) SignalsDeclared() bool { return m.signalsDeclared }

// HasState reports whether name is a declared state.
func (m *Model) HasState(name string) bool { return m.stateSet[name] }

// HasSignal reports whether name is a declared signal.
func (m *Model) HasSignal(name string) bool { return m.signalSet[name] }

// Connection returns the connection stored under id.
func (m *Model) Connection(id ConnID) ir.Connection { return m.conns[id] }

// Category returns the category cached for id.
func (m *Model) Category(id ConnID) ir.Category { return m.categories[id] }

// Lookup returns the id of the named connection.
func (m *Model) Lookup(name string) (ConnID, bool) {
	id, ok := m.byName[name]
	return id, ok
}

// Connections returns every connection in declaration order.
func (m *Model) Connections() []ir.Connection { return m.conns }

// Raw returns the raw collection for one category, in insertion order.
func (m *Model) Raw(cat ir.Category) []ConnID { return m.raw[cat] }

// LocalTransitions returns local transitions from state on signal.
func (m *Model) LocalTransitions(state, signal string) []ConnID {
	return m.localTransitions[stateSignal{state, signal}]
}

// LocalAnyTransitions returns local transitions from state on any signal.
func (m *Model) LocalAnyTransitions(state string) []ConnID {
	return m.localAnyTransitions[state]
}

// LocalSpies returns local spies on state and signal.
func (m *Model) LocalSpies(state, signal string) []ConnID {
	return m.localSpies[stateSignal{state, signal}]
}

// LocalAnySpies returns local spies on state for any signal.
func (m *Model) LocalAnySpies(state string) []ConnID {
	return m.localAnySpies[state]
}

// GlobalTransitions returns transitions from any state on signal.
func (m *Model) GlobalTransitions(signal string) []ConnID {
	return m.globalTransitions[signal]
}

// GlobalAnyTransitions returns transitions from any state on any signal.
func (m *Model) GlobalAnyTransitions() []ConnID { return m.globalAnyTransitions }

// GlobalSpies returns spies on signal in every state.
func (m *Model) GlobalSpies(signal string) []ConnID {
	return m.globalSpies[signal]
}

// GlobalAnySpies returns spies on every signal in every state.
func (m *Model) GlobalAnySpies() []ConnID { return m.globalAnySpies }

// AutoConnections returns the auto connections leaving state.
func (m *Model) AutoConnections(state string) []ConnID { return m.autos[state] }

// OnEnter returns the entry callback of state, if any.
func (m *Model) OnEnter(state string) (ir.Callback, bool) {
	cb, ok := m.onEnter[state]
	return cb, ok
}

// OnExit returns the exit callback of state, if any.
func (m *Model) OnExit(state string) (ir.Callback, bool) {
	cb, ok := m.onExit[state]
	return cb, ok
}

// Callbacks returns every registered callback in registration order.
func (m *Model) Callbacks() []ir.Callback { return m.callbacks }

// DispatchMode returns the machine's dispatch affinity.
func (m *Model) DispatchMode() ir.DispatchMode { return m.dispatch }

// HasMainThreadWork reports whether any connection or callback must run on
// the main loop.
func (m *Model) HasMainThreadWork() bool { return m.mainThreadWork }

// Spec reconstructs the declaration the model was built from.
func (m *Model) Spec() ir.MachineSpec {
	return ir.MachineSpec{
		Name:            m.name,
		Dispatch:        m.dispatch,
		States:          m.states,
		Signals:         m.signals,
		Connections:     m.conns,
		Callbacks:       m.callbacks,
		StatesDeclared:  m.statesDeclared,
		SignalsDeclared: m.signalsDeclared,
	}
}

// Fingerprint returns a stable identity of the model's declarations.
func (m *Model) Fingerprint() (string, error) {
	return ir.Fingerprint(m.Spec())
}
