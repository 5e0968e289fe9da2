package ir

import "fmt"

// Sentinels used in connection declarations.
const (
	// Wildcard matches any state (from/to) or any signal (signals).
	Wildcard = "*"

	// Auto marks a connection that fires without an incoming signal.
	Auto = "!"
)

// GlobalSharedQueue is the queue id used by shared-queue machines that do
// not name one.
const GlobalSharedQueue = 0

// MachineSpec is the complete declaration of one machine, as produced by a
// front-end (CUE loader or Go code).
type MachineSpec struct {
	Name        string       `json:"name"`
	Dispatch    DispatchMode `json:"dispatch"`
	States      []string     `json:"states"`
	Signals     []string     `json:"signals"`
	Connections []Connection `json:"connections"`
	Callbacks   []Callback   `json:"callbacks"`

	// StatesDeclared and SignalsDeclared record whether a declaration block
	// existed at all, independent of how many names it held.
	StatesDeclared  bool `json:"states_declared"`
	SignalsDeclared bool `json:"signals_declared"`
}

// Connection is a declared rule linking a from-state, a to-state and a set
// of signals, guarded by a host handler.
type Connection struct {
	Name            string   `json:"name"`
	From            string   `json:"from"`
	To              string   `json:"to"`
	Signals         []string `json:"signals"`
	Guard           string   `json:"guard,omitempty"` // handler name, defaults to Name
	RunOnMainThread bool     `json:"main_thread,omitempty"`
}

// NewConnection builds a connection on concrete signals.
func NewConnection(name, from, to string, signals ...string) Connection {
	return Connection{Name: name, From: from, To: to, Signals: signals}
}

// NewAutoConnection builds a connection that fires without a signal.
func NewAutoConnection(name, from, to string) Connection {
	return Connection{Name: name, From: from, To: to, Signals: []string{Auto}}
}

// GuardRef returns the handler name bound to this connection.
func (c Connection) GuardRef() string {
	if c.Guard != "" {
		return c.Guard
	}
	return c.Name
}

// IsWildcardFrom reports whether the connection applies from every state.
func (c Connection) IsWildcardFrom() bool { return c.From == Wildcard }

// IsWildcardTo reports whether the connection never changes state.
func (c Connection) IsWildcardTo() bool { return c.To == Wildcard }

// IsWildcardSignal reports whether the connection matches any signal.
func (c Connection) IsWildcardSignal() bool {
	return len(c.Signals) == 1 && c.Signals[0] == Wildcard
}

// IsAuto reports whether the connection fires without a signal.
func (c Connection) IsAuto() bool {
	return len(c.Signals) == 1 && c.Signals[0] == Auto
}

// SignalSet returns the concrete signal names with duplicates removed,
// preserving first-seen order. Sentinel-only sets return nil.
func (c Connection) SignalSet() []string {
	if c.IsWildcardSignal() || c.IsAuto() {
		return nil
	}
	seen := make(map[string]bool, len(c.Signals))
	out := make([]string, 0, len(c.Signals))
	for _, s := range c.Signals {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func (c Connection) String() string {
	return fmt.Sprintf("%s: %s -> %s on %v", c.Name, c.From, c.To, c.Signals)
}

// CallbackKind distinguishes state entry and exit callbacks.
type CallbackKind string

const (
	OnEnter CallbackKind = "on_enter"
	OnExit  CallbackKind = "on_exit"
)

// Callback is an OnEnter or OnExit registration for one state.
type Callback struct {
	Kind            CallbackKind `json:"kind"`
	Name            string       `json:"name"` // handler name
	State           string       `json:"state"`
	RunOnMainThread bool         `json:"main_thread,omitempty"`
}

// DispatchAffinity selects where a machine's dispatch runs.
type DispatchAffinity string

const (
	CallingThread DispatchAffinity = "calling-thread"
	MainThread    DispatchAffinity = "main-thread"
	SharedQueue   DispatchAffinity = "shared-queue"
)

// ValidAffinities lists the accepted dispatch affinities.
var ValidAffinities = map[DispatchAffinity]bool{
	CallingThread: true,
	MainThread:    true,
	SharedQueue:   true,
}

// DispatchMode is a machine's dispatch affinity, fixed at build time.
// QueueID is only meaningful for SharedQueue.
type DispatchMode struct {
	Affinity DispatchAffinity `json:"mode"`
	QueueID  int              `json:"queue,omitempty"`
}

// DefaultDispatchMode is used when a declaration names no mode.
func DefaultDispatchMode() DispatchMode {
	return DispatchMode{Affinity: CallingThread}
}

func (d DispatchMode) String() string {
	if d.Affinity == SharedQueue {
		return fmt.Sprintf("%s(%d)", d.Affinity, d.QueueID)
	}
	return string(d.Affinity)
}
