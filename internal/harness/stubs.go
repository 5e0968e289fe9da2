package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/engine"
	"github.com/roach88/statewire/internal/ir"
)

// Stubs scripts the host code of a machine. Keys are guard references and
// callback names. A guard value is either a bool or a GuardStub map; a
// callback value is a CallbackStub map.
type Stubs struct {
	Guards       map[string]any `yaml:"guards,omitempty"`
	Callbacks    map[string]any `yaml:"callbacks,omitempty"`
	DefaultGuard *bool          `yaml:"default_guard,omitempty"`
}

// GuardStub is a scripted guard.
//
// With When set the guard is true exactly when the payload carries every
// key of When with an equal value; Result is ignored. Fail makes the guard
// return an error and Panic makes it panic.
type GuardStub struct {
	Result bool           `mapstructure:"result"`
	When   map[string]any `mapstructure:"when"`
	Fail   string         `mapstructure:"fail"`
	Panic  string         `mapstructure:"panic"`
}

// CallbackStub is a scripted OnEnter/OnExit callback.
type CallbackStub struct {
	Fail  string `mapstructure:"fail"`
	Panic string `mapstructure:"panic"`
}

// LoadStubs reads a stub file (the guards/callbacks/default_guard subset of
// a scenario).
func LoadStubs(path string) (*Stubs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stubs file: %w", err)
	}

	var stubs Stubs
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&stubs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &stubs, nil
}

// Bind turns the stubs into handlers for model. Every stub must name a
// guard reference or callback of the model.
func (s *Stubs) Bind(model *compiler.Model) (*engine.Handlers, error) {
	h := engine.NewHandlers()
	def := true
	if s != nil && s.DefaultGuard != nil {
		def = *s.DefaultGuard
	}

	refs := make(map[string]bool)
	for _, c := range model.Connections() {
		refs[c.GuardRef()] = true
	}
	cbs := make(map[string]bool)
	for _, cb := range model.Callbacks() {
		cbs[cb.Name] = true
	}

	var guards, callbacks map[string]any
	if s != nil {
		guards, callbacks = s.Guards, s.Callbacks
	}

	for _, name := range sortedKeys(guards) {
		if !refs[name] {
			return nil, fmt.Errorf("guard stub %q matches no guard in machine %s", name, model.Name())
		}
		g, err := decodeGuardStub(name, guards[name])
		if err != nil {
			return nil, err
		}
		h.Guard(name, g)
	}
	for ref := range refs {
		if _, ok := h.Guards[ref]; !ok {
			h.Guard(ref, engine.Always(def))
		}
	}

	for _, name := range sortedKeys(callbacks) {
		if !cbs[name] {
			return nil, fmt.Errorf("callback stub %q matches no callback in machine %s", name, model.Name())
		}
		cb, err := decodeCallbackStub(name, callbacks[name])
		if err != nil {
			return nil, err
		}
		h.Callback(name, cb)
	}
	for name := range cbs {
		if _, ok := h.Callbacks[name]; !ok {
			h.Callback(name, engine.Noop)
		}
	}

	return h, nil
}

func decodeGuardStub(name string, raw any) (engine.Guard, error) {
	var stub GuardStub
	switch v := raw.(type) {
	case bool:
		return engine.Always(v), nil
	case map[string]any:
		if err := strictDecode(v, &stub); err != nil {
			return nil, fmt.Errorf("guard stub %q: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("guard stub %q: want bool or map, got %T", name, raw)
	}

	var when ir.Payload
	if stub.When != nil {
		var err error
		if when, err = ir.PayloadFromGo(stub.When); err != nil {
			return nil, fmt.Errorf("guard stub %q: when: %w", name, err)
		}
	}

	return func(_ context.Context, p ir.Payload) (bool, error) {
		switch {
		case stub.Panic != "":
			panic(stub.Panic)
		case stub.Fail != "":
			return false, errors.New(stub.Fail)
		case when != nil:
			return payloadContains(p, when), nil
		default:
			return stub.Result, nil
		}
	}, nil
}

func decodeCallbackStub(name string, raw any) (engine.Callback, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("callback stub %q: want map, got %T", name, raw)
	}
	var stub CallbackStub
	if err := strictDecode(m, &stub); err != nil {
		return nil, fmt.Errorf("callback stub %q: %w", name, err)
	}

	return func(context.Context) error {
		if stub.Panic != "" {
			panic(stub.Panic)
		}
		if stub.Fail != "" {
			return errors.New(stub.Fail)
		}
		return nil
	}, nil
}

func strictDecode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// payloadContains reports whether every key of want is in p with an equal
// value.
func payloadContains(p, want ir.Payload) bool {
	for k, wv := range want {
		gv, ok := p[k]
		if !ok {
			return false
		}
		wb, err1 := ir.MarshalCanonical(wv)
		gb, err2 := ir.MarshalCanonical(gv)
		if err1 != nil || err2 != nil || !bytes.Equal(wb, gb) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
