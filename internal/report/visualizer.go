package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// Visualizer is the JSON document consumed by graph visualizers.
type Visualizer struct {
	Machine     string            `json:"machine"`
	Dispatch    ir.DispatchMode   `json:"dispatch"`
	Fingerprint string            `json:"fingerprint"`
	States      []VisualizerState `json:"states"`
	Signals     []string          `json:"signals"`
	Connections []VisualizerEdge  `json:"connections"`
}

// VisualizerState is a node with its callbacks.
type VisualizerState struct {
	Name    string `json:"name"`
	OnEnter string `json:"on_enter,omitempty"`
	OnExit  string `json:"on_exit,omitempty"`
}

// VisualizerEdge is one connection with its derived category.
type VisualizerEdge struct {
	Name       string      `json:"name"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Signals    []string    `json:"signals"`
	Category   ir.Category `json:"category"`
	Guard      string      `json:"guard"`
	MainThread bool        `json:"main_thread,omitempty"`
}

// BuildVisualizer derives the visualizer document from m.
func BuildVisualizer(m *compiler.Model) (Visualizer, error) {
	fp, err := m.Fingerprint()
	if err != nil {
		return Visualizer{}, fmt.Errorf("fingerprint %s: %w", m.Name(), err)
	}

	v := Visualizer{
		Machine:     m.Name(),
		Dispatch:    m.DispatchMode(),
		Fingerprint: fp,
		States:      make([]VisualizerState, 0, len(m.States())),
		Signals:     append([]string{}, m.Signals()...),
		Connections: make([]VisualizerEdge, 0, len(m.Connections())),
	}
	for _, s := range m.States() {
		st := VisualizerState{Name: s}
		if cb, ok := m.OnEnter(s); ok {
			st.OnEnter = cb.Name
		}
		if cb, ok := m.OnExit(s); ok {
			st.OnExit = cb.Name
		}
		v.States = append(v.States, st)
	}
	for i, c := range m.Connections() {
		v.Connections = append(v.Connections, VisualizerEdge{
			Name:       c.Name,
			From:       c.From,
			To:         c.To,
			Signals:    c.Signals,
			Category:   m.Category(compiler.ConnID(i)),
			Guard:      c.GuardRef(),
			MainThread: c.RunOnMainThread,
		})
	}
	return v, nil
}

// VisualizerJSON renders the visualizer document as indented JSON.
func VisualizerJSON(m *compiler.Model) ([]byte, error) {
	v, err := BuildVisualizer(m)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode visualizer json: %w", err)
	}
	return buf.Bytes(), nil
}
