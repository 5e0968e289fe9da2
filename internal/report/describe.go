package report

import (
	"fmt"
	"strings"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// Describe lists the states, signals and every connection index of m,
// global indices first, then per state.
func Describe(m *compiler.Model) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "machine %s (%s)\n", m.Name(), m.DispatchMode())

	sb.WriteString("\n--- States ---\n")
	for _, s := range m.States() {
		fmt.Fprintf(&sb, " %s\n", s)
	}

	sb.WriteString("\n--- Signals ---\n")
	for _, s := range m.Signals() {
		fmt.Fprintf(&sb, " %s\n", s)
	}

	sb.WriteString("\n--- Connections ---\n")
	section(&sb, m, " Global signal transitions:", "  ", m.Raw(ir.CategoryGlobalTransitionSpecific))
	section(&sb, m, " Global any signal transitions:", "  ", m.GlobalAnyTransitions())
	section(&sb, m, " Global signal spies:", "  ", m.Raw(ir.CategoryGlobalSpySpecific))
	section(&sb, m, " Global any signal spies:", "  ", m.GlobalAnySpies())

	for _, state := range m.States() {
		fmt.Fprintf(&sb, "\n State: %s\n", state)
		if cb, ok := m.OnExit(state); ok {
			fmt.Fprintf(&sb, "  on exit: %s%s\n", cb.Name, mainMark(cb.RunOnMainThread))
		}
		if cb, ok := m.OnEnter(state); ok {
			fmt.Fprintf(&sb, "  on enter: %s%s\n", cb.Name, mainMark(cb.RunOnMainThread))
		}
		section(&sb, m, "  Local signal transitions:", "    ", localByFrom(m, ir.CategoryLocalTransitionSpecific, state))
		section(&sb, m, "  Auto connections:", "    ", m.AutoConnections(state))
		section(&sb, m, "  Local any signal transitions:", "    ", m.LocalAnyTransitions(state))
		section(&sb, m, "  Local signal spies:", "    ", localByFrom(m, ir.CategoryLocalSpySpecific, state))
		section(&sb, m, "  Local any signal spies:", "    ", m.LocalAnySpies(state))
	}
	return sb.String()
}

func section(sb *strings.Builder, m *compiler.Model, title, indent string, ids []compiler.ConnID) {
	if len(ids) == 0 {
		return
	}
	sb.WriteString(title + "\n")
	for _, id := range ids {
		c := m.Connection(id)
		sb.WriteString(indent + c.String())
		if c.Guard != "" {
			fmt.Fprintf(sb, " if %s", c.Guard)
		}
		sb.WriteString(mainMark(c.RunOnMainThread) + "\n")
	}
}

// localByFrom lists a specific-signal local category for one state in
// declaration order. The per-signal index would repeat multi-signal
// connections.
func localByFrom(m *compiler.Model, cat ir.Category, state string) []compiler.ConnID {
	var out []compiler.ConnID
	for _, id := range m.Raw(cat) {
		if m.Connection(id).From == state {
			out = append(out, id)
		}
	}
	return out
}

func mainMark(main bool) string {
	if main {
		return " [main thread]"
	}
	return ""
}
