package report

import (
	"fmt"
	"strings"

	"github.com/roach88/statewire/internal/compiler"
	"github.com/roach88/statewire/internal/ir"
)

// Overlay marks runtime state on a rendered graph.
type Overlay struct {
	Visited []string
	Current string
}

// Mermaid renders m as a Mermaid flowchart.
//
//   - local transitions: solid arrows labelled with their signals
//   - global transitions: dotted arrows from every state
//   - auto connections: thick arrows labelled "auto"
//
// Spies never change state and are listed as a comment.
func Mermaid(m *compiler.Model, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, s := range m.States() {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", sanitizeMermaidID(s), s)
	}

	for _, c := range m.Connections() {
		id, _ := m.Lookup(c.Name)
		label := edgeLabel(c)
		switch cat := m.Category(id); {
		case cat == ir.CategoryAuto:
			fmt.Fprintf(&sb, "    %s == \"auto\" ==> %s\n", sanitizeMermaidID(c.From), sanitizeMermaidID(c.To))
		case cat.IsSpy():
			fmt.Fprintf(&sb, "    %%%% spy %s on %s %s\n", c.Name, c.From, label)
		case cat.IsGlobal():
			for _, s := range m.States() {
				if s == c.To {
					continue
				}
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", sanitizeMermaidID(s), label, sanitizeMermaidID(c.To))
			}
		default:
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", sanitizeMermaidID(c.From), label, sanitizeMermaidID(c.To))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, v := range overlay.Visited {
			if v == overlay.Current {
				continue
			}
			fmt.Fprintf(&sb, "    class %s visited;\n", sanitizeMermaidID(v))
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.Current))
		}
	}
	return sb.String()
}

func edgeLabel(c ir.Connection) string {
	label := strings.Join(c.Signals, ", ")
	if c.Guard != "" {
		label += " [" + c.Guard + "]"
	}
	return strings.ReplaceAll(label, "\"", "'")
}

// sanitizeMermaidID maps a state name to a safe Mermaid node id.
func sanitizeMermaidID(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return "s_" + sb.String()
}
