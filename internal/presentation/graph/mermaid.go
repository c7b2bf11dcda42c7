package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
)

// Overlay marks how far a session has progressed through a flow.
type Overlay struct {
	// Position is the session's step index; Len() means the hand-off is pending.
	Position int
}

// OverlayFor builds the overlay of a live session.
func OverlayFor(session *domain.Session) *Overlay {
	if session == nil {
		return nil
	}
	return &Overlay{Position: session.Step}
}

// GenerateMermaid renders a flow definition as a Mermaid flowchart.
// Shapes:
// - Entry: ((Circle))
// - Question step: [/Parallelogram/]
// - Choice step: {Rhombus}
// - Hand-off: [[Subroutine]]
// Optional steps get a dotted "skip" edge to the step after them, and every
// question has a dotted cancel edge.
func GenerateMermaid(def *flow.Definition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	start := sanitizeMermaidID(string(def.Kind))
	fmt.Fprintf(&sb, "    %s((\"%s\"))\n", start, escapeLabel(def.Title))

	ids := make([]string, 0, def.Len()+1)
	for i, step := range def.Steps {
		id := fmt.Sprintf("s%d_%s", i, sanitizeMermaidID(step.Name))
		ids = append(ids, id)

		opener, closer := "[/", "/]"
		if step.Input == domain.InputChoice {
			opener, closer = "{", "}"
		}
		label := step.Name
		if step.Optional {
			label += " (optional)"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, escapeLabel(label), closer)
	}
	ids = append(ids, "handoff")
	sb.WriteString("    handoff[[\"complete\"]]\n")
	sb.WriteString("    cancelled((\"cancelled\"))\n")

	fmt.Fprintf(&sb, "    %s --> %s\n", start, ids[0])
	for i, step := range def.Steps {
		fmt.Fprintf(&sb, "    %s --> %s\n", ids[i], ids[i+1])
		if step.Optional && i+2 < len(ids) {
			fmt.Fprintf(&sb, "    %s -. \"skip\" .-> %s\n", ids[i], ids[i+2])
		}
		fmt.Fprintf(&sb, "    %s -. \"cancel\" .-> cancelled\n", ids[i])
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		current := overlay.Position
		if current > def.Len() {
			current = def.Len()
		}
		for i := 0; i < current; i++ {
			fmt.Fprintf(&sb, "    class %s visited;\n", ids[i])
		}
		if current >= 0 {
			fmt.Fprintf(&sb, "    class %s current;\n", ids[current])
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
