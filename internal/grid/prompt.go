package grid

import (
	"fmt"
	"strings"
)

// StatePrompt renders the whole grid for an oracle: one block per agent
// in row-major order describing the square's contents, its corners and
// the agent's legally available actions. The output is deterministic
// for a given grid state.
func (w *World) StatePrompt() string {
	var b strings.Builder
	for _, agent := range w.Agents() {
		fmt.Fprintf(&b, "%s:\n", agent.ID())
		square := agent.Square()
		fmt.Fprintf(&b, "  square [%d.5, %d.5] holds %s\n", agent.Row, agent.Col, tagList(w.cells[square]))
		for _, corner := range squareCorners(agent.Row, agent.Col) {
			fmt.Fprintf(&b, "  corner [%d, %d] holds %s\n", corner.Row, corner.Col, tagList(w.cells[corner]))
		}
		actions := w.AvailableActions(agent.Row, agent.Col)
		if len(actions) == 0 {
			b.WriteString("  available actions: none\n")
		} else {
			b.WriteString("  available actions:\n")
			for _, a := range actions {
				fmt.Fprintf(&b, "    %s\n", a)
			}
		}
	}
	return b.String()
}

func tagList(items []Item) string {
	if len(items) == 0 {
		return "nothing"
	}
	tags := make([]string, len(items))
	for i, it := range items {
		tags[i] = it.Tag()
	}
	return "[" + strings.Join(tags, ", ") + "]"
}
