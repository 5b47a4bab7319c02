package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/trackcoord/internal/primitives"
)

// Edge is one labelled transition of the tracking state machine.
type Edge struct {
	From  primitives.TrackingState `json:"from"`
	To    primitives.TrackingState `json:"to"`
	Label string                   `json:"label"`
}

// Edges lists every transition the coordinator can commit.
var Edges = []Edge{
	{From: primitives.Moving, To: primitives.Stationary, Label: "debounce elapsed"},
	{From: primitives.Moving, To: primitives.Stationary, Label: "tracking stopped"},
	{From: primitives.Stationary, To: primitives.Moving, Label: "movement detected"},
	{From: primitives.Stationary, To: primitives.Moving, Label: "perimeter exit"},
}

// Graph is the JSON form of the state machine with the active state.
type Graph struct {
	States  []primitives.TrackingState `json:"states"`
	Current primitives.TrackingState   `json:"current"`
	Edges   []Edge                     `json:"edges"`
}

// DefaultVisualizer renders the tracking state machine.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source with current highlighted.
func (v *DefaultVisualizer) ExportDOT(current primitives.TrackingState) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Tracking {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)
	for _, s := range []primitives.TrackingState{primitives.Moving, primitives.Stationary} {
		style := ""
		if s == current {
			style = ` style=filled fillcolor=lightgreen`
		}
		fmt.Fprintf(&buf, "  %q [label=%q%s];\n", s.String(), s.String(), style)
	}
	for _, e := range Edges {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From.String(), e.To.String(), e.Label)
	}
	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes the state machine and the current state.
func (v *DefaultVisualizer) ExportJSON(current primitives.TrackingState) ([]byte, error) {
	return json.MarshalIndent(Graph{
		States:  []primitives.TrackingState{primitives.Moving, primitives.Stationary},
		Current: current,
		Edges:   Edges,
	}, "", "  ")
}
