package engine

import (
	"fmt"
	"strings"

	"github.com/dialogforge/core/internal/models"
)

// DOT renders tmpl's state machine as a Graphviz DOT graph, the supplemented
// feature ported from the original's workflow/visualization.py. It is pure:
// derived only from BuildStates/BuildTransitions, with no dependency on a
// running Dialog, so it can be generated for any registered template
// (e.g. the operator-facing GET /templates/{name}/graph endpoint).
func DOT(tmpl models.Template) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(tmpl.Name))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	for _, state := range BuildStates(tmpl) {
		shape := "box"
		if state == "start" || state == "end" {
			shape = "ellipse"
		}
		fmt.Fprintf(&b, "  %s [shape=%s];\n", dotQuote(state), shape)
	}

	enabled := tmpl.EnabledSteps()
	for _, t := range BuildTransitions(tmpl) {
		label := t.Trigger
		if t.Trigger != "finalize" {
			for i, step := range enabled {
				if TriggerName(i) == t.Trigger {
					label = fmt.Sprintf("%s (%s)", t.Trigger, step.Type)
					break
				}
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [label=%s];\n", dotQuote(t.Source), dotQuote(t.Dest), dotQuote(label))
	}

	b.WriteString("}\n")
	return b.String()
}

func dotQuote(s string) string {
	return fmt.Sprintf("%q", s)
}
