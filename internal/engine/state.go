package engine

import (
	"fmt"

	"github.com/dialogforge/core/internal/models"
)

// Transition is one state-machine edge, mirroring the {trigger, source,
// dest} dict the Python original's transitions-library config builds
// (engine.py:_build_state_machine_config). The Go engine does not use an
// FSM library — it walks this table directly — but the table is kept
// around because internal/engine.DOT renders it, and because it is the
// clearest place to express "step i's predecessor is step i-1, or start".
type Transition struct {
	Trigger string
	Source  string
	Dest    string
}

// StateName returns the state name assigned to the i-th enabled step.
func StateName(i int) string { return fmt.Sprintf("step_%d", i) }

// TriggerName returns the transition trigger name for the i-th enabled
// step, matching the Python original's run_step_{i} naming.
func TriggerName(i int) string { return fmt.Sprintf("run_%s", StateName(i)) }

// BuildStates returns the full state list for tmpl: start, one state per
// enabled step in declaration order, end.
func BuildStates(tmpl models.Template) []string {
	steps := tmpl.EnabledSteps()
	states := make([]string, 0, len(steps)+2)
	states = append(states, "start")
	for i := range steps {
		states = append(states, StateName(i))
	}
	states = append(states, "end")
	return states
}

// BuildTransitions returns the transition table for tmpl: one run_step_i
// edge per enabled step, plus a single finalize edge from the last step
// (or directly from start, for a template with no enabled steps) to end.
func BuildTransitions(tmpl models.Template) []Transition {
	steps := tmpl.EnabledSteps()
	transitions := make([]Transition, 0, len(steps)+1)

	for i := range steps {
		source := "start"
		if i > 0 {
			source = StateName(i - 1)
		}
		transitions = append(transitions, Transition{
			Trigger: TriggerName(i),
			Source:  source,
			Dest:    StateName(i),
		})
	}

	finalizeSource := "start"
	if len(steps) > 0 {
		finalizeSource = StateName(len(steps) - 1)
	}
	transitions = append(transitions, Transition{
		Trigger: "finalize",
		Source:  finalizeSource,
		Dest:    "end",
	})

	return transitions
}
