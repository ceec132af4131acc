package workflow

import (
	"fmt"
	"sort"

	"github.com/dialogforge/core/internal/models"
)

// InputInfo describes one input a step requires, grounded on
// service.py's _extract_step_inputs.
type InputInfo struct {
	Description string
	Required    bool
}

// OutputInfo describes one output a step provides, grounded on
// service.py's _extract_step_outputs.
type OutputInfo struct {
	Description string
	SourceStep  string
}

// Dependencies is the richer, per-step breakdown §4.8 compresses into a
// flat summary. Keyed by step name.
type Dependencies struct {
	RequiredInputs  map[string]map[string]InputInfo
	ProvidedOutputs map[string]map[string]OutputInfo
	MissingInputs   map[string]map[string]InputInfo
}

// Summary is §4.8's reduced {required_inputs, provided_outputs,
// missing_inputs} contract: variable names only, no descriptions.
type Summary struct {
	RequiredInputs  map[string][]string
	ProvidedOutputs map[string][]string
	MissingInputs   map[string][]string
}

// Summary projects d down to §4.8's flat shape, variable names in sorted
// order for a deterministic result.
func (d *Dependencies) Summary() Summary {
	sum := Summary{
		RequiredInputs:  map[string][]string{},
		ProvidedOutputs: map[string][]string{},
		MissingInputs:   map[string][]string{},
	}
	for step, inputs := range d.RequiredInputs {
		sum.RequiredInputs[step] = sortedInputNames(inputs)
	}
	for step, outputs := range d.ProvidedOutputs {
		names := make([]string, 0, len(outputs))
		for name := range outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		sum.ProvidedOutputs[step] = names
	}
	for step, inputs := range d.MissingInputs {
		sum.MissingInputs[step] = sortedInputNames(inputs)
	}
	return sum
}

func sortedInputNames(inputs map[string]InputInfo) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AnalyzeDependencies walks tmpl's steps in declaration order, computing
// each step's required inputs and provided outputs, and which required
// inputs are not satisfied by any earlier step's outputs. Grounded on
// service.py's analyze_workflow_dependencies/_extract_step_inputs/
// _extract_step_outputs.
func (s *Service) AnalyzeDependencies(tmpl models.Template) *Dependencies {
	deps := &Dependencies{
		RequiredInputs:  map[string]map[string]InputInfo{},
		ProvidedOutputs: map[string]map[string]OutputInfo{},
		MissingInputs:   map[string]map[string]InputInfo{},
	}

	providedSoFar := map[string]map[string]OutputInfo{}

	for _, step := range tmpl.Steps {
		inputs := s.extractStepInputs(step)
		if len(inputs) > 0 {
			deps.RequiredInputs[step.Name] = inputs

			unsatisfied := map[string]InputInfo{}
			for name, info := range inputs {
				if info.Required && !anyStepProvides(providedSoFar, name) {
					unsatisfied[name] = info
				}
			}
			if len(unsatisfied) > 0 {
				deps.MissingInputs[step.Name] = unsatisfied
			}
		}

		outputs := extractStepOutputs(step)
		if len(outputs) > 0 {
			deps.ProvidedOutputs[step.Name] = outputs
			providedSoFar[step.Name] = outputs
		}
	}

	return deps
}

func anyStepProvides(provided map[string]map[string]OutputInfo, name string) bool {
	for _, outputs := range provided {
		if _, ok := outputs[name]; ok {
			return true
		}
	}
	return false
}

// extractStepInputs mirrors _extract_step_inputs: a prompt step's
// requirements come from its template's declared arguments, minus
// whatever template_args already supplies (marked superseded, not
// dropped); an invoke/message step's requirements come directly from its
// template_args; a user_input step requires nothing (it provides).
func (s *Service) extractStepInputs(step models.Step) map[string]InputInfo {
	inputs := map[string]InputInfo{}

	switch step.Type {
	case models.StepPrompt:
		if step.Template != "" {
			if declared, err := s.Registry.PromptArguments(step.Template); err == nil {
				for _, name := range declared {
					inputs[name] = InputInfo{
						Description: fmt.Sprintf("Input for prompt argument: %s", name),
						Required:    true,
					}
				}
			}
		}
		for name := range step.TemplateArgs {
			if info, ok := inputs[name]; ok {
				info.Description += " (superseded by `template_args`)"
				info.Required = false
				inputs[name] = info
			}
		}

	case models.StepInvoke:
		for name := range step.TemplateArgs {
			inputs[name] = InputInfo{
				Description: fmt.Sprintf("Input for function argument: %s", name),
				Required:    true,
			}
		}

	case models.StepMessage:
		for name := range step.TemplateArgs {
			inputs[name] = InputInfo{
				Description: fmt.Sprintf("Input for message template argument: %s", name),
				Required:    true,
			}
		}

	case models.StepUserInput:
		// A user_input step provides input; it does not require any.
	}

	return inputs
}

// extractStepOutputs mirrors _extract_step_outputs.
func extractStepOutputs(step models.Step) map[string]OutputInfo {
	outputs := map[string]OutputInfo{}

	switch step.Type {
	case models.StepPrompt:
		outputs["result"] = OutputInfo{
			Description: fmt.Sprintf("Output from prompt step: %s", step.Name),
			SourceStep:  step.Name,
		}
	case models.StepInvoke:
		outputs["result"] = OutputInfo{
			Description: fmt.Sprintf("Output from function call: %s", step.Name),
			SourceStep:  step.Name,
		}
	case models.StepUserInput:
		outputs["user_input"] = OutputInfo{
			Description: fmt.Sprintf("User provided input from step: %s", step.Name),
			SourceStep:  step.Name,
		}
	}

	return outputs
}
