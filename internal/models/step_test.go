package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepValidate_MessageContentXorTemplate(t *testing.T) {
	s := Step{Name: "s1", Type: StepMessage, Role: RoleUser}
	require.Error(t, s.Validate(), "neither content nor template set")

	s.Content = "hi"
	s.Template = "greet"
	require.Error(t, s.Validate(), "both content and template set")

	s.Template = ""
	assert.NoError(t, s.Validate())
}

func TestStepValidate_TemplateArgsRequireTemplate(t *testing.T) {
	s := Step{
		Name:         "s1",
		Type:         StepPrompt,
		Content:      "literal",
		TemplateArgs: map[string]any{"name": "Ada"},
	}
	require.Error(t, s.Validate())
}

func TestStepValidate_InvokeRequiresCallable(t *testing.T) {
	s := Step{Name: "s1", Type: StepInvoke}
	require.Error(t, s.Validate())

	s.Callable = "pkg.Func"
	assert.NoError(t, s.Validate())
}

func TestTemplateValidate_FallbackStepMustExist(t *testing.T) {
	tpl := Template{
		Name: "t1",
		Steps: []Step{
			{Name: "a", Type: StepInvoke, Enabled: true, Callable: "x.Y", FallbackStep: "missing"},
		},
	}
	require.Error(t, tpl.Validate())

	tpl.Steps[0].FallbackStep = ""
	assert.NoError(t, tpl.Validate())
}

func TestTemplateValidate_DuplicateStepNames(t *testing.T) {
	tpl := Template{
		Name: "t1",
		Steps: []Step{
			{Name: "a", Type: StepInvoke, Enabled: true, Callable: "x.Y"},
			{Name: "a", Type: StepInvoke, Enabled: true, Callable: "x.Z"},
		},
	}
	require.Error(t, tpl.Validate())
}

func TestMessageValidate_AssistantRequiresModel(t *testing.T) {
	_, err := NewMessage("m1", "d1", RoleAssistant, "hi", "")
	require.Error(t, err)

	m, err := NewMessage("m1", "d1", RoleAssistant, "hi", "claude-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet", m.Model)
}

func TestEnabledSteps_FiltersDisabled(t *testing.T) {
	tpl := Template{
		Name: "t1",
		Steps: []Step{
			{Name: "a", Type: StepInvoke, Enabled: true, Callable: "x.Y"},
			{Name: "b", Type: StepInvoke, Enabled: false, Callable: "x.Z"},
			{Name: "c", Type: StepInvoke, Enabled: true, Callable: "x.W"},
		},
	}
	enabled := tpl.EnabledSteps()
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].Name)
	assert.Equal(t, "c", enabled[1].Name)
}
