package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTemplate = `
name: onboarding
model: claude-sonnet-4-5
steps:
  - name: greet
    type: message
    enabled: true
    role: assistant
    content: "Welcome!"
  - name: ask_name
    type: user_input
    enabled: true
    prompt: "What should I call you?"
`

func TestLoadTemplates_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onboarding.yaml"), []byte(sampleTemplate), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a template"), 0o644))

	templates, err := LoadTemplates(dir, nil)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "onboarding", templates[0].Name)
	assert.Len(t, templates[0].Steps, 2)
}

func TestLoadTemplates_RejectsInvalidTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nsteps:\n  - name: a\n    type: invoke\n    enabled: true\n"), 0o644))

	_, err := LoadTemplates(dir, nil)
	require.Error(t, err, "invoke step without callable must fail validation")
}

func TestLoadTemplates_ExtraPaths(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(extra, []byte(sampleTemplate), 0o644))

	templates, err := LoadTemplates("", []string{extra})
	require.NoError(t, err)
	require.Len(t, templates, 1)
}
