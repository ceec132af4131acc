package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "providers.yaml", "providers:\n  anthropic:\n    api_key: ${TEST_ANTHROPIC_KEY}\n")
	root := writeFile(t, dir, "main.yaml", "$include: providers.yaml\ndialog_templates_dir: ./templates\nstorage:\n  driver: memory\njobs:\n  driver: memory\n")

	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test-123")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, "./templates", cfg.DialogTemplatesDir)
}

func TestLoad_DetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	root := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	root := writeFile(t, dir, "main.yaml", "totally_unknown_field: true\n")

	_, err := Load(root)
	require.Error(t, err)
}

func TestBootConfigValidate_RequiresDSNForCockroach(t *testing.T) {
	cfg := &BootConfig{Storage: StorageConfig{Driver: "cockroach"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.dsn")
}

func TestBootConfigValidate_RejectsUnknownDriver(t *testing.T) {
	cfg := &BootConfig{Storage: StorageConfig{Driver: "sqlite"}}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestBootConfigValidate_MemoryDriverNeedsNoDSN(t *testing.T) {
	cfg := &BootConfig{Storage: StorageConfig{Driver: "memory"}, Jobs: JobsConfig{Driver: "memory"}}
	assert.NoError(t, cfg.Validate())
}
