package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PromptFile is one loaded prompt: Name is its registration key
// (registry.AddPrompt), taken from the file's base name with its
// extension stripped, and Body is the raw template text a prompt/message
// step renders.
type PromptFile struct {
	Name string
	Body string
}

// LoadPrompts reads every file under each of paths (a file or a directory;
// directories are read non-recursively, matching LoadTemplates' own
// dialog_templates_dir handling) as a PromptFile.
func LoadPrompts(paths []string) ([]PromptFile, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("config: stat prompt path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("config: read prompt_paths dir %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(p, e.Name()))
		}
	}

	prompts := make([]PromptFile, 0, len(files))
	for _, f := range files {
		body, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("config: read prompt file %s: %w", f, err)
		}
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		prompts = append(prompts, PromptFile{Name: name, Body: string(body)})
	}
	return prompts, nil
}

// SchemaFile is one loaded JSON Schema document, keyed the same way as
// PromptFile.
type SchemaFile struct {
	Name string
	Doc  map[string]any
}

// LoadSchemas reads every path in schemaModules (§6's schema_modules) as a
// JSON Schema document.
func LoadSchemas(schemaModules []string) ([]SchemaFile, error) {
	schemas := make([]SchemaFile, 0, len(schemaModules))
	for _, p := range schemaModules {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("config: read schema module %s: %w", p, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("config: parse schema module %s: %w", p, err)
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		schemas = append(schemas, SchemaFile{Name: name, Doc: doc})
	}
	return schemas, nil
}
