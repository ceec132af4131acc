package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dialogforge/core/internal/models"
)

// LoadTemplates loads every *.yaml/*.yml file directly under dir as a
// models.Template, plus any explicit extra paths, matching §6's
// dialog_templates_dir + template_paths boot config fields.
func LoadTemplates(dir string, extraPaths []string) ([]*models.Template, error) {
	var paths []string

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("config: read dialog_templates_dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext == ".yaml" || ext == ".yml" {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	paths = append(paths, extraPaths...)

	templates := make([]*models.Template, 0, len(paths))
	for _, p := range paths {
		var tpl models.Template
		if err := LoadTemplateFile(p, &tpl); err != nil {
			return nil, err
		}
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("config: invalid template in %s: %w", p, err)
		}
		templates = append(templates, &tpl)
	}
	return templates, nil
}
