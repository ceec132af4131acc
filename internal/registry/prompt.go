package registry

import (
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

// RenderPrompt renders the named prompt body against args, substituting
// `{{.name}}` references the way a PromptStep/MessageStep's rendered
// content is computed. There is no third-party templating library anywhere
// in the example corpus this system was grounded on, so this uses the
// standard library's text/template rather than reaching for one.
func (r *Registry) RenderPrompt(name string, args map[string]any) (string, error) {
	body, ok := r.GetPrompt(name)
	if !ok {
		return "", fmt.Errorf("registry: prompt %q not found", name)
	}

	tmpl, err := template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return "", fmt.Errorf("registry: parse prompt %q: %w", name, err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", fmt.Errorf("registry: render prompt %q: %w", name, err)
	}
	return buf.String(), nil
}

// PromptArguments returns the de-duplicated list of top-level field names
// (`{{.name}}`) the named prompt body references, in first-occurrence
// (declaration) order, mirroring the Python original's free-variable scan
// used to compute a prompt step's required inputs. Declaration order
// matters here: §8's boundary behavior requires missing_variables to list
// them in the order the prompt declares them, not alphabetically.
func (r *Registry) PromptArguments(name string) ([]string, error) {
	body, ok := r.GetPrompt(name)
	if !ok {
		return nil, fmt.Errorf("registry: prompt %q not found", name)
	}

	tree, err := parse.Parse(name, body, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("registry: parse prompt %q: %w", name, err)
	}

	seen := make(map[string]bool)
	var out []string
	for _, t := range tree {
		walkPromptArgs(t.Root, seen, &out)
	}
	return out, nil
}

func walkPromptArgs(node parse.Node, seen map[string]bool, out *[]string) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *parse.ListNode:
		for _, c := range n.Nodes {
			walkPromptArgs(c, seen, out)
		}
	case *parse.ActionNode:
		walkPromptArgs(n.Pipe, seen, out)
	case *parse.IfNode:
		walkPromptArgs(n.Pipe, seen, out)
		walkPromptArgs(n.List, seen, out)
		walkPromptArgs(n.ElseList, seen, out)
	case *parse.RangeNode:
		walkPromptArgs(n.Pipe, seen, out)
		walkPromptArgs(n.List, seen, out)
		walkPromptArgs(n.ElseList, seen, out)
	case *parse.WithNode:
		walkPromptArgs(n.Pipe, seen, out)
		walkPromptArgs(n.List, seen, out)
		walkPromptArgs(n.ElseList, seen, out)
	case *parse.PipeNode:
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				walkPromptArgs(arg, seen, out)
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			ident := n.Ident[0]
			if !seen[ident] {
				seen[ident] = true
				*out = append(*out, ident)
			}
		}
	}
}
