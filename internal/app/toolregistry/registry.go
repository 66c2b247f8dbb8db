// Package toolregistry is the Tool Registry: a read-mostly, process-wide
// lookup from tool_name to its command template, declared parameters, and
// output parser id, loaded once at startup from a YAML file.
package toolregistry

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParameterType constrains how a Parameter's Default/runtime value is
// interpreted when rendering a command template.
type ParameterType string

const (
	ParamString ParameterType = "string"
	ParamInt    ParameterType = "int"
	ParamBool   ParameterType = "bool"
)

// Parameter describes one named input a tool's command template accepts.
type Parameter struct {
	Name     string        `yaml:"name"`
	Type     ParameterType `yaml:"type"`
	Default  any           `yaml:"default"`
	Required bool          `yaml:"required"`
}

// Definition is one tool's entry: its command template, declared
// parameters, and the name of the parser (if any) that interprets its
// output.
type Definition struct {
	Name            string      `yaml:"name"`
	CommandTemplate string      `yaml:"command_template"`
	Parameters      []Parameter `yaml:"parameters"`
	OutputParser    string      `yaml:"output_parser"`
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Registry is a read-only, concurrency-safe lookup table of tool
// Definitions keyed by name. Mutation happens only during Load; callers
// only ever read after construction.
type Registry struct {
	tools map[string]Definition
}

type fileFormat struct {
	Tools []Definition `yaml:"tools"`
}

// Load reads a tools.yaml-shaped file and builds a Registry. A missing file
// yields an empty registry rather than an error, matching the "absent
// config is defaults" convention used elsewhere in this codebase.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{tools: map[string]Definition{}}, nil
		}
		return nil, fmt.Errorf("toolregistry: read %s: %w", path, err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("toolregistry: parse %s: %w", path, err)
	}

	tools := make(map[string]Definition, len(doc.Tools))
	for _, def := range doc.Tools {
		if def.Name == "" {
			return nil, fmt.Errorf("toolregistry: tool entry missing name")
		}
		tools[def.Name] = def
	}
	return &Registry{tools: tools}, nil
}

// NewStatic builds a Registry directly from defs, bypassing file loading.
// Used by tests and by callers assembling tool definitions programmatically.
func NewStatic(defs []Definition) *Registry {
	tools := make(map[string]Definition, len(defs))
	for _, def := range defs {
		tools[def.Name] = def
	}
	return &Registry{tools: tools}
}

// Lookup returns the Definition registered under name, or false if absent.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// Render expands a Definition's CommandTemplate against supplied parameter
// values, falling back to each Parameter's Default, and erroring on any
// Required parameter left unresolved. Placeholders use `{name}` syntax.
func (d Definition) Render(values map[string]any) (string, error) {
	resolved := make(map[string]string, len(d.Parameters))
	for _, p := range d.Parameters {
		v, ok := values[p.Name]
		if !ok {
			v = p.Default
		}
		if v == nil {
			if p.Required {
				return "", fmt.Errorf("toolregistry: missing required parameter %q for tool %q", p.Name, d.Name)
			}
			resolved[p.Name] = ""
			continue
		}
		resolved[p.Name] = stringifyParam(v)
	}

	var missing []string
	command := placeholderRe.ReplaceAllStringFunc(d.CommandTemplate, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := resolved[name]
		if !ok {
			missing = append(missing, name)
			return token
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("toolregistry: unresolved placeholder(s) %s in tool %q", strings.Join(missing, ", "), d.Name)
	}
	return command, nil
}

func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
