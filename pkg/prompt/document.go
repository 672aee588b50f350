// Package prompt loads prompt templates from disk and exposes them to the
// renderer as host functions.
package prompt

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// Document is a prompt file: optional YAML frontmatter and a template body.
type Document struct {
	Metadata Metadata
	Body     string
}

// Metadata holds configuration from YAML frontmatter.
type Metadata struct {
	Name        string `yaml:"name" json:"name,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	Version     string `yaml:"version" json:"version,omitempty"`

	// Model is the LLM the prompt was written for, as "provider/model".
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Temperature is 0.0-2.0 when set.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	MaxTokens *int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// Variables lists the names the template expects in its render context.
	Variables []string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

const delimiter = "---"

// ParseDocument splits frontmatter from the body. Frontmatter must open on
// the first line with "---" and close with a line holding only "---";
// anything else is all body.
//
//	---
//	name: blacksmith
//	temperature: 0.7
//	---
//	You are {{ npc.name }}.
func ParseDocument(content string) (*Document, error) {
	first, rest, ok := strings.Cut(content, "\n")
	if !ok || strings.TrimRight(first, " \t\r") != delimiter {
		return &Document{Body: content}, nil
	}

	var yamlLines []string
	lines := strings.Split(rest, "\n")
	closing := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") == delimiter {
			closing = i
			break
		}
		yamlLines = append(yamlLines, line)
	}
	if closing < 0 {
		return &Document{Body: content}, nil
	}

	var meta Metadata
	if fm := strings.TrimSpace(strings.Join(yamlLines, "\n")); fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return nil, errors.Wrap(err, "failed to parse frontmatter YAML")
		}
	}
	if err := meta.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}

	return &Document{
		Metadata: meta,
		Body:     strings.Join(lines[closing+1:], "\n"),
	}, nil
}

// Validate checks value ranges. Every field is optional.
func (m *Metadata) Validate() error {
	if m.Temperature != nil && (*m.Temperature < 0.0 || *m.Temperature > 2.0) {
		return errors.Newf("temperature must be between 0.0 and 2.0, got %g", *m.Temperature)
	}
	if m.MaxTokens != nil && *m.MaxTokens < 1 {
		return errors.Newf("max_tokens must be positive, got %d", *m.MaxTokens)
	}
	for _, v := range m.Variables {
		if strings.TrimSpace(v) == "" {
			return errors.New("variables must not contain empty names")
		}
	}
	return nil
}

// MissingVariables returns the declared variables absent from vars. A dotted
// name counts as present when its first segment is.
func (d *Document) MissingVariables(vars map[string]types.Value) []string {
	var missing []string
	for _, name := range d.Metadata.Variables {
		if _, ok := vars[name]; ok {
			continue
		}
		root, _, _ := strings.Cut(name, ".")
		if _, ok := vars[root]; ok {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}
