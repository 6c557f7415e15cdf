package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptPair holds a system and user prompt template.
type PromptPair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts is the top-level prompt configuration loaded from YAML.
type Prompts struct {
	// Interpret turns a free-text meal request into a JSON intent object.
	Interpret PromptPair `yaml:"interpret"`
	// Extract pulls a structured recipe out of readable page text.
	Extract PromptPair `yaml:"extract"`
}

// LoadPrompts reads and parses a YAML prompt configuration file.
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts parses YAML prompt configuration and checks that every
// template is present.
func ParsePrompts(data []byte) (*Prompts, error) {
	var prompts Prompts
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts YAML: %w", err)
	}

	if prompts.Interpret.User == "" {
		return nil, fmt.Errorf("prompts: interpret.user is empty")
	}
	if prompts.Extract.System == "" {
		return nil, fmt.Errorf("prompts: extract.system is empty")
	}

	return &prompts, nil
}

// RenderPrompt executes Go template interpolation on a prompt string.
// The data map provides values for template placeholders like {{.Query}}.
func RenderPrompt(tmpl string, data map[string]interface{}) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}
