package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Prompts holds the optional prompt templates. Templates may reference
// {query}, {context} and {parameters}.
type Prompts struct {
	SystemMessage        string `yaml:"system_message"`
	ConversationalPrompt string `yaml:"conversational_prompt"`
	SVAFrameworkPrompt   string `yaml:"sva_framework_prompt"`
	EventPlanningPrompt  string `yaml:"event_planning_prompt"`
}

func LoadPrompts(path string, allowMissing bool) (Prompts, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Prompts{}, fmt.Errorf("prompts path is required")
	}

	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Prompts{}, nil
		}
		return Prompts{}, fmt.Errorf("read prompts: %w", err)
	}

	var prompts Prompts
	if err := yaml.Unmarshal(content, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts: %w", err)
	}
	return prompts, nil
}
