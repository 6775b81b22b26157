package scenario

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Generic is the scenario type that always has a template
const Generic = "generic"

// FallbackBody is used when no template at all can be resolved
const FallbackBody = "Create a detailed emergency simulation."

// GenericBody is the built-in generic template
const GenericBody = `# Generic Template for Emergency Simulation

Create a detailed simulation of a generic emergency during a public event.

## Structure of the simulation:
1. Describe the initial scenario of the event
2. Describe the incident or emergency that occurs
3. List the immediate actions to be taken
4. Describe the evacuation plan
5. Provide recommendations to improve security
`

// templateExtensions are read in this order; the first file wins a stem
var templateExtensions = []string{".md", ".txt"}

// Template is one scenario prompt, keyed by its file stem
type Template struct {
	Type string
	Body string
}

// Registry holds the templates loaded at startup, in load order
type Registry struct {
	order     []string
	templates map[string]string
}

// NewRegistry builds a registry from templates, adding the generic one if absent
func NewRegistry(templates ...Template) *Registry {
	r := &Registry{templates: make(map[string]string)}
	for _, t := range templates {
		r.add(t.Type, t.Body)
	}
	if !r.Has(Generic) {
		r.add(Generic, GenericBody)
	}
	return r
}

func (r *Registry) add(scenarioType, body string) {
	if _, ok := r.templates[scenarioType]; ok {
		return
	}
	r.order = append(r.order, scenarioType)
	r.templates[scenarioType] = body
}

// LoadRegistry reads every .md then .txt file in dir. A missing or empty
// directory still yields the generic template.
func LoadRegistry(dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	var templates []Template
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		logger.Warn("template directory not found, using generic template", "component", "scenario", "dir", dir)
		return NewRegistry()
	}

	for _, ext := range templateExtensions {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("template skipped", "component", "scenario", "path", path, "err", err)
				continue
			}
			stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			templates = append(templates, Template{Type: stem, Body: string(data)})
			logger.Debug("template loaded", "component", "scenario", "type", stem)
		}
	}

	r := NewRegistry(templates...)
	logger.Info("templates loaded", "component", "scenario", "dir", dir, "count", len(r.order))
	return r
}

// Has reports whether a template exists for scenarioType
func (r *Registry) Has(scenarioType string) bool {
	_, ok := r.templates[scenarioType]
	return ok
}

// Template returns the body for scenarioType, falling back to generic and
// then to FallbackBody.
func (r *Registry) Template(scenarioType string) string {
	if body, ok := r.templates[scenarioType]; ok {
		return body
	}
	if body, ok := r.templates[Generic]; ok {
		return body
	}
	return FallbackBody
}

// List returns the scenario types in load order
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Detect classifies query with Rules, accepting only categories that have
// a loaded template.
func (r *Registry) Detect(query string) string {
	lower := strings.ToLower(query)
	for _, rule := range Rules {
		if !rule.Matches(lower) {
			continue
		}
		if r.Has(rule.Type) {
			return rule.Type
		}
	}
	return Generic
}

// DisplayName returns the human title for scenarioType
func DisplayName(scenarioType string) string {
	if name, ok := displayNames[scenarioType]; ok {
		return name
	}
	return fmt.Sprintf("Scenario: %s", scenarioType)
}

// HumanName turns an identifier such as medical_emergency into "Medical Emergency"
func HumanName(scenarioType string) string {
	words := strings.Fields(strings.ReplaceAll(scenarioType, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
