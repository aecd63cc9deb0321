package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	RuntimeOllama = "ollama"
	RuntimeGemini = "gemini"
	RuntimeOpenAI = "openai"
)

//go:embed models.yaml
var defaultModelRegistry []byte

// ModelSpec describes one generation model and its sampling parameters.
type ModelSpec struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	TopP        float64 `yaml:"top_p" json:"top_p"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// ModelRegistry lists the generation models known for each runtime.
type ModelRegistry map[string][]ModelSpec

// LoadModelRegistry parses the file at path, or the embedded registry when path is empty.
func LoadModelRegistry(path string) (ModelRegistry, error) {
	raw := defaultModelRegistry
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read model registry: %w", err)
		}
		raw = data
	}
	return parseModelRegistry(raw)
}

func parseModelRegistry(raw []byte) (ModelRegistry, error) {
	var registry ModelRegistry
	if err := yaml.Unmarshal(raw, &registry); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	for runtime, models := range registry {
		seen := make(map[string]struct{}, len(models))
		for i, m := range models {
			name := strings.TrimSpace(m.Name)
			if name == "" {
				return nil, fmt.Errorf("model registry: %s entry %d has no name", runtime, i)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("model registry: %s lists %s twice", runtime, name)
			}
			seen[name] = struct{}{}
			if m.Temperature < 0 || m.TopP < 0 || m.TopP > 1 || m.MaxTokens < 0 {
				return nil, fmt.Errorf("model registry: %s/%s has out of range sampling parameters", runtime, name)
			}
			models[i].Name = name
		}
	}
	return registry, nil
}

// Lookup returns the entry for model under runtime.
func (r ModelRegistry) Lookup(runtime, model string) (ModelSpec, error) {
	for _, m := range r[runtime] {
		if m.Name == model {
			return m, nil
		}
	}
	return ModelSpec{}, fmt.Errorf("model %q is not registered for runtime %s (known: %s)",
		model, runtime, strings.Join(r.Names(runtime), ", "))
}

// Models returns the entries for runtime ordered by name.
func (r ModelRegistry) Models(runtime string) []ModelSpec {
	out := append([]ModelSpec(nil), r[runtime]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r ModelRegistry) Names(runtime string) []string {
	models := r.Models(runtime)
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	return names
}
