// Package config provides configuration loading utilities.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset is a named prompt template. When a submission names a preset, its
// template text prefixes the caller's prompt before generation.
type Preset struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Template string `yaml:"template"`
}

// PresetCatalog holds the prompt presets loaded at startup.
type PresetCatalog struct {
	Presets []Preset `yaml:"presets"`

	byName map[string]Preset
}

// LoadPresetCatalog loads the preset catalog from a YAML file. An empty path
// yields an empty catalog; submissions then run with raw prompts only.
func LoadPresetCatalog(path string) (*PresetCatalog, error) {
	cat := &PresetCatalog{byName: map[string]Preset{}}
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadPresetCatalog: %w", err)
	}
	if err := yaml.Unmarshal(data, cat); err != nil {
		return nil, fmt.Errorf("op=config.LoadPresetCatalog: parse %s: %w", path, err)
	}
	cat.byName = make(map[string]Preset, len(cat.Presets))
	for _, p := range cat.Presets {
		cat.byName[strings.ToLower(p.Name)] = p
	}
	return cat, nil
}

// Lookup returns the preset by name, case-insensitively.
func (c *PresetCatalog) Lookup(name string) (Preset, bool) {
	if c == nil || name == "" {
		return Preset{}, false
	}
	p, ok := c.byName[strings.ToLower(name)]
	return p, ok
}

// Apply prefixes the prompt with the named preset template when it exists and
// matches the submission kind; otherwise it returns the prompt unchanged.
func (c *PresetCatalog) Apply(name, kind, prompt string) string {
	p, ok := c.Lookup(name)
	if !ok {
		return prompt
	}
	if p.Kind != "" && !strings.EqualFold(p.Kind, kind) {
		return prompt
	}
	return strings.TrimSpace(p.Template) + " " + prompt
}
