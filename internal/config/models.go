package config

import "fmt"

// ModelsConfig is the logical model table exposed to chat clients.
type ModelsConfig struct {
	Default       string                  `yaml:"default"`
	Models        map[string]ModelMapping `yaml:"models"`
	LegacyAliases map[string]string       `yaml:"legacy_aliases"`
}

type ModelMapping struct {
	DisplayName string `yaml:"display_name"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	// FineGrainedToolStreaming enables incremental tool-input streaming where
	// the provider supports it.
	FineGrainedToolStreaming bool `yaml:"fine_grained_tool_streaming"`
	PromptCaching            bool `yaml:"prompt_caching"`
	// FixedTemperature marks models that reject any sampling temperature
	// other than their own default, so none is sent.
	FixedTemperature bool `yaml:"fixed_temperature"`
}

// DefaultModels is used when models.yaml is absent.
func DefaultModels() *ModelsConfig {
	return &ModelsConfig{
		Default: "claude-sonnet",
		Models: map[string]ModelMapping{
			"claude-sonnet": {
				DisplayName:              "Claude Sonnet",
				Provider:                 "anthropic",
				Model:                    "claude-sonnet-4-5",
				FineGrainedToolStreaming: true,
				PromptCaching:            true,
			},
			"claude-haiku": {
				DisplayName:   "Claude Haiku",
				Provider:      "anthropic",
				Model:         "claude-haiku-4-5",
				PromptCaching: true,
			},
			"gpt-5": {
				DisplayName:      "GPT-5",
				Provider:         "openai",
				Model:            "gpt-5",
				FixedTemperature: true,
			},
			"gpt-5-mini": {
				DisplayName:      "GPT-5 mini",
				Provider:         "openai",
				Model:            "gpt-5-mini",
				FixedTemperature: true,
			},
		},
		LegacyAliases: map[string]string{
			"claude-3.5":        "claude-sonnet",
			"claude-3.7":        "claude-sonnet",
			"claude-4":          "claude-sonnet",
			"claude-sonnet-4.5": "claude-sonnet",
			"gpt-4o":            "gpt-5",
			"gpt-4.1":           "gpt-5",
			"gpt-4.1-mini":      "gpt-5-mini",
			"o3":                "gpt-5",
		},
	}
}

// Validate checks that the default and every alias target are declared.
func (m *ModelsConfig) Validate() error {
	if len(m.Models) == 0 {
		return fmt.Errorf("models: no models declared")
	}
	if _, ok := m.Models[m.Default]; !ok {
		return fmt.Errorf("models: default %q is not declared", m.Default)
	}
	for alias, target := range m.LegacyAliases {
		if _, ok := m.Models[target]; !ok {
			return fmt.Errorf("models: alias %q points at undeclared model %q", alias, target)
		}
		if _, clash := m.Models[alias]; clash {
			return fmt.Errorf("models: alias %q shadows a declared model", alias)
		}
	}
	for name, mm := range m.Models {
		if mm.Provider == "" || mm.Model == "" {
			return fmt.Errorf("models: %q needs provider and model", name)
		}
	}
	return nil
}
