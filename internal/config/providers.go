package config

import "time"

type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one upstream. Type is one of anthropic, openai
// or ollama.
type ProviderConfig struct {
	Type    string        `yaml:"type"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	// MaxIdleConns sizes the per-provider connection pool.
	MaxIdleConns int               `yaml:"max_idle_conns"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}
