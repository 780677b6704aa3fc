package router

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/router/adapters"
)

// Registry holds one adapter per configured provider. It is built once per
// config generation and not mutated afterwards.
type Registry struct {
	adapters map[string]adapters.ProviderAdapter
}

func NewRegistry(list ...adapters.ProviderAdapter) *Registry {
	r := &Registry{adapters: make(map[string]adapters.ProviderAdapter, len(list))}
	for _, a := range list {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (adapters.ProviderAdapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildFromConfig builds provider adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) (*Registry, error) {
	var list []adapters.ProviderAdapter
	for name, cfg := range provCfg.Providers {
		idle := cfg.MaxIdleConns
		if idle <= 0 {
			idle = 32
		}
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        idle,
				MaxIdleConnsPerHost: idle,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		switch cfg.Type {
		case "anthropic":
			list = append(list, adapters.NewAnthropicAdapter(name, cfg, client))
		case "openai":
			list = append(list, adapters.NewOpenAIAdapter(name, cfg, client))
		case "ollama":
			a, err := adapters.NewOllamaAdapter(name, cfg, client)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			list = append(list, a)
		default:
			return nil, fmt.Errorf("provider %s: unsupported type %q", name, cfg.Type)
		}
	}
	return NewRegistry(list...), nil
}
