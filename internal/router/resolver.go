package router

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/router/adapters"
)

type Capabilities struct {
	FineGrainedToolStreaming bool
	PromptCaching            bool
	FixedTemperature         bool
}

// Handle is a resolved model: which adapter to call and with which
// provider model id.
type Handle struct {
	Logical      string
	DisplayName  string
	Provider     string
	Model        string
	Adapter      adapters.ProviderAdapter
	Capabilities Capabilities
}

// ModelInfo is the public description of a logical model.
type ModelInfo struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"name"`
	Provider    string   `json:"provider"`
	Default     bool     `json:"default,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Resolver maps logical model names and legacy aliases to handles.
// It is immutable after construction.
type Resolver struct {
	handles map[string]Handle
	aliases map[string]string
	def     string
}

// NewResolver binds every declared model to its provider adapter.
func NewResolver(models *config.ModelsConfig, registry *Registry) (*Resolver, error) {
	if _, ok := models.Models[models.Default]; !ok {
		return nil, fmt.Errorf("default model %q is not declared", models.Default)
	}
	r := &Resolver{
		handles: make(map[string]Handle, len(models.Models)),
		aliases: make(map[string]string, len(models.LegacyAliases)),
		def:     models.Default,
	}
	for id, m := range models.Models {
		adapter, ok := registry.Get(m.Provider)
		if !ok {
			return nil, fmt.Errorf("model %s: provider %q has no adapter", id, m.Provider)
		}
		display := m.DisplayName
		if display == "" {
			display = id
		}
		r.handles[id] = Handle{
			Logical:     id,
			DisplayName: display,
			Provider:    m.Provider,
			Model:       m.Model,
			Adapter:     adapter,
			Capabilities: Capabilities{
				FineGrainedToolStreaming: m.FineGrainedToolStreaming,
				PromptCaching:            m.PromptCaching,
				FixedTemperature:         m.FixedTemperature,
			},
		}
	}
	for alias, target := range models.LegacyAliases {
		if _, ok := r.handles[target]; !ok {
			return nil, fmt.Errorf("alias %s points at undeclared model %q", alias, target)
		}
		r.aliases[alias] = target
	}
	return r, nil
}

// Supported reports whether name may be requested. Empty means "use the
// default" and is always supported.
func (r *Resolver) Supported(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	if _, ok := r.handles[name]; ok {
		return true
	}
	_, ok := r.aliases[name]
	return ok
}

// Canonical returns the logical id name resolves to.
func (r *Resolver) Canonical(name string) string {
	name = strings.TrimSpace(name)
	if _, ok := r.handles[name]; ok {
		return name
	}
	if target, ok := r.aliases[name]; ok {
		return target
	}
	return r.def
}

// Resolve never fails: unknown and empty names yield the default model.
func (r *Resolver) Resolve(name string) Handle {
	return r.handles[r.Canonical(name)]
}

func (r *Resolver) Default() string { return r.def }

// Models lists logical models with the aliases that map to them.
func (r *Resolver) Models() []ModelInfo {
	byTarget := map[string][]string{}
	for alias, target := range r.aliases {
		byTarget[target] = append(byTarget[target], alias)
	}
	out := make([]ModelInfo, 0, len(r.handles))
	for id, h := range r.handles {
		aliases := byTarget[id]
		sort.Strings(aliases)
		out = append(out, ModelInfo{
			ID:          id,
			DisplayName: h.DisplayName,
			Provider:    h.Provider,
			Default:     id == r.def,
			Aliases:     aliases,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Providers returns the distinct provider names used by declared models.
func (r *Resolver) Providers() []string {
	seen := map[string]bool{}
	var out []string
	for _, h := range r.handles {
		if !seen[h.Provider] {
			seen[h.Provider] = true
			out = append(out, h.Provider)
		}
	}
	sort.Strings(out)
	return out
}

// Table holds the current resolver. Reloads build a new resolver and swap
// it in; in-flight requests keep the one they loaded.
type Table struct {
	current atomic.Pointer[Resolver]
}

func NewTable(r *Resolver) *Table {
	t := &Table{}
	t.current.Store(r)
	return t
}

func (t *Table) Load() *Resolver { return t.current.Load() }

func (t *Table) Store(r *Resolver) { t.current.Store(r) }

// Rebuild constructs a registry and resolver from config and swaps them in.
// On error the previous resolver stays active.
func (t *Table) Rebuild(models *config.ModelsConfig, providers *config.ProvidersConfig) error {
	registry, err := BuildFromConfig(providers)
	if err != nil {
		return err
	}
	r, err := NewResolver(models, registry)
	if err != nil {
		return err
	}
	t.Store(r)
	return nil
}
