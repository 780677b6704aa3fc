package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	models    *ModelsConfig
	providers *ProvidersConfig
	hooks     []func()
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads gateway.yaml, models.yaml and providers.yaml from the config
// directory. A missing models.yaml falls back to DefaultModels; everything
// is validated before it replaces the active configuration.
func (l *Loader) Load() error {
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(l.configDir, "gateway.yaml"), cfg); err != nil {
		return fmt.Errorf("load gateway config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate gateway config: %w", err)
	}

	models := &ModelsConfig{}
	if err := LoadFile(filepath.Join(l.configDir, "models.yaml"), models); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load models config: %w", err)
		}
		l.logger.Warn("models.yaml not found, using built-in model table", "dir", l.configDir)
		models = DefaultModels()
	}
	if err := models.Validate(); err != nil {
		return fmt.Errorf("validate models config: %w", err)
	}

	providers := &ProvidersConfig{}
	if err := LoadFile(filepath.Join(l.configDir, "providers.yaml"), providers); err != nil {
		return fmt.Errorf("load providers config: %w", err)
	}
	for name, m := range models.Models {
		if _, ok := providers.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}
	}

	l.mu.Lock()
	l.cfg = cfg
	l.models = models
	l.providers = providers
	l.mu.Unlock()

	l.logger.Info("configuration loaded",
		"dir", l.configDir,
		"models", len(models.Models),
		"providers", len(providers.Providers),
	)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Loader) Models() *ModelsConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.models
}

func (l *Loader) Providers() *ProvidersConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers
}

// OnReload registers fn to run after every successful reload. Hooks run
// in registration order on the watcher goroutine.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	l.hooks = append(l.hooks, fn)
	l.mu.Unlock()
}

// reloadDebounce absorbs the burst of events editors produce for a single save.
const reloadDebounce = 250 * time.Millisecond

// watchedFile reports whether a change to name should trigger a reload.
func watchedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".rego":
		return true
	}
	return false
}

// Watch reloads on changes to the config directory and, when it exists,
// the policy bundle directory. Failed reloads keep the active config and
// skip the hooks. The watcher stops when ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dirs := []string{l.configDir}
	if bundle := l.Config().Policy.BundlePath; bundle != "" {
		if info, err := os.Stat(bundle); err == nil && info.IsDir() {
			dirs = append(dirs, bundle)
		}
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		var changed string
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watchedFile(event.Name) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
					continue
				}
				changed = event.Name
				pending = time.After(reloadDebounce)
			case <-pending:
				pending = nil
				l.reload(changed)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	l.logger.Info("watching configuration", "dirs", dirs)
	return nil
}

func (l *Loader) reload(file string) {
	l.logger.Info("configuration changed, reloading", "file", file)
	if err := l.Load(); err != nil {
		l.logger.Error("reload rejected, keeping active configuration", "error", err)
		return
	}
	l.mu.RLock()
	hooks := append([]func(){}, l.hooks...)
	l.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
