package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/onlyscans/scanproxy/internal/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables understood on top of the config file.
const (
	EnvConfigPath   = "SCANPROXY_CONFIG_PATH"
	EnvClientID     = "REDDIT_CLIENT_ID"
	EnvClientSecret = "REDDIT_CLIENT_SECRET"
	EnvPort         = "PORT"
	EnvLogLevel     = "LOG_LEVEL"
	EnvInsiderMode  = "INSIDER_MODE"
)

// DefaultPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultPath = "config.yaml"

// Loader handles configuration loading and hot-reloading
type Loader struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	lastMod  time.Time
	onChange func(*Config)
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the configuration from the file
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	cfg, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.config = cfg
	l.lastMod = info.ModTime()

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults plus
// environment overrides when the file does not exist.
func (l *Loader) LoadOrDefault() (*Config, error) {
	cfg, err := l.Load()
	if err == nil {
		return cfg, nil
	}
	if _, missing := err.(*errors.ErrConfigNotFound); !missing {
		return nil, err
	}

	cfg = Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Reload forces a reload of the configuration
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	if onChange != nil {
		onChange(cfg)
	}

	return cfg, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange sets a callback to be called when configuration changes
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Watch reloads the configuration whenever the file is written, created or
// renamed into place. It returns once the watcher is registered; the watch
// loop exits when ctx is done. onError receives reload failures and may be nil.
func (l *Loader) Watch(ctx context.Context, onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors often replace the file via rename.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(l.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					if !l.changedOnDisk() {
						continue
					}
					if _, err := l.Reload(); err != nil && onError != nil {
						onError(err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}

func (l *Loader) changedOnDisk() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}

	l.mu.RLock()
	lastMod := l.lastMod
	l.mu.RUnlock()

	return !info.ModTime().Equal(lastMod)
}

// LoadFromEnv loads configuration using path from environment variable or default
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultPath
	}
	return NewLoader(path).LoadOrDefault()
}

// Parse parses configuration from byte slice on top of Default, then applies
// environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvClientID); v != "" {
		cfg.Reddit.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		cfg.Reddit.ClientSecret = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", EnvPort, err)
		}
		cfg.Server.HTTPPort = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv(EnvInsiderMode); v != "" {
		cfg.Insider.Mode = v
	}
	return nil
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
