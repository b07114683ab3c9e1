// Package config loads the proxy configuration from the state directory and
// environment, producing the read-only object the rest of the process
// consumes.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pysugar/vertex-nexus/internal/catalog"
)

const (
	DefaultPort          = 8000
	defaultRegion        = "us-east5"
	defaultGoogleRegion  = "us-central1"
	defaultModel         = "sonnet"
	defaultReserveTokens = 4096
)

// ErrMissingProject is returned by Validate when no project id could be
// resolved from the config file or environment.
var ErrMissingProject = errors.New("project id is required (set project_id or VERTEX_PROJECT_ID)")

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	ProjectID           string              `yaml:"project_id"`
	DefaultRegion       string              `yaml:"default_region"`
	GoogleRegion        string              `yaml:"google_region"`
	DefaultModel        string              `yaml:"default_model"`
	EnabledModels       []string            `yaml:"enabled_models"`
	ModelAliases        map[string]string   `yaml:"model_aliases"`
	FallbackChains      map[string][]string `yaml:"fallback_chains"`
	AutoTruncate        *bool               `yaml:"auto_truncate"`
	ReserveOutputTokens int                 `yaml:"reserve_output_tokens"`

	// Port rides on environment and flags, not the config file.
	Port int `yaml:"-"`
}

// Load reads the YAML config at path (empty selects the default location),
// applies environment overrides, and validates fallback chains against the
// catalog. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DefaultRegion:       defaultRegion,
		GoogleRegion:        defaultGoogleRegion,
		DefaultModel:        defaultModel,
		ReserveOutputTokens: defaultReserveTokens,
		Port:                DefaultPort,
	}

	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
		log.Printf("📦 Loaded config from %s", path)
	case os.IsNotExist(err):
		// Defaults plus environment are a complete configuration.
	default:
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.pruneFallbackChains()

	if cfg.ReserveOutputTokens <= 0 {
		cfg.ReserveOutputTokens = defaultReserveTokens
	}
	return cfg, nil
}

// Validate reports fatal configuration problems.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return ErrMissingProject
	}
	return nil
}

// AutoTruncateEnabled defaults to on when the config file is silent.
func (c *Config) AutoTruncateEnabled() bool {
	if c.AutoTruncate == nil {
		return true
	}
	return *c.AutoTruncate
}

// ModelEnabled applies the optional enabled_models filter. An empty filter
// enables everything.
func (c *Config) ModelEnabled(id string) bool {
	if len(c.EnabledModels) == 0 {
		return true
	}
	for _, m := range c.EnabledModels {
		if strings.TrimSpace(m) == id {
			return true
		}
	}
	return false
}

// FallbackFor returns the first fallback id configured for a canonical model.
func (c *Config) FallbackFor(canonical string) (string, bool) {
	chain, ok := c.FallbackChains[canonical]
	if !ok || len(chain) == 0 {
		return "", false
	}
	return chain[0], true
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("VERTEX_PROJECT_ID")); v != "" {
		cfg.ProjectID = v
	} else if v := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")); v != "" && strings.TrimSpace(cfg.ProjectID) == "" {
		cfg.ProjectID = v
	}
	if v := strings.TrimSpace(os.Getenv("VERTEX_REGION")); v != "" {
		cfg.DefaultRegion = v
	}
	if v := strings.TrimSpace(os.Getenv("VERTEX_GOOGLE_REGION")); v != "" {
		cfg.GoogleRegion = v
	}
	if v := strings.TrimSpace(os.Getenv("VERTEX_DEFAULT_MODEL")); v != "" {
		cfg.DefaultModel = v
	}
	if v := strings.TrimSpace(os.Getenv("VERTEX_PROXY_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			cfg.Port = port
		} else {
			log.Printf("⚠️ Ignoring invalid VERTEX_PROXY_PORT %q", v)
		}
	}
}

// pruneFallbackChains drops chain targets that are not catalog entries.
// Emptied chains are removed outright.
func (c *Config) pruneFallbackChains() {
	for model, chain := range c.FallbackChains {
		kept := make([]string, 0, len(chain))
		for _, target := range chain {
			target = strings.TrimSpace(target)
			if _, ok := catalog.Get(target); !ok {
				log.Printf("⚠️ Dropping fallback %q -> %q: target not in catalog", model, target)
				continue
			}
			kept = append(kept, target)
		}
		if len(kept) == 0 {
			delete(c.FallbackChains, model)
			continue
		}
		c.FallbackChains[model] = kept
	}
}

// HomeDir returns the proxy state directory, honouring VERTEX_PROXY_HOME.
func HomeDir() string {
	if v := strings.TrimSpace(os.Getenv("VERTEX_PROXY_HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vertex_proxy"
	}
	return filepath.Join(home, ".vertex_proxy")
}

// DefaultConfigPath honours VERTEX_PROXY_CONFIG, else config.yaml in HomeDir.
func DefaultConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("VERTEX_PROXY_CONFIG")); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), "config.yaml")
}

// LogPath is the rotating proxy log location.
func LogPath() string { return filepath.Join(HomeDir(), "proxy.log") }

// StatsPath is the supervisor-readable counters file.
func StatsPath() string { return filepath.Join(HomeDir(), "stats.json") }

// PIDPath is the daemon pid file.
func PIDPath() string { return filepath.Join(HomeDir(), "proxy.pid") }

// RegionsCachePath is the discovery cache consumed by the region planner.
func RegionsCachePath() string { return filepath.Join(HomeDir(), "regions.json") }

// HistoryDBPath is the request history database.
func HistoryDBPath() string { return filepath.Join(HomeDir(), "history.db") }
