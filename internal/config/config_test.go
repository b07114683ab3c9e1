package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("VERTEX_PROXY_HOME", t.TempDir())
	t.Setenv("VERTEX_PROJECT_ID", "demo-project")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectID != "demo-project" {
		t.Errorf("ProjectID = %q, want demo-project", cfg.ProjectID)
	}
	if cfg.DefaultRegion != "us-east5" {
		t.Errorf("DefaultRegion = %q, want us-east5", cfg.DefaultRegion)
	}
	if cfg.GoogleRegion != "us-central1" {
		t.Errorf("GoogleRegion = %q, want us-central1", cfg.GoogleRegion)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if !cfg.AutoTruncateEnabled() {
		t.Error("AutoTruncateEnabled() = false, want default on")
	}
	if cfg.ReserveOutputTokens != 4096 {
		t.Errorf("ReserveOutputTokens = %d, want 4096", cfg.ReserveOutputTokens)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VERTEX_PROXY_HOME", dir)
	os.Unsetenv("VERTEX_PROJECT_ID")

	yaml := `
project_id: file-project
default_region: europe-west1
google_region: us-east4
default_model: haiku
auto_truncate: false
reserve_output_tokens: 1024
enabled_models:
  - claude-sonnet-4-5@20250929
model_aliases:
  fast: claude-haiku-4-5@20251001
fallback_chains:
  claude-sonnet-4-5@20250929:
    - claude-haiku-4-5@20251001
    - totally-bogus-model
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectID != "file-project" {
		t.Errorf("ProjectID = %q, want file-project", cfg.ProjectID)
	}
	if cfg.DefaultRegion != "europe-west1" {
		t.Errorf("DefaultRegion = %q", cfg.DefaultRegion)
	}
	if cfg.DefaultModel != "haiku" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.AutoTruncateEnabled() {
		t.Error("AutoTruncateEnabled() = true, want false from file")
	}
	if cfg.ReserveOutputTokens != 1024 {
		t.Errorf("ReserveOutputTokens = %d, want 1024", cfg.ReserveOutputTokens)
	}
	if cfg.ModelAliases["fast"] != "claude-haiku-4-5@20251001" {
		t.Errorf("ModelAliases = %v", cfg.ModelAliases)
	}

	// The bogus fallback target is pruned; the valid one survives.
	chain := cfg.FallbackChains["claude-sonnet-4-5@20250929"]
	if len(chain) != 1 || chain[0] != "claude-haiku-4-5@20251001" {
		t.Errorf("FallbackChains = %v, want pruned to the valid target", chain)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VERTEX_PROXY_HOME", dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("project_id: from-file\ndefault_region: us-central1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VERTEX_PROJECT_ID", "from-env")
	t.Setenv("VERTEX_REGION", "europe-west1")
	t.Setenv("VERTEX_PROXY_PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectID != "from-env" {
		t.Errorf("ProjectID = %q, want env override", cfg.ProjectID)
	}
	if cfg.DefaultRegion != "europe-west1" {
		t.Errorf("DefaultRegion = %q, want env override", cfg.DefaultRegion)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
}

func TestGoogleCloudProjectFallback(t *testing.T) {
	t.Setenv("VERTEX_PROXY_HOME", t.TempDir())
	os.Unsetenv("VERTEX_PROJECT_ID")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "adc-project")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectID != "adc-project" {
		t.Errorf("ProjectID = %q, want adc-project", cfg.ProjectID)
	}
}

func TestInvalidPortIgnored(t *testing.T) {
	t.Setenv("VERTEX_PROXY_HOME", t.TempDir())
	t.Setenv("VERTEX_PROJECT_ID", "demo")
	t.Setenv("VERTEX_PROXY_PORT", "not-a-port")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default on bad env", cfg.Port)
	}
}

func TestValidateRequiresProject(t *testing.T) {
	t.Setenv("VERTEX_PROXY_HOME", t.TempDir())
	os.Unsetenv("VERTEX_PROJECT_ID")
	os.Unsetenv("GOOGLE_CLOUD_PROJECT")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingProject) {
		t.Errorf("Validate() = %v, want ErrMissingProject", err)
	}

	cfg.ProjectID = "p"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with project = %v, want nil", err)
	}
}

func TestModelEnabledFilter(t *testing.T) {
	cfg := &Config{}
	if !cfg.ModelEnabled("anything") {
		t.Error("empty filter must enable everything")
	}

	cfg.EnabledModels = []string{"claude-sonnet-4-5@20250929"}
	if !cfg.ModelEnabled("claude-sonnet-4-5@20250929") {
		t.Error("listed model must be enabled")
	}
	if cfg.ModelEnabled("gemini-2.5-flash") {
		t.Error("unlisted model must be disabled")
	}
}

func TestStatePaths(t *testing.T) {
	t.Setenv("VERTEX_PROXY_HOME", "/tmp/vp-test")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"log", LogPath(), "/tmp/vp-test/proxy.log"},
		{"stats", StatsPath(), "/tmp/vp-test/stats.json"},
		{"pid", PIDPath(), "/tmp/vp-test/proxy.pid"},
		{"regions", RegionsCachePath(), "/tmp/vp-test/regions.json"},
		{"history", HistoryDBPath(), "/tmp/vp-test/history.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
