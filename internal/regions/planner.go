// Package regions produces the ordered region list a dispatch walks during
// failover, folding in discovery-cache data when fresh.
package regions

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/logging"
)

// PriorityRegions are tried first, in this order, whenever they appear in a
// model's region set.
var PriorityRegions = []string{"us-east5", "us-central1", "europe-west1"}

// DefaultCacheMaxAge is how long discovery results override the catalog.
const DefaultCacheMaxAge = 24 * time.Hour

// Planner orders candidate regions for a canonical model id.
type Planner struct {
	CachePath   string
	CacheMaxAge time.Duration

	// Defaults appended to the fallback plan for models with no catalog
	// entry, per provider family.
	AnthropicDefault string
	GoogleDefault    string
}

// cacheFile is the on-disk discovery cache shape.
type cacheFile struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Models      map[string][]string `json:"models"`
}

// Plan returns a non-empty ordered region list for canonical. Discovery data
// wins over the static catalog; unknown models fall back to the priority
// list plus the configured default region.
func (p *Planner) Plan(canonical string, spec *catalog.ModelSpec) []string {
	if cached := p.cachedRegions(canonical); len(cached) > 0 {
		return reorderByPriority(cached)
	}
	if spec != nil && len(spec.Regions) > 0 {
		return reorderByPriority(spec.Regions)
	}

	fallback := append([]string(nil), PriorityRegions...)
	def := p.AnthropicDefault
	if spec != nil && spec.Provider != catalog.ProviderAnthropic {
		def = p.GoogleDefault
	}
	if def != "" && !containsRegion(fallback, def) {
		fallback = append(fallback, def)
	}
	return reorderByPriority(fallback)
}

// cachedRegions reads the discovery cache on each call; the file is tiny and
// a running probe may refresh it under us.
func (p *Planner) cachedRegions(canonical string) []string {
	if p.CachePath == "" {
		return nil
	}
	data, err := os.ReadFile(p.CachePath)
	if err != nil {
		return nil
	}
	var cache cacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		if logging.IsVerbose() {
			log.Printf("[VERBOSE] ⚠️ Unreadable discovery cache %s: %v", p.CachePath, err)
		}
		return nil
	}

	maxAge := p.CacheMaxAge
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	generated := cache.GeneratedAt
	if generated.IsZero() {
		if info, err := os.Stat(p.CachePath); err == nil {
			generated = info.ModTime()
		}
	}
	if generated.IsZero() || time.Since(generated) > maxAge {
		if logging.IsVerbose() {
			log.Printf("[VERBOSE] 🗺️ Discovery cache stale (generated %s), using catalog", generated)
		}
		return nil
	}
	return cache.Models[canonical]
}

// SaveCache writes a discovery cache file for the planner to consume.
func SaveCache(path string, models map[string][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	data, err := json.MarshalIndent(cacheFile{GeneratedAt: time.Now().UTC(), Models: models}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode discovery cache: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write discovery cache: %w", err)
	}
	return nil
}

// reorderByPriority moves priority regions (when present) to the front in
// priority order, keeps the rest in their original order, and drops
// duplicates.
func reorderByPriority(regionList []string) []string {
	out := make([]string, 0, len(regionList))
	seen := make(map[string]bool, len(regionList))
	for _, priority := range PriorityRegions {
		for _, r := range regionList {
			if r == priority && !seen[r] {
				out = append(out, r)
				seen[r] = true
			}
		}
	}
	for _, r := range regionList {
		if !seen[r] {
			out = append(out, r)
			seen[r] = true
		}
	}
	return out
}

func containsRegion(list []string, region string) bool {
	for _, r := range list {
		if r == region {
			return true
		}
	}
	return false
}
