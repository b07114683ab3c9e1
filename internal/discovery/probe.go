// Package discovery probes which Vertex regions actually serve each catalog
// model and writes the result to the regions cache the planner consumes.
package discovery

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/config"
	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
	"github.com/pysugar/vertex-nexus/internal/regions"
	"github.com/pysugar/vertex-nexus/internal/upstream"
)

// defaultProbeTimeout bounds one region probe.
const defaultProbeTimeout = 20 * time.Second

// Prober issues one minimal generation per model per candidate region.
type Prober struct {
	Client  *upstream.Client
	Cfg     *config.Config
	Timeout time.Duration
}

// Run probes every enabled model and returns the serving-region map. Image
// models are not probed; their catalog regions are copied as-is.
func (p *Prober) Run(ctx context.Context) (map[string][]string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	result := make(map[string][]string)
	for _, spec := range catalog.Models() {
		if !p.Cfg.ModelEnabled(spec.ID) {
			continue
		}
		if spec.Provider == catalog.ProviderImagen {
			result[spec.ID] = append([]string(nil), spec.Regions...)
			continue
		}

		candidates := candidateRegions(spec)
		body, err := probeBody(spec.Provider)
		if err != nil {
			return nil, err
		}

		serving := make([]string, 0, len(candidates))
		for _, region := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if p.probeRegion(ctx, region, spec, body, timeout) {
				serving = append(serving, region)
			}
		}
		log.Printf("🗺️ %s serves in %d/%d candidate region(s): %v", spec.ID, len(serving), len(candidates), serving)
		result[spec.ID] = serving
	}
	return result, nil
}

// RunAndSave probes and persists the cache file.
func (p *Prober) RunAndSave(ctx context.Context, path string) (map[string][]string, error) {
	result, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := regions.SaveCache(path, result); err != nil {
		return nil, err
	}
	log.Printf("✅ Discovery cache written to %s", path)
	return result, nil
}

// probeRegion reports whether the region serves the model. Anything but a 404
// counts as serving: capacity-style failures and request rejections still
// prove the deployment exists.
func (p *Prober) probeRegion(ctx context.Context, region string, spec catalog.ModelSpec, body []byte, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Client.DoRegion(probeCtx, region, spec.Provider, spec.ID, false, body)
	if err != nil {
		log.Printf("⚠️ Probe %s/%s transport error: %v", spec.ID, region, err)
		return false
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	return resp.StatusCode != http.StatusNotFound
}

// candidateRegions is the catalog set plus any priority regions not already
// listed, preserving catalog order.
func candidateRegions(spec catalog.ModelSpec) []string {
	out := append([]string(nil), spec.Regions...)
	seen := make(map[string]bool, len(out))
	for _, r := range out {
		seen[r] = true
	}
	for _, r := range regions.PriorityRegions {
		if !seen[r] {
			out = append(out, r)
			seen[r] = true
		}
	}
	return out
}

// probeBody is the cheapest request the provider accepts: one token out.
func probeBody(provider catalog.Provider) ([]byte, error) {
	switch provider {
	case catalog.ProviderAnthropic:
		return json.Marshal(map[string]interface{}{
			"anthropic_version": mappers.AnthropicVersion,
			"max_tokens":        1,
			"messages": []map[string]interface{}{
				{"role": "user", "content": "hi"},
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"contents": []map[string]interface{}{
				{"role": "user", "parts": []map[string]string{{"text": "hi"}}},
			},
			"generationConfig": map[string]int{"maxOutputTokens": 1},
		})
	}
}
