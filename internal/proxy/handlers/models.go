package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/config"
)

// ModelEntry is one row of the /v1/models listing. The vertex block carries
// catalog metadata OpenAI's shape has no slot for; alias rows set Root to the
// canonical id they resolve to.
type ModelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Root    string `json:"root,omitempty"`

	Vertex *VertexModelInfo `json:"vertex,omitempty"`
}

// VertexModelInfo is the vendor-extension block on catalog entries.
type VertexModelInfo struct {
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxTokens     int      `json:"max_tokens"`
	Regions       []string `json:"regions"`
	InputPrice    float64  `json:"input_price_per_mtok"`
	OutputPrice   float64  `json:"output_price_per_mtok"`
	Capabilities  []string `json:"capabilities"`
}

// catalogCreated is a fixed epoch for listing rows; the catalog is compiled in
// and has no real creation time.
const catalogCreated int64 = 1677610602

// ModelsList handles GET /v1/models: enabled catalog entries followed by the
// aliases whose targets are enabled.
func ModelsList(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := make([]ModelEntry, 0)
		for _, spec := range catalog.Models() {
			if !cfg.ModelEnabled(spec.ID) {
				continue
			}
			entries = append(entries, ModelEntry{
				ID:      spec.ID,
				Object:  "model",
				Created: catalogCreated,
				OwnedBy: string(spec.Provider),
				Vertex: &VertexModelInfo{
					Provider:      string(spec.Provider),
					DisplayName:   spec.DisplayName,
					ContextWindow: spec.ContextWindow,
					MaxTokens:     spec.MaxTokens,
					Regions:       spec.Regions,
					InputPrice:    spec.InputPrice,
					OutputPrice:   spec.OutputPrice,
					Capabilities:  spec.Capabilities,
				},
			})
		}
		for _, alias := range catalog.Aliases() {
			if !cfg.ModelEnabled(alias.Target) {
				continue
			}
			spec, ok := catalog.Get(alias.Target)
			if !ok {
				continue
			}
			entries = append(entries, ModelEntry{
				ID:      alias.Name,
				Object:  "model",
				Created: catalogCreated,
				OwnedBy: string(spec.Provider),
				Root:    alias.Target,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   entries,
		})
	}
}
