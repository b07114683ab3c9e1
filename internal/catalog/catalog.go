package catalog

import (
	"log"
	"sort"
	"strings"
	"sync"
)

// Provider selects the upstream wire format and URL shape for a model.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderImagen    Provider = "imagen"
)

// ModelSpec describes one catalog entry. Entries are built once at init and
// never mutated afterwards.
type ModelSpec struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	Provider      Provider `json:"provider"`
	ContextWindow int      `json:"context_window"`
	MaxTokens     int      `json:"max_tokens"`
	Regions       []string `json:"regions"`
	InputPrice    float64  `json:"input_price"`
	OutputPrice   float64  `json:"output_price"`
	Capabilities  []string `json:"capabilities"`
}

// Alias maps a short model name onto a canonical catalog id.
type Alias struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// Resolution is the outcome of resolving an inbound model string.
// Spec is nil when the model is not in the catalog; such requests proceed on
// the Anthropic branch.
type Resolution struct {
	Canonical string
	Provider  Provider
	Spec      *ModelSpec
}

var (
	stateMu     sync.RWMutex
	initialized bool
	modelByID   map[string]ModelSpec
	modelList   []string
	aliasByName map[string]string
	aliasList   []string
)

// Init installs the built-in catalog plus the supplied alias table. Aliases
// whose targets are not catalog entries are dropped with a warning. Calling
// Init again replaces the alias table (the model table is compiled in).
func Init(aliases map[string]string) {
	stateMu.Lock()
	defer stateMu.Unlock()

	modelByID = make(map[string]ModelSpec)
	modelList = modelList[:0]
	for _, spec := range defaultModels() {
		modelByID[spec.ID] = spec
		modelList = append(modelList, spec.ID)
	}

	aliasByName = make(map[string]string)
	aliasList = aliasList[:0]
	install := func(name, target string) {
		name = strings.TrimSpace(name)
		target = strings.TrimSpace(target)
		if name == "" || target == "" {
			return
		}
		if _, ok := modelByID[target]; !ok {
			log.Printf("⚠️ Dropping alias %q -> %q: target not in catalog", name, target)
			return
		}
		if _, exists := aliasByName[name]; !exists {
			aliasList = append(aliasList, name)
		}
		aliasByName[name] = target
	}

	for _, a := range defaultAliases() {
		install(a.Name, a.Target)
	}
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		install(name, aliases[name])
	}

	initialized = true
}

func ensureInitialized() {
	stateMu.RLock()
	ok := initialized
	stateMu.RUnlock()
	if ok {
		return
	}
	Init(nil)
}

// ResetForTest resets in-memory state so tests can force reload.
func ResetForTest() {
	stateMu.Lock()
	defer stateMu.Unlock()
	initialized = false
	modelByID = nil
	modelList = nil
	aliasByName = nil
	aliasList = nil
}

// Resolve maps an inbound model string to a canonical id and provider.
//
// Order: alias substitution, exact catalog lookup, then a dateless claude-
// prefix match against the catalog in insertion order. Anything else falls
// through to the Anthropic branch with no spec.
func Resolve(input string) Resolution {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	name := strings.TrimSpace(input)
	if target, ok := aliasByName[name]; ok {
		name = target
	}
	if spec, ok := modelByID[name]; ok {
		return Resolution{Canonical: spec.ID, Provider: spec.Provider, Spec: &spec}
	}
	if strings.HasPrefix(name, "claude-") && !strings.Contains(name, "@") {
		for _, id := range modelList {
			if strings.HasPrefix(id, name) {
				spec := modelByID[id]
				return Resolution{Canonical: spec.ID, Provider: spec.Provider, Spec: &spec}
			}
		}
	}
	log.Printf("⚠️ Unknown model %q, forwarding to anthropic as-is", input)
	return Resolution{Canonical: name, Provider: ProviderAnthropic}
}

// Get returns the spec for a canonical id.
func Get(id string) (ModelSpec, bool) {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	spec, ok := modelByID[strings.TrimSpace(id)]
	return spec, ok
}

// Models returns all catalog entries in insertion order.
func Models() []ModelSpec {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	result := make([]ModelSpec, 0, len(modelList))
	for _, id := range modelList {
		spec := modelByID[id]
		spec.Regions = append([]string(nil), spec.Regions...)
		spec.Capabilities = append([]string(nil), spec.Capabilities...)
		result = append(result, spec)
	}
	return result
}

// Aliases returns the installed aliases: built-ins first, then configured
// aliases in sorted order.
func Aliases() []Alias {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	result := make([]Alias, 0, len(aliasList))
	for _, name := range aliasList {
		result = append(result, Alias{Name: name, Target: aliasByName[name]})
	}
	return result
}

// AliasTarget returns the canonical id an alias points at.
func AliasTarget(name string) (string, bool) {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	target, ok := aliasByName[strings.TrimSpace(name)]
	return target, ok
}

func defaultAliases() []Alias {
	return []Alias{
		{Name: "sonnet", Target: "claude-sonnet-4-5@20250929"},
		{Name: "opus", Target: "claude-opus-4-1@20250805"},
		{Name: "haiku", Target: "claude-haiku-4-5@20251001"},
		{Name: "flash", Target: "gemini-2.5-flash"},
		{Name: "pro", Target: "gemini-2.5-pro"},
		{Name: "imagen", Target: "imagen-3.0-generate-002"},
	}
}

func defaultModels() []ModelSpec {
	chat := []string{"chat", "completions", "tools", "vision", "streaming"}
	return []ModelSpec{
		{
			ID:            "claude-sonnet-4-5@20250929",
			DisplayName:   "Claude Sonnet 4.5",
			Provider:      ProviderAnthropic,
			ContextWindow: 200000,
			MaxTokens:     64000,
			Regions:       []string{"us-east5", "us-central1", "europe-west1", "asia-east1"},
			InputPrice:    3.00,
			OutputPrice:   15.00,
			Capabilities:  chat,
		},
		{
			ID:            "claude-haiku-4-5@20251001",
			DisplayName:   "Claude Haiku 4.5",
			Provider:      ProviderAnthropic,
			ContextWindow: 200000,
			MaxTokens:     64000,
			Regions:       []string{"us-east5", "us-central1", "europe-west1"},
			InputPrice:    1.00,
			OutputPrice:   5.00,
			Capabilities:  chat,
		},
		{
			ID:            "claude-opus-4-1@20250805",
			DisplayName:   "Claude Opus 4.1",
			Provider:      ProviderAnthropic,
			ContextWindow: 200000,
			MaxTokens:     32000,
			Regions:       []string{"us-east5", "europe-west1"},
			InputPrice:    15.00,
			OutputPrice:   75.00,
			Capabilities:  chat,
		},
		{
			ID:            "claude-sonnet-4@20250514",
			DisplayName:   "Claude Sonnet 4",
			Provider:      ProviderAnthropic,
			ContextWindow: 200000,
			MaxTokens:     64000,
			Regions:       []string{"us-east5", "us-central1", "europe-west1", "asia-east1"},
			InputPrice:    3.00,
			OutputPrice:   15.00,
			Capabilities:  chat,
		},
		{
			ID:            "claude-3-5-haiku@20241022",
			DisplayName:   "Claude 3.5 Haiku",
			Provider:      ProviderAnthropic,
			ContextWindow: 200000,
			MaxTokens:     8192,
			Regions:       []string{"us-east5", "us-central1"},
			InputPrice:    0.80,
			OutputPrice:   4.00,
			Capabilities:  chat,
		},
		{
			ID:            "gemini-2.5-flash",
			DisplayName:   "Gemini 2.5 Flash",
			Provider:      ProviderGoogle,
			ContextWindow: 1048576,
			MaxTokens:     65535,
			Regions:       []string{"us-central1", "europe-west1", "asia-northeast1"},
			InputPrice:    0.30,
			OutputPrice:   2.50,
			Capabilities:  chat,
		},
		{
			ID:            "gemini-2.5-pro",
			DisplayName:   "Gemini 2.5 Pro",
			Provider:      ProviderGoogle,
			ContextWindow: 1048576,
			MaxTokens:     65535,
			Regions:       []string{"global"},
			InputPrice:    1.25,
			OutputPrice:   10.00,
			Capabilities:  chat,
		},
		{
			ID:            "gemini-2.0-flash",
			DisplayName:   "Gemini 2.0 Flash",
			Provider:      ProviderGoogle,
			ContextWindow: 1048576,
			MaxTokens:     8192,
			Regions:       []string{"us-central1", "us-east4", "europe-west1"},
			InputPrice:    0.10,
			OutputPrice:   0.40,
			Capabilities:  chat,
		},
		{
			ID:            "imagen-3.0-generate-002",
			DisplayName:   "Imagen 3",
			Provider:      ProviderImagen,
			ContextWindow: 0,
			MaxTokens:     0,
			Regions:       []string{"us-central1"},
			Capabilities:  []string{"images"},
		},
		{
			ID:            "imagen-4.0-generate-001",
			DisplayName:   "Imagen 4",
			Provider:      ProviderImagen,
			ContextWindow: 0,
			MaxTokens:     0,
			Regions:       []string{"us-central1"},
			Capabilities:  []string{"images"},
		},
	}
}
