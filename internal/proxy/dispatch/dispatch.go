// Package dispatch orchestrates one inbound request: model resolution,
// auto-truncation, translation, and the region failover loop. It owns no
// state beyond the request; translated bodies and attempt records die with
// the dispatch.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/config"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
	"github.com/pysugar/vertex-nexus/internal/regions"
	"github.com/pysugar/vertex-nexus/internal/upstream"
)

// defaultMaxTokens is the output budget for models the catalog does not know.
const defaultMaxTokens = 4096

// ValidationError is a caller mistake; the HTTP surface maps it to a 400
// invalid_request_error.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Dispatcher wires the catalog, planner, and upstream client together.
type Dispatcher struct {
	Cfg     *config.Config
	Planner *regions.Planner
	Client  *upstream.Client
}

// Result is a successful dispatch: the upstream response with its body
// unread, plus what the response handler needs to translate it.
type Result struct {
	Response  *http.Response
	Canonical string
	Provider  catalog.Provider
	Region    string
	Attempts  []upstream.RegionAttempt
}

// Chat resolves, translates, and sends an OpenAI chat request, trying the
// per-model fallback chain once when every region exhausts.
func (d *Dispatcher) Chat(ctx context.Context, req *mappers.ChatRequest) (*Result, error) {
	return d.chat(ctx, req, false)
}

func (d *Dispatcher) chat(ctx context.Context, req *mappers.ChatRequest, fellBack bool) (*Result, error) {
	requestID := logging.GetRequestID(ctx)

	res := catalog.Resolve(req.Model)
	if res.Provider == catalog.ProviderImagen {
		return nil, &ValidationError{Message: fmt.Sprintf("model %q generates images; use /v1/images/generations", req.Model)}
	}
	log.Printf("🗺️ [%s] Model %s -> %s (%s)", requestID, req.Model, res.Canonical, res.Provider)

	if d.Cfg.AutoTruncateEnabled() && res.Spec != nil {
		req.Messages = TruncateMessages(req.Messages, res.Spec.ContextWindow, d.Cfg.ReserveOutputTokens)
	}

	maxTokens := effectiveMaxTokens(req.MaxTokens, res.Spec)

	var body []byte
	var err error
	switch res.Provider {
	case catalog.ProviderGoogle:
		body, err = json.Marshal(mappers.OpenAIToGemini(ctx, req, maxTokens, nil))
	default:
		body, err = json.Marshal(mappers.OpenAIToClaude(req, maxTokens))
	}
	if err != nil {
		return nil, fmt.Errorf("encode upstream body: %w", err)
	}

	result, err := d.send(ctx, res, req.Stream, body)
	if err != nil && !fellBack {
		if next, ok := d.fallbackModel(res.Canonical, err); ok {
			log.Printf("🔄 [%s] All regions exhausted for %s, falling back to %s", requestID, res.Canonical, next)
			req.Model = next
			return d.chat(ctx, req, true)
		}
	}
	return result, err
}

// Messages sends a sanitized Anthropic messages body. The passthrough always
// rides the Anthropic publisher; the body is already in upstream form.
func (d *Dispatcher) Messages(ctx context.Context, body []byte, modelInput string, stream bool) (*Result, error) {
	return d.messages(ctx, body, modelInput, stream, false)
}

func (d *Dispatcher) messages(ctx context.Context, body []byte, modelInput string, stream bool, fellBack bool) (*Result, error) {
	requestID := logging.GetRequestID(ctx)

	res := catalog.Resolve(modelInput)
	if res.Provider != catalog.ProviderAnthropic {
		return nil, &ValidationError{Message: fmt.Sprintf("model %q is not an Anthropic model", modelInput)}
	}
	log.Printf("🗺️ [%s] Model %s -> %s (%s)", requestID, modelInput, res.Canonical, res.Provider)

	result, err := d.send(ctx, res, stream, body)
	if err != nil && !fellBack {
		if next, ok := d.fallbackModel(res.Canonical, err); ok {
			log.Printf("🔄 [%s] All regions exhausted for %s, falling back to %s", requestID, res.Canonical, next)
			return d.messages(ctx, body, next, stream, true)
		}
	}
	return result, err
}

// Images sends an images.generations request to the Imagen predict endpoint.
func (d *Dispatcher) Images(ctx context.Context, req *mappers.ImagesRequest) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &ValidationError{Message: "prompt is required"}
	}

	model := req.Model
	if model == "" {
		model = "imagen"
	}
	res := catalog.Resolve(model)
	if res.Provider != catalog.ProviderImagen {
		return nil, &ValidationError{Message: fmt.Sprintf("model %q does not generate images", model)}
	}

	body, err := json.Marshal(mappers.OpenAIToImagen(req))
	if err != nil {
		return nil, fmt.Errorf("encode upstream body: %w", err)
	}
	return d.send(ctx, res, false, body)
}

// send runs the failover loop for one translated body.
func (d *Dispatcher) send(ctx context.Context, res catalog.Resolution, stream bool, body []byte) (*Result, error) {
	plan := d.Planner.Plan(res.Canonical, res.Spec)
	if len(plan) == 0 {
		return nil, fmt.Errorf("no regions available for %s", res.Canonical)
	}

	resp, attempts, err := d.Client.Do(ctx, plan, res.Provider, res.Canonical, stream, body)
	if err != nil {
		return nil, err
	}
	region := ""
	if len(attempts) > 0 {
		region = attempts[len(attempts)-1].Region
	}
	return &Result{
		Response:  resp,
		Canonical: res.Canonical,
		Provider:  res.Provider,
		Region:    region,
		Attempts:  attempts,
	}, nil
}

// fallbackModel reports the configured fallback for canonical, but only when
// the error was region exhaustion; terminal upstream answers surface as-is.
func (d *Dispatcher) fallbackModel(canonical string, err error) (string, bool) {
	var ue *upstream.Error
	if !errors.As(err, &ue) || !ue.Exhausted {
		return "", false
	}
	return d.Cfg.FallbackFor(canonical)
}

func effectiveMaxTokens(requested *int, spec *catalog.ModelSpec) int {
	limit := defaultMaxTokens
	if spec != nil && spec.MaxTokens > 0 {
		limit = spec.MaxTokens
	}
	if requested != nil && *requested > 0 {
		if *requested < limit {
			return *requested
		}
		return limit
	}
	return limit
}
