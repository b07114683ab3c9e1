package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/dispatch"
	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
)

// ChatCompletions handles POST /v1/chat/completions.
func ChatCompletions(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.GetRequestID(r.Context())
		meta := MetaFrom(r.Context())

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeOpenAIError(w, http.StatusBadRequest, "failed to read request body", "invalid_request_error")
			return
		}

		var req mappers.ChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			log.Printf("⚠️ [%s] Chat parse error: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
			return
		}
		if len(req.Messages) == 0 {
			writeOpenAIError(w, http.StatusBadRequest, "messages is required", "invalid_request_error")
			return
		}
		meta.ModelInput = req.Model

		result, err := d.Chat(r.Context(), &req)
		if err != nil {
			meta.Error = err.Error()
			writeDispatchError(r.Context(), w, err, false)
			return
		}
		defer result.Response.Body.Close()
		meta.noteResult(req.Model, result)

		if req.Stream {
			streamForProvider(result.Provider)(w, r, result.Response.Body, result.Canonical)
			return
		}

		upstreamBody, err := io.ReadAll(result.Response.Body)
		if err != nil {
			log.Printf("❌ [%s] Failed to read upstream body: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadGateway, "failed to read upstream response", "api_error")
			return
		}

		completionID := "chatcmpl-" + uuid.New().String()
		created := time.Now().Unix()
		var resp *mappers.ChatResponse
		if result.Provider == catalog.ProviderGoogle {
			resp, err = mappers.GeminiToOpenAIChat(upstreamBody, result.Canonical, completionID, created)
		} else {
			resp, err = mappers.ClaudeToOpenAIChat(upstreamBody, result.Canonical, completionID, created)
		}
		if err != nil {
			log.Printf("❌ [%s] Response translation failed: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadGateway, "failed to translate upstream response", "api_error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// Completions handles POST /v1/completions by lifting the prompt into a
// single-message chat request.
func Completions(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.GetRequestID(r.Context())
		meta := MetaFrom(r.Context())

		var req mappers.CompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("⚠️ [%s] Completions parse error: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
			return
		}
		if req.Prompt == "" {
			writeOpenAIError(w, http.StatusBadRequest, "prompt is required", "invalid_request_error")
			return
		}
		meta.ModelInput = req.Model

		// The legacy route only speaks the Anthropic response shape.
		if res := catalog.Resolve(req.Model); res.Provider != catalog.ProviderAnthropic {
			writeOpenAIError(w, http.StatusBadRequest,
				fmt.Sprintf("model %q is not supported on /v1/completions; use /v1/chat/completions", req.Model),
				"invalid_request_error")
			return
		}

		chatReq := req.ToChatRequest()
		result, err := d.Chat(r.Context(), chatReq)
		if err != nil {
			meta.Error = err.Error()
			writeDispatchError(r.Context(), w, err, false)
			return
		}
		defer result.Response.Body.Close()
		meta.noteResult(req.Model, result)

		if req.Stream {
			streamClaudeToCompletions(w, r, result.Response.Body, result.Canonical)
			return
		}

		upstreamBody, err := io.ReadAll(result.Response.Body)
		if err != nil {
			log.Printf("❌ [%s] Failed to read upstream body: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadGateway, "failed to read upstream response", "api_error")
			return
		}

		resp, err := mappers.ClaudeToOpenAICompletions(upstreamBody, result.Canonical, "cmpl-"+uuid.New().String(), time.Now().Unix())
		if err != nil {
			log.Printf("❌ [%s] Response translation failed: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadGateway, "failed to translate upstream response", "api_error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
