package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/dispatch"
	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
)

// ClaudeMessages handles POST /v1/messages and /messages: the Anthropic
// messages body passes through with minimal rewriting, and streaming relays
// upstream frames verbatim.
func ClaudeMessages(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.GetRequestID(r.Context())
		meta := MetaFrom(r.Context())

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeClaudeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		upstreamBody, modelInput, stream, err := mappers.SanitizeClaudePassthrough(body)
		if err != nil {
			log.Printf("⚠️ [%s] Messages parse error: %v", requestID, err)
			writeClaudeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		meta.ModelInput = modelInput
		log.Printf("📨 [%s] Messages passthrough: model=%s stream=%v", requestID, modelInput, stream)

		result, err := d.Messages(r.Context(), upstreamBody, modelInput, stream)
		if err != nil {
			meta.Error = err.Error()
			writeDispatchError(r.Context(), w, err, true)
			return
		}
		defer result.Response.Body.Close()
		meta.noteResult(modelInput, result)

		if stream {
			streamClaudePassthrough(w, r, result.Response.Body)
			return
		}

		respBody, err := io.ReadAll(result.Response.Body)
		if err != nil {
			log.Printf("❌ [%s] Failed to read upstream body: %v", requestID, err)
			writeClaudeError(w, http.StatusBadGateway, "failed to read upstream response")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(respBody)
	}
}
