package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/dispatch"
	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
)

// ImagesGenerations handles POST /v1/images/generations via Imagen predict.
func ImagesGenerations(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logging.GetRequestID(r.Context())
		meta := MetaFrom(r.Context())

		var req mappers.ImagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("⚠️ [%s] Images parse error: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
			return
		}
		meta.ModelInput = req.Model

		result, err := d.Images(r.Context(), &req)
		if err != nil {
			meta.Error = err.Error()
			writeDispatchError(r.Context(), w, err, false)
			return
		}
		defer result.Response.Body.Close()
		meta.noteResult(req.Model, result)

		upstreamBody, err := io.ReadAll(result.Response.Body)
		if err != nil {
			log.Printf("❌ [%s] Failed to read upstream body: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadGateway, "failed to read upstream response", "api_error")
			return
		}

		resp, err := mappers.ImagenToOpenAIImages(upstreamBody, req.Prompt, time.Now().Unix())
		if err != nil {
			log.Printf("❌ [%s] Response translation failed: %v", requestID, err)
			writeOpenAIError(w, http.StatusBadGateway, "failed to translate upstream response", "api_error")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
