// Package handlers implements the HTTP surface: request parsing, dispatch,
// response translation, and the OpenAI SSE re-framing of upstream streams.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pysugar/vertex-nexus/internal/auth/credentials"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/dispatch"
	"github.com/pysugar/vertex-nexus/internal/upstream"
)

// SetSSEHeaders switches the response to event-stream mode. X-Accel-Buffering
// defeats buffering in intermediate proxies.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeOpenAIError emits the OpenAI error envelope.
func writeOpenAIError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
			"code":    status,
		},
	})
}

// writeClaudeError emits the Anthropic error envelope for the messages route.
func writeClaudeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":    "api_error",
			"message": message,
		},
	})
}

// writeDispatchError maps a dispatch failure onto the wire. Only called
// before headers are sent; mid-stream faults close silently instead.
func writeDispatchError(ctx context.Context, w http.ResponseWriter, err error, anthropicWire bool) {
	requestID := logging.GetRequestID(ctx)

	var ve *dispatch.ValidationError
	var ae *credentials.AuthError
	var ue *upstream.Error
	switch {
	case errors.As(err, &ve):
		log.Printf("⚠️ [%s] Invalid request: %s", requestID, ve.Message)
		if anthropicWire {
			writeClaudeError(w, http.StatusBadRequest, ve.Message)
		} else {
			writeOpenAIError(w, http.StatusBadRequest, ve.Message, "invalid_request_error")
		}
	case errors.As(err, &ae):
		log.Printf("❌ [%s] Credential failure: %v", requestID, ae)
		writeProxyError(w, http.StatusInternalServerError, ae.Error(), anthropicWire)
	case errors.As(err, &ue):
		message := ue.Body
		if message == "" {
			message = ue.Error()
		}
		log.Printf("❌ [%s] Upstream failure: %v", requestID, ue)
		if anthropicWire {
			writeClaudeError(w, ue.HTTPStatus(), message)
		} else {
			writeOpenAIError(w, ue.HTTPStatus(), message, "api_error")
		}
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("❌ [%s] Request deadline exceeded", requestID)
		writeProxyError(w, http.StatusGatewayTimeout, "upstream request timed out", anthropicWire)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing left to write to.
		log.Printf("⚠️ [%s] Client closed connection before response", requestID)
	default:
		log.Printf("❌ [%s] Dispatch error: %v", requestID, err)
		writeProxyError(w, http.StatusInternalServerError, err.Error(), anthropicWire)
	}
}

func writeProxyError(w http.ResponseWriter, status int, message string, anthropicWire bool) {
	if anthropicWire {
		writeClaudeError(w, status, message)
		return
	}
	writeOpenAIError(w, status, message, "proxy_error")
}
