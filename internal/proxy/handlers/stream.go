package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pysugar/vertex-nexus/internal/catalog"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
)

// scannerBufferMax bounds one upstream SSE record (8 MiB).
const scannerBufferMax = 8 * 1024 * 1024

// streamState tracks the framing invariants of one outbound SSE response.
// Every chunk shares completionID; the role frame precedes all deltas; the
// finish frame and [DONE] are written at most once, or not at all when the
// stream fault-closes.
type streamState struct {
	completionID     string
	model            string
	created          int64
	chunkCount       int
	roleFrameSent    bool
	receivedTerminal bool
	finalFrameSent   bool
	doneSentinelSent bool

	sawToolCall bool
	stopReason  string
}

func newStreamState(model string) *streamState {
	return &streamState{
		completionID: "chatcmpl-" + uuid.New().String(),
		model:        model,
		created:      time.Now().Unix(),
	}
}

// sseWriter pairs the response writer with its flusher so every frame is
// pushed whole; no frame is ever partially buffered when an error strikes.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter switches the connection to event-stream mode. Returns nil if
// the runtime cannot stream; the caller reports that before headers go out.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) writeChunk(st *streamState, chunk mappers.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	st.chunkCount++
	return nil
}

func (s *sseWriter) writeDone(st *streamState) error {
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	st.doneSentinelSent = true
	return nil
}

// finish emits the terminal frame and the [DONE] sentinel.
func (s *sseWriter) finish(st *streamState) error {
	reason := mappers.MapStopReason(st.stopReason, st.sawToolCall)
	if err := s.writeChunk(st, mappers.NewFinishChunk(st.completionID, st.model, st.created, reason)); err != nil {
		return err
	}
	st.finalFrameSent = true
	return s.writeDone(st)
}

// streamClaudeToOpenAI re-frames an Anthropic streamRawPredict body as an
// OpenAI chat completion stream. Once headers are out, every failure is a
// fault close: log with the request id, stop writing, return.
func streamClaudeToOpenAI(w http.ResponseWriter, r *http.Request, upstreamBody io.Reader, model string) {
	requestID := logging.GetRequestID(r.Context())

	sse := newSSEWriter(w)
	if sse == nil {
		writeOpenAIError(w, http.StatusInternalServerError, "streaming not supported", "proxy_error")
		return
	}

	st := newStreamState(model)
	if err := sse.writeChunk(st, mappers.NewRoleChunk(st.completionID, st.model, st.created)); err != nil {
		log.Printf("❌ [%s] Stream write failed on role frame: %v", requestID, err)
		return
	}
	st.roleFrameSent = true

	guard := NewStreamGuard()
	scanner := bufio.NewScanner(upstreamBody)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferMax)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if abort, reason := guard.Check([]byte(data)); abort {
			log.Printf("❌ [%s] Stream guard tripped: %s", requestID, reason)
			return
		}

		var ev mappers.ClaudeStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			if logging.IsVerbose() {
				log.Printf("[VERBOSE] ⚠️ [%s] Unparseable stream event: %v", requestID, err)
			}
			continue
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				st.sawToolCall = true
				if err := sse.writeChunk(st, mappers.NewToolCallOpenChunk(st.completionID, st.model, st.created, ev.ContentBlock.ID, ev.ContentBlock.Name)); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
			}
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if err := sse.writeChunk(st, mappers.NewContentChunk(st.completionID, st.model, st.created, ev.Delta.Text)); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
			case "input_json_delta":
				st.sawToolCall = true
				if err := sse.writeChunk(st, mappers.NewToolCallArgsChunk(st.completionID, st.model, st.created, ev.Delta.PartialJSON)); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				st.stopReason = ev.Delta.StopReason
			}
		case "message_stop":
			st.receivedTerminal = true
		case "error":
			message := "upstream stream error"
			if ev.Error != nil {
				message = ev.Error.Message
			}
			log.Printf("❌ [%s] Upstream mid-stream error: %s", requestID, message)
			return
		}

		if st.receivedTerminal {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("❌ [%s] Stream read failed after %d chunk(s): %v", requestID, st.chunkCount, err)
		return
	}
	if !st.receivedTerminal {
		// Upstream hung up without message_stop; the client must see a
		// truncated stream, never a fabricated clean close.
		log.Printf("❌ [%s] Upstream stream ended without message_stop after %d chunk(s)", requestID, st.chunkCount)
		return
	}

	if err := sse.finish(st); err != nil {
		log.Printf("❌ [%s] Stream write failed on finish: %v", requestID, err)
		return
	}
	log.Printf("📨 [%s] Stream complete: %d chunk(s)", requestID, st.chunkCount)
}

// streamGeminiToOpenAI re-frames a streamGenerateContent?alt=sse body. The
// end of the upstream stream is the implicit terminal.
func streamGeminiToOpenAI(w http.ResponseWriter, r *http.Request, upstreamBody io.Reader, model string) {
	requestID := logging.GetRequestID(r.Context())

	sse := newSSEWriter(w)
	if sse == nil {
		writeOpenAIError(w, http.StatusInternalServerError, "streaming not supported", "proxy_error")
		return
	}

	st := newStreamState(model)
	if err := sse.writeChunk(st, mappers.NewRoleChunk(st.completionID, st.model, st.created)); err != nil {
		log.Printf("❌ [%s] Stream write failed on role frame: %v", requestID, err)
		return
	}
	st.roleFrameSent = true

	guard := NewStreamGuard()
	scanner := bufio.NewScanner(upstreamBody)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferMax)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if abort, reason := guard.Check([]byte(data)); abort {
			log.Printf("❌ [%s] Stream guard tripped: %s", requestID, reason)
			return
		}

		var gr mappers.GeminiResponse
		if err := json.Unmarshal([]byte(data), &gr); err != nil {
			if logging.IsVerbose() {
				log.Printf("[VERBOSE] ⚠️ [%s] Unparseable stream event: %v", requestID, err)
			}
			continue
		}
		if len(gr.Candidates) == 0 {
			continue
		}
		candidate := gr.Candidates[0]
		if candidate.FinishReason != "" {
			st.stopReason = candidate.FinishReason
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				if err := sse.writeChunk(st, mappers.NewContentChunk(st.completionID, st.model, st.created, part.Text)); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
			}
			if part.FunctionCall != nil {
				st.sawToolCall = true
				args := "{}"
				if part.FunctionCall.Args != nil {
					if encoded, err := json.Marshal(part.FunctionCall.Args); err == nil {
						args = string(encoded)
					}
				}
				if err := sse.writeChunk(st, mappers.NewToolCallOpenChunk(st.completionID, st.model, st.created, "call_"+uuid.New().String(), part.FunctionCall.Name)); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
				if err := sse.writeChunk(st, mappers.NewToolCallArgsChunk(st.completionID, st.model, st.created, args)); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("❌ [%s] Stream read failed after %d chunk(s): %v", requestID, st.chunkCount, err)
		return
	}

	// Gemini maps its own finish vocabulary; reuse the mapper directly.
	st.receivedTerminal = true
	reason := mappers.MapGeminiFinishReason(st.stopReason, st.sawToolCall)
	if err := sse.writeChunk(st, mappers.NewFinishChunk(st.completionID, st.model, st.created, reason)); err != nil {
		log.Printf("❌ [%s] Stream write failed on finish: %v", requestID, err)
		return
	}
	st.finalFrameSent = true
	if err := sse.writeDone(st); err != nil {
		log.Printf("❌ [%s] Stream write failed on sentinel: %v", requestID, err)
		return
	}
	log.Printf("📨 [%s] Stream complete: %d chunk(s)", requestID, st.chunkCount)
}

// streamClaudePassthrough relays upstream Anthropic SSE lines verbatim,
// event: names included, flushing per line.
func streamClaudePassthrough(w http.ResponseWriter, r *http.Request, upstreamBody io.Reader) {
	requestID := logging.GetRequestID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeClaudeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	guard := NewStreamGuard()
	scanner := bufio.NewScanner(upstreamBody)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferMax)

	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if abort, reason := guard.Check([]byte(line)); abort {
			log.Printf("❌ [%s] Stream guard tripped: %s", requestID, reason)
			return
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			log.Printf("❌ [%s] Passthrough write failed: %v", requestID, err)
			return
		}
		flusher.Flush()
		lines++
	}
	if err := scanner.Err(); err != nil {
		log.Printf("❌ [%s] Passthrough read failed after %d line(s): %v", requestID, lines, err)
		return
	}
	log.Printf("📨 [%s] Passthrough stream complete: %d line(s)", requestID, lines)
}

// streamClaudeToCompletions is the legacy text-completions flavour: content
// deltas ride in choices[0].text.
func streamClaudeToCompletions(w http.ResponseWriter, r *http.Request, upstreamBody io.Reader, model string) {
	requestID := logging.GetRequestID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeOpenAIError(w, http.StatusInternalServerError, "streaming not supported", "proxy_error")
		return
	}
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	completionID := "cmpl-" + uuid.New().String()
	created := time.Now().Unix()
	stopReason := ""
	receivedTerminal := false
	chunks := 0

	writeFrame := func(text string, finish *string) error {
		frame := map[string]interface{}{
			"id":      completionID,
			"object":  "text_completion",
			"created": created,
			"model":   model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"text":          text,
				"logprobs":      nil,
				"finish_reason": finish,
			}},
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		chunks++
		return nil
	}

	guard := NewStreamGuard()
	scanner := bufio.NewScanner(upstreamBody)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferMax)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if abort, reason := guard.Check([]byte(data)); abort {
			log.Printf("❌ [%s] Stream guard tripped: %s", requestID, reason)
			return
		}

		var ev mappers.ClaudeStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" {
				if err := writeFrame(ev.Delta.Text, nil); err != nil {
					log.Printf("❌ [%s] Stream write failed: %v", requestID, err)
					return
				}
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
		case "message_stop":
			receivedTerminal = true
		case "error":
			log.Printf("❌ [%s] Upstream mid-stream error", requestID)
			return
		}
		if receivedTerminal {
			break
		}
	}

	if err := scanner.Err(); err != nil || !receivedTerminal {
		log.Printf("❌ [%s] Stream ended abnormally after %d chunk(s): %v", requestID, chunks, err)
		return
	}

	reason := mappers.MapStopReason(stopReason, false)
	if err := writeFrame("", &reason); err != nil {
		log.Printf("❌ [%s] Stream write failed on finish: %v", requestID, err)
		return
	}
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		log.Printf("❌ [%s] Stream write failed on sentinel: %v", requestID, err)
		return
	}
	flusher.Flush()
	log.Printf("📨 [%s] Stream complete: %d chunk(s)", requestID, chunks)
}

// streamForProvider picks the chat-stream translator for a provider.
func streamForProvider(provider catalog.Provider) func(http.ResponseWriter, *http.Request, io.Reader, string) {
	if provider == catalog.ProviderGoogle {
		return streamGeminiToOpenAI
	}
	return streamClaudeToOpenAI
}
