package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pysugar/vertex-nexus/internal/proxy/mappers"
)

// parseSSE splits a recorded event-stream body into its data payloads.
func parseSSE(t *testing.T, body string) (frames []string, done bool) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			done = true
			continue
		}
		if done {
			t.Fatalf("frame after [DONE]: %s", data)
		}
		frames = append(frames, data)
	}
	return frames, done
}

func decodeChunk(t *testing.T, frame string) mappers.StreamChunk {
	t.Helper()
	var chunk mappers.StreamChunk
	if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
		t.Fatalf("chunk does not parse: %v\n%s", err, frame)
	}
	if len(chunk.Choices) != 1 {
		t.Fatalf("chunk has %d choices, want 1: %s", len(chunk.Choices), frame)
	}
	return chunk
}

func TestStreamClaudeTextDeltas(t *testing.T) {
	upstream := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":", "}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"world"}}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamClaudeToOpenAI(w, r, strings.NewReader(upstream), "claude-sonnet-4-5@20250929")

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	frames, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("missing [DONE] sentinel")
	}
	// role + 3 content + finish
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5:\n%s", len(frames), w.Body.String())
	}

	first := decodeChunk(t, frames[0])
	if !strings.HasPrefix(first.ID, "chatcmpl-") {
		t.Errorf("completion id = %q, want chatcmpl- prefix", first.ID)
	}
	if first.Choices[0].Delta.Role != "assistant" {
		t.Errorf("first frame delta = %+v, want role frame", first.Choices[0].Delta)
	}

	var text strings.Builder
	for i, frame := range frames {
		chunk := decodeChunk(t, frame)
		if chunk.ID != first.ID {
			t.Errorf("frame %d id = %q, want shared id %q", i, chunk.ID, first.ID)
		}
		if chunk.Model != "claude-sonnet-4-5@20250929" {
			t.Errorf("frame %d model = %q", i, chunk.Model)
		}
		text.WriteString(chunk.Choices[0].Delta.Content)
	}
	if text.String() != "Hello, world" {
		t.Errorf("assembled text = %q", text.String())
	}

	last := decodeChunk(t, frames[len(frames)-1])
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %v, want stop", last.Choices[0].FinishReason)
	}
}

func TestStreamClaudeToolCall(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"type":"content_block_start","content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"\"Paris\"}"}}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamClaudeToOpenAI(w, r, strings.NewReader(upstream), "claude-sonnet-4-5@20250929")

	frames, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("missing [DONE] sentinel")
	}
	// role + opener + 2 args + finish
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5:\n%s", len(frames), w.Body.String())
	}

	opener := decodeChunk(t, frames[1])
	calls := opener.Choices[0].Delta.ToolCalls
	if len(calls) != 1 || calls[0].ID != "toolu_1" || calls[0].Function.Name != "get_weather" {
		t.Errorf("opener tool call = %+v", calls)
	}

	var args strings.Builder
	for _, frame := range frames[1:4] {
		chunk := decodeChunk(t, frame)
		for _, call := range chunk.Choices[0].Delta.ToolCalls {
			args.WriteString(call.Function.Arguments)
		}
	}
	if args.String() != `{"city":"Paris"}` {
		t.Errorf("assembled arguments = %q", args.String())
	}

	last := decodeChunk(t, frames[len(frames)-1])
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %v, want tool_calls", last.Choices[0].FinishReason)
	}
}

func TestStreamClaudeTruncatedUpstream(t *testing.T) {
	// Stream ends without message_stop; the client must see the truncation,
	// never a fabricated clean close or a JSON error after headers.
	upstream := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamClaudeToOpenAI(w, r, strings.NewReader(upstream), "claude-sonnet-4-5@20250929")

	body := w.Body.String()
	frames, done := parseSSE(t, body)
	if done {
		t.Error("truncated stream must not emit [DONE]")
	}
	for _, frame := range frames {
		chunk := decodeChunk(t, frame)
		if chunk.Choices[0].FinishReason != nil {
			t.Errorf("truncated stream must not emit a finish frame: %s", frame)
		}
	}
	if strings.Contains(body, `"error"`) {
		t.Errorf("no JSON error may follow SSE headers:\n%s", body)
	}
	if w.Code != 200 {
		t.Errorf("status = %d; headers were already committed", w.Code)
	}
}

func TestStreamClaudeUpstreamErrorEvent(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"ok so far"}}`,
		``,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamClaudeToOpenAI(w, r, strings.NewReader(upstream), "claude-sonnet-4-5@20250929")

	_, done := parseSSE(t, w.Body.String())
	if done {
		t.Error("errored stream must not emit [DONE]")
	}
}

func TestStreamGemini(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Bonjour"}]}}]}`,
		``,
		`data: {"candidates":[{"content":{"role":"model","parts":[{"text":" le monde"}]},"finishReason":"STOP"}]}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamGeminiToOpenAI(w, r, strings.NewReader(upstream), "gemini-2.5-flash")

	frames, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("missing [DONE] sentinel")
	}
	// role + 2 content + finish
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4:\n%s", len(frames), w.Body.String())
	}

	first := decodeChunk(t, frames[0])
	if first.Choices[0].Delta.Role != "assistant" {
		t.Errorf("first frame = %+v, want role frame", first.Choices[0].Delta)
	}
	var text strings.Builder
	for _, frame := range frames {
		text.WriteString(decodeChunk(t, frame).Choices[0].Delta.Content)
	}
	if text.String() != "Bonjour le monde" {
		t.Errorf("assembled text = %q", text.String())
	}
	last := decodeChunk(t, frames[len(frames)-1])
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %v, want stop", last.Choices[0].FinishReason)
	}
}

func TestStreamGeminiFunctionCall(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"Paris"}}}]},"finishReason":"STOP"}]}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamGeminiToOpenAI(w, r, strings.NewReader(upstream), "gemini-2.5-flash")

	frames, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("missing [DONE] sentinel")
	}
	// role + opener + args + finish
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4:\n%s", len(frames), w.Body.String())
	}
	opener := decodeChunk(t, frames[1])
	if calls := opener.Choices[0].Delta.ToolCalls; len(calls) != 1 || calls[0].Function.Name != "get_weather" {
		t.Errorf("opener = %+v", opener.Choices[0].Delta)
	}
	argsFrame := decodeChunk(t, frames[2])
	if calls := argsFrame.Choices[0].Delta.ToolCalls; len(calls) != 1 || calls[0].Function.Arguments != `{"city":"Paris"}` {
		t.Errorf("args frame = %+v", argsFrame.Choices[0].Delta)
	}
	last := decodeChunk(t, frames[3])
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %v, want tool_calls", last.Choices[0].FinishReason)
	}
}

func TestStreamClaudePassthroughVerbatim(t *testing.T) {
	upstream := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/messages", nil)
	streamClaudePassthrough(w, r, strings.NewReader(upstream))

	got := w.Body.String()
	if !strings.Contains(got, "event: message_start\n") {
		t.Errorf("event names must pass through verbatim:\n%s", got)
	}
	if !strings.Contains(got, `data: {"type":"message_stop"}`) {
		t.Errorf("data lines must pass through verbatim:\n%s", got)
	}
	if strings.Contains(got, "[DONE]") {
		t.Errorf("passthrough must not append OpenAI sentinels:\n%s", got)
	}
}

func TestStreamClaudeToCompletionsFrames(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"once upon"}}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/v1/completions", nil)
	streamClaudeToCompletions(w, r, strings.NewReader(upstream), "claude-sonnet-4-5@20250929")

	frames, done := parseSSE(t, w.Body.String())
	if !done {
		t.Fatal("missing [DONE] sentinel")
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2:\n%s", len(frames), w.Body.String())
	}

	var first struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Choices []struct {
			Text         string  `json:"text"`
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil {
		t.Fatalf("frame does not parse: %v", err)
	}
	if first.Object != "text_completion" || !strings.HasPrefix(first.ID, "cmpl-") {
		t.Errorf("first frame = %+v", first)
	}
	if first.Choices[0].Text != "once upon" {
		t.Errorf("text = %q", first.Choices[0].Text)
	}

	var last struct {
		Choices []struct {
			FinishReason *string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(frames[1]), &last); err != nil {
		t.Fatalf("finish frame does not parse: %v", err)
	}
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %v, want stop", last.Choices[0].FinishReason)
	}
}
