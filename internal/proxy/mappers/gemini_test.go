package mappers

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

func TestOpenAIToGeminiSystemAndRoles(t *testing.T) {
	req := &ChatRequest{
		Model: "gemini-2.5-flash",
		Messages: []ChatMessage{
			{Role: "system", Content: MessageContent{Text: "You are a helpful assistant."}},
			{Role: "user", Content: MessageContent{Text: "Hello"}},
			{Role: "assistant", Content: MessageContent{Text: "Hi there"}},
			{Role: "user", Content: MessageContent{Text: "Bye"}},
		},
	}

	out := OpenAIToGemini(context.Background(), req, 2048, nil)

	if out.SystemInstruction == nil || out.SystemInstruction.Parts[0].Text != "You are a helpful assistant." {
		t.Fatalf("systemInstruction = %+v", out.SystemInstruction)
	}
	if len(out.Contents) != 3 {
		t.Fatalf("got %d contents, want 3 (system stripped)", len(out.Contents))
	}
	if out.Contents[0].Role != "user" || out.Contents[1].Role != "model" || out.Contents[2].Role != "user" {
		t.Errorf("roles = %s/%s/%s", out.Contents[0].Role, out.Contents[1].Role, out.Contents[2].Role)
	}
	if out.Contents[1].Parts[0].Text != "Hi there" {
		t.Errorf("model text = %q", out.Contents[1].Parts[0].Text)
	}
	if out.GenerationConfig == nil || out.GenerationConfig.MaxOutputTokens != 2048 {
		t.Errorf("generationConfig = %+v", out.GenerationConfig)
	}
}

func TestOpenAIToGeminiNoSystemMessage(t *testing.T) {
	req := &ChatRequest{
		Model:    "gemini-2.5-flash",
		Messages: []ChatMessage{{Role: "user", Content: MessageContent{Text: "hi"}}},
	}
	out := OpenAIToGemini(context.Background(), req, 100, nil)
	if out.SystemInstruction != nil {
		t.Errorf("systemInstruction should be absent, got %+v", out.SystemInstruction)
	}
}

func TestOpenAIToGeminiInlinesDataURI(t *testing.T) {
	req := &ChatRequest{
		Model: "gemini-2.5-flash",
		Messages: []ChatMessage{{
			Role: "user",
			Content: MessageContent{Parts: []ContentPart{
				{Type: "text", Text: "describe"},
				{Type: "image_url", ImageURL: &ImageURLPart{URL: "data:image/jpeg;base64,ZmFrZQ=="}},
			}},
		}},
	}

	out := OpenAIToGemini(context.Background(), req, 100, nil)
	parts := out.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/jpeg" || parts[1].InlineData.Data != "ZmFrZQ==" {
		t.Errorf("inlineData = %+v", parts[1].InlineData)
	}
}

func TestOpenAIToGeminiFetchesRemoteImage(t *testing.T) {
	fetched := ""
	fetch := func(ctx context.Context, url string) (string, []byte, error) {
		fetched = url
		return "image/png", []byte("pixels"), nil
	}
	req := &ChatRequest{
		Model: "gemini-2.5-flash",
		Messages: []ChatMessage{{
			Role: "user",
			Content: MessageContent{Parts: []ContentPart{
				{Type: "image_url", ImageURL: &ImageURLPart{URL: "https://example.com/cat.png"}},
			}},
		}},
	}

	out := OpenAIToGemini(context.Background(), req, 100, fetch)
	if fetched != "https://example.com/cat.png" {
		t.Errorf("fetched = %q", fetched)
	}
	part := out.Contents[0].Parts[0]
	if part.InlineData == nil || part.InlineData.MimeType != "image/png" {
		t.Fatalf("part = %+v", part)
	}
	if part.InlineData.Data != base64.StdEncoding.EncodeToString([]byte("pixels")) {
		t.Errorf("data = %q", part.InlineData.Data)
	}
}

func TestOpenAIToGeminiFailedImageFetchDegrades(t *testing.T) {
	fetch := func(ctx context.Context, url string) (string, []byte, error) {
		return "", nil, errors.New("connection refused")
	}
	req := &ChatRequest{
		Model: "gemini-2.5-flash",
		Messages: []ChatMessage{{
			Role: "user",
			Content: MessageContent{Parts: []ContentPart{
				{Type: "text", Text: "what is this?"},
				{Type: "image_url", ImageURL: &ImageURLPart{URL: "https://example.com/gone.png"}},
			}},
		}},
	}

	out := OpenAIToGemini(context.Background(), req, 100, fetch)
	parts := out.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("failed fetch must not drop the part, got %d parts", len(parts))
	}
	if parts[1].Text != imagePlaceholder {
		t.Errorf("placeholder = %q", parts[1].Text)
	}
}

func TestOpenAIToGeminiTools(t *testing.T) {
	req := &ChatRequest{
		Model:    "gemini-2.5-flash",
		Messages: []ChatMessage{{Role: "user", Content: MessageContent{Text: "weather?"}}},
		Tools: []ChatTool{{
			Type: "function",
			Function: ToolFunction{
				Name: "get_weather",
				Parameters: map[string]interface{}{
					"type":                 "object",
					"strict":               true,
					"additionalProperties": false,
					"properties": map[string]interface{}{
						"city": map[string]interface{}{"type": "string"},
					},
				},
			},
		}},
	}

	out := OpenAIToGemini(context.Background(), req, 100, nil)
	if len(out.Tools) != 1 || len(out.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools = %+v", out.Tools)
	}
	params := out.Tools[0].FunctionDeclarations[0].Parameters
	if _, ok := params["strict"]; ok {
		t.Error("strict should be stripped for Gemini")
	}
	if _, ok := params["additionalProperties"]; ok {
		t.Error("additionalProperties should be stripped for Gemini")
	}
	if params["type"] != "object" {
		t.Errorf("parameters = %v", params)
	}
}

func TestConvertJSONSchemaToOpenAPINested(t *testing.T) {
	schema := map[string]interface{}{
		"type":    "object",
		"$schema": "http://json-schema.org/draft-07/schema#",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":                 "string",
				"additionalProperties": true,
			},
		},
	}
	result := ConvertJSONSchemaToOpenAPI(schema)
	if _, ok := result["$schema"]; ok {
		t.Error("$schema should be stripped")
	}
	nested := result["properties"].(map[string]interface{})["name"].(map[string]interface{})
	if _, ok := nested["additionalProperties"]; ok {
		t.Error("nested additionalProperties should be stripped")
	}
	if nested["type"] != "string" {
		t.Errorf("nested = %v", nested)
	}
}

func TestMapGeminiFinishReason(t *testing.T) {
	tests := []struct {
		reason   string
		hasTools bool
		want     string
	}{
		{"STOP", false, "stop"},
		{"STOP", true, "tool_calls"},
		{"", false, "stop"},
		{"MAX_TOKENS", false, "length"},
		{"SAFETY", false, "content_filter"},
		{"RECITATION", false, "recitation"},
	}
	for _, tt := range tests {
		if got := MapGeminiFinishReason(tt.reason, tt.hasTools); got != tt.want {
			t.Errorf("MapGeminiFinishReason(%q, %v) = %q, want %q", tt.reason, tt.hasTools, got, tt.want)
		}
	}
}

func TestGeminiToOpenAIChat(t *testing.T) {
	body := []byte(`{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "Paris is the capital."}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 5, "totalTokenCount": 12}
	}`)

	resp, err := GeminiToOpenAIChat(body, "gemini-2.5-flash", "chatcmpl-g", 55)
	if err != nil {
		t.Fatalf("GeminiToOpenAIChat() error = %v", err)
	}
	if resp.Model != "gemini-2.5-flash" || resp.ID != "chatcmpl-g" {
		t.Errorf("envelope = %+v", resp)
	}
	msg := resp.Choices[0].Message
	if msg.Content == nil || *msg.Content != "Paris is the capital." {
		t.Errorf("content = %v", msg.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %s", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("total_tokens = %d", resp.Usage.TotalTokens)
	}
}

func TestGeminiToOpenAIChatFunctionCall(t *testing.T) {
	body := []byte(`{
		"candidates": [{
			"content": {"role": "model", "parts": [{"functionCall": {"name": "get_weather", "args": {"city": "Paris"}}}]},
			"finishReason": "STOP"
		}]
	}`)

	resp, err := GeminiToOpenAIChat(body, "gemini-2.5-flash", "id", 0)
	if err != nil {
		t.Fatalf("GeminiToOpenAIChat() error = %v", err)
	}
	msg := resp.Choices[0].Message
	if msg.Content != nil {
		t.Errorf("content should be null for pure function-call responses")
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("tool_calls = %+v", msg.ToolCalls)
	}
	if resp.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %s", resp.Choices[0].FinishReason)
	}
}
