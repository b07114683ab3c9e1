package mappers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AnthropicVersion is the fixed version marker Vertex requires in every
// Anthropic publisher request body.
const AnthropicVersion = "vertex-2023-10-16"

// Anthropic (Claude) Request/Response structures.
// On Vertex the model never rides in the body; it is part of the URL.

type ClaudeRequest struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	System           string                 `json:"system,omitempty"`
	Messages         []ClaudeMessage        `json:"messages"`
	MaxTokens        int                    `json:"max_tokens"`
	Temperature      *float64               `json:"temperature,omitempty"`
	StopSequences    []string               `json:"stop_sequences,omitempty"`
	Stream           bool                   `json:"stream,omitempty"`
	Tools            []ClaudeTool           `json:"tools,omitempty"`
	ToolChoice       map[string]interface{} `json:"tool_choice,omitempty"`
}

type ClaudeMessage struct {
	Role    string        `json:"role"`
	Content []ClaudeBlock `json:"content"`
}

// ClaudeBlock covers the content block variants we emit and consume:
// text, image, tool_use, and tool_result.
type ClaudeBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *ClaudeImageSource `json:"source,omitempty"`

	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   interface{} `json:"content,omitempty"`
}

type ClaudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type ClaudeTool struct {
	Type        string                 `json:"type,omitempty"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type ClaudeResponse struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Role         string        `json:"role"`
	Model        string        `json:"model,omitempty"`
	Content      []ClaudeBlock `json:"content"`
	StopReason   string        `json:"stop_reason,omitempty"`
	StopSequence *string       `json:"stop_sequence,omitempty"`
	Usage        ClaudeUsage   `json:"usage"`
}

type ClaudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Streaming event shapes (upstream side)

type ClaudeStreamEvent struct {
	Type         string             `json:"type"`
	Index        int                `json:"index,omitempty"`
	Message      *ClaudeResponse    `json:"message,omitempty"`
	ContentBlock *ClaudeBlock       `json:"content_block,omitempty"`
	Delta        *ClaudeStreamDelta `json:"delta,omitempty"`
	Usage        *ClaudeUsage       `json:"usage,omitempty"`
	Error        *ClaudeStreamError `json:"error,omitempty"`
}

type ClaudeStreamDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type ClaudeStreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OpenAIToClaude translates an inbound chat request into the Anthropic on
// Vertex body. maxTokens is the effective output budget (caller resolves the
// default from the catalog). The function never fails; content it cannot
// carry is dropped.
func OpenAIToClaude(req *ChatRequest, maxTokens int) *ClaudeRequest {
	out := &ClaudeRequest{
		AnthropicVersion: AnthropicVersion,
		System:           MergeSystemMessages(req.Messages),
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		Stream:           req.Stream,
	}
	if len(req.Stop) > 0 {
		out.StopSequences = append([]string(nil), req.Stop...)
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		if cm, ok := claudeMessageFrom(msg); ok {
			out.Messages = append(out.Messages, cm)
		}
	}

	for _, tool := range req.Tools {
		if tool.Function.Name == "" {
			continue
		}
		schema := tool.Function.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		out.Tools = append(out.Tools, ClaudeTool{
			Type:        "custom",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: schema,
		})
	}
	if tc := claudeToolChoice(req.ToolChoice); tc != nil {
		out.ToolChoice = tc
	}
	return out
}

// MergeSystemMessages joins all system-role message texts, in order, with a
// blank line between them.
func MergeSystemMessages(messages []ChatMessage) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role != "system" {
			continue
		}
		if text := msg.Content.PlainText(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func claudeMessageFrom(msg ChatMessage) (ClaudeMessage, bool) {
	switch msg.Role {
	case "tool":
		return ClaudeMessage{
			Role: "user",
			Content: []ClaudeBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content.PlainText(),
			}},
		}, true
	case "assistant":
		if len(msg.ToolCalls) > 0 {
			blocks := make([]ClaudeBlock, 0, len(msg.ToolCalls)+1)
			if text := msg.Content.PlainText(); text != "" {
				blocks = append(blocks, ClaudeBlock{Type: "text", Text: text})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, ClaudeBlock{
					Type:  "tool_use",
					ID:    ensureToolUseID(call.ID),
					Name:  call.Function.Name,
					Input: parseToolArguments(call.Function.Arguments),
				})
			}
			return ClaudeMessage{Role: "assistant", Content: blocks}, true
		}
	}

	blocks := claudeBlocksFrom(msg.Content)
	if len(blocks) == 0 {
		return ClaudeMessage{}, false
	}
	role := msg.Role
	if role != "assistant" {
		role = "user"
	}
	return ClaudeMessage{Role: role, Content: blocks}, true
}

func claudeBlocksFrom(content MessageContent) []ClaudeBlock {
	if content.Parts == nil {
		if content.Text == "" {
			return nil
		}
		return []ClaudeBlock{{Type: "text", Text: content.Text}}
	}

	blocks := make([]ClaudeBlock, 0, len(content.Parts))
	for _, part := range content.Parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, ClaudeBlock{Type: "text", Text: part.Text})
		case "image_url":
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				continue
			}
			if mediaType, data, ok := ParseDataURI(part.ImageURL.URL); ok {
				blocks = append(blocks, ClaudeBlock{
					Type:   "image",
					Source: &ClaudeImageSource{Type: "base64", MediaType: mediaType, Data: data},
				})
			} else {
				blocks = append(blocks, ClaudeBlock{
					Type:   "image",
					Source: &ClaudeImageSource{Type: "url", URL: part.ImageURL.URL},
				})
			}
		}
	}
	return blocks
}

// ParseDataURI splits a base64 data: URI into media type and payload.
func ParseDataURI(uri string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(uri, "data:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(uri, "data:")
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return "", "", false
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return mediaType, payload, true
}

func claudeToolChoice(tc interface{}) map[string]interface{} {
	switch v := tc.(type) {
	case string:
		switch v {
		case "auto", "none":
			return map[string]interface{}{"type": v}
		case "required":
			return map[string]interface{}{"type": "any"}
		}
	case map[string]interface{}:
		if v["type"] == "function" {
			if fn, ok := v["function"].(map[string]interface{}); ok {
				if name, _ := fn["name"].(string); name != "" {
					return map[string]interface{}{"type": "tool", "name": name}
				}
			}
		}
	}
	return nil
}

func parseToolArguments(arguments string) map[string]interface{} {
	if strings.TrimSpace(arguments) == "" {
		return map[string]interface{}{}
	}
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return map[string]interface{}{}
	}
	return input
}

func ensureToolUseID(id string) string {
	if id != "" {
		return id
	}
	b := make([]byte, 8)
	rand.Read(b)
	return "toolu_" + hex.EncodeToString(b)
}

// MapStopReason converts an Anthropic stop_reason into the OpenAI
// finish_reason vocabulary. Unrecognized values pass through verbatim.
func MapStopReason(stopReason string, hasToolCalls bool) string {
	switch stopReason {
	case "end_turn":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	default:
		return stopReason
	}
}

// ClaudeToOpenAIChat translates a non-streaming Anthropic response body into
// an OpenAI chat completion.
func ClaudeToOpenAIChat(body []byte, model, completionID string, created int64) (*ChatResponse, error) {
	var cr ClaudeResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	var text strings.Builder
	var toolCalls []ToolCall
	for _, block := range cr.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := "{}"
			if block.Input != nil {
				if encoded, err := json.Marshal(block.Input); err == nil {
					args = string(encoded)
				}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: FunctionCall{Name: block.Name, Arguments: args},
			})
		}
	}

	content := stringPtr(text.String())
	if text.Len() == 0 && len(toolCalls) > 0 {
		content = nil
	}

	return &ChatResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChoiceMessage{Role: "assistant", Content: content, ToolCalls: toolCalls},
			FinishReason: MapStopReason(cr.StopReason, len(toolCalls) > 0),
		}},
		Usage: Usage{
			PromptTokens:     cr.Usage.InputTokens,
			CompletionTokens: cr.Usage.OutputTokens,
			TotalTokens:      cr.Usage.InputTokens + cr.Usage.OutputTokens,
		},
	}, nil
}

// ClaudeToOpenAICompletions translates a non-streaming Anthropic response
// into the legacy text-completions shape.
func ClaudeToOpenAICompletions(body []byte, model, completionID string, created int64) (*CompletionsResponse, error) {
	var cr ClaudeResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range cr.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &CompletionsResponse{
		ID:      completionID,
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []CompletionChoice{{
			Index:        0,
			Text:         text.String(),
			Logprobs:     nil,
			FinishReason: MapStopReason(cr.StopReason, false),
		}},
		Usage: Usage{
			PromptTokens:     cr.Usage.InputTokens,
			CompletionTokens: cr.Usage.OutputTokens,
			TotalTokens:      cr.Usage.InputTokens + cr.Usage.OutputTokens,
		},
	}, nil
}

// SanitizeClaudePassthrough prepares an inbound Anthropic messages body for
// Vertex: the model moves out of the body into the URL and anthropic_version
// is forced. Returns the rewritten body, the inbound model, and the stream
// flag.
func SanitizeClaudePassthrough(body []byte) ([]byte, string, bool, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", false, fmt.Errorf("parse request body: %w", err)
	}

	modelInput, _ := payload["model"].(string)
	delete(payload, "model")
	payload["anthropic_version"] = AnthropicVersion
	stream, _ := payload["stream"].(bool)

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, "", false, fmt.Errorf("encode request body: %w", err)
	}
	return out, modelInput, stream, nil
}
