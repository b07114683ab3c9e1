package mappers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Gemini generateContent structures

type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []GeminiTool            `json:"tools,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text         string              `json:"text,omitempty"`
	InlineData   *GeminiInlineData   `json:"inlineData,omitempty"`
	FunctionCall *GeminiFunctionCall `json:"functionCall,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type GeminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type GeminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type GeminiResponse struct {
	Candidates    []GeminiCandidate    `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ImageFetcher retrieves a remote image so it can be inlined as base64.
type ImageFetcher func(ctx context.Context, url string) (mimeType string, data []byte, err error)

const imagePlaceholder = "[Image could not be loaded]"

// maxInlineImageBytes caps remote fetches; Vertex rejects larger payloads
// anyway.
const maxInlineImageBytes = 20 << 20

var defaultImageClient = &http.Client{Timeout: 15 * time.Second}

// DefaultImageFetcher downloads a remote image with a bounded read.
func DefaultImageFetcher(ctx context.Context, url string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := defaultImageClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInlineImageBytes))
	if err != nil {
		return "", nil, err
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "text/") {
		mimeType = http.DetectContentType(data)
	}
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType, data, nil
}

// OpenAIToGemini translates an inbound chat request into the Gemini
// generateContent body. Remote images are fetched and inlined; a failed
// fetch degrades to a placeholder text part and never fails the request.
func OpenAIToGemini(ctx context.Context, req *ChatRequest, maxTokens int, fetch ImageFetcher) *GeminiRequest {
	if fetch == nil {
		fetch = DefaultImageFetcher
	}

	out := &GeminiRequest{}
	if system := MergeSystemMessages(req.Messages); system != "" {
		out.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: system}}}
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		parts := geminiPartsFrom(ctx, msg.Content, fetch)
		if len(parts) == 0 {
			continue
		}
		out.Contents = append(out.Contents, GeminiContent{Role: role, Parts: parts})
	}

	cfg := &GeminiGenerationConfig{Temperature: req.Temperature}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = maxTokens
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = append([]string(nil), req.Stop...)
	}
	out.GenerationConfig = cfg

	if decls := geminiFunctionDeclarations(req.Tools); len(decls) > 0 {
		out.Tools = []GeminiTool{{FunctionDeclarations: decls}}
	}
	return out
}

func geminiPartsFrom(ctx context.Context, content MessageContent, fetch ImageFetcher) []GeminiPart {
	if content.Parts == nil {
		if content.Text == "" {
			return nil
		}
		return []GeminiPart{{Text: content.Text}}
	}

	parts := make([]GeminiPart, 0, len(content.Parts))
	for _, part := range content.Parts {
		switch part.Type {
		case "text":
			parts = append(parts, GeminiPart{Text: part.Text})
		case "image_url":
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				continue
			}
			parts = append(parts, geminiImagePart(ctx, part.ImageURL.URL, fetch))
		}
	}
	return parts
}

func geminiImagePart(ctx context.Context, url string, fetch ImageFetcher) GeminiPart {
	if mimeType, data, ok := ParseDataURI(url); ok {
		return GeminiPart{InlineData: &GeminiInlineData{MimeType: mimeType, Data: data}}
	}

	mimeType, data, err := fetch(ctx, url)
	if err != nil {
		log.Printf("⚠️ Failed to fetch image %s: %v", url, err)
		return GeminiPart{Text: imagePlaceholder}
	}
	return GeminiPart{InlineData: &GeminiInlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

func geminiFunctionDeclarations(tools []ChatTool) []GeminiFunctionDeclaration {
	var decls []GeminiFunctionDeclaration
	for _, tool := range tools {
		if tool.Type != "function" || tool.Function.Name == "" {
			continue
		}
		decls = append(decls, GeminiFunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  ConvertJSONSchemaToOpenAPI(tool.Function.Parameters),
		})
	}
	return decls
}

// ConvertJSONSchemaToOpenAPI converts OpenAI JSON Schema to the OpenAPI
// subset Gemini accepts. Removes unsupported fields like
// additionalProperties, strict
func ConvertJSONSchemaToOpenAPI(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}

	result := make(map[string]interface{})
	for k, v := range schema {
		// Skip unsupported fields
		if k == "additionalProperties" || k == "strict" || k == "$schema" {
			continue
		}
		// Recursively handle nested objects
		if nested, ok := v.(map[string]interface{}); ok {
			result[k] = ConvertJSONSchemaToOpenAPI(nested)
		} else {
			result[k] = v
		}
	}
	return result
}

// MapGeminiFinishReason converts a Gemini finishReason into the OpenAI
// vocabulary. Unrecognized reasons pass through lowercased.
func MapGeminiFinishReason(reason string, hasToolCalls bool) string {
	switch reason {
	case "STOP", "":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

// GeminiToOpenAIChat translates a non-streaming Gemini response body into an
// OpenAI chat completion.
func GeminiToOpenAIChat(body []byte, model, completionID string, created int64) (*ChatResponse, error) {
	var gr GeminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	var text strings.Builder
	var toolCalls []ToolCall
	finishReason := ""
	if len(gr.Candidates) > 0 {
		candidate := gr.Candidates[0]
		finishReason = candidate.FinishReason
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				args := "{}"
				if part.FunctionCall.Args != nil {
					if encoded, err := json.Marshal(part.FunctionCall.Args); err == nil {
						args = string(encoded)
					}
				}
				toolCalls = append(toolCalls, ToolCall{
					ID:       ensureToolUseID(""),
					Type:     "function",
					Function: FunctionCall{Name: part.FunctionCall.Name, Arguments: args},
				})
			}
		}
	}

	content := stringPtr(text.String())
	if text.Len() == 0 && len(toolCalls) > 0 {
		content = nil
	}

	usage := Usage{}
	if gr.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	return &ChatResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChoiceMessage{Role: "assistant", Content: content, ToolCalls: toolCalls},
			FinishReason: MapGeminiFinishReason(finishReason, len(toolCalls) > 0),
		}},
		Usage: usage,
	}, nil
}
