package mappers

import (
	"encoding/json"
	"strings"
)

// OpenAI Request/Response structures

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stop        StopList      `json:"stop,omitempty"`
	Tools       []ChatTool    `json:"tools,omitempty"`
	ToolChoice  interface{}   `json:"tool_choice,omitempty"` // "auto", "none", or {type:"function", function:{name}}
	User        string        `json:"user,omitempty"`
}

type ChatMessage struct {
	Role       string         `json:"role"`
	Content    MessageContent `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
}

// MessageContent accepts both the plain-string and content-part array forms
// of an OpenAI message body.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// UnmarshalJSON handles both string and array content formats
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		c.Text = ""
		c.Parts = parts
		return nil
	}
	// null or unexpected shapes degrade to empty content
	c.Text = ""
	c.Parts = nil
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// IsEmpty reports whether neither text nor parts are present.
func (c MessageContent) IsEmpty() bool {
	return c.Text == "" && len(c.Parts) == 0
}

// PlainText flattens the content to text: the string form as-is, the array
// form as its text parts concatenated.
func (c MessageContent) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

type ContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImageURLPart `json:"image_url,omitempty"`
}

type ImageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// StopList accepts the string and array forms of the OpenAI stop field.
type StopList []string

func (s *StopList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = StopList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = StopList(many)
		return nil
	}
	*s = nil
	return nil
}

type ChatTool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"` // JSON Schema
}

type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // streaming deltas only
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

type ChatChoice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ChoiceMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Streaming chunk shapes

type StreamChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type ChunkDelta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Legacy completions

type CompletionsRequest struct {
	Model       string      `json:"model"`
	Prompt      PromptValue `json:"prompt"`
	Stream      bool        `json:"stream,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	MaxTokens   *int        `json:"max_tokens,omitempty"`
	Stop        StopList    `json:"stop,omitempty"`
}

// PromptValue accepts a string or an array of strings.
type PromptValue string

func (p *PromptValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PromptValue(s)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*p = PromptValue(strings.Join(many, "\n"))
		return nil
	}
	*p = ""
	return nil
}

type CompletionsResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

type CompletionChoice struct {
	Index        int         `json:"index"`
	Text         string      `json:"text"`
	Logprobs     interface{} `json:"logprobs"`
	FinishReason string      `json:"finish_reason"`
}

// Image generation

type ImagesRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type ImagesResponse struct {
	Created int64        `json:"created"`
	Data    []ImageDatum `json:"data"`
}

type ImageDatum struct {
	B64JSON       string `json:"b64_json"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ToChatRequest lifts a legacy completions request into the chat shape so
// the rest of the pipeline has a single inbound form.
func (r *CompletionsRequest) ToChatRequest() *ChatRequest {
	return &ChatRequest{
		Model:       r.Model,
		Messages:    []ChatMessage{{Role: "user", Content: MessageContent{Text: string(r.Prompt)}}},
		Stream:      r.Stream,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Stop:        r.Stop,
	}
}

// Stream chunk constructors. Every chunk of a single response must carry the
// same id; callers allocate it once and thread it through.

func newChunk(id, model string, created int64, delta ChunkDelta, finish *string) StreamChunk {
	return StreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// NewRoleChunk is the first frame of every streaming response.
func NewRoleChunk(id, model string, created int64) StreamChunk {
	return newChunk(id, model, created, ChunkDelta{Role: "assistant"}, nil)
}

func NewContentChunk(id, model string, created int64, text string) StreamChunk {
	return newChunk(id, model, created, ChunkDelta{Content: text}, nil)
}

// NewToolCallOpenChunk announces a tool call with its id and name and an
// empty arguments string; argument deltas follow.
func NewToolCallOpenChunk(id, model string, created int64, callID, name string) StreamChunk {
	return newChunk(id, model, created, ChunkDelta{
		ToolCalls: []ToolCall{{
			Index:    intPtr(0),
			ID:       callID,
			Type:     "function",
			Function: FunctionCall{Name: name, Arguments: ""},
		}},
	}, nil)
}

func NewToolCallArgsChunk(id, model string, created int64, partial string) StreamChunk {
	return newChunk(id, model, created, ChunkDelta{
		ToolCalls: []ToolCall{{
			Index:    intPtr(0),
			Function: FunctionCall{Arguments: partial},
		}},
	}, nil)
}

// NewFinishChunk is the terminal frame preceding the [DONE] sentinel.
func NewFinishChunk(id, model string, created int64, reason string) StreamChunk {
	return newChunk(id, model, created, ChunkDelta{}, stringPtr(reason))
}

func stringPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
