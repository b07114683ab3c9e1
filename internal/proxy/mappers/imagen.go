package mappers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Imagen predict structures

type ImagenRequest struct {
	Instances  []ImagenInstance `json:"instances"`
	Parameters ImagenParameters `json:"parameters"`
}

type ImagenInstance struct {
	Prompt string `json:"prompt"`
}

type ImagenParameters struct {
	SampleCount   int    `json:"sampleCount"`
	AspectRatio   string `json:"aspectRatio,omitempty"`
	SafetySetting string `json:"safetySetting,omitempty"`
}

type ImagenResponse struct {
	Predictions []ImagenPrediction `json:"predictions"`
}

type ImagenPrediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

// OpenAIToImagen translates an images.generations request into the Imagen
// predict body. Sample count is capped at 4.
func OpenAIToImagen(req *ImagesRequest) *ImagenRequest {
	n := req.N
	if n <= 0 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	return &ImagenRequest{
		Instances: []ImagenInstance{{Prompt: req.Prompt}},
		Parameters: ImagenParameters{
			SampleCount:   n,
			AspectRatio:   AspectRatioFromSize(req.Size),
			SafetySetting: "block_medium_and_above",
		},
	}
}

// AspectRatioFromSize maps an OpenAI WxH size onto the closest Imagen aspect
// ratio: landscape 16:9, portrait 9:16, else square.
func AspectRatioFromSize(size string) string {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(size)), "x", 2)
	if len(parts) != 2 {
		return "1:1"
	}
	w, werr := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, herr := strconv.Atoi(strings.TrimSpace(parts[1]))
	if werr != nil || herr != nil || w <= 0 || h <= 0 {
		return "1:1"
	}
	switch {
	case w > h:
		return "16:9"
	case h > w:
		return "9:16"
	default:
		return "1:1"
	}
}

// ImagenToOpenAIImages translates an Imagen predict response into the OpenAI
// images shape, echoing the prompt as revised_prompt.
func ImagenToOpenAIImages(body []byte, prompt string, created int64) (*ImagesResponse, error) {
	var ir ImagenResponse
	if err := json.Unmarshal(body, &ir); err != nil {
		return nil, fmt.Errorf("parse imagen response: %w", err)
	}

	out := &ImagesResponse{Created: created, Data: make([]ImageDatum, 0, len(ir.Predictions))}
	for _, p := range ir.Predictions {
		out.Data = append(out.Data, ImageDatum{
			B64JSON:       p.BytesBase64Encoded,
			RevisedPrompt: prompt,
		})
	}
	return out, nil
}
