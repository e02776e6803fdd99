package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/umlforge/umlforge/internal/slogging"
)

// DiagramRecognizer converts a diagram image into the serialized node/edge
// JSON the editor consumes. Implementations must not mutate stored state;
// the caller decides what to do with the result.
type DiagramRecognizer interface {
	Recognize(ctx context.Context, imageBytes []byte, mimeType string) (string, error)
}

const recognitionPrompt = `You are a UML diagram recognition engine.
The attached image shows a class diagram. Extract its structure and respond
with ONLY a JSON object of the form:
{"nodes": [...], "edges": [...]}
Each node has: id (string), name, kind (class|interface|enum), attributes
(array of strings), methods (array of strings).
Each edge has: id, source (node id), target (node id), kind
(association|inheritance|realization|aggregation|composition|dependency).
Do not include markdown fences or commentary.`

// LLMRecognizer implements DiagramRecognizer with a vision-capable chat
// model via langchaingo.
type LLMRecognizer struct {
	llm   llms.Model
	model string
}

// NewLLMRecognizer creates a recognizer backed by an OpenAI-compatible model
func NewLLMRecognizer(model, apiKey string) (*LLMRecognizer, error) {
	llm, err := openai.New(
		openai.WithModel(model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize recognition model: %w", err)
	}
	return &LLMRecognizer{llm: llm, model: model}, nil
}

// Recognize sends the image and a structured-output prompt to the model and
// returns the raw JSON string.
func (r *LLMRecognizer) Recognize(ctx context.Context, imageBytes []byte, mimeType string) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, imageBytes),
				llms.TextPart(recognitionPrompt),
			},
		},
	}

	resp, err := r.llm.GenerateContent(ctx, content, llms.WithMaxTokens(4096))
	if err != nil {
		return "", fmt.Errorf("recognition request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("recognition model returned no choices")
	}

	result := stripCodeFence(resp.Choices[0].Content)
	slogging.Get().Debug("Recognition with %s produced %d bytes", r.model, len(result))
	return result, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// ignored the no-fences instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
