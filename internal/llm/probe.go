package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
)

// ProbeResult reports whether a model is reachable with the given key.
type ProbeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Probe checks that the key can use model. Realtime models cannot be
// reached over chat completions, so for those only the model list is
// checked.
func (p *OpenAIProvider) Probe(ctx context.Context, model string) ProbeResult {
	if strings.Contains(model, "realtime") {
		page, err := p.client.Models.List(ctx)
		if err != nil {
			return ProbeResult{Message: "OpenAI error: " + err.Error()}
		}
		for _, m := range page.Data {
			if m.ID == model || strings.Contains(m.ID, "gpt-4") {
				return ProbeResult{Success: true, Message: "OpenAI API key validated successfully (realtime access is only exercised by a live session)"}
			}
		}
		return ProbeResult{Message: "API key valid but no access to GPT-4 models"}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Test")},
		MaxCompletionTokens: openai.Int(5),
	})
	if err != nil {
		return ProbeResult{Message: "OpenAI error: " + err.Error()}
	}
	if len(resp.Choices) == 0 {
		return ProbeResult{Message: "Unexpected OpenAI response"}
	}
	return ProbeResult{Success: true, Message: "OpenAI connection successful"}
}
