package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/corvidai/retrieval-core/internal/ports"
)

// chatCompletionResponse is the subset of the OpenAI-compatible non-streaming
// response this adapter needs.
type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// PortAdapter wraps a Client to satisfy ports.LLMPort, letting the query
// analyzer use a cloud model through OpenRouter as an alternate to the
// local engine.PortAdapter. It is the non-streaming counterpart to
// Client.Chat, which returns a raw response body because callers may want
// to stream; this adapter always sets Stream=false and decodes the single
// response in full.
type PortAdapter struct {
	client *Client
	model  string
}

// NewPortAdapter binds a Client to the model name every Complete call uses.
func NewPortAdapter(client *Client, model string) *PortAdapter {
	return &PortAdapter{client: client, model: model}
}

// Complete implements ports.LLMPort.
func (a *PortAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ports.CompletionOptions) (string, error) {
	req := ChatRequest{
		Model: a.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}
	if opts.Temperature > 0 {
		temp := opts.Temperature
		req.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		tokens := opts.MaxTokens
		req.MaxTokens = &tokens
	}

	body, err := a.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openrouter chat: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading openrouter response: %w", err)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decoding openrouter response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
