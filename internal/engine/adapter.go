package engine

import (
	"context"

	"github.com/corvidai/retrieval-core/internal/ports"
)

// PortAdapter wraps an Engine to satisfy ports.EmbeddingPort and
// ports.LLMPort, so the local Ollama/MLX backend can sit behind the
// workflow engine's analyzer and retriever without either side knowing
// about the other's types.
type PortAdapter struct {
	eng            Engine
	chatModel      string
	embeddingModel string
}

// NewPortAdapter binds an Engine to the chat and embedding model names it
// should use for every ports.LLMPort/ports.EmbeddingPort call.
func NewPortAdapter(eng Engine, chatModel, embeddingModel string) *PortAdapter {
	return &PortAdapter{eng: eng, chatModel: chatModel, embeddingModel: embeddingModel}
}

// Embed implements ports.EmbeddingPort.
func (a *PortAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.eng.Embed(ctx, a.embeddingModel, text)
}

// Complete implements ports.LLMPort as a single-turn system+user exchange
// against the local engine. opts.Temperature and opts.MaxTokens are accepted
// for interface compatibility; Engine.Chat has no sampling knobs, so they
// are not forwarded.
func (a *PortAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ports.CompletionOptions) (string, error) {
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	return a.eng.Chat(ctx, a.chatModel, messages, nil)
}
