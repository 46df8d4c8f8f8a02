package model

import (
	"context"

	"github.com/stupiduntilnot/rdmochat/internal/message"
)

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the model provider abstraction used by the orchestrator.
type Provider interface {
	ChatCompletion(ctx context.Context, messages []message.Message) (CompletionResponse, error)
}
