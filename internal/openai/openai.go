// Package openai adapts OpenAI-compatible chat completion endpoints (OpenAI,
// Ollama) to the model.Provider interface.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/stupiduntilnot/rdmochat/internal/message"
	"github.com/stupiduntilnot/rdmochat/internal/model"
)

// Client is a chat completions client.
type Client struct {
	api       *goopenai.Client
	model     string
	maxTokens int
}

// NewClient creates a client. An empty baseURL selects the public OpenAI API.
func NewClient(apiKey, baseURL, model string, maxTokens int, timeout time.Duration) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		api:       goopenai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

// ChatCompletion sends a chat completion request and returns a CompletionResponse.
func (c *Client) ChatCompletion(ctx context.Context, messages []message.Message) (model.CompletionResponse, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAI(messages),
		Temperature: 0.2,
		MaxTokens:   c.maxTokens,
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("openai request failed: %w", err)
	}

	result := model.CompletionResponse{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result, nil
}

func toOpenAI(messages []message.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, goopenai.ChatCompletionMessage{Role: role(m.Role), Content: m.Content})
	}
	return out
}

func role(r message.Role) string {
	switch r {
	case message.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	case message.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	default:
		return goopenai.ChatMessageRoleUser
	}
}
