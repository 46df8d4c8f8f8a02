// Package anthropic adapts the Anthropic Messages API to the model.Provider
// interface.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stupiduntilnot/rdmochat/internal/message"
	"github.com/stupiduntilnot/rdmochat/internal/model"
)

// Client calls the Messages API.
type Client struct {
	api       sdk.Client
	model     sdk.Model
	maxTokens int64
}

// NewClient creates a client. Extra request options are appended after the
// ones derived from the arguments.
func NewClient(apiKey, baseURL, model string, maxTokens int, timeout time.Duration, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &Client{
		api:       sdk.NewClient(append(base, opts...)...),
		model:     sdk.Model(model),
		maxTokens: int64(maxTokens),
	}
}

// ChatCompletion sends the conversation and returns the concatenated text
// blocks of the reply. System messages are lifted into the system prompt.
func (c *Client) ChatCompletion(ctx context.Context, messages []message.Message) (model.CompletionResponse, error) {
	system, conv := split(messages)
	params := sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  conv,
	}
	if len(system) > 0 {
		params.System = system
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	result := model.CompletionResponse{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	result.Content = b.String()
	return result, nil
}

func split(messages []message.Message) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	conv := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case message.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case message.RoleAssistant:
			conv = append(conv, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			conv = append(conv, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return system, conv
}
