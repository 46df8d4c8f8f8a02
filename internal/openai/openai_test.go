package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stupiduntilnot/rdmochat/internal/message"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestChatCompletion_WithUsage(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Hello!"}},
			},
			"usage": map[string]any{
				"prompt_tokens":     42,
				"completion_tokens": 7,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 256, 5*time.Second)
	result, err := client.ChatCompletion(context.Background(), []message.Message{
		message.System("be brief"),
		message.Human("hi"),
		message.Assistant("hello"),
		message.Human("again"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", result.Content)
	}
	if result.InputTokens != 42 {
		t.Errorf("expected 42 input tokens, got %d", result.InputTokens)
	}
	if result.OutputTokens != 7 {
		t.Errorf("expected 7 output tokens, got %d", result.OutputTokens)
	}

	if got.Model != "test-model" || got.MaxTokens != 256 {
		t.Errorf("unexpected request: %+v", got)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(got.Messages))
	}
	for i, r := range wantRoles {
		if got.Messages[i].Role != r {
			t.Errorf("message %d: expected role %q, got %q", i, r, got.Messages[i].Role)
		}
	}
}

func TestChatCompletion_NoUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  World \n"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 256, 5*time.Second)
	result, err := client.ChatCompletion(context.Background(), []message.Message{message.Human("hi")})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "  World \n" {
		t.Errorf("expected the reply unchanged, got %q", result.Content)
	}
	if result.InputTokens != 0 || result.OutputTokens != 0 {
		t.Errorf("expected zero usage, got %+v", result)
	}
}

func TestChatCompletion_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 0},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 256, 5*time.Second)
	result, err := client.ChatCompletion(context.Background(), []message.Message{message.Human("hi")})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "" {
		t.Errorf("expected empty content, got %q", result.Content)
	}
	if result.InputTokens != 10 {
		t.Errorf("expected 10 input tokens, got %d", result.InputTokens)
	}
}

func TestChatCompletion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, "test-model", 256, 5*time.Second)
	_, err := client.ChatCompletion(context.Background(), []message.Message{message.Human("hi")})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}
