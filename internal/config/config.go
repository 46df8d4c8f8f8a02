package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultSystemPrompt = "You are a helpful bot, you use your deep knowledge of research data management " +
	"to help the user to describe their research project and the data management therein. " +
	"The name of the user is {user}."

// Config holds configuration for the chatbot process.
type Config struct {
	Store           string
	StoreConnection Connection
	StoreTTL        time.Duration

	LLMProvider     string
	LLMModel        string
	LLMBaseURL      string
	LLMTimeout      time.Duration
	LLMMaxTokens    int
	OpenAIAPIKey    string
	AnthropicAPIKey string
	DummyScript     string

	SystemPrompt  string
	HistoryWindow int

	BreakerThreshold int
	BreakerCooldown  time.Duration

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	conn, err := ParseConnection(os.Getenv("CHATBOT_STORE_CONNECTION"))
	if err != nil {
		return Config{}, fmt.Errorf("CHATBOT_STORE_CONNECTION: %w", err)
	}

	ttl := envIntOrDefault("CHATBOT_STORE_TTL", 0)
	if ttl < 0 {
		return Config{}, fmt.Errorf("CHATBOT_STORE_TTL must be >= 0, got %d", ttl)
	}

	provider := strings.ToLower(envOrDefault("CHATBOT_LLM_PROVIDER", "openai"))
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	switch provider {
	case "openai":
		if openaiKey == "" {
			return Config{}, fmt.Errorf("OPENAI_API_KEY is required in environment when CHATBOT_LLM_PROVIDER=openai")
		}
	case "anthropic":
		if anthropicKey == "" {
			return Config{}, fmt.Errorf("ANTHROPIC_API_KEY is required in environment when CHATBOT_LLM_PROVIDER=anthropic")
		}
	case "ollama", "dummy":
	default:
		return Config{}, fmt.Errorf("CHATBOT_LLM_PROVIDER must be one of openai, ollama, anthropic, dummy; got %q", provider)
	}

	timeout := envIntOrDefault("CHATBOT_LLM_TIMEOUT_SECONDS", 120)
	if timeout <= 0 {
		return Config{}, fmt.Errorf("CHATBOT_LLM_TIMEOUT_SECONDS must be > 0, got %d", timeout)
	}
	maxTokens := envIntOrDefault("CHATBOT_LLM_MAX_TOKENS", 1024)
	if maxTokens <= 0 {
		return Config{}, fmt.Errorf("CHATBOT_LLM_MAX_TOKENS must be > 0, got %d", maxTokens)
	}
	window := envIntOrDefault("CHATBOT_HISTORY_WINDOW", 0)
	if window < 0 {
		return Config{}, fmt.Errorf("CHATBOT_HISTORY_WINDOW must be >= 0, got %d", window)
	}

	return Config{
		Store:            envOrDefault("CHATBOT_STORE", "memory"),
		StoreConnection:  conn,
		StoreTTL:         time.Duration(ttl) * time.Second,
		LLMProvider:      provider,
		LLMModel:         envOrDefault("CHATBOT_LLM_MODEL", defaultModel(provider)),
		LLMBaseURL:       envOrDefault("CHATBOT_LLM_BASE_URL", defaultBaseURL(provider)),
		LLMTimeout:       time.Duration(timeout) * time.Second,
		LLMMaxTokens:     maxTokens,
		OpenAIAPIKey:     openaiKey,
		AnthropicAPIKey:  anthropicKey,
		DummyScript:      envOrDefault("CHATBOT_DUMMY_SCRIPT", "ok"),
		SystemPrompt:     envOrDefault("CHATBOT_SYSTEM_PROMPT", DefaultSystemPrompt),
		HistoryWindow:    window,
		BreakerThreshold: envIntOrDefault("CHATBOT_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  time.Duration(envIntOrDefault("CHATBOT_BREAKER_COOLDOWN_SECONDS", 30)) * time.Second,
		LogLevel:         envOrDefault("CHATBOT_LOG_LEVEL", "info"),
		LogFile:          os.Getenv("CHATBOT_LOG_FILE"),
	}, nil
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-7-sonnet-latest"
	case "ollama":
		return "llama3.1"
	case "dummy":
		return "dummy"
	default:
		return "gpt-4o-mini"
	}
}

func defaultBaseURL(provider string) string {
	if provider == "ollama" {
		return "http://localhost:11434/v1"
	}
	return ""
}

// Connection carries backend-specific store connection parameters. A value
// that is a JSON object populates Params; anything else is kept in Raw as a
// file path, DSN or URL.
type Connection struct {
	Raw    string
	Params map[string]any
}

// ParseConnection parses the CHATBOT_STORE_CONNECTION value.
func ParseConnection(v string) (Connection, error) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "{") {
		return Connection{Raw: v}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(v), &params); err != nil {
		return Connection{}, fmt.Errorf("invalid JSON object: %w", err)
	}
	return Connection{Params: params}, nil
}

// String returns the parameter as a string. Numbers and booleans are
// formatted; a missing key yields "".
func (c Connection) String(key string) string {
	v, ok := c.Params[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the parameter as an int, or fallback when it is missing.
func (c Connection) Int(key string, fallback int) (int, error) {
	s := c.String(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("connection parameter %s: %w", key, err)
	}
	return n, nil
}

// Lookup returns Raw when set, else the first non-empty of the given keys.
func (c Connection) Lookup(keys ...string) string {
	if c.Raw != "" {
		return c.Raw
	}
	for _, k := range keys {
		if v := c.String(k); v != "" {
			return v
		}
	}
	return ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
