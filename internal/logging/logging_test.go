package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatbot.log")
	logger, err := New(Options{Level: "info", File: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("turn completed", zap.String("user_identifier", "alice"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d: %s", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if entry["msg"] != "turn completed" || entry["user_identifier"] != "alice" || entry["level"] != "INFO" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected invalid level error")
	}
}
