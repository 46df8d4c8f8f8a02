package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stupiduntilnot/rdmochat/internal/chat"
	"github.com/stupiduntilnot/rdmochat/internal/config"
	"github.com/stupiduntilnot/rdmochat/internal/dummy"
	"github.com/stupiduntilnot/rdmochat/internal/history"
	"github.com/stupiduntilnot/rdmochat/internal/message"
)

func TestSessionFromFlags(t *testing.T) {
	s, err := sessionFromFlags(sessionFlags{user: "alice", project: "7", name: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != history.NewKey("alice", 7) || s.DisplayName != "Alice" {
		t.Fatalf("unexpected session: %+v", s)
	}

	s, err = sessionFromFlags(sessionFlags{user: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != history.GlobalKey("alice") {
		t.Fatalf("expected project-less key, got %v", s.Key)
	}

	if _, err := sessionFromFlags(sessionFlags{user: "alice", project: "seven"}); err == nil {
		t.Fatal("expected error for non-integer project")
	}
	if _, err := sessionFromFlags(sessionFlags{}); err == nil {
		t.Fatal("expected error without user")
	}
}

func TestSessionFromFlags_ContextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	if err := os.WriteFile(path, []byte(`{"title":"Soil samples","catalog":"horizon"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := sessionFromFlags(sessionFlags{user: "alice", project: "7", contextFile: path})
	if err != nil {
		t.Fatal(err)
	}
	if s.ProjectContext["title"] != "Soil samples" {
		t.Fatalf("unexpected context: %+v", s.ProjectContext)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte(`[1,2]`), 0o644)
	if _, err := sessionFromFlags(sessionFlags{user: "alice", contextFile: bad}); err == nil {
		t.Fatal("expected error for non-object context")
	}
}

func TestRunREPL(t *testing.T) {
	store := history.NewMemoryStore()
	provider, err := dummy.NewProvider("dummy", "echo")
	if err != nil {
		t.Fatal(err)
	}
	orch := chat.New(store, provider, chat.Options{SystemPrompt: "Hi {user}"})
	s := chat.Session{Key: history.NewKey("alice", 7)}

	var out bytes.Buffer
	in := strings.NewReader("hello\n\nsecond\n/quit\nignored\n")
	if err := runREPL(context.Background(), orch, s, in, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), confirmationNotice) {
		t.Fatalf("expected confirmation notice, got %q", out.String())
	}
	if !strings.Contains(out.String(), "echo: hello") || !strings.Contains(out.String(), "echo: second") {
		t.Fatalf("expected replies, got %q", out.String())
	}
	got, _ := store.GetHistory(context.Background(), s.Key)
	if len(got) != 4 {
		t.Fatalf("expected 4 stored messages, got %+v", got)
	}

	// A second session resumes, then resets.
	out.Reset()
	if err := runREPL(context.Background(), orch, s, strings.NewReader("/reset\n"), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), continuationNotice) || !strings.Contains(out.String(), "History cleared.") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if ok, _ := store.HasHistory(context.Background(), s.Key); ok {
		t.Fatal("expected history to be reset")
	}
}

func TestShowHistory(t *testing.T) {
	store := history.NewMemoryStore()
	key := history.NewKey("alice", 7)
	_ = store.SetHistory(context.Background(), key, []message.Message{message.Human("hi"), message.Assistant("hello!")})

	var out bytes.Buffer
	if err := showHistory(context.Background(), store, key, &out); err != nil {
		t.Fatal(err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("invalid json %q: %v", out.String(), err)
	}
	if len(entries) != 2 || entries[0]["type"] != "human" || entries[1]["type"] != "ai" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestNewModelProvider(t *testing.T) {
	cases := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"ollama", false},
		{"anthropic", false},
		{"dummy", false},
		{"gemini", true},
	}
	for _, c := range cases {
		cfg := config.Config{
			LLMProvider:  c.provider,
			LLMModel:     "m",
			LLMTimeout:   time.Second,
			LLMMaxTokens: 16,
			DummyScript:  "ok",
		}
		p, err := newModelProvider(cfg)
		if c.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", c.provider)
			}
			continue
		}
		if err != nil || p == nil {
			t.Errorf("%s: unexpected error %v", c.provider, err)
		}
	}
}

func TestSetup_UnknownStore(t *testing.T) {
	t.Setenv("CHATBOT_LLM_PROVIDER", "dummy")
	t.Setenv("CHATBOT_STORE", "rdmo_chatbot.chatbot.stores.MongoStore")
	_, err := setup(context.Background())
	if err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestSetup_SQLiteStore(t *testing.T) {
	t.Setenv("CHATBOT_LLM_PROVIDER", "dummy")
	t.Setenv("CHATBOT_STORE", "rdmo_chatbot.chatbot.stores.Sqlite3Store")
	t.Setenv("CHATBOT_STORE_CONNECTION", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("CHATBOT_LOG_FILE", filepath.Join(t.TempDir(), "chatbot.log"))
	a, err := setup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer a.close()
	if _, ok := a.store.(*history.SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", a.store)
	}
}

func TestDisplayReply(t *testing.T) {
	if got := displayReply("  hello \n"); got != "hello" {
		t.Fatalf("unexpected display %q", got)
	}
	if got := displayReply(" \n"); got != emptyReplyNotice {
		t.Fatalf("expected empty reply notice, got %q", got)
	}
}
