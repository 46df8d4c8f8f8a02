package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/stupiduntilnot/rdmochat/internal/config"
)

func TestRegistry_UnknownStore(t *testing.T) {
	_, err := DefaultRegistry().Open(context.Background(), "rdmo_chatbot.chatbot.stores.MongoStore", Options{})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected config error, got %v", err)
	}
	if !errors.Is(err, ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
	if ce.Store != "rdmo_chatbot.chatbot.stores.MongoStore" {
		t.Fatalf("unexpected store name in error: %q", ce.Store)
	}
}

func TestRegistry_ResolvesNamesAndAliases(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"memory", "MEMORY", " locmem ", "rdmo_chatbot.chatbot.stores.LocMemStore"} {
		s, err := r.Open(context.Background(), name, Options{})
		if err != nil {
			t.Fatalf("open %q: %v", name, err)
		}
		if _, ok := s.(*MemoryStore); !ok {
			t.Fatalf("open %q: expected *MemoryStore, got %T", name, s)
		}
	}
}

func TestRegistry_FreshInstancePerOpen(t *testing.T) {
	r := DefaultRegistry()
	a, _ := r.Open(context.Background(), "memory", Options{})
	b, _ := r.Open(context.Background(), "memory", Options{})
	if a == b {
		t.Fatal("expected a new instance per Open")
	}
}

func TestRegistry_OpensFileBackends(t *testing.T) {
	dir := t.TempDir()
	r := DefaultRegistry()

	s, err := r.Open(context.Background(), "rdmo_chatbot.chatbot.stores.Sqlite3Store",
		Options{Connection: config.Connection{Raw: filepath.Join(dir, "history.db")}})
	if err != nil {
		t.Fatal(err)
	}
	sqlite, ok := s.(*SQLiteStore)
	if !ok {
		t.Fatalf("expected *SQLiteStore, got %T", s)
	}
	sqlite.Close()

	s, err = r.Open(context.Background(), "bolt",
		Options{Connection: config.Connection{Params: map[string]any{"path": filepath.Join(dir, "history.bolt")}}})
	if err != nil {
		t.Fatal(err)
	}
	s.(*BoltStore).Close()
}

func TestRegistry_OpensRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := DefaultRegistry().Open(context.Background(), "redis",
		Options{Connection: config.Connection{Raw: "redis://" + mr.Addr() + "/0"}})
	if err != nil {
		t.Fatal(err)
	}
	defer s.(*RedisStore).Close()
	ok, err := s.HasHistory(context.Background(), NewKey("alice", 7))
	if err != nil || ok {
		t.Fatalf("unexpected result ok=%v err=%v", ok, err)
	}
}

func TestRegistry_ConstructorFailureIsConfigError(t *testing.T) {
	_, err := DefaultRegistry().Open(context.Background(), "sqlite", Options{})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected config error, got %v", err)
	}
	if errors.Is(err, ErrUnknownStore) {
		t.Fatal("a known store must not report ErrUnknownStore")
	}
}

func TestRegistry_CustomConstructor(t *testing.T) {
	r := NewRegistry()
	shared := NewMemoryStore()
	r.Register("shared", func(context.Context, Options) (Store, error) { return shared, nil }, "alias")
	s, err := r.Open(context.Background(), "Alias", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if s != Store(shared) {
		t.Fatal("expected registered instance")
	}
	if names := r.Names(); len(names) != 2 || names[0] != "alias" || names[1] != "shared" {
		t.Fatalf("unexpected names: %v", names)
	}
}
