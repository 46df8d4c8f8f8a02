package history

import (
	"context"
	"sort"
	"strings"
)

// Constructor builds a store from configuration.
type Constructor func(ctx context.Context, opts Options) (Store, error)

// Registry resolves configured store names to constructors. Open builds a
// fresh instance on every call; callers keep and reuse the result.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: map[string]Constructor{}}
}

// Register binds name and any aliases to c. Names are matched
// case-insensitively.
func (r *Registry) Register(name string, c Constructor, aliases ...string) {
	for _, n := range append([]string{name}, aliases...) {
		r.constructors[normalizeStoreName(n)] = c
	}
}

// Names lists every registered name, aliases included.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open resolves name and constructs the store. Unknown names and constructor
// failures are returned as *ConfigError.
func (r *Registry) Open(ctx context.Context, name string, opts Options) (Store, error) {
	c, ok := r.constructors[normalizeStoreName(name)]
	if !ok {
		return nil, &ConfigError{Store: name, Err: ErrUnknownStore}
	}
	s, err := c(ctx, opts)
	if err != nil {
		return nil, &ConfigError{Store: name, Err: err}
	}
	return s, nil
}

func normalizeStoreName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultRegistry registers every built-in backend under its short name and
// under the dotted class reference used by earlier deployments.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("memory", func(context.Context, Options) (Store, error) {
		return NewMemoryStore(), nil
	}, "locmem", "rdmo_chatbot.chatbot.stores.LocMemStore")
	r.Register("sqlite", func(ctx context.Context, opts Options) (Store, error) {
		return NewSQLiteStore(ctx, opts.Connection.Lookup("path", "database"), opts)
	}, "sqlite3", "rdmo_chatbot.chatbot.stores.Sqlite3Store")
	r.Register("mysql", func(ctx context.Context, opts Options) (Store, error) {
		return NewMySQLStore(ctx, opts)
	}, "rdmo_chatbot.chatbot.stores.MysqlStore")
	r.Register("postgres", func(ctx context.Context, opts Options) (Store, error) {
		return NewPostgresStore(ctx, opts)
	}, "postgresql", "rdmo_chatbot.chatbot.stores.PostgresStore")
	r.Register("redis", func(_ context.Context, opts Options) (Store, error) {
		return NewRedisStore(opts)
	}, "rdmo_chatbot.chatbot.stores.RedisStore")
	r.Register("bolt", func(_ context.Context, opts Options) (Store, error) {
		return NewBoltStore(opts.Connection.Lookup("path"))
	}, "bbolt")
	return r
}
