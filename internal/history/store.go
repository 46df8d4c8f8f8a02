// Package history persists per-user, per-project conversation history.
//
// Every backend implements Store with the same semantics: SetHistory replaces
// the whole sequence for a key (upsert), GetHistory returns an empty slice for
// an unknown key, ResetHistory is a no-op for an unknown key, and backend
// failures surface as *BackendError rather than as an empty result.
package history

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/stupiduntilnot/rdmochat/internal/config"
	"github.com/stupiduntilnot/rdmochat/internal/message"
)

// Store is the conversation-history contract shared by all backends.
type Store interface {
	HasHistory(ctx context.Context, key Key) (bool, error)
	GetHistory(ctx context.Context, key Key) ([]message.Message, error)
	SetHistory(ctx context.Context, key Key, msgs []message.Message) error
	ResetHistory(ctx context.Context, key Key) error
}

// Key addresses one conversation. A null ProjectID is the project-less
// conversation of the user.
type Key struct {
	UserIdentifier string
	ProjectID      sql.NullInt64
}

// NewKey returns the key of a project conversation.
func NewKey(user string, project int64) Key {
	return Key{UserIdentifier: user, ProjectID: sql.NullInt64{Int64: project, Valid: true}}
}

// GlobalKey returns the key of the project-less conversation of user.
func GlobalKey(user string) Key {
	return Key{UserIdentifier: user}
}

// CacheKey renders the key used by key-value backends:
// history:{user}:{project}. A null project renders as None, matching keys
// written by earlier deployments.
func (k Key) CacheKey() string {
	return "history:" + k.UserIdentifier + ":" + k.project()
}

func (k Key) String() string {
	return k.UserIdentifier + "/" + k.project()
}

func (k Key) project() string {
	if !k.ProjectID.Valid {
		return "None"
	}
	return strconv.FormatInt(k.ProjectID.Int64, 10)
}

// Record is the persisted unit of a conversation.
type Record struct {
	Key      Key
	Messages []message.Message
	Created  time.Time
	Updated  time.Time
}

// Options are handed to store constructors by the Registry.
type Options struct {
	Connection config.Connection
	// TTL is applied on every write by backends that support expiry.
	TTL    time.Duration
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Fields returns the key as structured log fields.
func (k Key) Fields() []zap.Field {
	return []zap.Field{
		zap.String("user_identifier", k.UserIdentifier),
		zap.String("project_id", k.project()),
	}
}

func wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}
