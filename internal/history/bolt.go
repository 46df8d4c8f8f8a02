package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stupiduntilnot/rdmochat/internal/message"
)

const boltBackend = "bolt"

var historyBucket = []byte("history")

// BoltStore keeps history in an embedded bbolt file. Each conversation is
// one value in the history bucket, keyed like the Redis backend.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

type boltRecord struct {
	UserIdentifier string           `json:"user_identifier"`
	ProjectID      *int64           `json:"project_id"`
	Messages       []map[string]any `json:"messages"`
	Created        time.Time        `json:"created"`
	Updated        time.Time        `json:"updated"`
}

// NewBoltStore opens (or creates) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store requires a file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, wrap(boltBackend, opOpen, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, wrap(boltBackend, opOpen, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, wrap(boltBackend, opBootstrap, err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) HasHistory(ctx context.Context, key Key) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(historyBucket).Get([]byte(key.CacheKey())) != nil
		return nil
	})
	if err != nil {
		return false, wrap(boltBackend, opHas, err)
	}
	return found, nil
}

func (s *BoltStore) GetHistory(ctx context.Context, key Key) ([]message.Message, error) {
	rec, ok, err := s.Record(ctx, key)
	if err != nil {
		return nil, wrap(boltBackend, opGet, err)
	}
	if !ok {
		return []message.Message{}, nil
	}
	return rec.Messages, nil
}

func (s *BoltStore) SetHistory(ctx context.Context, key Key, msgs []message.Message) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(historyBucket)
		id := []byte(key.CacheKey())
		now := s.now().UTC()

		rec := boltRecord{UserIdentifier: key.UserIdentifier, Created: now}
		if key.ProjectID.Valid {
			p := key.ProjectID.Int64
			rec.ProjectID = &p
		}
		if existing := b.Get(id); existing != nil {
			var prev boltRecord
			if err := json.Unmarshal(existing, &prev); err == nil {
				rec.Created = prev.Created
			}
		}
		rec.Messages = message.Encode(msgs)
		rec.Updated = now

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(id, data)
	})
	return wrap(boltBackend, opSet, err)
}

func (s *BoltStore) ResetHistory(ctx context.Context, key Key) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Delete([]byte(key.CacheKey()))
	})
	return wrap(boltBackend, opReset, err)
}

// Record returns the full stored record for key, including timestamps.
func (s *BoltStore) Record(_ context.Context, key Key) (Record, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(historyBucket).Get([]byte(key.CacheKey())); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return Record{}, false, err
	}
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode record %s: %w", key.CacheKey(), err)
	}
	return Record{
		Key:      key,
		Messages: message.Decode(rec.Messages),
		Created:  rec.Created,
		Updated:  rec.Updated,
	}, true, nil
}

// Close closes the bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
