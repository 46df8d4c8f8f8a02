package history

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/rdmochat/internal/config"
	"github.com/stupiduntilnot/rdmochat/internal/message"
)

const redisBackend = "redis"

// RedisStore keeps each conversation as one JSON string under
// history:{user}:{project}. Writes overwrite the whole value and, when a TTL
// is configured, reset its expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore builds a client from the URL or connection parameters in
// opts. The client is reused for the lifetime of the store.
func NewRedisStore(opts Options) (*RedisStore, error) {
	ropts, err := redisOptions(opts.Connection)
	if err != nil {
		return nil, err
	}
	return NewRedisStoreWithClient(redis.NewClient(ropts), opts), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, ttl: opts.TTL, logger: opts.logger()}
}

func (s *RedisStore) HasHistory(ctx context.Context, key Key) (bool, error) {
	n, err := s.client.Exists(ctx, key.CacheKey()).Result()
	if err != nil {
		return false, wrap(redisBackend, opHas, err)
	}
	return n > 0, nil
}

func (s *RedisStore) GetHistory(ctx context.Context, key Key) ([]message.Message, error) {
	data, err := s.client.Get(ctx, key.CacheKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return []message.Message{}, nil
	}
	if err != nil {
		return nil, wrap(redisBackend, opGet, err)
	}
	msgs, err := message.Unmarshal(data)
	if err != nil {
		return nil, wrap(redisBackend, opGet, err)
	}
	return msgs, nil
}

func (s *RedisStore) SetHistory(ctx context.Context, key Key, msgs []message.Message) error {
	data, err := message.Marshal(msgs)
	if err != nil {
		return wrap(redisBackend, opSet, err)
	}
	// A zero TTL stores the value without expiry.
	if err := s.client.Set(ctx, key.CacheKey(), data, s.ttl).Err(); err != nil {
		return wrap(redisBackend, opSet, err)
	}
	s.logger.Debug("history written", append(key.Fields(),
		zap.Int("messages", len(msgs)), zap.Duration("ttl", s.ttl))...)
	return nil
}

func (s *RedisStore) ResetHistory(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, key.CacheKey()).Err(); err != nil {
		return wrap(redisBackend, opReset, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisOptions accepts a redis:// URL or a parameter mapping with host, port,
// username, password and db.
func redisOptions(conn config.Connection) (*redis.Options, error) {
	if u := conn.Lookup("url"); u != "" {
		ropts, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return ropts, nil
	}
	port, err := conn.Int("port", 6379)
	if err != nil {
		return nil, err
	}
	db, err := conn.Int("db", 0)
	if err != nil {
		return nil, err
	}
	host := conn.String("host")
	if host == "" {
		host = "localhost"
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Username: conn.String("username"),
		Password: conn.String("password"),
		DB:       db,
	}, nil
}

var _ Store = (*RedisStore)(nil)
