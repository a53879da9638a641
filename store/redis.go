package store

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
	"github.com/rtrompier/agentai/pkg/llms"
)

// DefaultWindow is the number of most recent messages kept per conversation.
const DefaultWindow = 50

// RedisOption configures the Redis store.
type RedisOption func(*redisStore)

// WithWindow overrides the number of most recent messages kept per conversation.
func WithWindow(n int64) RedisOption {
	return func(s *redisStore) {
		s.window = n
	}
}

// WithTTL sets an expiry on conversation keys, refreshed on every Add.
func WithTTL(d time.Duration) RedisOption {
	return func(s *redisStore) {
		s.ttl = d
	}
}

// The redis store implements the MessageStore interface using Redis as the
// backend. Messages are JSON encoded in a list per conversation, trimmed to
// the most recent window. Keys are organized as `<prefix>/history/<id>`.
type redisStore struct {
	client redis.UniversalClient
	prefix string
	window int64
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, opts ...RedisOption) MessageStore {
	s := &redisStore{
		client: client,
		prefix: prefix,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (m *redisStore) key(id string) string {
	return path.Join(m.prefix, "history", id)
}

func (m *redisStore) Messages(ctx context.Context, id string) ([]llms.Message, error) {
	// Get all messages in the list
	data, err := m.client.LRange(ctx, m.key(id), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get messages from Redis")
	}

	var messages []llms.Message
	for _, item := range data {
		var msg llms.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal message", "err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (m *redisStore) Add(ctx context.Context, id string, msgs ...llms.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	key := m.key(id)
	pipe := m.client.Pipeline()
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal message")
		}
		pipe.RPush(ctx, key, data)
	}
	// Keep only the most recent messages
	pipe.LTrim(ctx, key, -m.window, -1)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store messages in Redis")
	}
	return nil
}

func (m *redisStore) Reset(ctx context.Context, id string) error {
	if err := m.client.Del(ctx, m.key(id)).Err(); err != nil {
		return errors.Wrap(err, "failed to reset conversation in Redis")
	}
	return nil
}
