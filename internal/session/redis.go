package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

const (
	defaultRedisPrefix = "dialer"
	defaultRedisTTL    = 30 * time.Minute
	maxUpdateRetries   = 5
)

// RedisStore shares live sessions between replicas behind the same
// telephony webhook. Every write refreshes the key TTL so abandoned calls
// expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets how long an untouched session survives.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "dialer".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(callID string) string {
	return s.prefix + ":session:" + callID
}

func (s *RedisStore) Create(ctx context.Context, callID string, t transcript.Transcript) (*Session, error) {
	sess, err := newSession(callID, t, s.now())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(callID), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateSession
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, callID string) (*Session, error) {
	if callID == "" {
		return nil, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.key(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(data)
}

func (s *RedisStore) Has(ctx context.Context, callID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(callID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Update applies fn under WATCH so a concurrent writer to the same key
// forces a retry instead of a lost update.
func (s *RedisStore) Update(ctx context.Context, callID string, fn func(*Session) error) (*Session, error) {
	key := s.key(callID)
	var result *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("redis get: %w", err)
		}
		current, err := decodeSession(data)
		if err != nil {
			return err
		}
		next := current.clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := checkUpdate(current, next); err != nil {
			return err
		}
		next.UpdatedAt = s.now()

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update %s: too much contention", callID)
}

// Delete is a no-op for unknown ids.
func (s *RedisStore) Delete(ctx context.Context, callID string) error {
	if err := s.client.Del(ctx, s.key(callID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeSession(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}
