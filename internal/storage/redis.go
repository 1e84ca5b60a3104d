package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/mailrelay/internal/crypto"
	"github.com/dgellow/mailrelay/internal/session"
	"github.com/redis/go-redis/v9"
)

var _ session.Store = (*RedisStore)(nil)

const redisKeyPrefix = "mailrelay:session:"

// RedisStore keeps sessions in Redis, shared between relay instances.
// Entries expire through Redis TTLs, so no sweeper is needed.
type RedisStore struct {
	client    redis.Cmdable
	encryptor crypto.Encryptor
	prefix    string
	now       func() time.Time
}

// NewRedisClient connects to the server described by a redis:// or rediss:// URL
// and checks it is reachable.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a store on client. Access tokens are encrypted with encryptor.
func NewRedisStore(client redis.Cmdable, encryptor crypto.Encryptor) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &RedisStore{
		client:    client,
		encryptor: encryptor,
		prefix:    redisKeyPrefix,
		now:       time.Now,
	}, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	sess, err := record.open(s.encryptor)
	if err != nil {
		return nil, err
	}
	if sess.IsExpired(s.now()) {
		return nil, session.ErrSessionNotFound
	}
	return sess, nil
}

func (s *RedisStore) Set(ctx context.Context, sess *session.Session) error {
	// zero means no expiry in redis
	var ttl time.Duration
	if !sess.ExpiresAt.IsZero() {
		ttl = sess.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return s.Delete(ctx, sess.ID)
		}
	}

	record, err := sealSession(s.encryptor, sess)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}
