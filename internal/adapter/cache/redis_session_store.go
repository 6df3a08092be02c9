package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
)

const sessionKeyPrefix = "soa2:session:"

// RedisSessionStore implements SessionStore backed by Redis. Sessions
// expire via the key TTL; there is no sweep.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Get loads and decodes the session. A missing key is nil, not an error.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Save stores the encoded session, resetting its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Delete removes the session key.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
