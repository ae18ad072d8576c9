package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/certfolio/certfolio/internal/security"
	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix namespaces session tokens in Redis.
const sessionKeyPrefix = "session:"

// RedisSessionStore keeps sessions in Redis with native TTL expiry, for
// deployments running more than one instance against a shared cache.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(addr, password string) *RedisSessionStore {
	return &RedisSessionStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Create writes a token -> userID mapping with TTL.
func (s *RedisSessionStore) Create(ctx context.Context, userID uint64, ttl time.Duration) (SessionInfo, error) {
	token, errToken := security.NewSessionToken()
	if errToken != nil {
		return SessionInfo{}, errToken
	}
	expiresAt := time.Now().UTC().Add(ttl)
	if errSet := s.client.Set(ctx, sessionKeyPrefix+token, strconv.FormatUint(userID, 10), ttl).Err(); errSet != nil {
		return SessionInfo{}, fmt.Errorf("auth: redis set session: %w", errSet)
	}
	return SessionInfo{Token: token, UserID: userID, ExpiresAt: expiresAt}, nil
}

// Resolve returns the session for token; Redis expiry makes stale tokens
// vanish, so a missing key means no session.
func (s *RedisSessionStore) Resolve(ctx context.Context, token string) (SessionInfo, bool, error) {
	key := sessionKeyPrefix + token
	val, errGet := s.client.Get(ctx, key).Result()
	if errors.Is(errGet, redis.Nil) {
		return SessionInfo{}, false, nil
	}
	if errGet != nil {
		return SessionInfo{}, false, fmt.Errorf("auth: redis get session: %w", errGet)
	}
	userID, errParse := strconv.ParseUint(val, 10, 64)
	if errParse != nil {
		return SessionInfo{}, false, fmt.Errorf("auth: redis session value %q: %w", val, errParse)
	}

	expiresAt := time.Now().UTC()
	if ttl, errTTL := s.client.TTL(ctx, key).Result(); errTTL == nil && ttl > 0 {
		expiresAt = expiresAt.Add(ttl)
	}
	return SessionInfo{Token: token, UserID: userID, ExpiresAt: expiresAt}, true, nil
}

// Delete removes a token mapping; missing keys are a no-op.
func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if errDel := s.client.Del(ctx, sessionKeyPrefix+token).Err(); errDel != nil && !errors.Is(errDel, redis.Nil) {
		return fmt.Errorf("auth: redis delete session: %w", errDel)
	}
	return nil
}
