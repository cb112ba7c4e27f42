// Package redis caches broker sessions so restarts and parallel workers
// reuse one login instead of burning SmartAPI login attempts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-enginev1/pkg/smartconnect"
)

const (
	sessionKey = "smartapi:session"

	// SmartAPI tokens last roughly a day but the broker occasionally expires
	// them early; 50 minutes keeps the cache well inside the safe window.
	DefaultTTL = 50 * time.Minute
)

// SessionStore persists the active broker session in Redis.
type SessionStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewSessionStore connects to Redis and verifies the connection with a ping.
func NewSessionStore(addr, password string, db int, ttl time.Duration) (*SessionStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return &SessionStore{client: client, ttl: ttl}, nil
}

// Get returns the cached session, or (nil, nil) when none is cached.
func (s *SessionStore) Get(ctx context.Context) (*smartconnect.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var sess smartconnect.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt entry is treated as a miss; the caller will re-login
		// and overwrite it.
		return nil, nil
	}
	return &sess, nil
}

// Set caches the session with the store's TTL.
func (s *SessionStore) Set(ctx context.Context, sess *smartconnect.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session set: %w", err)
	}
	return nil
}

// Clear drops the cached session, forcing the next caller to re-login.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// Client exposes the underlying connection for health checks.
func (s *SessionStore) Client() *goredis.Client { return s.client }

func (s *SessionStore) Close() error { return s.client.Close() }
