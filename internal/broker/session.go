// Package broker wraps the SmartAPI client with session lifecycle
// management and the candle fetch used by the signal engine.
package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	redisstore "signal-enginev1/internal/store/redis"
	"signal-enginev1/pkg/smartconnect"
)

// Credentials are the SmartAPI login inputs. The TOTP code is generated
// fresh from the secret on every login attempt.
type Credentials struct {
	ClientCode string
	Password   string
	TOTPSecret string
}

// SessionManager hands out an authenticated client, logging in lazily and
// reusing a cached session when one exists. Safe for concurrent use.
type SessionManager struct {
	mu      sync.Mutex
	client  *smartconnect.Client
	cache   *redisstore.SessionStore // nil disables caching
	creds   Credentials
	current *smartconnect.Session

	// Lifecycle callbacks, all optional.
	OnLogin        func(sess *smartconnect.Session)
	OnLoginFailure func(err error)
	OnCacheHit     func()
}

// NewSessionManager wires a client to its credentials and optional cache.
func NewSessionManager(client *smartconnect.Client, cache *redisstore.SessionStore, creds Credentials) *SessionManager {
	return &SessionManager{client: client, cache: cache, creds: creds}
}

// Client returns the SmartAPI client with a live session installed,
// performing cache restore or a fresh login as needed.
func (m *SessionManager) Client(ctx context.Context) (*smartconnect.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.client, nil
	}

	if m.cache != nil {
		if sess, err := m.cache.Get(ctx); err != nil {
			log.Printf("[broker] session cache read failed: %v", err)
		} else if sess != nil {
			m.client.Restore(sess)
			m.current = sess
			if m.OnCacheHit != nil {
				m.OnCacheHit()
			}
			return m.client, nil
		}
	}

	sess, err := m.login(ctx)
	if err != nil {
		if m.OnLoginFailure != nil {
			m.OnLoginFailure(err)
		}
		return nil, err
	}
	m.current = sess

	if m.cache != nil {
		// Best effort; a cache write failure only costs the next restart a
		// login.
		if err := m.cache.Set(ctx, sess); err != nil {
			log.Printf("[broker] session cache write failed: %v", err)
		}
	}
	if m.OnLogin != nil {
		m.OnLogin(sess)
	}
	return m.client, nil
}

func (m *SessionManager) login(ctx context.Context) (*smartconnect.Session, error) {
	code, err := totp.GenerateCode(m.creds.TOTPSecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate totp: %w", err)
	}
	sess, err := m.client.GenerateSession(ctx, m.creds.ClientCode, m.creds.Password, code)
	if err != nil {
		return nil, err
	}
	log.Printf("[broker] logged in as %s", sess.ClientCode)
	return sess, nil
}

// Invalidate drops the current session locally and from the cache. The next
// Client call performs a fresh login.
func (m *SessionManager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	m.client.Forget()
	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			log.Printf("[broker] session cache clear failed: %v", err)
		}
	}
}

// Active reports whether a session is currently installed.
func (m *SessionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Logout terminates the broker session and clears local and cached state.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.client.TerminateSession(ctx)
	m.current = nil
	if m.cache != nil {
		if cerr := m.cache.Clear(ctx); cerr != nil {
			log.Printf("[broker] session cache clear failed: %v", cerr)
		}
	}
	return err
}
