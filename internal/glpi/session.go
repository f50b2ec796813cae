package glpi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// sessionOpener obtains a fresh session token.
type sessionOpener interface {
	InitSession(ctx context.Context) (string, error)
}

// SessionCache caches the remote session token for a short TTL.
// A zero TTL disables caching and every call authenticates afresh.
// Concurrent renewals are collapsed into a single initSession call.
type SessionCache struct {
	opener sessionOpener
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewSessionCache creates a session cache.
func NewSessionCache(opener sessionOpener, ttl time.Duration) *SessionCache {
	return &SessionCache{
		opener: opener,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Token returns a valid session token, authenticating when the cached one
// is missing or expired.
func (s *SessionCache) Token(ctx context.Context) (string, error) {
	if tok := s.cached(); tok != "" {
		return tok, nil
	}
	if s.ttl <= 0 {
		return s.opener.InitSession(ctx)
	}

	v, err, _ := s.group.Do("session", func() (interface{}, error) {
		if tok := s.cached(); tok != "" {
			return tok, nil
		}
		tok, err := s.opener.InitSession(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = tok
		s.expires = s.now().Add(s.ttl)
		s.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops token if it is still the cached one.
func (s *SessionCache) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
		s.expires = time.Time{}
	}
}

// Current returns the cached token without renewing it.
func (s *SessionCache) Current() string {
	return s.cached()
}

func (s *SessionCache) cached() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token
	}
	return ""
}
