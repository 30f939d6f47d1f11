// Package session holds authenticated sessions and the conversation state bound to them.
// Everything here lives in process memory; a restart logs every user out.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// Identity is who a session belongs to.
type Identity struct {
	Username string   `json:"username"`
	Pages    []string `json:"allowedPages,omitempty"`
}

type Session struct {
	Token     string    `json:"-"`
	Identity  Identity  `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the session is still usable at now.
func (s *Session) ValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Store maps opaque tokens to sessions.
type Store interface {
	Create(ctx context.Context, identity Identity) (*Session, error)
	Resolve(ctx context.Context, token string) (*Session, error)
	Revoke(ctx context.Context, token string)
}

type Option func(*MemoryStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// OnRevoke registers a hook run after a token is revoked or evicted.
func OnRevoke(fn func(token string)) Option {
	return func(s *MemoryStore) { s.onRevoke = append(s.onRevoke, fn) }
}

// MemoryStore is a process-local Store with a fixed TTL and lazy eviction.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	onRevoke []func(token string)
}

func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, identity Identity) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{
		Token:     token,
		Identity:  identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	copied := *sess
	return &copied, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !sess.ValidAt(s.now()) {
		delete(s.sessions, token)
		s.mu.Unlock()
		s.notify(token)
		return nil, ErrExpired
	}
	copied := *sess
	s.mu.Unlock()
	return &copied, nil
}

// Revoke removes token; unknown tokens are ignored.
func (s *MemoryStore) Revoke(_ context.Context, token string) {
	s.mu.Lock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()
	if ok {
		s.notify(token)
	}
}

// Len counts stored sessions, expired ones not yet evicted included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) notify(token string) {
	for _, fn := range s.onRevoke {
		fn(token)
	}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
