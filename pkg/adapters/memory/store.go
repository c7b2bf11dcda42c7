package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/ports"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
//
// Sessions are kept in their serialized form so values read back have the
// same shapes (float64 numbers, []any lists) as with the durable stores.
type Store struct {
	data  map[string][]byte
	mu    sync.Mutex
	idle  time.Duration
	clock ports.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout sets the idle window after which sessions expire.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.idle = d
	}
}

// WithClock replaces time.Now.
func WithClock(clock ports.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data:  make(map[string][]byte),
		idle:  ports.DefaultIdleTimeout,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load returns the live session under key, dropping it if expired.
// Callers must hold s.mu.
func (s *Store) load(key string, now time.Time) (*domain.Session, error) {
	raw, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session, err := domain.UnmarshalSession(raw)
	if err != nil {
		return nil, err
	}
	if session.Expired(now, s.idle) {
		delete(s.data, key)
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Get retrieves the live session for key.
func (s *Store) Get(ctx context.Context, key string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(key, s.clock())
}

// Put stores the session if the current version equals expected.
func (s *Store) Put(ctx context.Context, key string, session *domain.Session, expected int64) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var current int64
	if existing, err := s.load(key, now); err == nil {
		current = existing.Version
	}
	if current != expected {
		return nil, domain.ErrConflict
	}

	next := session.Clone()
	next.Key = key
	next.Version = expected + 1
	next.LastTouchedAt = now

	raw, err := domain.MarshalSession(next)
	if err != nil {
		return nil, err
	}
	s.data[key] = raw
	return domain.UnmarshalSession(raw)
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns live sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if _, err := s.load(key, now); err == nil {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
